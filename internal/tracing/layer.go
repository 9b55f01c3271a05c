package tracing

import "github.com/deepaksharma/spanscope/internal/goid"

// Layer receives span and event notifications from a Dispatcher.
// Callbacks run synchronously on the goroutine that triggered them.
type Layer interface {
	OnNewSpan(attrs *Attributes, id ID, ctx Context)
	OnRecord(id ID, values *Record, ctx Context)
	OnEnter(id ID, ctx Context)
	OnExit(id ID, ctx Context)
	OnClose(id ID, ctx Context)
	OnEvent(ev *Event, ctx Context)
}

// BaseLayer implements every Layer callback as a no-op. Embed it and override
// what you need.
type BaseLayer struct{}

func (BaseLayer) OnNewSpan(*Attributes, ID, Context) {}
func (BaseLayer) OnRecord(ID, *Record, Context)      {}
func (BaseLayer) OnEnter(ID, Context)                {}
func (BaseLayer) OnExit(ID, Context)                 {}
func (BaseLayer) OnClose(ID, Context)                {}
func (BaseLayer) OnEvent(*Event, Context)            {}

// Context gives layers access to the dispatcher's span registry.
type Context struct {
	d   *Dispatcher
	gid uint64
}

// Span looks up a live span.
func (c Context) Span(id ID) (SpanRef, bool) {
	return c.d.span(id)
}

// Goroutine returns the id of the goroutine the notification runs on.
func (c Context) Goroutine() uint64 {
	if c.gid != 0 {
		return c.gid
	}
	return goid.Get()
}

// CurrentSpans returns the spans entered on the notifying goroutine,
// outermost first.
func (c Context) CurrentSpans() []ID {
	return c.d.currentSpans(c.Goroutine())
}

// SpanRef is a handle to a live span's registry data.
type SpanRef struct {
	id   ID
	data *spanData
}

// ID returns the span id.
func (r SpanRef) ID() ID {
	return r.id
}

// Metadata returns the span's metadata.
func (r SpanRef) Metadata() *Metadata {
	return r.data.meta
}

// Extensions runs fn with shared access to the span's extension table.
func (r SpanRef) Extensions(fn func(ext Extensions)) {
	r.data.mu.RLock()
	defer r.data.mu.RUnlock()
	fn(r.data.ext)
}

// ExtensionsMut runs fn with exclusive access to the span's extension table.
func (r SpanRef) ExtensionsMut(fn func(ext Extensions)) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()
	fn(r.data.ext)
}

// Extensions is a per span side table. Layers store transient data in it,
// keyed by a value only they know.
type Extensions map[any]any

// Get returns the value stored under key.
func (e Extensions) Get(key any) (any, bool) {
	v, ok := e[key]
	return v, ok
}

// Insert stores v under key, replacing any previous value.
func (e Extensions) Insert(key, v any) {
	e[key] = v
}

// Remove deletes key and returns the removed value.
func (e Extensions) Remove(key any) (any, bool) {
	v, ok := e[key]
	delete(e, key)
	return v, ok
}
