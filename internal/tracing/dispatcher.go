package tracing

import (
	"sync"

	"github.com/deepaksharma/spanscope/internal/goid"
)

type spanData struct {
	meta *Metadata
	mu   sync.RWMutex
	ext  Extensions
}

type idStack struct {
	ids []ID
}

// Dispatcher is a span registry that forwards notifications to layers.
type Dispatcher struct {
	filter Filter
	layers []Layer

	mu    sync.RWMutex
	spans map[ID]*spanData
	free  []ID
	next  ID

	current sync.Map // goroutine id -> *idStack
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithFilter sets the filter deciding which callsites are enabled.
func WithFilter(f Filter) Option {
	return func(d *Dispatcher) {
		d.filter = f
	}
}

// WithLayer appends a layer. Layers are notified in the order they were added.
func WithLayer(l Layer) Option {
	return func(d *Dispatcher) {
		d.layers = append(d.layers, l)
	}
}

// NewDispatcher creates a dispatcher. Without a filter everything is enabled.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		spans: make(map[ID]*spanData),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enabled reports whether the filter accepts meta.
func (d *Dispatcher) Enabled(meta *Metadata) bool {
	return d.filter == nil || d.filter.Enabled(meta)
}

// NewSpan registers a span. Filtered out spans come back disabled; every
// method on a disabled span is a no-op.
func (d *Dispatcher) NewSpan(meta *Metadata, fields ...Field) *Span {
	if !d.Enabled(meta) {
		return &Span{}
	}

	id := d.alloc(meta)
	attrs := &Attributes{Meta: meta, Fields: fields}
	ctx := Context{d: d}
	for _, l := range d.layers {
		l.OnNewSpan(attrs, id, ctx)
	}
	return &Span{d: d, id: id, meta: meta}
}

// Event emits an event inside the calling goroutine's current span.
func (d *Dispatcher) Event(meta *Metadata, msg string, fields ...Field) {
	if !d.Enabled(meta) {
		return
	}

	gid := goid.Get()
	ev := &Event{Meta: meta, Message: msg, Fields: fields}
	if v, ok := d.current.Load(gid); ok {
		if st := v.(*idStack); len(st.ids) > 0 {
			ev.Parent = st.ids[len(st.ids)-1]
		}
	}

	ctx := Context{d: d, gid: gid}
	for _, l := range d.layers {
		l.OnEvent(ev, ctx)
	}
}

func (d *Dispatcher) enter(id ID) {
	gid := goid.Get()
	v, ok := d.current.Load(gid)
	if !ok {
		v = &idStack{ids: make([]ID, 0, 8)}
		d.current.Store(gid, v)
	}
	st := v.(*idStack)
	st.ids = append(st.ids, id)

	ctx := Context{d: d, gid: gid}
	for _, l := range d.layers {
		l.OnEnter(id, ctx)
	}
}

func (d *Dispatcher) exit(id ID) {
	d.exitOn(goid.Get(), id)
}

func (d *Dispatcher) exitOn(gid uint64, id ID) {
	ctx := Context{d: d, gid: gid}
	for _, l := range d.layers {
		l.OnExit(id, ctx)
	}

	v, ok := d.current.Load(gid)
	if !ok {
		return
	}
	st := v.(*idStack)
	for i := len(st.ids) - 1; i >= 0; i-- {
		if st.ids[i] == id {
			st.ids = append(st.ids[:i], st.ids[i+1:]...)
			break
		}
	}
	if len(st.ids) == 0 {
		d.current.Delete(gid)
	}
}

func (d *Dispatcher) record(id ID, fields []Field) {
	values := &Record{Fields: fields}
	ctx := Context{d: d}
	for _, l := range d.layers {
		l.OnRecord(id, values, ctx)
	}
}

func (d *Dispatcher) close(id ID) {
	ctx := Context{d: d}
	for _, l := range d.layers {
		l.OnClose(id, ctx)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.spans[id]; ok {
		delete(d.spans, id)
		d.free = append(d.free, id)
	}
}

func (d *Dispatcher) alloc(meta *Metadata) ID {
	data := &spanData{meta: meta, ext: make(Extensions, 2)}

	d.mu.Lock()
	defer d.mu.Unlock()

	var id ID
	if n := len(d.free); n > 0 {
		id = d.free[n-1]
		d.free = d.free[:n-1]
	} else {
		d.next++
		id = d.next
	}
	d.spans[id] = data
	return id
}

func (d *Dispatcher) span(id ID) (SpanRef, bool) {
	d.mu.RLock()
	data, ok := d.spans[id]
	d.mu.RUnlock()
	if !ok {
		return SpanRef{}, false
	}
	return SpanRef{id: id, data: data}, true
}

func (d *Dispatcher) currentSpans(gid uint64) []ID {
	v, ok := d.current.Load(gid)
	if !ok {
		return nil
	}
	st := v.(*idStack)
	out := make([]ID, len(st.ids))
	copy(out, st.ids)
	return out
}

// isEntered reports whether id is on gid's current-span stack.
func (d *Dispatcher) isEntered(gid uint64, id ID) bool {
	v, ok := d.current.Load(gid)
	if !ok {
		return false
	}
	for _, cur := range v.(*idStack).ids {
		if cur == id {
			return true
		}
	}
	return false
}

// appendTrace appends gid's entered spans to dst, innermost first. Only the
// owning goroutine may call it since the stack is read without copying.
func (d *Dispatcher) appendTrace(dst []SpanTraceEntry, gid uint64) []SpanTraceEntry {
	v, ok := d.current.Load(gid)
	if !ok {
		return dst
	}
	ids := v.(*idStack).ids
	for i := len(ids) - 1; i >= 0; i-- {
		span, ok := d.span(ids[i])
		if !ok {
			continue
		}
		entry := SpanTraceEntry{Target: span.Metadata().Target, Name: span.Metadata().Name}
		span.Extensions(func(ext Extensions) {
			if v, ok := ext.Get(errorFieldsKey{}); ok {
				entry.Fields = v.(*FormattedFields).Fields
			}
		})
		dst = append(dst, entry)
	}
	return dst
}

// LiveSpans returns the number of spans that have not been closed.
func (d *Dispatcher) LiveSpans() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.spans)
}

// Lookup returns a handle to a live span.
func (d *Dispatcher) Lookup(id ID) (SpanRef, bool) {
	return d.span(id)
}
