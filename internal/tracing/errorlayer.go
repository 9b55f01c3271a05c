package tracing

import (
	"fmt"
	"strings"
	"sync"

	"github.com/deepaksharma/spanscope/internal/goid"
)

type errorFieldsKey struct{}

// maxExitTrails bounds how many goroutines keep an exit trail. Goroutines
// that never exit their spans would otherwise pin one each.
const maxExitTrails = 4096

// exitTrail is the span trace of one goroutine as it was when it last began
// exiting spans. Only its goroutine reads or writes it.
type exitTrail struct {
	armed   bool
	entries []SpanTraceEntry
}

// ErrorLayer keeps a formatted copy of every span's fields so a SpanTrace can
// show them after the fact, for example from a panic hook.
type ErrorLayer struct {
	BaseLayer
	formatter DefaultFields

	trails sync.Map // goroutine id -> *exitTrail
	mu     sync.Mutex
	order  []uint64
}

// NewErrorLayer creates an ErrorLayer.
func NewErrorLayer() *ErrorLayer {
	return &ErrorLayer{}
}

func (l *ErrorLayer) trail(gid uint64) *exitTrail {
	if v, ok := l.trails.Load(gid); ok {
		return v.(*exitTrail)
	}
	t := &exitTrail{}
	l.trails.Store(gid, t)

	l.mu.Lock()
	l.order = append(l.order, gid)
	if len(l.order) > maxExitTrails {
		l.trails.Delete(l.order[0])
		n := copy(l.order, l.order[1:])
		l.order = l.order[:n]
	}
	l.mu.Unlock()
	return t
}

// OnNewSpan implements Layer.
func (l *ErrorLayer) OnNewSpan(attrs *Attributes, id ID, ctx Context) {
	span, ok := ctx.Span(id)
	if !ok {
		return
	}
	span.ExtensionsMut(func(ext Extensions) {
		if _, ok := ext.Get(errorFieldsKey{}); ok {
			return
		}
		var b strings.Builder
		if l.formatter.FormatFields(&b, attrs.Fields) == nil {
			ext.Insert(errorFieldsKey{}, &FormattedFields{Fields: b.String()})
		}
	})
}

// OnRecord implements Layer.
func (l *ErrorLayer) OnRecord(id ID, values *Record, ctx Context) {
	span, ok := ctx.Span(id)
	if !ok {
		return
	}
	span.ExtensionsMut(func(ext Extensions) {
		if v, ok := ext.Get(errorFieldsKey{}); ok {
			_ = l.formatter.AddFields(v.(*FormattedFields), values.Fields)
			return
		}
		var b strings.Builder
		if l.formatter.FormatFields(&b, values.Fields) == nil {
			ext.Insert(errorFieldsKey{}, &FormattedFields{Fields: b.String()})
		}
	})
}

// OnEnter implements Layer. It arms the goroutine's trail so the next exit
// records the spans entered at that point.
func (l *ErrorLayer) OnEnter(_ ID, ctx Context) {
	l.trail(ctx.Goroutine()).armed = true
}

// OnExit implements Layer. The first exit after an enter saves the full span
// trace, before deferred exits unwind it.
func (l *ErrorLayer) OnExit(_ ID, ctx Context) {
	gid := ctx.Goroutine()
	t := l.trail(gid)
	if !t.armed {
		return
	}
	t.armed = false
	t.entries = ctx.d.appendTrace(t.entries[:0], gid)
}

// ExitedTrace returns the calling goroutine's span trace as it was when the
// goroutine last began exiting spans. A panic hook falls back to it when the
// deferred exits have already emptied the live trace.
func (l *ErrorLayer) ExitedTrace() SpanTrace {
	v, ok := l.trails.Load(goid.Get())
	if !ok {
		return SpanTrace{}
	}
	t := v.(*exitTrail)
	return SpanTrace{Entries: append([]SpanTraceEntry(nil), t.entries...)}
}

// OnClose implements Layer.
func (l *ErrorLayer) OnClose(id ID, ctx Context) {
	if span, ok := ctx.Span(id); ok {
		span.ExtensionsMut(func(ext Extensions) {
			ext.Remove(errorFieldsKey{})
		})
	}
}

// SpanTraceEntry is one span in a SpanTrace.
type SpanTraceEntry struct {
	Target string
	Name   string
	Fields string
}

// SpanTrace is the chain of spans a goroutine was inside, innermost first.
type SpanTrace struct {
	Entries []SpanTraceEntry
}

// Empty reports whether no span was entered.
func (t SpanTrace) Empty() bool {
	return len(t.Entries) == 0
}

// String renders the trace one span per line, innermost first.
func (t SpanTrace) String() string {
	var b strings.Builder
	for i, e := range t.Entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%4d: %s::%s", i, e.Target, e.Name)
		if e.Fields != "" {
			fmt.Fprintf(&b, "\n           with %s", e.Fields)
		}
	}
	return b.String()
}

// CaptureSpanTrace captures the calling goroutine's entered spans. Field
// values are only present when an ErrorLayer is installed.
func (d *Dispatcher) CaptureSpanTrace() SpanTrace {
	return SpanTrace{Entries: d.appendTrace(nil, goid.Get())}
}
