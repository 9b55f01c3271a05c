package bridge

import (
	"strings"

	"go.uber.org/atomic"

	"github.com/deepaksharma/spanscope/internal/profiler"
	"github.com/deepaksharma/spanscope/internal/tracing"
)

// ScopeLayer begins a profiler scope when a span is entered and ends it when
// the span exits. Span fields are formatted once and cached on the span so
// every scope carries them as its data.
type ScopeLayer struct {
	tracing.BaseLayer

	formatter tracing.FieldFormatter
	key       any
	writer    profiler.ScopeWriter
	gwriter   profiler.GoroutineScopeWriter
	stacks    spanStacks

	mismatches *atomic.Int64
}

// NewScopeLayer creates a layer writing to the calling goroutine's profiler
// stream, formatting fields with tracing.DefaultFields.
func NewScopeLayer() *ScopeLayer {
	formatter := tracing.DefaultFields{}
	l := &ScopeLayer{
		formatter:  formatter,
		key:        tracing.FormattedFieldsKey(formatter),
		mismatches: atomic.NewInt64(0),
	}
	return l.WithWriter(profiler.ThreadWriter())
}

// WithFormatter replaces the field formatter. Call it before the layer is
// installed.
func (l *ScopeLayer) WithFormatter(f tracing.FieldFormatter) *ScopeLayer {
	l.formatter = f
	l.key = tracing.FormattedFieldsKey(f)
	return l
}

// WithWriter directs scopes at w instead of the global profiler. Call it
// before the layer is installed.
func (l *ScopeLayer) WithWriter(w profiler.ScopeWriter) *ScopeLayer {
	l.writer = w
	l.gwriter, _ = w.(profiler.GoroutineScopeWriter)
	return l
}

// Mismatches returns how many exits did not match the innermost entered span.
func (l *ScopeLayer) Mismatches() int64 {
	return l.mismatches.Load()
}

// OnNewSpan implements tracing.Layer.
func (l *ScopeLayer) OnNewSpan(attrs *tracing.Attributes, id tracing.ID, ctx tracing.Context) {
	if !profiler.AreScopesOn() {
		return
	}
	span, ok := ctx.Span(id)
	if !ok {
		return
	}
	span.ExtensionsMut(func(ext tracing.Extensions) {
		if _, ok := ext.Get(l.key); ok {
			return
		}
		var b strings.Builder
		if err := l.formatter.FormatFields(&b, attrs.Fields); err == nil {
			ext.Insert(l.key, &tracing.FormattedFields{Fields: b.String()})
		}
	})
}

// OnRecord implements tracing.Layer. Fields are captured even while scopes
// are off.
func (l *ScopeLayer) OnRecord(id tracing.ID, values *tracing.Record, ctx tracing.Context) {
	span, ok := ctx.Span(id)
	if !ok {
		return
	}
	span.ExtensionsMut(func(ext tracing.Extensions) {
		if v, ok := ext.Get(l.key); ok {
			_ = l.formatter.AddFields(v.(*tracing.FormattedFields), values.Fields)
			return
		}
		var b strings.Builder
		if err := l.formatter.FormatFields(&b, values.Fields); err == nil {
			ext.Insert(l.key, &tracing.FormattedFields{Fields: b.String()})
		}
	})
}

// OnEnter implements tracing.Layer.
func (l *ScopeLayer) OnEnter(id tracing.ID, ctx tracing.Context) {
	if !profiler.AreScopesOn() {
		return
	}
	span, ok := ctx.Span(id)
	if !ok {
		return
	}

	var data string
	span.Extensions(func(ext tracing.Extensions) {
		if v, ok := ext.Get(l.key); ok {
			data = v.(*tracing.FormattedFields).Fields
		}
	})

	gid := ctx.Goroutine()
	meta := span.Metadata()
	var start profiler.Offset
	if l.gwriter != nil {
		start = l.gwriter.BeginScopeOn(gid, meta.Name, meta.Target, data)
	} else {
		start = l.writer.BeginScope(meta.Name, meta.Target, data)
	}
	l.stacks.getOrCreate(gid).push(stackEntry{id: id, start: start})
}

// OnExit implements tracing.Layer. An exit for a span other than the
// innermost entered one leaves the stack as it was and ends no scope.
func (l *ScopeLayer) OnExit(id tracing.ID, ctx tracing.Context) {
	gid := ctx.Goroutine()
	st, ok := l.stacks.get(gid)
	if !ok {
		return
	}
	top, ok := st.pop()
	if !ok {
		return
	}
	if top.id != id {
		st.push(top)
		l.mismatches.Inc()
		return
	}

	if l.gwriter != nil {
		l.gwriter.EndScopeOn(gid, top.start)
	} else {
		l.writer.EndScope(top.start)
	}
	if st.len() == 0 {
		l.stacks.release(gid, st)
	}
}

// OnClose implements tracing.Layer.
func (l *ScopeLayer) OnClose(id tracing.ID, ctx tracing.Context) {
	span, ok := ctx.Span(id)
	if !ok {
		return
	}
	span.ExtensionsMut(func(ext tracing.Extensions) {
		ext.Remove(l.key)
	})
}
