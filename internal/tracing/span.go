package tracing

import (
	"go.uber.org/atomic"
	"go.uber.org/zap/zapcore"

	"github.com/deepaksharma/spanscope/internal/goid"
)

// Span is a handle to a registered span.
type Span struct {
	d      *Dispatcher
	id     ID
	meta    *Metadata
	closed  atomic.Bool
	entered atomic.Int32
}

// ID returns the span id, or 0 for a disabled span.
func (s *Span) ID() ID {
	if s == nil {
		return 0
	}
	return s.id
}

// Metadata returns the span's metadata, or nil for a disabled span.
func (s *Span) Metadata() *Metadata {
	if s == nil {
		return nil
	}
	return s.meta
}

// IsDisabled reports whether the span was filtered out.
func (s *Span) IsDisabled() bool {
	return s == nil || s.d == nil
}

// Enter marks the span as running on the calling goroutine. It returns the
// span so callers can write `defer span.Enter().Exit()`.
func (s *Span) Enter() *Span {
	if s.IsDisabled() || s.closed.Load() {
		return s
	}
	s.entered.Inc()
	s.d.enter(s.id)
	return s
}

// Exit marks the span as no longer running on the calling goroutine.
func (s *Span) Exit() {
	if s.IsDisabled() || s.closed.Load() {
		return
	}
	if s.entered.Load() > 0 {
		s.entered.Dec()
	}
	s.d.exit(s.id)
}

// Record attaches more fields to the span.
func (s *Span) Record(fields ...Field) {
	if s.IsDisabled() || s.closed.Load() || len(fields) == 0 {
		return
	}
	s.d.record(s.id, fields)
}

// Close releases the span. Its id may be reused afterwards. Close is idempotent.
// A span still entered on the calling goroutine is exited first; later calls
// to Exit are no-ops.
func (s *Span) Close() {
	if s.IsDisabled() || !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.entered.Load() > 0 {
		gid := goid.Get()
		for s.entered.Load() > 0 && s.d.isEntered(gid, s.id) {
			s.entered.Dec()
			s.d.exitOn(gid, s.id)
		}
	}
	s.d.close(s.id)
}

// InScope runs fn with the span entered.
func (s *Span) InScope(fn func()) {
	s.Enter()
	defer s.Exit()
	fn()
}

// Tracer creates spans and events for one target.
type Tracer struct {
	target string
	d      *Dispatcher
}

// Target returns a Tracer for target bound to this dispatcher.
func (d *Dispatcher) Target(target string) Tracer {
	return Tracer{target: target, d: d}
}

// Target returns a Tracer for target that follows the global default dispatcher.
func Target(target string) Tracer {
	return Tracer{target: target}
}

func (t Tracer) dispatcher() *Dispatcher {
	if t.d != nil {
		return t.d
	}
	return Default()
}

// Span creates an info level span.
func (t Tracer) Span(name string, fields ...Field) *Span {
	return t.SpanAt(zapcore.InfoLevel, name, fields...)
}

// SpanAt creates a span at the given level.
func (t Tracer) SpanAt(level zapcore.Level, name string, fields ...Field) *Span {
	meta := &Metadata{Name: name, Target: t.target, Level: level, Kind: KindSpan}
	return t.dispatcher().NewSpan(meta, fields...)
}

// Scoped creates and enters an info level span. The returned function exits
// and closes it:
//
//	defer tr.Scoped("update")()
func (t Tracer) Scoped(name string, fields ...Field) func() {
	s := t.Span(name, fields...)
	if s.IsDisabled() {
		return func() {}
	}
	s.Enter()
	return func() {
		s.Exit()
		s.Close()
	}
}

func (t Tracer) event(level zapcore.Level, msg string, fields []Field) {
	meta := &Metadata{Name: "event", Target: t.target, Level: level, Kind: KindEvent}
	t.dispatcher().Event(meta, msg, fields...)
}

func (t Tracer) Debug(msg string, fields ...Field) { t.event(zapcore.DebugLevel, msg, fields) }

func (t Tracer) Info(msg string, fields ...Field) { t.event(zapcore.InfoLevel, msg, fields) }

func (t Tracer) Warn(msg string, fields ...Field) { t.event(zapcore.WarnLevel, msg, fields) }

func (t Tracer) Error(msg string, fields ...Field) { t.event(zapcore.ErrorLevel, msg, fields) }
