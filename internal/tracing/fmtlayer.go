package tracing

import (
	"strings"

	"go.uber.org/zap"
)

// FmtLayer writes events to a zap logger, annotated with the span path they
// were emitted in. Span enter and exit can be logged at debug level.
type FmtLayer struct {
	BaseLayer
	logger     *zap.Logger
	spanEvents bool
}

// NewFmtLayer creates a FmtLayer writing to logger.
func NewFmtLayer(logger *zap.Logger) *FmtLayer {
	return &FmtLayer{logger: logger}
}

// WithSpanEvents toggles debug lines for span enter and exit.
func (l *FmtLayer) WithSpanEvents(on bool) *FmtLayer {
	l.spanEvents = on
	return l
}

// OnEvent implements Layer.
func (l *FmtLayer) OnEvent(ev *Event, ctx Context) {
	ce := l.logger.Check(ev.Meta.Level, ev.Message)
	if ce == nil {
		return
	}

	fields := make([]zap.Field, 0, len(ev.Fields)+2)
	fields = append(fields, zap.String("target", ev.Meta.Target))
	if path := spanPath(ctx); path != "" {
		fields = append(fields, zap.String("span", path))
	}
	fields = append(fields, zapFields(ev.Fields)...)
	ce.Write(fields...)
}

// OnEnter implements Layer.
func (l *FmtLayer) OnEnter(id ID, ctx Context) {
	l.logSpan("enter", id, ctx)
}

// OnExit implements Layer.
func (l *FmtLayer) OnExit(id ID, ctx Context) {
	l.logSpan("exit", id, ctx)
}

func (l *FmtLayer) logSpan(msg string, id ID, ctx Context) {
	if !l.spanEvents {
		return
	}
	ce := l.logger.Check(zap.DebugLevel, msg)
	if ce == nil {
		return
	}
	span, ok := ctx.Span(id)
	if !ok {
		return
	}
	ce.Write(
		zap.String("target", span.Metadata().Target),
		zap.String("span", span.Metadata().Name),
		zap.Uint64("span_id", uint64(id)),
	)
}

func spanPath(ctx Context) string {
	ids := ctx.CurrentSpans()
	if len(ids) == 0 {
		return ""
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if span, ok := ctx.Span(id); ok {
			names = append(names, span.Metadata().Name)
		}
	}
	return strings.Join(names, ":")
}
