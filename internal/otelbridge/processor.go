// Package otelbridge feeds spans started through an OpenTelemetry SDK
// tracer into a tracing.Dispatcher, so code instrumented with OpenTelemetry
// shows up in the profiler like any other span.
package otelbridge

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/deepaksharma/spanscope/internal/tracing"
)

// SpanProcessor enters a dispatcher span when an OpenTelemetry span starts
// and exits and closes it when the span ends. Start and End must happen on
// the same goroutine for the profiler scope to close.
type SpanProcessor struct {
	d      *tracing.Dispatcher
	level  zapcore.Level
	logger *zap.Logger

	mu    sync.Mutex
	spans map[oteltrace.SpanID]*tracing.Span
}

var _ sdktrace.SpanProcessor = (*SpanProcessor)(nil)

// NewSpanProcessor creates a processor feeding d. Spans are created at info level.
func NewSpanProcessor(d *tracing.Dispatcher, logger *zap.Logger) *SpanProcessor {
	return &SpanProcessor{
		d:      d,
		level:  zapcore.InfoLevel,
		logger: logger,
		spans:  make(map[oteltrace.SpanID]*tracing.Span),
	}
}

// OnStart implements sdktrace.SpanProcessor.
func (p *SpanProcessor) OnStart(_ context.Context, s sdktrace.ReadWriteSpan) {
	meta := &tracing.Metadata{
		Name:   s.Name(),
		Target: s.InstrumentationScope().Name,
		Level:  p.level,
		Kind:   tracing.KindSpan,
	}
	span := p.d.NewSpan(meta, attributeFields(s.Attributes())...)
	if span.IsDisabled() {
		return
	}

	p.mu.Lock()
	p.spans[s.SpanContext().SpanID()] = span
	p.mu.Unlock()

	span.Enter()
}

// OnEnd implements sdktrace.SpanProcessor.
func (p *SpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	id := s.SpanContext().SpanID()
	p.mu.Lock()
	span, ok := p.spans[id]
	delete(p.spans, id)
	p.mu.Unlock()
	if !ok {
		return
	}

	if st := s.Status(); st.Code == codes.Error {
		span.Record(
			tracing.String("otel.status_code", st.Code.String()),
			tracing.String("otel.status_description", st.Description),
		)
	}
	span.Exit()
	span.Close()
}

// Shutdown implements sdktrace.SpanProcessor. Spans that never ended are closed.
func (p *SpanProcessor) Shutdown(context.Context) error {
	p.mu.Lock()
	open := p.spans
	p.spans = make(map[oteltrace.SpanID]*tracing.Span)
	p.mu.Unlock()

	if len(open) > 0 {
		p.logger.Warn("Closing spans that never ended", zap.Int("count", len(open)))
	}
	for _, span := range open {
		span.Close()
	}
	return nil
}

// ForceFlush implements sdktrace.SpanProcessor.
func (p *SpanProcessor) ForceFlush(context.Context) error {
	return nil
}

// Open returns the number of started spans that have not ended.
func (p *SpanProcessor) Open() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.spans)
}

// NewTracerProvider creates an SDK tracer provider for serviceName whose
// spans are fed into d. Extra options are appended, so exporters can be
// added alongside.
func NewTracerProvider(serviceName string, d *tracing.Dispatcher, logger *zap.Logger, opts ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("service name must be specified")
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	tpOptions := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(NewSpanProcessor(d, logger)),
	}
	tpOptions = append(tpOptions, opts...)
	return sdktrace.NewTracerProvider(tpOptions...), nil
}

func attributeFields(attrs []attribute.KeyValue) []tracing.Field {
	if len(attrs) == 0 {
		return nil
	}
	fields := make([]tracing.Field, 0, len(attrs))
	for _, kv := range attrs {
		fields = append(fields, tracing.Any(string(kv.Key), kv.Value.AsInterface()))
	}
	return fields
}
