// Package tracing is a structured span and event facility with pluggable
// layers.
//
// A Dispatcher owns span identity and a per span extension table, and fans
// every lifecycle notification (new, record, enter, exit, close, event) out to
// its layers in registration order. Layers decide what to do with them, for
// example writing log lines or feeding a profiler.
//
//	d := tracing.NewDispatcher(
//		tracing.WithFilter(filter),
//		tracing.WithLayer(tracing.NewFmtLayer(logger)),
//	)
//	defer d.Target("game").Scoped("update")()
//
// Span ids are unique among live spans and are reused after a span closes.
package tracing
