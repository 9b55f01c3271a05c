// Package bridge turns tracing spans into profiler scopes.
//
// ScopeLayer is a tracing.Layer: entering a span begins a profiler scope on
// the calling goroutine and exiting it ends that scope. NewFrame marks the
// boundary between two iterations of the host's main loop.
//
//	d := tracing.NewDispatcher(tracing.WithLayer(bridge.NewScopeLayer()))
//	profiler.SetScopesOn(true)
//	for {
//		bridge.NewFrame()
//		update(d)
//	}
package bridge
