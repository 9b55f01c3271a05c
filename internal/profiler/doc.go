// Package profiler implements a frame based scope profiler.
//
// Every goroutine that opens scopes writes them into its own append-only
// stream. Once the goroutine is back at depth zero the stream chunk is handed
// to the GlobalProfiler, which groups chunks into frames. A frame is sealed by
// NewFrame, usually once per iteration of the host's main loop, and then
// broadcast to the registered sinks (FrameView, exporters, stores).
//
// Scope recording is gated by a process wide flag (SetScopesOn). Callers are
// expected to check AreScopesOn before doing any work on their hot path.
package profiler
