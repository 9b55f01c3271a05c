package tracing

import (
	"errors"

	"go.uber.org/atomic"
)

// ErrGlobalDefaultAlreadySet is returned when a global dispatcher was already installed.
var ErrGlobalDefaultAlreadySet = errors.New("a global default dispatcher has already been set")

var (
	globalDispatcher atomic.Pointer[Dispatcher]
	noneDispatcher   = NewDispatcher(WithFilter(FilterFunc(func(*Metadata) bool { return false })))
)

// SetGlobalDefault installs d as the process wide dispatcher. It succeeds once.
func SetGlobalDefault(d *Dispatcher) error {
	if !globalDispatcher.CompareAndSwap(nil, d) {
		return ErrGlobalDefaultAlreadySet
	}
	return nil
}

// Default returns the global dispatcher, or one that disables everything if
// none has been installed.
func Default() *Dispatcher {
	if d := globalDispatcher.Load(); d != nil {
		return d
	}
	return noneDispatcher
}

// CaptureSpanTrace captures the calling goroutine's spans from the global dispatcher.
func CaptureSpanTrace() SpanTrace {
	return Default().CaptureSpanTrace()
}
