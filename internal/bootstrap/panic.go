package bootstrap

import "sync"

// PanicHook observes a recovered panic value before the panic continues.
type PanicHook func(v any)

var (
	panicHookMu sync.Mutex
	panicHook   PanicHook = func(any) {}
)

// TakePanicHook removes the current hook and returns it, leaving a no-op hook
// in its place.
func TakePanicHook() PanicHook {
	panicHookMu.Lock()
	defer panicHookMu.Unlock()

	h := panicHook
	panicHook = func(any) {}
	return h
}

// SetPanicHook replaces the current hook. Wrap the result of TakePanicHook to
// chain to the previous one.
func SetPanicHook(h PanicHook) {
	if h == nil {
		h = func(any) {}
	}
	panicHookMu.Lock()
	defer panicHookMu.Unlock()
	panicHook = h
}

// Guard runs the panic hook for a panicking goroutine and re-panics with the
// same value. Defer it at the top of goroutines:
//
//	defer bootstrap.Guard()
func Guard() {
	r := recover()
	if r == nil {
		return
	}
	panicHookMu.Lock()
	h := panicHook
	panicHookMu.Unlock()

	h(r)
	panic(r)
}
