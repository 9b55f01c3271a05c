package profiler

import (
	"time"

	"go.uber.org/atomic"
)

var scopesOn = atomic.NewBool(false)

// SetScopesOn turns scope recording on or off for the whole process.
// Goroutines observe the change eventually; exact visibility is not required.
func SetScopesOn(on bool) {
	scopesOn.Store(on)
}

// AreScopesOn reports whether scope recording is enabled.
func AreScopesOn() bool {
	return scopesOn.Load()
}

// Offset is the position of a scope's size placeholder inside its stream. It
// is returned by BeginScope and must be handed back to the matching EndScope.
type Offset uint64

// ScopeWriter records scopes for the calling goroutine. Implementations decide
// on their own which goroutine buffer a call belongs to.
type ScopeWriter interface {
	BeginScope(name, target, data string) Offset
	EndScope(start Offset)
}

// GoroutineScopeWriter is a ScopeWriter for callers that already know the
// calling goroutine's id. gid must be the id of the calling goroutine.
type GoroutineScopeWriter interface {
	ScopeWriter
	BeginScopeOn(gid uint64, name, target, data string) Offset
	EndScopeOn(gid uint64, start Offset)
}

// ThreadWriter returns the ScopeWriter backed by the global profiler.
func ThreadWriter() ScopeWriter {
	return global.Writer()
}

// SetGoroutineName names the calling goroutine in frames of the global profiler.
func SetGoroutineName(name string) {
	global.SetGoroutineName(name)
}

func nowNs() int64 {
	return time.Now().UnixNano()
}
