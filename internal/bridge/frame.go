package bridge

import (
	"context"

	"github.com/deepaksharma/spanscope/internal/profiler"
)

// NewFrame seals the profiler's current frame and starts the next one. Call
// it once per iteration of the main loop, before that iteration's spans.
func NewFrame() {
	profiler.Global().NewFrame()
}

// FrameSystem is NewFrame shaped as a host loop system.
func FrameSystem(context.Context) error {
	NewFrame()
	return nil
}
