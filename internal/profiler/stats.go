package profiler

import "go.uber.org/atomic"

// Stats holds profiler counters. They are read by the telemetry package.
type Stats struct {
	FramesSealed *atomic.Int64
	ScopesBegun  *atomic.Int64
	ScopesEnded  *atomic.Int64
	StreamBytes  *atomic.Int64
	SinkDrops    *atomic.Int64
}

func newStats() *Stats {
	return &Stats{
		FramesSealed: atomic.NewInt64(0),
		ScopesBegun:  atomic.NewInt64(0),
		ScopesEnded:  atomic.NewInt64(0),
		StreamBytes:  atomic.NewInt64(0),
		SinkDrops:    atomic.NewInt64(0),
	}
}
