package profiler

import (
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// AsyncSink hands frames to a slow consumer on its own goroutine. When the
// queue is full frames are dropped instead of stalling the frame marker.
type AsyncSink struct {
	queue  chan *FrameData
	fn     FrameSink
	drops  *atomic.Int64
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsyncSink starts a consumer goroutine calling fn for each pushed frame.
// drops may be nil.
func NewAsyncSink(size int, fn FrameSink, drops *atomic.Int64, logger *zap.Logger) *AsyncSink {
	if size <= 0 {
		size = 64
	}
	if drops == nil {
		drops = atomic.NewInt64(0)
	}
	a := &AsyncSink{
		queue:  make(chan *FrameData, size),
		fn:     fn,
		drops:  drops,
		logger: logger,
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

// Push enqueues a frame without blocking. It has the FrameSink signature.
func (a *AsyncSink) Push(frame *FrameData) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return
	}
	select {
	case a.queue <- frame:
	default:
		if a.drops.Inc()%100 == 1 {
			a.logger.Warn("Frame queue full, dropping frames",
				zap.Uint64("frame", frame.Index),
				zap.Int64("dropped_total", a.drops.Load()))
		}
	}
}

// Close stops accepting frames and waits until queued frames are consumed.
func (a *AsyncSink) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
}

// Dropped returns the number of frames dropped so far.
func (a *AsyncSink) Dropped() int64 {
	return a.drops.Load()
}

func (a *AsyncSink) run() {
	defer close(a.done)
	for frame := range a.queue {
		a.fn(frame)
	}
}
