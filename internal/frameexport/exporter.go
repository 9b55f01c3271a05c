// Package frameexport converts sealed profiler frames into OTLP traces and
// hands them to a collector consumer.
package frameexport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/collector/consumer"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/deepaksharma/spanscope/internal/profiler"
)

// Exporter batches frames and exports them as traces.
type Exporter struct {
	cfg      Config
	interval time.Duration
	next     consumer.Traces
	logger   *zap.Logger

	mu      sync.Mutex
	pending []*profiler.FrameData
	conv    converter

	// Metrics
	exportedFrames *atomic.Int64
	exportErrors   *atomic.Int64

	ctx       context.Context
	ctxCancel context.CancelFunc
	stopChan  chan struct{}
	wg        sync.WaitGroup
	started   atomic.Bool
}

// NewExporter creates an exporter sending to next. The counters may be nil.
func NewExporter(cfg Config, next consumer.Traces, exportedFrames, exportErrors *atomic.Int64, logger *zap.Logger) (*Exporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid export configuration: %w", err)
	}
	interval, _ := cfg.flushInterval()
	if exportedFrames == nil {
		exportedFrames = atomic.NewInt64(0)
	}
	if exportErrors == nil {
		exportErrors = atomic.NewInt64(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Exporter{
		cfg:      cfg,
		interval: interval,
		next:     next,
		logger:   logger,
		pending:  make([]*profiler.FrameData, 0, cfg.BatchFrames),
		conv: converter{
			session: xxhash.Sum64String(fmt.Sprintf("%s/%d", cfg.ServiceName, time.Now().UnixNano())),
			scopes:  make(map[profiler.ScopeID]profiler.ScopeDetails),
		},
		exportedFrames: exportedFrames,
		exportErrors:   exportErrors,
		ctx:            ctx,
		ctxCancel:      cancel,
		stopChan:       make(chan struct{}),
	}, nil
}

// Start begins periodic flushing when a flush interval is configured.
func (e *Exporter) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return nil
	}
	if e.interval > 0 {
		e.wg.Add(1)
		go e.flushLoop()
	}
	e.logger.Info("Frame exporter started",
		zap.Int("batch_frames", e.cfg.BatchFrames),
		zap.Duration("flush_interval", e.interval))
	return nil
}

// Push queues a frame for export. It has the profiler.FrameSink signature;
// empty frames only contribute their scope details.
func (e *Exporter) Push(frame *profiler.FrameData) {
	e.mu.Lock()
	for _, d := range frame.ScopeDelta {
		e.conv.scopes[d.ID] = d
	}
	if frame.Empty() {
		e.mu.Unlock()
		return
	}
	e.pending = append(e.pending, frame)
	full := len(e.pending) >= e.cfg.BatchFrames
	e.mu.Unlock()

	if full {
		if err := e.Flush(e.ctx); err != nil {
			e.logger.Error("Failed to export frames", zap.Error(err))
		}
	}
}

// Pending returns the number of frames waiting for export.
func (e *Exporter) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Flush exports every pending frame.
func (e *Exporter) Flush(ctx context.Context) error {
	e.mu.Lock()
	if len(e.pending) == 0 {
		e.mu.Unlock()
		return nil
	}
	frames := e.pending
	e.pending = make([]*profiler.FrameData, 0, e.cfg.BatchFrames)

	traces, ss := newTraces(e.cfg.ServiceName)
	failed := e.conv.appendFrames(ss, frames)
	e.mu.Unlock()

	if failed > 0 {
		e.logger.Warn("Some frame streams could not be decoded", zap.Int("streams", failed))
	}

	startTime := time.Now()
	if err := e.next.ConsumeTraces(ctx, traces); err != nil {
		e.exportErrors.Inc()
		return fmt.Errorf("failed to export %d frames: %w", len(frames), err)
	}
	e.exportedFrames.Add(int64(len(frames)))

	e.logger.Debug("Exported frames",
		zap.Int("frames", len(frames)),
		zap.Int("span_count", traces.SpanCount()),
		zap.Duration("latency", time.Since(startTime)))
	return nil
}

// Shutdown stops periodic flushing and exports what is left.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e.started.CompareAndSwap(true, false) {
		close(e.stopChan)
		e.wg.Wait()
	}
	e.ctxCancel()
	return e.Flush(ctx)
}

func (e *Exporter) flushLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := e.Flush(e.ctx); err != nil {
				e.logger.Error("Failed to export frames", zap.Error(err))
			}
		case <-e.stopChan:
			return
		}
	}
}
