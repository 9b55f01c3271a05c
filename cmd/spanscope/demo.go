package main

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/deepaksharma/spanscope/internal/bootstrap"
	"github.com/deepaksharma/spanscope/internal/profiler"
	"github.com/deepaksharma/spanscope/internal/tracing"
)

// demo is a synthetic workload: nested sleeps split recursively down to
// one millisecond, periodic spikes, many very thin spans and work on a
// second goroutine.
type demo struct {
	tr     tracing.Tracer
	otel   oteltrace.Tracer
	logger *zap.Logger

	frame int
	other chan int
}

func newDemo(d *tracing.Dispatcher, tracer oteltrace.Tracer, logger *zap.Logger) *demo {
	return &demo{
		tr:     d.Target("demo"),
		otel:   tracer,
		logger: logger,
		other:  make(chan int, 1),
	}
}

// runOther starts the named worker goroutine on g. It stops when ctx is done.
func (dm *demo) runOther(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error {
		defer bootstrap.Guard()
		profiler.SetGoroutineName("Other goroutine")
		defer profiler.SetGoroutineName("")

		for {
			select {
			case <-ctx.Done():
				return nil
			case ms := <-dm.other:
				dm.sleepMs(ms)
			}
		}
	})
}

// update is the per-frame system.
func (dm *demo) update(ctx context.Context) error {
	defer dm.tr.Scoped("show_profiler", tracing.Int("frame", dm.frame))()

	select {
	case dm.other <- 5:
	default:
		dm.tr.Debug("other goroutine still busy", tracing.Int("frame", dm.frame))
	}

	dm.sleepMs(7)
	if dm.frame%49 == 0 {
		done := dm.tr.Scoped("Spike")
		time.Sleep(10 * time.Millisecond)
		done()
	}
	if dm.frame%343 == 0 {
		done := dm.tr.Scoped("Big spike")
		time.Sleep(25 * time.Millisecond)
		done()
	}
	for i := 0; i < 1000; i++ {
		dm.tr.Scoped("very thin")()
	}
	if dm.frame%60 == 0 {
		dm.loadAssets(ctx)
	}

	dm.frame++
	return nil
}

// loadAssets is instrumented with OpenTelemetry instead of the tracing API.
func (dm *demo) loadAssets(ctx context.Context) {
	_, span := dm.otel.Start(ctx, "load_assets", oteltrace.WithAttributes(attribute.Int("frame", dm.frame)))
	defer span.End()
	time.Sleep(time.Millisecond)
}

func (dm *demo) sleepMs(ms int) {
	defer dm.tr.Scoped("sleep_ms", tracing.Int("ms", ms))()
	switch ms {
	case 0:
	case 1:
		time.Sleep(time.Millisecond)
	default:
		dm.sleepMs(ms / 2)
		dm.sleepMs(ms - ms/2)
	}
}
