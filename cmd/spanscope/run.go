package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/collector/consumer"
	"go.opentelemetry.io/collector/pdata/ptrace"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/deepaksharma/spanscope/internal/bootstrap"
	"github.com/deepaksharma/spanscope/internal/frameexport"
	"github.com/deepaksharma/spanscope/internal/framestore"
	"github.com/deepaksharma/spanscope/internal/hostloop"
	"github.com/deepaksharma/spanscope/internal/otelbridge"
	"github.com/deepaksharma/spanscope/internal/profiler"
	"github.com/deepaksharma/spanscope/internal/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the demo host loop with profiling",
	RunE:  runDemo,
}

func init() {
	runCmd.Flags().Int("frames", -1, "number of frames to run, 0 runs until interrupted (default from config)")
	runCmd.Flags().String("store", "", "frame store path (default from config)")
	runCmd.Flags().Bool("no-store", false, "do not persist frames")
	runCmd.Flags().Bool("no-export", false, "do not export frames as traces")
}

func runDemo(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, &cfg)
	if err := cfg.validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interval, _ := cfg.Run.interval()
	loop := hostloop.New(logger.Named("loop"), interval)
	pipeline, err := bootstrap.New(logger).WithConfig(cfg.Pipeline).Build(loop)
	if err != nil {
		return err
	}

	global := profiler.Global()
	view := profiler.NewFrameView(0)
	global.AddSink(view.Add)

	reader := sdkmetric.NewManualReader()
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(meterProvider)
	defer func() { _ = meterProvider.Shutdown(context.Background()) }()

	metrics := telemetry.NewMetricsManager(meterProvider.Meter("spanscope"), global.Stats())
	metrics.ObserveMismatches(pipeline.Scopes.Mismatches)
	if err := metrics.RegisterMetrics(); err != nil {
		logger.Error("Failed to register metrics", zap.Error(err))
	}

	var closers []func() error
	shutdown := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Error("Shutdown step failed", zap.Error(err))
			}
		}
		closers = nil
	}
	defer shutdown()

	if cfg.Run.Store {
		store, err := framestore.Open(cfg.Store,
			metrics.GetStoredFramesGauge(),
			metrics.GetStoreSizeGauge(),
			metrics.GetCompactionCounter(),
			logger.Named("store"))
		if err != nil {
			return err
		}
		sink := profiler.NewAsyncSink(256, store.Sink, global.Stats().SinkDrops, logger)
		id := global.AddSink(sink.Push)
		closers = append(closers, store.Close, func() error {
			global.RemoveSink(id)
			sink.Close()
			return nil
		})
	}

	if cfg.Run.Export {
		next, err := consumer.NewTraces(func(_ context.Context, td ptrace.Traces) error {
			logger.Debug("Frame traces ready", zap.Int("span_count", td.SpanCount()))
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to create trace consumer: %w", err)
		}
		exporter, err := frameexport.NewExporter(cfg.Export, next,
			metrics.GetExportedFramesCounter(),
			metrics.GetExportErrorsCounter(),
			logger.Named("export"))
		if err != nil {
			return err
		}
		if err := exporter.Start(ctx); err != nil {
			return err
		}
		sink := profiler.NewAsyncSink(256, exporter.Push, global.Stats().SinkDrops, logger)
		id := global.AddSink(sink.Push)
		closers = append(closers, func() error {
			return exporter.Shutdown(context.Background())
		}, func() error {
			global.RemoveSink(id)
			sink.Close()
			return nil
		})
	}

	tracerProvider, err := otelbridge.NewTracerProvider("spanscope-demo", pipeline.Dispatcher, logger)
	if err != nil {
		return err
	}
	otel.SetTracerProvider(tracerProvider)
	closers = append(closers, func() error {
		return tracerProvider.Shutdown(context.Background())
	})

	workCtx, cancelWork := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(workCtx)
	dm := newDemo(pipeline.Dispatcher, otel.Tracer("demo"), logger)
	dm.runOther(gctx, g)
	loop.AddSystem("show_profiler", dm.update)

	logger.Info("Running demo",
		zap.Int("frames", cfg.Run.Frames),
		zap.Duration("interval", interval),
		zap.Bool("store", cfg.Run.Store),
		zap.Bool("export", cfg.Run.Export))

	runErr := loop.Run(ctx, cfg.Run.Frames)
	cancelWork()
	if err := g.Wait(); err != nil {
		logger.Error("Worker goroutine failed", zap.Error(err))
	}
	// Seal whatever the last iteration recorded.
	global.NewFrame()
	shutdown()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	values, err := collectMetrics(context.Background(), reader)
	if err != nil {
		logger.Warn("Failed to collect metrics", zap.Error(err))
	}
	return renderRunSummary(cmd.OutOrStdout(), loop.Iterations(), view, values)
}

func applyRunFlags(cmd *cobra.Command, cfg *fileConfig) {
	if frames, _ := cmd.Flags().GetInt("frames"); frames >= 0 {
		cfg.Run.Frames = frames
	}
	if path, _ := cmd.Flags().GetString("store"); path != "" {
		cfg.Store.Path = path
	}
	if noStore, _ := cmd.Flags().GetBool("no-store"); noStore {
		cfg.Run.Store = false
	}
	if noExport, _ := cmd.Flags().GetBool("no-export"); noExport {
		cfg.Run.Export = false
	}
}
