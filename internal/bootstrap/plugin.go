// Package bootstrap assembles the process wide tracing pipeline: filter,
// profiler scope layer, error context layer and console output. It also
// chains a panic hook that prints the panicking goroutine's span trace.
package bootstrap

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/deepaksharma/spanscope/internal/bridge"
	"github.com/deepaksharma/spanscope/internal/hostloop"
	"github.com/deepaksharma/spanscope/internal/profiler"
	"github.com/deepaksharma/spanscope/internal/tracing"
)

const (
	warnBothSet       = "Could not set global logger and tracing dispatcher as they are already set. Consider removing the other logging setup or re-ordering initialization."
	warnLoggerSet     = "Could not set global logger as it is already set. Consider removing the other logging setup."
	warnDispatcherSet = "Could not set global tracing dispatcher as it is already set. Consider removing the other logging setup."
)

// Plugin builds the tracing pipeline. The zero value is not usable; call New.
type Plugin struct {
	cfg    Config
	logger *zap.Logger
	stderr io.Writer

	setGlobal      func(*tracing.Dispatcher) error
	installLogShim func(*zap.Logger) error
}

// New creates a plugin with DefaultConfig. Output and warnings go to logger.
func New(logger *zap.Logger) *Plugin {
	return &Plugin{
		cfg:            DefaultConfig(),
		logger:         logger,
		stderr:         os.Stderr,
		setGlobal:      tracing.SetGlobalDefault,
		installLogShim: InstallLogShim,
	}
}

// WithConfig replaces the whole configuration.
func (p *Plugin) WithConfig(cfg Config) *Plugin {
	p.cfg = cfg
	return p
}

// WithFrameMarking registers the frame marker as the first host loop system.
func (p *Plugin) WithFrameMarking() *Plugin {
	p.cfg.FrameMarking = true
	return p
}

// WithoutFrameMarking leaves frame marking to the caller.
func (p *Plugin) WithoutFrameMarking() *Plugin {
	p.cfg.FrameMarking = false
	return p
}

// WithScopesOn turns profiler scopes on at Build.
func (p *Plugin) WithScopesOn() *Plugin {
	p.cfg.ScopesOn = true
	return p
}

// WithScopesOff leaves profiler scopes as they are at Build.
func (p *Plugin) WithScopesOff() *Plugin {
	p.cfg.ScopesOn = false
	return p
}

// WithFilter sets extra filter directives.
func (p *Plugin) WithFilter(filter string) *Plugin {
	p.cfg.Filter = filter
	return p
}

// WithLevel sets the minimum level for unmatched targets.
func (p *Plugin) WithLevel(level zapcore.Level) *Plugin {
	p.cfg.Level = level.String()
	return p
}

// Config returns the current configuration.
func (p *Plugin) Config() Config {
	return p.cfg
}

// Pipeline is the result of Build.
type Pipeline struct {
	Dispatcher *tracing.Dispatcher
	Scopes     *bridge.ScopeLayer
	Errors     *tracing.ErrorLayer

	// GlobalInstalled is false when another dispatcher was already global.
	GlobalInstalled bool
	// LoggerInstalled is false when the legacy log shim was already installed.
	LoggerInstalled bool
}

// Build validates the configuration and installs the pipeline. loop may be
// nil when frames are marked by the caller. Installation conflicts are
// logged as warnings and do not fail the build.
func (p *Plugin) Build(loop *hostloop.Loop) (*Pipeline, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if p.cfg.FrameMarking && loop != nil {
		loop.AddFirstSystem("new_frame", bridge.FrameSystem)
	}
	if p.cfg.ScopesOn {
		profiler.SetScopesOn(true)
	}
	filter, err := p.cfg.filter()
	if err != nil {
		return nil, fmt.Errorf("failed to build filter: %w", err)
	}

	pipeline := &Pipeline{
		Scopes: bridge.NewScopeLayer(),
		Errors: tracing.NewErrorLayer(),
	}
	pipeline.Dispatcher = tracing.NewDispatcher(
		tracing.WithFilter(filter),
		tracing.WithLayer(pipeline.Scopes),
		tracing.WithLayer(pipeline.Errors),
		tracing.WithLayer(outputLayer(p.logger)),
	)
	p.chainPanicHook(pipeline.Dispatcher, pipeline.Errors)
	if loop != nil {
		loop.SetGuard(Guard)
	}

	loggerErr := p.installLogShim(p.logger)
	globalErr := p.setGlobal(pipeline.Dispatcher)
	pipeline.LoggerInstalled = loggerErr == nil
	pipeline.GlobalInstalled = globalErr == nil

	switch {
	case loggerErr != nil && globalErr != nil:
		p.logger.Warn(warnBothSet)
	case loggerErr != nil:
		p.logger.Warn(warnLoggerSet, zap.Error(loggerErr))
	case globalErr != nil:
		p.logger.Warn(warnDispatcherSet, zap.Error(globalErr))
	}

	p.logger.Debug("Tracing pipeline built",
		zap.Bool("frame_marking", p.cfg.FrameMarking),
		zap.Bool("scopes_on", profiler.AreScopesOn()),
		zap.String("level", p.cfg.Level),
		zap.String("filter", p.cfg.Filter))
	return pipeline, nil
}

// chainPanicHook prints the panicking goroutine's span trace, then defers to
// the hook that was installed before. Deferred exits usually run before the
// hook, so the trace saved by the error layer stands in for an empty one.
func (p *Plugin) chainPanicHook(d *tracing.Dispatcher, errs *tracing.ErrorLayer) {
	prev := platformPanicHook(TakePanicHook())
	out := p.stderr
	SetPanicHook(func(v any) {
		trace := d.CaptureSpanTrace()
		if trace.Empty() {
			trace = errs.ExitedTrace()
		}
		fmt.Fprintln(out, trace.String())
		prev(v)
	})
}
