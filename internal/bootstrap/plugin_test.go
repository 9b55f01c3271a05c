package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/deepaksharma/spanscope/internal/hostloop"
	"github.com/deepaksharma/spanscope/internal/profiler"
	"github.com/deepaksharma/spanscope/internal/tracing"
)

func newTestPlugin(t *testing.T, loggerErr, globalErr error) (*Plugin, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	p := New(zap.New(core))
	p.stderr = &bytes.Buffer{}
	p.installLogShim = func(*zap.Logger) error { return loggerErr }
	p.setGlobal = func(*tracing.Dispatcher) error { return globalErr }

	prevScopes := profiler.AreScopesOn()
	t.Cleanup(func() {
		profiler.SetScopesOn(prevScopes)
		SetPanicHook(nil)
	})
	return p, logs
}

func TestBuildInstallationWarnings(t *testing.T) {
	tests := []struct {
		name      string
		loggerErr error
		globalErr error
		want      string
	}{
		{"none", nil, nil, ""},
		{"both", ErrLoggerAlreadySet, tracing.ErrGlobalDefaultAlreadySet, warnBothSet},
		{"logger", ErrLoggerAlreadySet, nil, warnLoggerSet},
		{"dispatcher", nil, tracing.ErrGlobalDefaultAlreadySet, warnDispatcherSet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, logs := newTestPlugin(t, tt.loggerErr, tt.globalErr)

			pipeline, err := p.Build(nil)
			require.NoError(t, err, "installation conflicts must not fail the build")
			assert.Equal(t, tt.loggerErr == nil, pipeline.LoggerInstalled)
			assert.Equal(t, tt.globalErr == nil, pipeline.GlobalInstalled)

			warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
			if tt.want == "" {
				assert.Empty(t, warnings)
				return
			}
			require.Len(t, warnings, 1, "exactly one warning per build")
			assert.Equal(t, tt.want, warnings[0].Message)
		})
	}
}

func TestBuildRegistersFrameMarker(t *testing.T) {
	p, _ := newTestPlugin(t, nil, nil)
	loop := hostloop.New(zap.NewNop(), 0)

	_, err := p.Build(loop)
	require.NoError(t, err)

	before := profiler.Global().CurrentFrameIndex()
	require.NoError(t, loop.RunOnce(context.Background()))
	assert.Equal(t, before+1, profiler.Global().CurrentFrameIndex())
}

func TestBuildWithoutFrameMarking(t *testing.T) {
	p, _ := newTestPlugin(t, nil, nil)
	loop := hostloop.New(zap.NewNop(), 0)

	_, err := p.WithoutFrameMarking().Build(loop)
	require.NoError(t, err)

	before := profiler.Global().CurrentFrameIndex()
	require.NoError(t, loop.RunOnce(context.Background()))
	assert.Equal(t, before, profiler.Global().CurrentFrameIndex())
}

func TestBuildScopesToggle(t *testing.T) {
	p, _ := newTestPlugin(t, nil, nil)
	profiler.SetScopesOn(false)
	_, err := p.WithScopesOff().Build(nil)
	require.NoError(t, err)
	assert.False(t, profiler.AreScopesOn())

	p, _ = newTestPlugin(t, nil, nil)
	_, err = p.WithScopesOn().Build(nil)
	require.NoError(t, err)
	assert.True(t, profiler.AreScopesOn())
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	p, _ := newTestPlugin(t, nil, nil)
	_, err := p.WithFilter("wgpu=loud").Build(nil)
	assert.Error(t, err)
}

func TestBuildAppliesFilter(t *testing.T) {
	t.Setenv(FilterEnvVar, "")
	p, _ := newTestPlugin(t, nil, nil)
	pipeline, err := p.WithLevel(zapcore.WarnLevel).WithFilter("game=debug").Build(nil)
	require.NoError(t, err)

	d := pipeline.Dispatcher
	assert.False(t, d.Target("game").SpanAt(zapcore.DebugLevel, "s").IsDisabled())
	assert.True(t, d.Target("other").Span("s").IsDisabled())
}

func TestBuildOutputWritesEvents(t *testing.T) {
	t.Setenv(FilterEnvVar, "")
	p, logs := newTestPlugin(t, nil, nil)
	pipeline, err := p.Build(nil)
	require.NoError(t, err)

	pipeline.Dispatcher.Target("game").Info("level loaded", tracing.Int("entities", 12))

	entries := logs.FilterMessage("level loaded").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "game", entries[0].ContextMap()["target"])
}

func TestPanicHookPrintsSpanTrace(t *testing.T) {
	p, _ := newTestPlugin(t, nil, nil)
	var prevCalled any
	SetPanicHook(func(v any) { prevCalled = v })

	pipeline, err := p.Build(nil)
	require.NoError(t, err)

	done := make(chan any)
	go func() {
		defer func() { done <- recover() }()
		defer Guard()

		pipeline.Dispatcher.Target("game").Span("update", tracing.Int("frame", 3)).Enter()
		panic("boom")
	}()

	assert.Equal(t, "boom", <-done, "Guard must re-panic with the same value")
	assert.Equal(t, "boom", prevCalled, "previous hook must run")
	out := p.stderr.(*bytes.Buffer).String()
	assert.Contains(t, out, "game::update")
	assert.Contains(t, out, "frame=3")
}

func TestPanicHookPrintsTraceAfterDeferredExits(t *testing.T) {
	p, _ := newTestPlugin(t, nil, nil)
	pipeline, err := p.Build(nil)
	require.NoError(t, err)
	tr := pipeline.Dispatcher.Target("game")

	done := make(chan any)
	go func() {
		defer func() { done <- recover() }()
		defer Guard()
		defer tr.Scoped("update", tracing.Int("frame", 3))()

		physics := tr.Span("physics", tracing.Int("bodies", 12))
		defer physics.Close()
		defer physics.Enter().Exit()
		panic("boom")
	}()

	assert.Equal(t, "boom", <-done)
	out := p.stderr.(*bytes.Buffer).String()
	assert.Contains(t, out, "0: game::physics")
	assert.Contains(t, out, "bodies=12")
	assert.Contains(t, out, "1: game::update")
	assert.Contains(t, out, "frame=3")
}

func TestBuildGuardsHostLoop(t *testing.T) {
	p, _ := newTestPlugin(t, nil, nil)
	var prev any
	SetPanicHook(func(v any) { prev = v })

	loop := hostloop.New(zap.NewNop(), 0)
	pipeline, err := p.WithoutFrameMarking().Build(loop)
	require.NoError(t, err)
	tr := pipeline.Dispatcher.Target("game")
	loop.AddSystem("explode", func(context.Context) error {
		defer tr.Scoped("explode")()
		panic("boom")
	})

	assert.PanicsWithValue(t, "boom", func() { _ = loop.RunOnce(context.Background()) })
	assert.Equal(t, "boom", prev)
	assert.Contains(t, p.stderr.(*bytes.Buffer).String(), "game::explode")
}

func TestGuardWithoutPanic(t *testing.T) {
	called := false
	SetPanicHook(func(any) { called = true })
	t.Cleanup(func() { SetPanicHook(nil) })

	func() {
		defer Guard()
	}()
	assert.False(t, called)
}

func TestTakePanicHook(t *testing.T) {
	t.Cleanup(func() { SetPanicHook(nil) })
	marker := errors.New("marker")
	var got any
	SetPanicHook(func(v any) { got = v })

	h := TakePanicHook()
	h(marker)
	assert.Equal(t, marker, got)

	got = nil
	TakePanicHook()(marker)
	assert.Nil(t, got, "take leaves a no-op hook behind")
}
