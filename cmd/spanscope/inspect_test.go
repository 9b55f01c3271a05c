package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deepaksharma/spanscope/internal/framestore"
	"github.com/deepaksharma/spanscope/internal/profiler"
)

func recordFrame(t *testing.T) (*profiler.FrameData, *profiler.FrameView) {
	t.Helper()
	g := profiler.NewGlobalProfiler()
	view := profiler.NewFrameView(4)
	g.AddSink(view.Add)

	w := g.Writer()
	outer := w.BeginScope("show_profiler", "demo", "frame=0")
	for i := 0; i < 3; i++ {
		w.EndScope(w.BeginScope("very thin", "demo", ""))
	}
	w.EndScope(w.BeginScope("sleep_ms", "demo", "ms=1"))
	w.EndScope(outer)
	g.NewFrame()

	frame, ok := view.Latest()
	require.True(t, ok)
	return frame, view
}

func TestRenderFrameTree(t *testing.T) {
	frame, _ := recordFrame(t)
	details := map[profiler.ScopeID]profiler.ScopeDetails{}
	for _, d := range frame.ScopeDelta {
		details[d.ID] = d
	}

	text, err := renderFrameTree(frame, details)
	require.NoError(t, err)

	assert.Contains(t, text, "goroutine ")
	assert.Contains(t, text, "  demo::show_profiler")
	assert.Contains(t, text, "frame=0")
	assert.Contains(t, text, "    demo::very thin x3")
	assert.Contains(t, text, "    demo::sleep_ms")
	assert.Contains(t, text, "ms=1")
}

func TestRenderFrameTreeUnknownScope(t *testing.T) {
	frame, _ := recordFrame(t)
	text, err := renderFrameTree(frame, nil)
	require.NoError(t, err)
	assert.Contains(t, text, "scope ")
	assert.NotContains(t, text, "demo::")
}

func TestRenderFrameTreeMalformedStream(t *testing.T) {
	frame := &profiler.FrameData{
		Threads: []profiler.ThreadStream{{
			Thread: profiler.ThreadInfo{ID: 7},
			Info:   profiler.StreamInfo{Stream: []byte{0x01}},
		}},
	}
	_, err := renderFrameTree(frame, nil)
	assert.ErrorContains(t, err, "goroutine 7")
}

func TestRenderRunSummary(t *testing.T) {
	_, view := recordFrame(t)
	var buf bytes.Buffer
	err := renderRunSummary(&buf, 1, view, map[string]int64{
		"spanscope.frames.sealed": 1,
		"spanscope.scopes.begun":  5,
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "spanscope: 1 frames")
	assert.Contains(t, out, "frames.sealed")
	assert.Contains(t, out, "scopes.begun")
}

func TestOpenExistingStoreMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "absent")
	cfg := framestore.DefaultConfig()
	cfg.Path = filepath.Join(dir, "frames.db")

	_, err := openExistingStore(cfg, zap.NewNop())
	assert.ErrorContains(t, err, "no store at")

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "inspect must not create the store directory")
}

func TestOpenExistingStore(t *testing.T) {
	cfg := framestore.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "frames.db")
	created, err := framestore.Open(cfg, nil, nil, nil, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, created.Close())

	store, err := openExistingStore(cfg, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, 0, store.Count())
}
