package profiler

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepaksharma/spanscope/internal/goid"
)

func collectFrames(g *GlobalProfiler) *[]*FrameData {
	var mu sync.Mutex
	frames := &[]*FrameData{}
	g.AddSink(func(f *FrameData) {
		mu.Lock()
		defer mu.Unlock()
		*frames = append(*frames, f)
	})
	return frames
}

func TestNewFrameAlwaysProducesFrame(t *testing.T) {
	g := NewGlobalProfiler()
	frames := collectFrames(g)

	for i := 0; i < 5; i++ {
		g.NewFrame()
	}

	require.Len(t, *frames, 5)
	for i, f := range *frames {
		assert.Equal(t, uint64(i), f.Index)
		assert.True(t, f.Empty())
	}
	assert.Equal(t, uint64(5), g.CurrentFrameIndex())
	assert.Equal(t, int64(5), g.Stats().FramesSealed.Load())
}

func TestWriterReportsStreamAtDepthZero(t *testing.T) {
	g := NewGlobalProfiler()
	frames := collectFrames(g)
	w := g.Writer()

	g.SetGoroutineName("main")
	defer g.SetGoroutineName("")

	outer := w.BeginScope("update", "game", "n=1")
	inner := w.BeginScope("physics", "game", "")
	w.EndScope(inner)

	// Still inside "update": nothing reported yet.
	g.NewFrame()
	require.Len(t, *frames, 1)
	assert.True(t, (*frames)[0].Empty())

	w.EndScope(outer)
	g.NewFrame()
	require.Len(t, *frames, 2)

	frame := (*frames)[1]
	require.Len(t, frame.Threads, 1)
	assert.Equal(t, "main", frame.Threads[0].Thread.Name)
	assert.Equal(t, 2, frame.NumScopes())
	assert.Equal(t, 2, frame.Threads[0].Info.Depth)
	assert.True(t, frame.Duration() >= 0)

	scopes, err := ReadScopes(frame.Threads[0].Info.Stream)
	require.NoError(t, err)
	require.Len(t, scopes, 1)

	d, ok := g.Scopes().Lookup(scopes[0].ID)
	require.True(t, ok)
	assert.Equal(t, "update", d.Name)
	assert.Equal(t, "n=1", scopes[0].Data)
	require.Len(t, scopes[0].Children, 1)

	// Scope details were delivered with the first frame.
	assert.Len(t, (*frames)[0].ScopeDelta, 2)
	assert.Empty(t, frame.ScopeDelta)
}

func TestWriterMergesChunksPerGoroutine(t *testing.T) {
	g := NewGlobalProfiler()
	frames := collectFrames(g)
	w := g.Writer()

	for i := 0; i < 3; i++ {
		w.EndScope(w.BeginScope("tick", "t", ""))
	}
	g.NewFrame()

	require.Len(t, *frames, 1)
	require.Len(t, (*frames)[0].Threads, 1)
	scopes, err := ReadScopes((*frames)[0].Threads[0].Info.Stream)
	require.NoError(t, err)
	assert.Len(t, scopes, 3)
	assert.Equal(t, int64(3), g.Stats().ScopesBegun.Load())
	assert.Equal(t, int64(3), g.Stats().ScopesEnded.Load())
}

func TestWriterGoroutinesAreIsolated(t *testing.T) {
	g := NewGlobalProfiler()
	frames := collectFrames(g)
	w := g.Writer()

	var wg sync.WaitGroup
	for n := 0; n < 4; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				outer := w.BeginScope("outer", "t", "")
				w.EndScope(w.BeginScope("inner", "t", ""))
				w.EndScope(outer)
			}
		}()
	}
	wg.Wait()
	g.NewFrame()

	require.Len(t, *frames, 1)
	frame := (*frames)[0]
	require.Len(t, frame.Threads, 4)
	for _, ts := range frame.Threads {
		scopes, err := ReadScopes(ts.Info.Stream)
		require.NoError(t, err)
		assert.Len(t, scopes, 250)
	}
	assert.Equal(t, 2000, frame.NumScopes())
}

func TestWriterIgnoresEndWithoutBegin(t *testing.T) {
	g := NewGlobalProfiler()
	w := g.Writer()

	w.EndScope(Offset(42))
	assert.Zero(t, g.Stats().ScopesEnded.Load())
}

func TestRemoveSink(t *testing.T) {
	g := NewGlobalProfiler()
	calls := 0
	id := g.AddSink(func(*FrameData) { calls++ })

	g.NewFrame()
	assert.True(t, g.RemoveSink(id))
	assert.False(t, g.RemoveSink(id))
	g.NewFrame()

	assert.Equal(t, 1, calls)
}

func TestScopesOnFlag(t *testing.T) {
	prev := AreScopesOn()
	t.Cleanup(func() { SetScopesOn(prev) })

	SetScopesOn(true)
	assert.True(t, AreScopesOn())
	SetScopesOn(false)
	assert.False(t, AreScopesOn())
}

func TestWriterWithKnownGoroutine(t *testing.T) {
	g := NewGlobalProfiler()
	frames := collectFrames(g)
	w, ok := g.Writer().(GoroutineScopeWriter)
	require.True(t, ok)

	gid := goid.Get()
	outer := w.BeginScopeOn(gid, "update", "game", "")
	// Calls with and without the id reach the same stream.
	w.EndScope(w.BeginScope("physics", "game", ""))
	w.EndScopeOn(gid, outer)
	g.NewFrame()

	require.Len(t, *frames, 1)
	frame := (*frames)[0]
	require.Len(t, frame.Threads, 1)
	assert.Equal(t, gid, frame.Threads[0].Thread.ID)
	assert.Equal(t, 2, frame.NumScopes())
}
