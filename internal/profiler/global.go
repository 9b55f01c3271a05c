package profiler

import (
	"sort"
	"sync"

	"github.com/deepaksharma/spanscope/internal/goid"
)

// FrameSink receives every sealed frame. Sinks run on the goroutine that
// called NewFrame and must not block; see AsyncSink for slow consumers.
type FrameSink func(frame *FrameData)

// SinkID identifies a registered sink.
type SinkID uint64

type sinkEntry struct {
	id   SinkID
	sink FrameSink
}

// GlobalProfiler collects goroutine streams into frames.
type GlobalProfiler struct {
	mu         sync.Mutex
	frameIndex uint64
	current    map[uint64]*StreamInfo
	sinks      []sinkEntry
	nextSink   SinkID

	threads sync.Map // goroutine id -> *ThreadProfiler
	names   sync.Map // goroutine id -> string

	scopes *ScopeRegistry
	stats  *Stats
}

var global = NewGlobalProfiler()

// Global returns the process wide profiler.
func Global() *GlobalProfiler {
	return global
}

// NewGlobalProfiler creates a standalone profiler. Most programs use Global.
func NewGlobalProfiler() *GlobalProfiler {
	return &GlobalProfiler{
		current: make(map[uint64]*StreamInfo),
		scopes:  NewScopeRegistry(),
		stats:   newStats(),
	}
}

// Writer returns a ScopeWriter recording into this profiler.
func (g *GlobalProfiler) Writer() ScopeWriter {
	return threadWriter{g: g}
}

// Scopes returns the scope registry.
func (g *GlobalProfiler) Scopes() *ScopeRegistry {
	return g.scopes
}

// Stats returns the profiler counters.
func (g *GlobalProfiler) Stats() *Stats {
	return g.stats
}

// SetGoroutineName names the calling goroutine. An empty name clears it.
func (g *GlobalProfiler) SetGoroutineName(name string) {
	gid := goid.Get()
	if name == "" {
		g.names.Delete(gid)
		return
	}
	g.names.Store(gid, name)
}

// CurrentFrameIndex returns the index the next sealed frame will carry.
func (g *GlobalProfiler) CurrentFrameIndex() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.frameIndex
}

// AddSink registers a sink for sealed frames.
func (g *GlobalProfiler) AddSink(sink FrameSink) SinkID {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nextSink++
	g.sinks = append(g.sinks, sinkEntry{id: g.nextSink, sink: sink})
	return g.nextSink
}

// RemoveSink unregisters a sink. It reports whether the sink was found.
func (g *GlobalProfiler) RemoveSink(id SinkID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, e := range g.sinks {
		if e.id == id {
			g.sinks = append(g.sinks[:i], g.sinks[i+1:]...)
			return true
		}
	}
	return false
}

// NewFrame seals the current frame and starts the next one. Every call
// produces exactly one frame, empty or not.
func (g *GlobalProfiler) NewFrame() {
	g.mu.Lock()
	frame := &FrameData{
		Index:      g.frameIndex,
		ScopeDelta: g.scopes.TakeDelta(),
		Threads:    make([]ThreadStream, 0, len(g.current)),
	}
	g.frameIndex++

	for gid, info := range g.current {
		frame.Threads = append(frame.Threads, ThreadStream{Thread: g.threadInfo(gid), Info: *info})
		frame.Range = frame.Range.merge(info.Range)
	}
	g.current = make(map[uint64]*StreamInfo, len(frame.Threads))

	sinks := make([]FrameSink, len(g.sinks))
	for i, e := range g.sinks {
		sinks[i] = e.sink
	}
	g.mu.Unlock()

	sort.Slice(frame.Threads, func(i, j int) bool {
		return frame.Threads[i].Thread.ID < frame.Threads[j].Thread.ID
	})
	g.stats.FramesSealed.Inc()

	for _, sink := range sinks {
		sink(frame)
	}
}

func (g *GlobalProfiler) report(gid uint64, info *StreamInfo) {
	g.stats.StreamBytes.Add(int64(len(info.Stream)))

	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.current[gid]; ok {
		existing.extend(info)
		return
	}
	g.current[gid] = info
}

func (g *GlobalProfiler) threadInfo(gid uint64) ThreadInfo {
	info := ThreadInfo{ID: gid}
	if v, ok := g.names.Load(gid); ok {
		info.Name = v.(string)
	}
	return info
}
