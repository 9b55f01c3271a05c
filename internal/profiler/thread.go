package profiler

import (
	"sync"

	"github.com/deepaksharma/spanscope/internal/goid"
)

// ThreadProfiler records the scopes of a single goroutine. It is never shared.
type ThreadProfiler struct {
	gid       uint64
	stream    Stream
	depth     int
	maxDepth  int
	numScopes int
	start     int64
	global    *GlobalProfiler
}

var threadPool = sync.Pool{
	New: func() any {
		return &ThreadProfiler{stream: Stream{buf: make([]byte, 0, 1024)}}
	},
}

// BeginScope writes a begin record and returns its offset.
func (tp *ThreadProfiler) BeginScope(name, target, data string) Offset {
	id := tp.global.scopes.Intern(name, target)
	now := nowNs()
	if tp.depth == 0 {
		tp.start = now
	}
	tp.depth++
	if tp.depth > tp.maxDepth {
		tp.maxDepth = tp.depth
	}
	tp.numScopes++
	tp.global.stats.ScopesBegun.Inc()
	return tp.stream.BeginScope(now, id, data)
}

// EndScope closes the scope begun at start. When the goroutine is back at
// depth zero its stream is reported to the global profiler.
func (tp *ThreadProfiler) EndScope(start Offset) {
	if tp.depth == 0 {
		return
	}
	now := nowNs()
	if !tp.stream.EndScope(start, now) {
		return
	}
	tp.depth--
	tp.global.stats.ScopesEnded.Inc()

	if tp.depth == 0 {
		tp.report(now)
	}
}

// Depth returns the number of open scopes.
func (tp *ThreadProfiler) Depth() int {
	return tp.depth
}

func (tp *ThreadProfiler) report(stop int64) {
	info := &StreamInfo{
		Stream:    append([]byte(nil), tp.stream.Bytes()...),
		NumScopes: tp.numScopes,
		Depth:     tp.maxDepth,
		Range:     NsRange{Start: tp.start, Stop: stop},
	}
	tp.stream.Reset()
	tp.numScopes = 0
	tp.maxDepth = 0

	tp.global.report(tp.gid, info)
}

func (tp *ThreadProfiler) release() {
	tp.stream.Reset()
	tp.depth, tp.maxDepth, tp.numScopes, tp.start = 0, 0, 0, 0
	tp.global = nil
	threadPool.Put(tp)
}

// threadWriter resolves the calling goroutine's ThreadProfiler on every call.
type threadWriter struct {
	g *GlobalProfiler
}

func (w threadWriter) BeginScope(name, target, data string) Offset {
	return w.BeginScopeOn(goid.Get(), name, target, data)
}

func (w threadWriter) EndScope(start Offset) {
	w.EndScopeOn(goid.Get(), start)
}

func (w threadWriter) BeginScopeOn(gid uint64, name, target, data string) Offset {
	var tp *ThreadProfiler
	if v, ok := w.g.threads.Load(gid); ok {
		tp = v.(*ThreadProfiler)
	} else {
		tp = threadPool.Get().(*ThreadProfiler)
		tp.gid = gid
		tp.global = w.g
		w.g.threads.Store(gid, tp)
	}
	return tp.BeginScope(name, target, data)
}

func (w threadWriter) EndScopeOn(gid uint64, start Offset) {
	v, ok := w.g.threads.Load(gid)
	if !ok {
		return
	}
	tp := v.(*ThreadProfiler)
	tp.EndScope(start)
	if tp.depth == 0 {
		w.g.threads.Delete(gid)
		tp.release()
	}
}
