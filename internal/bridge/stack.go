package bridge

import (
	"sync"

	"github.com/deepaksharma/spanscope/internal/profiler"
	"github.com/deepaksharma/spanscope/internal/tracing"
)

const stackCapacity = 16

type stackEntry struct {
	id    tracing.ID
	start profiler.Offset
}

// spanStack is the entered spans of one goroutine, innermost last. It is
// only ever touched by the goroutine it belongs to.
type spanStack struct {
	entries []stackEntry
}

func (s *spanStack) push(e stackEntry) {
	s.entries = append(s.entries, e)
}

func (s *spanStack) pop() (stackEntry, bool) {
	n := len(s.entries)
	if n == 0 {
		return stackEntry{}, false
	}
	e := s.entries[n-1]
	s.entries = s.entries[:n-1]
	return e, true
}

func (s *spanStack) len() int {
	return len(s.entries)
}

var stackPool = sync.Pool{
	New: func() any {
		return &spanStack{entries: make([]stackEntry, 0, stackCapacity)}
	},
}

// spanStacks locates each goroutine's stack. Stacks are dropped once empty,
// so goroutines with balanced spans leave nothing behind.
type spanStacks struct {
	m sync.Map // goroutine id -> *spanStack
}

func (ss *spanStacks) get(gid uint64) (*spanStack, bool) {
	v, ok := ss.m.Load(gid)
	if !ok {
		return nil, false
	}
	return v.(*spanStack), true
}

func (ss *spanStacks) getOrCreate(gid uint64) *spanStack {
	if st, ok := ss.get(gid); ok {
		return st
	}
	st := stackPool.Get().(*spanStack)
	ss.m.Store(gid, st)
	return st
}

func (ss *spanStacks) release(gid uint64, st *spanStack) {
	ss.m.Delete(gid)
	st.entries = st.entries[:0]
	stackPool.Put(st)
}

// depth returns the number of entries on gid's stack.
func (ss *spanStacks) depth(gid uint64) int {
	st, ok := ss.get(gid)
	if !ok {
		return 0
	}
	return st.len()
}
