package profiler

import "sync"

// FrameView keeps the most recent frames in a ring, together with every scope
// description seen so far, so a UI can render them.
type FrameView struct {
	mu       sync.RWMutex
	frames   []*FrameData
	capacity int
	head     int
	full     bool
	scopes   map[ScopeID]ScopeDetails
}

// NewFrameView creates a view holding up to capacity frames.
func NewFrameView(capacity int) *FrameView {
	if capacity <= 0 {
		capacity = 256
	}
	return &FrameView{
		frames:   make([]*FrameData, capacity),
		capacity: capacity,
		scopes:   make(map[ScopeID]ScopeDetails),
	}
}

// Add stores a frame. It has the FrameSink signature.
func (v *FrameView) Add(frame *FrameData) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, d := range frame.ScopeDelta {
		v.scopes[d.ID] = d
	}
	v.frames[v.head] = frame
	v.head = (v.head + 1) % v.capacity
	if v.head == 0 {
		v.full = true
	}
}

// Recent returns the stored frames, oldest first.
func (v *FrameView) Recent() []*FrameData {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if !v.full {
		out := make([]*FrameData, v.head)
		copy(out, v.frames[:v.head])
		return out
	}
	out := make([]*FrameData, v.capacity)
	copy(out, v.frames[v.head:])
	copy(out[v.capacity-v.head:], v.frames[:v.head])
	return out
}

// Latest returns the most recently added frame.
func (v *FrameView) Latest() (*FrameData, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if !v.full && v.head == 0 {
		return nil, false
	}
	idx := (v.head - 1 + v.capacity) % v.capacity
	return v.frames[idx], true
}

// ScopeDetails returns the description of a scope seen in any added frame.
func (v *FrameView) ScopeDetails(id ScopeID) (ScopeDetails, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	d, ok := v.scopes[id]
	return d, ok
}
