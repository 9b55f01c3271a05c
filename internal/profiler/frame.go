package profiler

import "time"

// ThreadInfo identifies the goroutine a stream was recorded on.
type ThreadInfo struct {
	ID   uint64 `msgpack:"id"`
	Name string `msgpack:"name"`
}

// NsRange is a closed range of unix nanosecond timestamps.
type NsRange struct {
	Start int64 `msgpack:"start"`
	Stop  int64 `msgpack:"stop"`
}

// Duration returns the length of the range.
func (r NsRange) Duration() time.Duration {
	return time.Duration(r.Stop - r.Start)
}

func (r NsRange) merge(o NsRange) NsRange {
	if r == (NsRange{}) {
		return o
	}
	if o.Start < r.Start {
		r.Start = o.Start
	}
	if o.Stop > r.Stop {
		r.Stop = o.Stop
	}
	return r
}

// StreamInfo is one or more stream chunks recorded by a goroutine.
type StreamInfo struct {
	Stream    []byte  `msgpack:"stream"`
	NumScopes int     `msgpack:"num_scopes"`
	Depth     int     `msgpack:"depth"`
	Range     NsRange `msgpack:"range"`
}

func (s *StreamInfo) extend(o *StreamInfo) {
	s.Stream = append(s.Stream, o.Stream...)
	s.NumScopes += o.NumScopes
	if o.Depth > s.Depth {
		s.Depth = o.Depth
	}
	s.Range = s.Range.merge(o.Range)
}

// ThreadStream pairs a goroutine with everything it recorded in a frame.
type ThreadStream struct {
	Thread ThreadInfo `msgpack:"thread"`
	Info   StreamInfo `msgpack:"info"`
}

// FrameData is a sealed frame.
type FrameData struct {
	Index   uint64         `msgpack:"index"`
	Range   NsRange        `msgpack:"range"`
	Threads []ThreadStream `msgpack:"threads"`
	// ScopeDelta lists scopes registered since the previous frame.
	ScopeDelta []ScopeDetails `msgpack:"scope_delta"`
}

// NumScopes returns the number of scopes recorded across all goroutines.
func (f *FrameData) NumScopes() int {
	n := 0
	for i := range f.Threads {
		n += f.Threads[i].Info.NumScopes
	}
	return n
}

// Empty reports whether no goroutine recorded anything in the frame.
func (f *FrameData) Empty() bool {
	return len(f.Threads) == 0
}

// Duration returns the span between the first scope start and the last scope stop.
func (f *FrameData) Duration() time.Duration {
	return f.Range.Duration()
}
