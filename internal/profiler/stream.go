package profiler

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	scopeBegin byte = '('
	scopeEnd   byte = ')'

	unpatchedSize = ^uint64(0)
)

// ErrMalformedStream is returned when a stream cannot be decoded.
var ErrMalformedStream = errors.New("malformed scope stream")

// Stream is an append-only binary encoding of nested scopes.
//
// Begin record: '(' | start ns i64 | scope id u32 | uvarint len | data | size u64
// End record:   ')' | stop ns i64
//
// The size field is patched on end with the number of bytes following it up to
// and including the end record.
type Stream struct {
	buf []byte
}

// Bytes returns the encoded stream. The slice aliases the stream's storage.
func (s *Stream) Bytes() []byte {
	return s.buf
}

// Len returns the encoded size in bytes.
func (s *Stream) Len() int {
	return len(s.buf)
}

// Reset empties the stream while keeping its storage.
func (s *Stream) Reset() {
	s.buf = s.buf[:0]
}

// BeginScope appends a begin record and returns the offset of its size field.
func (s *Stream) BeginScope(startNs int64, id ScopeID, data string) Offset {
	s.buf = append(s.buf, scopeBegin)
	s.buf = binary.LittleEndian.AppendUint64(s.buf, uint64(startNs))
	s.buf = binary.LittleEndian.AppendUint32(s.buf, uint32(id))
	s.buf = binary.AppendUvarint(s.buf, uint64(len(data)))
	s.buf = append(s.buf, data...)

	offset := Offset(len(s.buf))
	s.buf = binary.LittleEndian.AppendUint64(s.buf, unpatchedSize)
	return offset
}

// EndScope appends an end record and patches the size of the scope begun at start.
// Offsets that do not point into this stream are ignored.
func (s *Stream) EndScope(start Offset, stopNs int64) bool {
	body := int(start) + 8
	if body > len(s.buf) {
		return false
	}

	s.buf = append(s.buf, scopeEnd)
	s.buf = binary.LittleEndian.AppendUint64(s.buf, uint64(stopNs))
	binary.LittleEndian.PutUint64(s.buf[start:], uint64(len(s.buf)-body))
	return true
}

// Scope is a decoded stream record.
type Scope struct {
	ID       ScopeID
	Start    int64
	Stop     int64
	Data     string
	Depth    int
	Children []Scope
}

// Duration returns the wall time covered by the scope.
func (s Scope) Duration() time.Duration {
	return time.Duration(s.Stop - s.Start)
}

// ReadScopes decodes a stream into its top level scopes and their children.
func ReadScopes(stream []byte) ([]Scope, error) {
	r := &streamReader{buf: stream}
	scopes, err := r.readScopes(0)
	if err != nil {
		return nil, err
	}
	if r.pos != len(r.buf) {
		return nil, fmt.Errorf("%w: trailing bytes at %d", ErrMalformedStream, r.pos)
	}
	return scopes, nil
}

// Walk calls fn for every scope in depth-first order, parents first.
func Walk(scopes []Scope, fn func(sc *Scope)) {
	for i := range scopes {
		fn(&scopes[i])
		Walk(scopes[i].Children, fn)
	}
}

type streamReader struct {
	buf []byte
	pos int
}

func (r *streamReader) readScopes(depth int) ([]Scope, error) {
	var scopes []Scope
	for r.pos < len(r.buf) && r.buf[r.pos] == scopeBegin {
		sc, err := r.readScope(depth)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, sc)
	}
	return scopes, nil
}

func (r *streamReader) readScope(depth int) (Scope, error) {
	sc := Scope{Depth: depth}
	r.pos++

	start, err := r.uint64()
	if err != nil {
		return sc, err
	}
	sc.Start = int64(start)

	if r.pos+4 > len(r.buf) {
		return sc, fmt.Errorf("%w: truncated scope id at %d", ErrMalformedStream, r.pos)
	}
	sc.ID = ScopeID(binary.LittleEndian.Uint32(r.buf[r.pos:]))
	r.pos += 4

	n, read := binary.Uvarint(r.buf[r.pos:])
	if read <= 0 || r.pos+read+int(n) > len(r.buf) {
		return sc, fmt.Errorf("%w: bad data length at %d", ErrMalformedStream, r.pos)
	}
	r.pos += read
	sc.Data = string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)

	size, err := r.uint64()
	if err != nil {
		return sc, err
	}
	if size == unpatchedSize {
		return sc, fmt.Errorf("%w: unfinished scope at %d", ErrMalformedStream, r.pos)
	}
	end := r.pos + int(size)
	if end > len(r.buf) {
		return sc, fmt.Errorf("%w: scope size %d overruns stream", ErrMalformedStream, size)
	}

	if sc.Children, err = r.readScopes(depth + 1); err != nil {
		return sc, err
	}

	if r.pos >= len(r.buf) || r.buf[r.pos] != scopeEnd {
		return sc, fmt.Errorf("%w: missing end marker at %d", ErrMalformedStream, r.pos)
	}
	r.pos++

	stop, err := r.uint64()
	if err != nil {
		return sc, err
	}
	sc.Stop = int64(stop)

	if r.pos != end {
		return sc, fmt.Errorf("%w: scope ends at %d, expected %d", ErrMalformedStream, r.pos, end)
	}
	return sc, nil
}

func (r *streamReader) uint64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, fmt.Errorf("%w: truncated at %d", ErrMalformedStream, r.pos)
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}
