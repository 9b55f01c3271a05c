package profiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamNestedScopes(t *testing.T) {
	var s Stream

	outer := s.BeginScope(100, 1, "frame=1")
	inner := s.BeginScope(110, 2, "")
	require.True(t, s.EndScope(inner, 150))
	sibling := s.BeginScope(160, 3, "x=y")
	require.True(t, s.EndScope(sibling, 170))
	require.True(t, s.EndScope(outer, 200))

	scopes, err := ReadScopes(s.Bytes())
	require.NoError(t, err)
	require.Len(t, scopes, 1)

	top := scopes[0]
	assert.Equal(t, ScopeID(1), top.ID)
	assert.Equal(t, "frame=1", top.Data)
	assert.Equal(t, int64(100), top.Start)
	assert.Equal(t, int64(200), top.Stop)
	assert.Equal(t, 0, top.Depth)
	require.Len(t, top.Children, 2)

	assert.Equal(t, ScopeID(2), top.Children[0].ID)
	assert.Equal(t, int64(40), int64(top.Children[0].Duration()))
	assert.Equal(t, 1, top.Children[0].Depth)
	assert.Equal(t, "x=y", top.Children[1].Data)
}

func TestStreamSequentialTopLevelScopes(t *testing.T) {
	var s Stream
	for i := 0; i < 3; i++ {
		off := s.BeginScope(int64(i*10), ScopeID(i+1), "")
		s.EndScope(off, int64(i*10+5))
	}

	scopes, err := ReadScopes(s.Bytes())
	require.NoError(t, err)
	assert.Len(t, scopes, 3)

	var visited []ScopeID
	Walk(scopes, func(sc *Scope) { visited = append(visited, sc.ID) })
	assert.Equal(t, []ScopeID{1, 2, 3}, visited)
}

func TestStreamUnfinishedScopeIsMalformed(t *testing.T) {
	var s Stream
	s.BeginScope(1, 1, "")

	_, err := ReadScopes(s.Bytes())
	assert.ErrorIs(t, err, ErrMalformedStream)
}

func TestStreamTruncatedIsMalformed(t *testing.T) {
	var s Stream
	off := s.BeginScope(1, 1, "data")
	s.EndScope(off, 2)

	_, err := ReadScopes(s.Bytes()[:s.Len()-3])
	assert.ErrorIs(t, err, ErrMalformedStream)
}

func TestStreamEndScopeRejectsForeignOffset(t *testing.T) {
	var s Stream
	assert.False(t, s.EndScope(Offset(1000), 5))
	assert.Zero(t, s.Len())
}
