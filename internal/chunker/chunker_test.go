package chunker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seqRecord int64

func (s seqRecord) Seq() int64 { return int64(s) }

type sliceSource struct {
	items []seqRecord
	i     int
	failAt int // if >=0, Next returns an error once i reaches this index
	err   error
}

func (s *sliceSource) Next() (seqRecord, bool, error) {
	if s.failAt >= 0 && s.i == s.failAt {
		return 0, false, s.err
	}
	if s.i >= len(s.items) {
		return 0, false, nil
	}
	r := s.items[s.i]
	s.i++
	return r, true, nil
}

func newSource(items ...seqRecord) *sliceSource {
	return &sliceSource{items: items, failAt: -1}
}

func TestChunkerEmptyInput(t *testing.T) {
	c, err := New[seqRecord](newSource(), 0, 100, 50)
	require.NoError(t, err)

	frames, err := Drain(c)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Empty(t, frames[0].Records)
	assert.Equal(t, Range{0, 100}, frames[0].Range)
}

func TestChunkerSplitsOnSize(t *testing.T) {
	c, err := New[seqRecord](newSource(0, 1, 2), 0, 100, 2)
	require.NoError(t, err)

	frames, err := Drain(c)
	require.NoError(t, err)
	require.Len(t, frames, 2)

	assert.Equal(t, []seqRecord{0, 1}, frames[0].Records)
	assert.Equal(t, Range{0, 1}, frames[0].Range)

	assert.Equal(t, []seqRecord{2}, frames[1].Records)
	assert.Equal(t, Range{2, 100}, frames[1].Range)
}

func TestChunkerExactEndStopsEarly(t *testing.T) {
	c, err := New[seqRecord](newSource(0, 1), 0, 0, 1)
	require.NoError(t, err)

	frames, err := Drain(c)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, []seqRecord{0}, frames[0].Records)
	assert.Equal(t, Range{0, 0}, frames[0].Range)
}

func TestChunkerLastSeqEqualsStartSeqStillYields(t *testing.T) {
	c, err := New[seqRecord](newSource(), 7, 7, 10)
	require.NoError(t, err)

	frames, err := Drain(c)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Empty(t, frames[0].Records)
	assert.Equal(t, Range{7, 7}, frames[0].Range)
}

func TestChunkerPropagatesSourceError(t *testing.T) {
	src := newSource(0, 1)
	src.failAt = 1
	src.err = errors.New("boom")

	c, err := New[seqRecord](src, 0, 100, 50)
	require.NoError(t, err)

	_, ok, err := c.Next()
	require.Error(t, err)
	assert.False(t, ok)

	// Terminated: subsequent calls yield nothing further.
	_, ok, err = c.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChunkerRejectsZeroChunkSize(t *testing.T) {
	_, err := New[seqRecord](newSource(), 0, 10, 0)
	require.Error(t, err)
}
