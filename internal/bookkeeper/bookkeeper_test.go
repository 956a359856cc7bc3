package bookkeeper

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuhtasimTanmoy/corrosion/internal/actorid"
	"github.com/MuhtasimTanmoy/corrosion/internal/hlc"
)

func TestPeekNextIsContiguousAndNonMutating(t *testing.T) {
	bk := New()
	assert.Equal(t, int64(0), bk.LastVersion())

	v1 := bk.PeekNext()
	v2 := bk.PeekNext()
	assert.Equal(t, int64(1), v1)
	assert.Equal(t, int64(1), v2, "peeking twice without committing must return the same version")
	assert.Equal(t, int64(0), bk.LastVersion())
}

func TestInsertCurrentThenGet(t *testing.T) {
	bk := New()
	v := bk.PeekNext()
	ts := hlc.Timestamp{Wall: 100, Logical: 0}

	require.NoError(t, bk.InsertCurrent(v, 42, 7, ts))
	assert.Equal(t, v, bk.LastVersion())

	kv, ok := bk.Get(v)
	require.True(t, ok)
	assert.Equal(t, KindCurrent, kv.Kind)
	assert.Equal(t, int64(42), kv.DbVersion)
	assert.Equal(t, int64(7), kv.LastSeq)

	assert.Equal(t, int64(2), bk.PeekNext(), "next peek must account for the committed version")
}

func TestInsertCurrentRejectsDuplicate(t *testing.T) {
	bk := New()
	v := bk.PeekNext()
	ts := hlc.Timestamp{}
	require.NoError(t, bk.InsertCurrent(v, 1, 1, ts))
	err := bk.InsertCurrent(v, 1, 1, ts)
	assert.Error(t, err)
}

func TestInsertCurrentLeavesSequenceUntouchedOnFailedCommit(t *testing.T) {
	bk := New()
	v1 := bk.PeekNext()
	require.NoError(t, bk.InsertCurrent(v1, 1, 1, hlc.Timestamp{}))

	// Simulate a rolled-back or failed commit: the caller peeked a
	// version but never called InsertCurrent for it.
	peeked := bk.PeekNext()
	assert.Equal(t, int64(2), peeked)

	// The next successful commit must still claim exactly that version
	// — no hole is left behind by the abandoned peek.
	require.NoError(t, bk.InsertCurrent(peeked, 2, 0, hlc.Timestamp{}))
	assert.Equal(t, int64(2), bk.LastVersion())
}

func TestBookkeepersPerActor(t *testing.T) {
	reg := NewBookkeepers()
	a1 := actorid.ActorId(uuid.New())
	a2 := actorid.ActorId(uuid.New())

	bk1 := reg.For(a1)
	v := bk1.PeekNext()
	require.NoError(t, bk1.InsertCurrent(v, 1, 0, hlc.Timestamp{}))

	bk2 := reg.For(a2)
	assert.Equal(t, int64(0), bk2.LastVersion())
	assert.Same(t, bk1, reg.For(a1))
}
