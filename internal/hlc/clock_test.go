package hlc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewTimestampResetsLogicalOnWallAdvance(t *testing.T) {
	calls := []time.Time{
		time.Unix(100, 0),
		time.Unix(101, 0),
	}
	i := 0
	clock := NewWithSource(func() time.Time {
		tm := calls[i]
		if i < len(calls)-1 {
			i++
		}
		return tm
	})

	first := clock.NewTimestamp()
	assert.Equal(t, uint32(0), first.Logical)

	second := clock.NewTimestamp()
	assert.Equal(t, uint32(0), second.Logical)
	assert.Greater(t, second.Wall, first.Wall)
}

func TestNewTimestampIncrementsLogicalOnStall(t *testing.T) {
	stalled := time.Unix(200, 0)
	clock := NewWithSource(func() time.Time { return stalled })

	first := clock.NewTimestamp()
	second := clock.NewTimestamp()
	third := clock.NewTimestamp()

	assert.Equal(t, first.Wall, second.Wall)
	assert.Equal(t, uint32(0), first.Logical)
	assert.Equal(t, uint32(1), second.Logical)
	assert.Equal(t, uint32(2), third.Logical)
}

func TestNewTimestampMonotoneUnderBackwardJump(t *testing.T) {
	calls := []time.Time{time.Unix(500, 0), time.Unix(100, 0)}
	i := 0
	clock := NewWithSource(func() time.Time {
		tm := calls[i]
		if i < len(calls)-1 {
			i++
		}
		return tm
	})

	first := clock.NewTimestamp()
	second := clock.NewTimestamp()

	assert.Equal(t, first.Wall, second.Wall, "wall must not regress even if the source clock jumps backward")
	assert.Equal(t, -1, first.Compare(second))
}

func TestTimestampCompareAndString(t *testing.T) {
	a := Timestamp{Wall: 10, Logical: 0}
	b := Timestamp{Wall: 10, Logical: 1}
	c := Timestamp{Wall: 11, Logical: 0}

	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, -1, b.Compare(c))
	assert.Equal(t, 0, a.Compare(a))
	assert.Equal(t, "10-0", a.String())
}
