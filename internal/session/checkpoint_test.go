package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointTracker_CreationAndRewind(t *testing.T) {
	tr := NewCheckpointTracker("s1", nil)
	now := time.Now()

	u1 := tr.Create("u1", "first", now)
	u2 := tr.Create("u2", "second", now)
	u3 := tr.Create("u3", "third", now)

	require.Equal(t, 1, u1.Turn)
	require.Equal(t, 2, u2.Turn)
	require.Equal(t, 3, u3.Turn)

	before := tr.GetCheckpoints()
	require.Len(t, before, 3)
	assert.Equal(t, []int{3, 2, 1}, []int{before[0].Turn, before[1].Turn, before[2].Turn})

	removed := tr.RewindTo("u2")
	assert.Equal(t, 1, removed)

	after := tr.GetCheckpoints()
	require.Len(t, after, 2)
	assert.Equal(t, "u2", after[0].ID)
	assert.Equal(t, "u1", after[1].ID)

	u4 := tr.Create("u4", "fourth", now)
	assert.Equal(t, 3, u4.Turn)
}

func TestCheckpointTracker_RewindUnknownIDIsNoop(t *testing.T) {
	tr := NewCheckpointTracker("s1", nil)
	tr.Create("u1", "first", time.Now())

	removed := tr.RewindTo("does-not-exist")
	assert.Equal(t, 0, removed)
	assert.Equal(t, 1, tr.Size())
}

func TestCheckpointTracker_PreviewTruncatedTo100Chars(t *testing.T) {
	tr := NewCheckpointTracker("s1", nil)
	long := ""
	for i := 0; i < 150; i++ {
		long += "x"
	}
	cp := tr.Create("u1", long, time.Now())
	assert.Equal(t, 100, len(cp.Preview)) // cut to 100 chars, no ellipsis
}
