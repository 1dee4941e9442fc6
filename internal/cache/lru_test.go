package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_GetSetRoundTrip(t *testing.T) {
	c := New(2, time.Minute, time.Hour, nil)
	defer c.Destroy()

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestLRU_EvictsOldestOnOverflow(t *testing.T) {
	c := New(2, time.Minute, time.Hour, nil)
	defer c.Destroy()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3) // evicts "a", the least-recently-used

	_, ok := c.Get("a")
	assert.False(t, ok)

	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRU_GetPromotesToMostRecent(t *testing.T) {
	c := New(2, time.Minute, time.Hour, nil)
	defer c.Destroy()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")       // promote "a", so "b" becomes least-recently-used
	c.Set("c", 3) // evicts "b"

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
}

func TestLRU_ExpiredEntryTreatedAsAbsent(t *testing.T) {
	c := New(2, time.Millisecond, time.Hour, nil)
	defer c.Destroy()

	c.Set("a", 1)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestLRU_SweepRemovesExpiredEntries(t *testing.T) {
	c := New(10, time.Millisecond, 5*time.Millisecond, nil)
	defer c.Destroy()

	c.Set("a", 1)
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, 0, c.Len())
}
