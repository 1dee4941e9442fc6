package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_TripsOnThreeContextOverflowErrors(t *testing.T) {
	b := NewBreaker(DefaultBreakerConfig(), nil)
	msg := `<local-command-stderr>Error: 400 {"type":"error","error":{"type":"invalid_request_error","message":"prompt is too long: 205616 tokens > 200000 maximum"}}</local-command-stderr>`

	now := time.Now()
	assert.False(t, b.Observe("main", msg, now))
	assert.False(t, b.Observe("main", msg, now.Add(time.Second)))
	tripped := b.Observe("main", msg, now.Add(2*time.Second))

	require.True(t, tripped)
	state := b.GetState()
	assert.True(t, state.Tripped)
	assert.Contains(t, state.Message, "Context limit exceeded")
	assert.Contains(t, state.Message, "200000")
}

func TestBreaker_PerAgentIsolation(t *testing.T) {
	cfg := BreakerConfig{ErrorThreshold: 3, RapidFireThreshold: 5, RapidFireWindow: 3 * time.Second}
	b := NewBreaker(cfg, nil)

	markers := []string{"Error: 429", "Connection error.", "Error: 429", "Connection error."}
	now := time.Now()
	for i, m := range markers {
		assert.False(t, b.Observe("main", m, now.Add(time.Duration(i)*time.Millisecond)))
	}
	for i, m := range markers {
		assert.False(t, b.Observe("tool-1", m, now.Add(time.Duration(i)*time.Millisecond)))
	}

	assert.False(t, b.IsTripped())
}

func TestBreaker_NonMatchingContentIgnored(t *testing.T) {
	b := NewBreaker(DefaultBreakerConfig(), nil)
	for i := 0; i < 10; i++ {
		assert.False(t, b.Observe("main", "just a normal message", time.Now()))
	}
	assert.False(t, b.IsTripped())
}

func TestBreaker_ResetPreservesTripCount(t *testing.T) {
	b := NewBreaker(DefaultBreakerConfig(), nil)
	msg := "Connection error."
	now := time.Now()
	b.Observe("main", msg, now)
	b.Observe("main", msg, now)
	b.Observe("main", msg, now)
	require.True(t, b.IsTripped())

	b.Reset()
	assert.False(t, b.IsTripped())
	assert.Equal(t, 1, b.GetState().TripCount)
}
