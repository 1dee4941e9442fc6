package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageQueue_GeneratorOrderAndFutures(t *testing.T) {
	q := NewMessageQueue(time.Second)
	gen := q.Start()

	id1, f1 := q.Enqueue("Msg1", nil, false)
	id2, f2 := q.Enqueue("Msg2", nil, false)
	id3, f3 := q.Enqueue("Msg3", nil, false)

	ctx := context.Background()
	got := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		msg, ok := q.Next(ctx, gen)
		require.True(t, ok)
		got = append(got, msg.Content)
		msg.OnSent()
	}

	assert.Equal(t, []string{"Msg1", "Msg2", "Msg3"}, got)

	require.NoError(t, f1.Wait(ctx))
	require.NoError(t, f2.Wait(ctx))
	require.NoError(t, f3.Wait(ctx))
	assert.NotEqual(t, id1, id2)
	assert.NotEqual(t, id2, id3)
}

func TestMessageQueue_ClearRejectsPending(t *testing.T) {
	q := NewMessageQueue(time.Second)
	q.Start()

	_, f := q.Enqueue("pending", nil, false)
	q.Clear()

	err := f.Wait(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errInterruptedByUser)
}

func TestMessageQueue_ClearOnEmptyQueueIsNoop(t *testing.T) {
	q := NewMessageQueue(time.Second)
	q.Start()
	assert.NotPanics(t, func() { q.Clear() })
	assert.Equal(t, 0, q.Size())
}

func TestMessageQueue_StaleGeneratorTerminates(t *testing.T) {
	q := NewMessageQueue(time.Second)
	staleGen := q.Start()
	q.Start() // new generation invalidates the stale one

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, ok := q.Next(ctx, staleGen)
	assert.False(t, ok)
}

func TestMessageQueue_ConsumeTimeoutRejectsFuture(t *testing.T) {
	q := NewMessageQueue(10 * time.Millisecond)
	q.Start()

	_, f := q.Enqueue("slow", nil, false)
	err := f.Wait(context.Background())
	require.Error(t, err)
	var timeoutErr *MessageQueueTimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
}
