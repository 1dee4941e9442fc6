package hub

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/flowlane/agentd/pkg/api/v1"
)

type fakeConn struct {
	id       string
	open     bool
	received [][]byte
	full     bool
}

func (f *fakeConn) ID() string { return f.id }
func (f *fakeConn) IsOpen() bool { return f.open }
func (f *fakeConn) Send(b []byte) bool {
	if !f.open || f.full {
		return false
	}
	f.received = append(f.received, b)
	return true
}

func newTestHub() *Hub {
	return New(DefaultConfig(), nil, nil)
}

// Scenario (G): connection joins global, auto-subscribe pre-registers the
// configured method list for that scope.
func TestHub_AutoSubscribeOnGlobalJoin(t *testing.T) {
	h := newTestHub()
	h.cfg.GlobalAutoSubscribe = []string{"session.created", "session.updated", "session.deleted"}

	c := &fakeConn{id: "client-1", open: true}
	h.Join(c, v1.GlobalSession)

	for _, m := range h.cfg.GlobalAutoSubscribe {
		assert.Equal(t, 1, h.SubscriberCount(v1.GlobalSession, m))
	}
}

func TestHub_AutoSubscribeOnSessionJoin(t *testing.T) {
	h := newTestHub()
	c := &fakeConn{id: "client-1", open: true}
	h.Join(c, "session-1")

	for _, m := range h.cfg.SessionAutoSubscribe {
		assert.Equal(t, 1, h.SubscriberCount("session-1", m))
	}
}

// §8 round-trip: subscribing twice from the same client is equivalent to
// subscribing once.
func TestHub_DuplicateSubscribeIsIdempotent(t *testing.T) {
	h := newTestHub()
	h.Subscribe("c1", "s1", "sdk.message")
	h.Subscribe("c1", "s1", "sdk.message")
	assert.Equal(t, 1, h.SubscriberCount("s1", "sdk.message"))
}

// §8 property 5: subscription-index cleanliness — no empty containers
// survive unsubscribe or disconnect.
func TestHub_UnsubscribeLeavesNoEmptyContainers(t *testing.T) {
	h := newTestHub()
	h.Subscribe("c1", "s1", "sdk.message")
	h.Unsubscribe("c1", "s1", "sdk.message")

	h.mu.RLock()
	_, sessionPresent := h.index.bySession["s1"]
	_, clientPresent := h.index.byClient["c1"]
	h.mu.RUnlock()

	assert.False(t, sessionPresent)
	assert.False(t, clientPresent)
	assert.Equal(t, 0, h.SubscriberCount("s1", "sdk.message"))
}

func TestHub_LeaveRemovesAllSubscriptions(t *testing.T) {
	h := newTestHub()
	c := &fakeConn{id: "c1", open: true}
	h.Join(c, "s1")
	h.Subscribe("c1", "s2", "checkpoint.created")

	h.Leave("c1")

	h.mu.RLock()
	_, present := h.index.byClient["c1"]
	h.mu.RUnlock()
	assert.False(t, present)
	assert.Equal(t, 0, h.SubscriberCount("s2", "checkpoint.created"))
}

func TestHub_PublishDeliversToOpenSubscribersAndCountsFailed(t *testing.T) {
	h := newTestHub()
	open := &fakeConn{id: "open", open: true}
	closed := &fakeConn{id: "closed", open: false}
	full := &fakeConn{id: "full", open: true, full: true}

	h.Join(open, "s1")
	h.Join(closed, "s1")
	h.Join(full, "s1")
	h.Subscribe(open.id, "s1", "sdk.message")
	h.Subscribe(closed.id, "s1", "sdk.message")
	h.Subscribe(full.id, "s1", "sdk.message")

	report := h.Publish(context.Background(), "s1", "sdk.message", map[string]string{"hello": "world"})

	assert.Equal(t, 3, report.TotalSubscribers)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 2, report.Failed)
	require.Len(t, open.received, 1)

	var frame v1.Frame
	require.NoError(t, json.Unmarshal(open.received[0], &frame))
	assert.Equal(t, v1.FrameEvent, frame.Type)
	assert.Equal(t, "sdk.message", frame.Method)
}

func TestHub_PublishWithNoSubscribersIsZeroDelivery(t *testing.T) {
	h := newTestHub()
	report := h.Publish(context.Background(), "s1", "sdk.message", nil)
	assert.Equal(t, 0, report.TotalSubscribers)
	assert.Equal(t, 0, report.Sent)
	assert.Equal(t, 0, report.Failed)
}

func TestHub_HandleRequestDispatchesRegisteredHandler(t *testing.T) {
	h := newTestHub()
	h.RegisterHandler("session.get", func(ctx context.Context, sessionID string, payload json.RawMessage) (any, error) {
		return map[string]string{"id": sessionID}, nil
	})

	req, err := v1.NewRequest("req-1", "s1", "session.get", nil)
	require.NoError(t, err)

	resp := h.HandleRequest(context.Background(), req, false)
	require.Equal(t, v1.FrameResponse, resp.Type)
	assert.Equal(t, "req-1", resp.ID)

	var body map[string]string
	require.NoError(t, resp.ParsePayload(&body))
	assert.Equal(t, "s1", body["id"])
}

func TestHub_HandleRequestUnknownMethodReturnsErrorFrame(t *testing.T) {
	h := newTestHub()
	req, err := v1.NewRequest("req-1", "s1", "nope.nope", nil)
	require.NoError(t, err)

	resp := h.HandleRequest(context.Background(), req, false)
	assert.Equal(t, v1.FrameError, resp.Type)
}

func TestHub_HandleRequestRecoversFromPanickingHandler(t *testing.T) {
	h := newTestHub()
	h.RegisterHandler("boom", func(ctx context.Context, sessionID string, payload json.RawMessage) (any, error) {
		panic("kaboom")
	})
	req, err := v1.NewRequest("req-1", "s1", "boom", nil)
	require.NoError(t, err)

	resp := h.HandleRequest(context.Background(), req, false)
	assert.Equal(t, v1.FrameError, resp.Type)
}

func TestHub_HandleRequestDedupesRepeatedCalls(t *testing.T) {
	h := newTestHub()
	calls := 0
	h.RegisterHandler("message.count", func(ctx context.Context, sessionID string, payload json.RawMessage) (any, error) {
		calls++
		return map[string]int{"count": calls}, nil
	})

	req1, _ := v1.NewRequest("req-1", "s1", "message.count", map[string]string{"x": "1"})
	req2, _ := v1.NewRequest("req-2", "s1", "message.count", map[string]string{"x": "1"})

	resp1 := h.HandleRequest(context.Background(), req1, true)
	resp2 := h.HandleRequest(context.Background(), req2, true)

	var b1, b2 map[string]int
	require.NoError(t, resp1.ParsePayload(&b1))
	require.NoError(t, resp2.ParsePayload(&b2))

	assert.Equal(t, 1, calls, "handler should only run once for a deduped repeat call")
	assert.Equal(t, b1["count"], b2["count"])
	assert.Equal(t, "req-2", resp2.ID, "dedup response is re-stamped with the new request id")
}

func TestDedupKey_SmallPayloadInline(t *testing.T) {
	k1 := dedupKey("m", "s", []byte(`{"a":1}`))
	k2 := dedupKey("m", "s", []byte(`{"a":1}`))
	k3 := dedupKey("m", "s", []byte(`{"a":2}`))
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestDedupKey_LargePayloadHashed(t *testing.T) {
	big := make([]byte, 1000)
	for i := range big {
		big[i] = byte(i % 251)
	}
	k1 := dedupKey("m", "s", big)
	k2 := dedupKey("m", "s", big)
	assert.Equal(t, k1, k2)
	assert.NotContains(t, k1, string(big))
}
