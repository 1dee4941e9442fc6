package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlane/agentd/internal/sdk"
	"github.com/flowlane/agentd/internal/store"
	v1 "github.com/flowlane/agentd/pkg/api/v1"
)

// fakeRuntimeStore is a minimal in-memory store.Store sufficient for
// exercising the Message Handler; it only implements what Runtime actually
// calls during handleMessage.
type fakeRuntimeStore struct {
	mu       sync.Mutex
	messages []*store.SDKMessageRecord
}

func (f *fakeRuntimeStore) CreateSession(context.Context, *store.Session) error        { return nil }
func (f *fakeRuntimeStore) GetSession(context.Context, string) (*store.Session, error) { return nil, nil }
func (f *fakeRuntimeStore) UpdateSessionConfig(context.Context, string, store.SessionConfig) error {
	return nil
}
func (f *fakeRuntimeStore) UpdateSessionMetadata(context.Context, string, store.SessionMetadata) error {
	return nil
}
func (f *fakeRuntimeStore) TouchSessionLastActive(context.Context, string, time.Time) error {
	return nil
}
func (f *fakeRuntimeStore) DeleteSession(context.Context, string) error { return nil }

func (f *fakeRuntimeStore) SaveSDKMessage(ctx context.Context, msg *store.SDKMessageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}
func (f *fakeRuntimeStore) UpdateSDKMessageStatus(context.Context, string, string, string) error {
	return nil
}
func (f *fakeRuntimeStore) UpdateSDKMessageStatusByDBID(context.Context, string, int64, string) error {
	return nil
}
func (f *fakeRuntimeStore) ListSDKMessages(context.Context, string) ([]*store.SDKMessageRecord, error) {
	return nil, nil
}
func (f *fakeRuntimeStore) ListSDKMessagesByStatus(context.Context, string, []string) ([]*store.SDKMessageRecord, error) {
	return nil, nil
}
func (f *fakeRuntimeStore) LatestSystemInitTimestamp(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

func (f *fakeRuntimeStore) SaveCheckpoint(context.Context, *store.Checkpoint) error { return nil }
func (f *fakeRuntimeStore) DeleteCheckpointsAfterTurn(context.Context, string, int) (int, error) {
	return 0, nil
}
func (f *fakeRuntimeStore) ListCheckpoints(context.Context, string) ([]*store.Checkpoint, error) {
	return nil, nil
}

func (f *fakeRuntimeStore) CreateRecurringJob(context.Context, *store.RecurringJob) error { return nil }
func (f *fakeRuntimeStore) GetRecurringJob(context.Context, string) (*store.RecurringJob, error) {
	return nil, nil
}
func (f *fakeRuntimeStore) ListEnabledRecurringJobs(context.Context) ([]*store.RecurringJob, error) {
	return nil, nil
}
func (f *fakeRuntimeStore) UpdateRecurringJob(context.Context, *store.RecurringJob) error { return nil }
func (f *fakeRuntimeStore) DeleteRecurringJob(context.Context, string) error              { return nil }

func (f *fakeRuntimeStore) CreateTask(context.Context, *store.Task) error { return nil }

func (f *fakeRuntimeStore) UpsertDraft(context.Context, *store.Draft) error   { return nil }
func (f *fakeRuntimeStore) DeleteDraft(context.Context, string, string) error { return nil }
func (f *fakeRuntimeStore) GetDraft(context.Context, string, string) (*store.Draft, error) {
	return nil, nil
}

// §8 invariant 3 ("monotone deltas"): version in state.sdkMessages.delta
// events for a session must be strictly increasing.
func TestHandleMessage_EmitsMonotonicallyIncreasingDeltaVersion(t *testing.T) {
	var mu sync.Mutex
	var deltas []v1.SDKMessagesDelta
	var sdkMessageEvents int

	pub := func(ctx context.Context, sessionID, method string, payload any) {
		mu.Lock()
		defer mu.Unlock()
		switch method {
		case v1.EventStateMessagesDelta:
			deltas = append(deltas, payload.(v1.SDKMessagesDelta))
		case v1.EventSDKMessage:
			sdkMessageEvents++
		}
	}

	sess := &store.Session{ID: "s1", Config: store.SessionConfig{}, Metadata: store.SessionMetadata{}}
	r := NewRuntime(sess, &fakeRuntimeStore{}, nil, pub, nil, nil)

	r.handleMessage(context.Background(), &sdk.Message{
		UUID: "m1", Type: sdk.TypeUser, IsReplay: true,
		Payload: sdk.Payload{Text: &sdk.TextBlock{Text: "hello"}},
	})
	r.handleMessage(context.Background(), &sdk.Message{
		UUID: "m2", Type: sdk.TypeAssistant,
		Payload: sdk.Payload{Text: &sdk.TextBlock{Text: "world"}},
	})
	r.handleMessage(context.Background(), &sdk.Message{
		UUID: "m3", Type: sdk.TypeResult,
	})

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, deltas, 3)
	assert.Equal(t, sdkMessageEvents, len(deltas))

	prev := uint64(0)
	for _, d := range deltas {
		assert.Greater(t, d.Version, prev)
		prev = d.Version
		require.Len(t, d.Added, 1)
	}
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{deltas[0].Version, deltas[1].Version, deltas[2].Version})
}
