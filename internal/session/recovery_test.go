package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flowlane/agentd/internal/common/logger"
	"github.com/flowlane/agentd/internal/sdk"
	"github.com/flowlane/agentd/internal/store"
)

type fakeRecoveryStore struct {
	pending      []*store.SDKMessageRecord
	initAt       time.Time
	hasInit      bool
	updatedUUIDs []string
	updatedDBIDs []int64
}

func (f *fakeRecoveryStore) ListSDKMessagesByStatus(ctx context.Context, sessionID string, statuses []string) ([]*store.SDKMessageRecord, error) {
	return f.pending, nil
}

func (f *fakeRecoveryStore) LatestSystemInitTimestamp(ctx context.Context, sessionID string) (time.Time, bool, error) {
	return f.initAt, f.hasInit, nil
}

func (f *fakeRecoveryStore) UpdateSDKMessageStatus(ctx context.Context, sessionID, uuid string, status string) error {
	f.updatedUUIDs = append(f.updatedUUIDs, uuid)
	return nil
}

func (f *fakeRecoveryStore) UpdateSDKMessageStatusByDBID(ctx context.Context, sessionID string, dbID int64, status string) error {
	f.updatedDBIDs = append(f.updatedDBIDs, dbID)
	return nil
}

func TestRecover_MarksOrphanAfterSystemInit(t *testing.T) {
	fake := &fakeRecoveryStore{
		initAt:  time.Unix(1, 0),
		hasInit: true,
		pending: []*store.SDKMessageRecord{
			{UUID: "A", DBID: 1, Type: sdk.TypeUser, Status: sdk.StatusQueued, Timestamp: time.Unix(2, 0)},
		},
	}

	Recover(context.Background(), fake, "s1", logger.Default())

	assert.Equal(t, []string{"A"}, fake.updatedUUIDs)
}

func TestRecover_IgnoresMessagesBeforeInit(t *testing.T) {
	fake := &fakeRecoveryStore{
		initAt:  time.Unix(10, 0),
		hasInit: true,
		pending: []*store.SDKMessageRecord{
			{UUID: "A", DBID: 1, Type: sdk.TypeUser, Status: sdk.StatusQueued, Timestamp: time.Unix(2, 0)},
		},
	}

	Recover(context.Background(), fake, "s1", logger.Default())

	assert.Empty(t, fake.updatedUUIDs)
}

func TestRecover_FallsBackToDBIDWhenUUIDMissing(t *testing.T) {
	fake := &fakeRecoveryStore{
		initAt:  time.Unix(1, 0),
		hasInit: true,
		pending: []*store.SDKMessageRecord{
			{UUID: "", DBID: 7, Type: sdk.TypeUser, Status: sdk.StatusQueued, Timestamp: time.Unix(2, 0)},
		},
	}

	Recover(context.Background(), fake, "s1", logger.Default())

	assert.Equal(t, []int64{7}, fake.updatedDBIDs)
	assert.Empty(t, fake.updatedUUIDs)
}
