package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/flowlane/agentd/internal/common/logger"
	"github.com/flowlane/agentd/internal/sdk"
	"github.com/flowlane/agentd/internal/store"
)

// RecoveryStore is the narrow slice of store.Store the recovery procedure
// needs; store.Store satisfies it.
type RecoveryStore interface {
	ListSDKMessagesByStatus(ctx context.Context, sessionID string, statuses []string) ([]*store.SDKMessageRecord, error)
	LatestSystemInitTimestamp(ctx context.Context, sessionID string) (time.Time, bool, error)
	UpdateSDKMessageStatus(ctx context.Context, sessionID, uuid string, status string) error
	UpdateSDKMessageStatusByDBID(ctx context.Context, sessionID string, dbID int64, status string) error
}

// Recover runs the Message Recovery procedure on session attach (§4.2.7):
// any queued/sent user message newer than the session's latest system.init
// is an orphan of a failed SDK attempt and is marked saved. DB failures are
// logged and swallowed — recovery never propagates.
func Recover(ctx context.Context, st RecoveryStore, sessionID string, log *logger.Logger) {
	pending, err := st.ListSDKMessagesByStatus(ctx, sessionID, []string{string(sdk.StatusQueued), string(sdk.StatusSent)})
	if err != nil {
		log.Warn("recovery: failed to load pending messages", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if len(pending) == 0 {
		return
	}

	// tInit defaults to the zero value when no system.init has been recorded
	// yet, so every timestamped pending message qualifies as an orphan.
	tInit, _, err := st.LatestSystemInitTimestamp(ctx, sessionID)
	if err != nil {
		log.Warn("recovery: failed to resolve latest system.init", zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	for _, msg := range pending {
		if msg.Type != sdk.TypeUser {
			continue
		}
		if msg.UUID == "" && msg.DBID == 0 {
			continue
		}
		if msg.Timestamp.After(tInit) {
			if msg.UUID == "" {
				if err := st.UpdateSDKMessageStatusByDBID(ctx, sessionID, msg.DBID, string(sdk.StatusSaved)); err != nil {
					log.Warn("recovery: failed to mark message saved", zap.String("session_id", sessionID), zap.Int64("db_id", msg.DBID), zap.Error(err))
				}
				continue
			}
			if err := st.UpdateSDKMessageStatus(ctx, sessionID, msg.UUID, string(sdk.StatusSaved)); err != nil {
				log.Warn("recovery: failed to mark message saved", zap.String("session_id", sessionID), zap.String("uuid", msg.UUID), zap.Error(err))
			}
		}
	}
}
