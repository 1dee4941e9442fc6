package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/flowlane/agentd/internal/db/dialect"
	"github.com/flowlane/agentd/internal/sdk"
	"github.com/flowlane/agentd/internal/store"
)

// SaveSDKMessage persists one SDK message. A duplicate (session_id, uuid)
// insert is a replay and fails with a unique-constraint error, which the
// caller (the Message Handler, §4.2.4 step 2) treats as "abort fan-out".
func (r *Repository) SaveSDKMessage(ctx context.Context, msg *store.SDKMessageRecord) error {
	payloadJSON, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("marshal message payload: %w", err)
	}

	wr := r.pool.Writer()
	id, err := dialect.InsertReturningID(ctx, wr, `
		INSERT INTO sdk_messages (session_id, uuid, type, system_subtype, parent_tool_use_id, status, timestamp, internal, is_replay, is_synthetic, insertion_index, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(insertion_index), 0) + 1 FROM sdk_messages WHERE session_id = ?), ?)
	`, msg.SessionID, msg.UUID, string(msg.Type), string(msg.SystemSubtype), msg.ParentToolUseID, string(msg.Status), msg.Timestamp,
		dialect.BoolToInt(msg.Internal), dialect.BoolToInt(msg.IsReplay), dialect.BoolToInt(msg.IsSynthetic),
		msg.SessionID, string(payloadJSON))
	if err != nil {
		return err
	}
	msg.DBID = id
	return nil
}

func (r *Repository) UpdateSDKMessageStatus(ctx context.Context, sessionID, uuid string, status string) error {
	wr := r.pool.Writer()
	_, err := wr.ExecContext(ctx, wr.Rebind(`
		UPDATE sdk_messages SET status = ? WHERE session_id = ? AND uuid = ?
	`), status, sessionID, uuid)
	return err
}

// UpdateSDKMessageStatusByDBID updates status by the auto-increment row id
// rather than uuid — used during recovery (§4.2.7) for rows whose uuid was
// never populated.
func (r *Repository) UpdateSDKMessageStatusByDBID(ctx context.Context, sessionID string, dbID int64, status string) error {
	wr := r.pool.Writer()
	_, err := wr.ExecContext(ctx, wr.Rebind(`
		UPDATE sdk_messages SET status = ? WHERE session_id = ? AND db_id = ?
	`), status, sessionID, dbID)
	return err
}

func (r *Repository) ListSDKMessages(ctx context.Context, sessionID string) ([]*store.SDKMessageRecord, error) {
	ro := r.pool.Reader()
	rows, err := ro.QueryContext(ctx, ro.Rebind(`
		SELECT db_id, session_id, uuid, type, system_subtype, parent_tool_use_id, status, timestamp, internal, is_replay, is_synthetic, insertion_index, payload
		FROM sdk_messages WHERE session_id = ? ORDER BY insertion_index ASC
	`), sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanMessages(rows)
}

func (r *Repository) ListSDKMessagesByStatus(ctx context.Context, sessionID string, statuses []string) ([]*store.SDKMessageRecord, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, 0, len(statuses)+1)
	args = append(args, sessionID)
	for _, s := range statuses {
		args = append(args, s)
	}

	ro := r.pool.Reader()
	query := fmt.Sprintf(`
		SELECT db_id, session_id, uuid, type, system_subtype, parent_tool_use_id, status, timestamp, internal, is_replay, is_synthetic, insertion_index, payload
		FROM sdk_messages WHERE session_id = ? AND status IN (%s) ORDER BY insertion_index ASC
	`, placeholders)
	rows, err := ro.QueryContext(ctx, ro.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanMessages(rows)
}

func (r *Repository) LatestSystemInitTimestamp(ctx context.Context, sessionID string) (time.Time, bool, error) {
	ro := r.pool.Reader()
	var ts time.Time
	err := ro.QueryRowContext(ctx, ro.Rebind(`
		SELECT timestamp FROM sdk_messages
		WHERE session_id = ? AND type = 'system' AND system_subtype = 'init'
		ORDER BY insertion_index DESC LIMIT 1
	`), sessionID).Scan(&ts)
	if err != nil {
		return time.Time{}, false, nil
	}
	return ts, true, nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanMessages(rows rowScanner) ([]*store.SDKMessageRecord, error) {
	var result []*store.SDKMessageRecord
	for rows.Next() {
		msg := &sdk.Message{}
		var msgType, systemSubtype, status, payloadJSON string
		var internal, isReplay, isSynthetic int
		if err := rows.Scan(&msg.DBID, &msg.SessionID, &msg.UUID, &msgType, &systemSubtype, &msg.ParentToolUseID,
			&status, &msg.Timestamp, &internal, &isReplay, &isSynthetic, &msg.InsertionIndex, &payloadJSON); err != nil {
			return nil, err
		}
		msg.Type = sdk.MessageType(msgType)
		msg.SystemSubtype = sdk.SystemSubtype(systemSubtype)
		msg.Status = sdk.PersistenceStatus(status)
		msg.Internal = internal != 0
		msg.IsReplay = isReplay != 0
		msg.IsSynthetic = isSynthetic != 0
		if payloadJSON != "" {
			if err := json.Unmarshal([]byte(payloadJSON), &msg.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal message payload: %w", err)
			}
		}
		result = append(result, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
