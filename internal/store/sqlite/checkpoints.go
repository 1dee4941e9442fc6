package sqlite

import (
	"context"

	"github.com/flowlane/agentd/internal/store"
)

func (r *Repository) SaveCheckpoint(ctx context.Context, cp *store.Checkpoint) error {
	wr := r.pool.Writer()
	_, err := wr.ExecContext(ctx, wr.Rebind(`
		INSERT INTO checkpoints (id, session_id, preview, turn, created_at)
		VALUES (?, ?, ?, ?, ?)
	`), cp.ID, cp.SessionID, cp.Preview, cp.Turn, cp.CreatedAt)
	return err
}

// DeleteCheckpointsAfterTurn removes every checkpoint with a turn number
// strictly greater than turn (§3.3 rewind) and returns the count removed.
func (r *Repository) DeleteCheckpointsAfterTurn(ctx context.Context, sessionID string, turn int) (int, error) {
	wr := r.pool.Writer()
	res, err := wr.ExecContext(ctx, wr.Rebind(`
		DELETE FROM checkpoints WHERE session_id = ? AND turn > ?
	`), sessionID, turn)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *Repository) ListCheckpoints(ctx context.Context, sessionID string) ([]*store.Checkpoint, error) {
	ro := r.pool.Reader()
	rows, err := ro.QueryContext(ctx, ro.Rebind(`
		SELECT id, session_id, preview, turn, created_at FROM checkpoints
		WHERE session_id = ? ORDER BY turn ASC
	`), sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*store.Checkpoint
	for rows.Next() {
		cp := &store.Checkpoint{}
		if err := rows.Scan(&cp.ID, &cp.SessionID, &cp.Preview, &cp.Turn, &cp.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, cp)
	}
	return result, rows.Err()
}
