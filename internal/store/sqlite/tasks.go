package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowlane/agentd/internal/store"
)

func (r *Repository) CreateTask(ctx context.Context, t *store.Task) error {
	assignJSON, err := json.Marshal(t.SessionAssign)
	if err != nil {
		return fmt.Errorf("marshal session assignments: %w", err)
	}
	wr := r.pool.Writer()
	_, err = wr.ExecContext(ctx, wr.Rebind(`
		INSERT INTO tasks (id, room_id, title, description, priority, execution_mode, session_assignments, recurring_job_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), t.ID, t.RoomID, t.Title, t.Description, t.Priority, string(t.ExecutionMode), string(assignJSON), t.RecurringJobID, t.CreatedAt)
	return err
}
