package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/flowlane/agentd/internal/apierr"
	"github.com/flowlane/agentd/internal/store"
)

// UpsertDraft writes a draft with 250ms write-coalescing applied by the
// caller (§3.6); an empty draft is a delete.
func (r *Repository) UpsertDraft(ctx context.Context, d *store.Draft) error {
	if d.Text == "" {
		return r.DeleteDraft(ctx, d.SessionID, d.ClientID)
	}

	wr := r.pool.Writer()
	_, err := wr.ExecContext(ctx, wr.Rebind(`
		INSERT INTO drafts (session_id, client_id, text, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, client_id) DO UPDATE SET text = excluded.text, updated_at = excluded.updated_at
	`), d.SessionID, d.ClientID, d.Text, d.UpdatedAt)
	return err
}

func (r *Repository) DeleteDraft(ctx context.Context, sessionID, clientID string) error {
	wr := r.pool.Writer()
	_, err := wr.ExecContext(ctx, wr.Rebind(`
		DELETE FROM drafts WHERE session_id = ? AND client_id = ?
	`), sessionID, clientID)
	return err
}

func (r *Repository) GetDraft(ctx context.Context, sessionID, clientID string) (*store.Draft, error) {
	ro := r.pool.Reader()
	d := &store.Draft{}
	err := ro.QueryRowContext(ctx, ro.Rebind(`
		SELECT session_id, client_id, text, updated_at FROM drafts WHERE session_id = ? AND client_id = ?
	`), sessionID, clientID).Scan(&d.SessionID, &d.ClientID, &d.Text, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("draft %s/%s: %w", sessionID, clientID, apierr.ErrNotFound)
	}
	return d, err
}
