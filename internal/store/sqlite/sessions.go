package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flowlane/agentd/internal/apierr"
	"github.com/flowlane/agentd/internal/store"
)

func (r *Repository) CreateSession(ctx context.Context, s *store.Session) error {
	cfgJSON, err := json.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("marshal session config: %w", err)
	}
	metaJSON, err := json.Marshal(s.Metadata)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}

	db := r.pool.Writer()
	_, err = db.ExecContext(ctx, db.Rebind(`
		INSERT INTO sessions (id, title, workspace, status, created_at, last_active, config, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), s.ID, s.Title, s.Workspace, string(s.Status), s.CreatedAt, s.LastActive, string(cfgJSON), string(metaJSON))
	return err
}

func (r *Repository) GetSession(ctx context.Context, id string) (*store.Session, error) {
	ro := r.pool.Reader()
	var s store.Session
	var status, cfgJSON, metaJSON string
	err := ro.QueryRowContext(ctx, ro.Rebind(`
		SELECT id, title, workspace, status, created_at, last_active, config, metadata
		FROM sessions WHERE id = ?
	`), id).Scan(&s.ID, &s.Title, &s.Workspace, &status, &s.CreatedAt, &s.LastActive, &cfgJSON, &metaJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, apierr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	s.Status = store.SessionStatus(status)
	if err := json.Unmarshal([]byte(cfgJSON), &s.Config); err != nil {
		return nil, fmt.Errorf("unmarshal session config: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &s.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal session metadata: %w", err)
	}
	return &s, nil
}

func (r *Repository) UpdateSessionConfig(ctx context.Context, id string, cfg store.SessionConfig) error {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal session config: %w", err)
	}
	db := r.pool.Writer()
	res, err := db.ExecContext(ctx, db.Rebind(`UPDATE sessions SET config = ? WHERE id = ?`), string(cfgJSON), id)
	if err != nil {
		return err
	}
	return requireRowsAffected(res, id)
}

func (r *Repository) UpdateSessionMetadata(ctx context.Context, id string, meta store.SessionMetadata) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}
	db := r.pool.Writer()
	res, err := db.ExecContext(ctx, db.Rebind(`UPDATE sessions SET metadata = ? WHERE id = ?`), string(metaJSON), id)
	if err != nil {
		return err
	}
	return requireRowsAffected(res, id)
}

func (r *Repository) TouchSessionLastActive(ctx context.Context, id string, at time.Time) error {
	db := r.pool.Writer()
	res, err := db.ExecContext(ctx, db.Rebind(`UPDATE sessions SET last_active = ? WHERE id = ?`), at, id)
	if err != nil {
		return err
	}
	return requireRowsAffected(res, id)
}

func (r *Repository) DeleteSession(ctx context.Context, id string) error {
	db := r.pool.Writer()
	res, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM sessions WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if err := requireRowsAffected(res, id); err != nil {
		return err
	}
	// Cascade: messages, checkpoints, drafts belong to the session (§3.1).
	for _, stmt := range []string{
		`DELETE FROM sdk_messages WHERE session_id = ?`,
		`DELETE FROM checkpoints WHERE session_id = ?`,
		`DELETE FROM drafts WHERE session_id = ?`,
	} {
		if _, err := db.ExecContext(ctx, db.Rebind(stmt), id); err != nil {
			return err
		}
	}
	return nil
}

func requireRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, apierr.ErrNotFound)
	}
	return nil
}
