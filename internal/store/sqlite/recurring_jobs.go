package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flowlane/agentd/internal/apierr"
	"github.com/flowlane/agentd/internal/db/dialect"
	"github.com/flowlane/agentd/internal/store"
)

func (r *Repository) CreateRecurringJob(ctx context.Context, j *store.RecurringJob) error {
	schedJSON, tmplJSON, err := marshalJob(j)
	if err != nil {
		return err
	}
	wr := r.pool.Writer()
	_, err = wr.ExecContext(ctx, wr.Rebind(`
		INSERT INTO recurring_jobs (id, room_id, name, description, schedule, template, enabled, max_runs, run_count, last_run_at, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), j.ID, j.RoomID, j.Name, j.Description, schedJSON, tmplJSON, dialect.BoolToInt(j.Enabled), j.MaxRuns, j.RunCount, j.LastRunAt, j.NextRunAt)
	return err
}

func (r *Repository) GetRecurringJob(ctx context.Context, id string) (*store.RecurringJob, error) {
	ro := r.pool.Reader()
	row := ro.QueryRowContext(ctx, ro.Rebind(`
		SELECT id, room_id, name, description, schedule, template, enabled, max_runs, run_count, last_run_at, next_run_at
		FROM recurring_jobs WHERE id = ?
	`), id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recurring job %s: %w", id, apierr.ErrNotFound)
	}
	return j, err
}

func (r *Repository) ListEnabledRecurringJobs(ctx context.Context) ([]*store.RecurringJob, error) {
	ro := r.pool.Reader()
	rows, err := ro.QueryContext(ctx, ro.Rebind(`
		SELECT id, room_id, name, description, schedule, template, enabled, max_runs, run_count, last_run_at, next_run_at
		FROM recurring_jobs WHERE enabled = 1
	`))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*store.RecurringJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, j)
	}
	return result, rows.Err()
}

func (r *Repository) UpdateRecurringJob(ctx context.Context, j *store.RecurringJob) error {
	schedJSON, tmplJSON, err := marshalJob(j)
	if err != nil {
		return err
	}
	wr := r.pool.Writer()
	res, err := wr.ExecContext(ctx, wr.Rebind(`
		UPDATE recurring_jobs SET room_id=?, name=?, description=?, schedule=?, template=?, enabled=?, max_runs=?, run_count=?, last_run_at=?, next_run_at=?
		WHERE id = ?
	`), j.RoomID, j.Name, j.Description, schedJSON, tmplJSON, dialect.BoolToInt(j.Enabled), j.MaxRuns, j.RunCount, j.LastRunAt, j.NextRunAt, j.ID)
	if err != nil {
		return err
	}
	return requireRowsAffected(res, j.ID)
}

func (r *Repository) DeleteRecurringJob(ctx context.Context, id string) error {
	wr := r.pool.Writer()
	res, err := wr.ExecContext(ctx, wr.Rebind(`DELETE FROM recurring_jobs WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return requireRowsAffected(res, id)
}

func marshalJob(j *store.RecurringJob) (schedJSON, tmplJSON string, err error) {
	sb, err := json.Marshal(j.Schedule)
	if err != nil {
		return "", "", fmt.Errorf("marshal schedule: %w", err)
	}
	tb, err := json.Marshal(j.Template)
	if err != nil {
		return "", "", fmt.Errorf("marshal template: %w", err)
	}
	return string(sb), string(tb), nil
}

type jobRow interface {
	Scan(dest ...any) error
}

func scanJob(row jobRow) (*store.RecurringJob, error) {
	j := &store.RecurringJob{}
	var schedJSON, tmplJSON string
	var enabled int
	if err := row.Scan(&j.ID, &j.RoomID, &j.Name, &j.Description, &schedJSON, &tmplJSON, &enabled,
		&j.MaxRuns, &j.RunCount, &j.LastRunAt, &j.NextRunAt); err != nil {
		return nil, err
	}
	j.Enabled = enabled != 0
	if err := json.Unmarshal([]byte(schedJSON), &j.Schedule); err != nil {
		return nil, fmt.Errorf("unmarshal schedule: %w", err)
	}
	if err := json.Unmarshal([]byte(tmplJSON), &j.Template); err != nil {
		return nil, fmt.Errorf("unmarshal template: %w", err)
	}
	return j, nil
}
