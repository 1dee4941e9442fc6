package store

import (
	"context"
	"time"
)

// Store is the persistence port consumed by the Session Runtime, Session
// Manager, and Recurring Job Scheduler. It names only the operations those
// components require; schema migration tooling and ad-hoc querying remain
// out of scope (§1 Non-goals).
type Store interface {
	// Sessions

	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	UpdateSessionConfig(ctx context.Context, id string, cfg SessionConfig) error
	UpdateSessionMetadata(ctx context.Context, id string, meta SessionMetadata) error
	TouchSessionLastActive(ctx context.Context, id string, at time.Time) error
	DeleteSession(ctx context.Context, id string) error

	// SDK messages

	SaveSDKMessage(ctx context.Context, msg *SDKMessageRecord) error
	UpdateSDKMessageStatus(ctx context.Context, sessionID, uuid string, status string) error
	UpdateSDKMessageStatusByDBID(ctx context.Context, sessionID string, dbID int64, status string) error
	ListSDKMessages(ctx context.Context, sessionID string) ([]*SDKMessageRecord, error)
	ListSDKMessagesByStatus(ctx context.Context, sessionID string, statuses []string) ([]*SDKMessageRecord, error)
	LatestSystemInitTimestamp(ctx context.Context, sessionID string) (time.Time, bool, error)

	// Checkpoints

	SaveCheckpoint(ctx context.Context, cp *Checkpoint) error
	DeleteCheckpointsAfterTurn(ctx context.Context, sessionID string, turn int) (int, error)
	ListCheckpoints(ctx context.Context, sessionID string) ([]*Checkpoint, error)

	// Recurring jobs

	CreateRecurringJob(ctx context.Context, j *RecurringJob) error
	GetRecurringJob(ctx context.Context, id string) (*RecurringJob, error)
	ListEnabledRecurringJobs(ctx context.Context) ([]*RecurringJob, error)
	UpdateRecurringJob(ctx context.Context, j *RecurringJob) error
	DeleteRecurringJob(ctx context.Context, id string) error

	// Tasks

	CreateTask(ctx context.Context, t *Task) error

	// Drafts

	UpsertDraft(ctx context.Context, d *Draft) error
	DeleteDraft(ctx context.Context, sessionID, clientID string) error
	GetDraft(ctx context.Context, sessionID, clientID string) (*Draft, error)
}
