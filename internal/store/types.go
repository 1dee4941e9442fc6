// Package store defines the persisted domain types of §3 and the Store
// interface the Session Runtime, Scheduler, and Hub use to read and write
// them. A concrete implementation lives in the sqlite subpackage; the
// interface itself is storage-engine agnostic (§6's "relational store, at
// least these tables" requirement).
package store

import (
	"encoding/json"
	"time"

	"github.com/flowlane/agentd/internal/sdk"
)

// SessionStatus is the lifecycle status domain for a Session (§3.1).
type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionArchived SessionStatus = "archived"
	SessionDeleted  SessionStatus = "deleted"
)

// SessionConfig is the mutable configuration attached to a Session.
type SessionConfig struct {
	Model                string            `json:"model"`
	FallbackModel        string            `json:"fallbackModel,omitempty"`
	MaxTurns             int               `json:"maxTurns,omitempty"`
	MaxBudgetUSD         float64           `json:"maxBudget,omitempty"`
	MaxThinkingTokens    *int              `json:"maxThinkingTokens,omitempty"`
	ThinkingLevel        string            `json:"thinkingLevel,omitempty"`
	SystemPromptOverride string            `json:"systemPromptOverride,omitempty"`
	ToolAllowList        []string          `json:"toolAllowList,omitempty"`
	ToolDenyList         []string          `json:"toolDenyList,omitempty"`
	AgentDefinitions     json.RawMessage   `json:"agentDefinitions,omitempty"`
	SandboxSettings      json.RawMessage   `json:"sandboxSettings,omitempty"`
	MCPServers           map[string]string `json:"mcpServers,omitempty"`
	DisabledMCPServers   []string          `json:"disabledMcpServers,omitempty"`
	OutputFormat         string            `json:"outputFormat,omitempty"`
	BetaFlags            []string          `json:"betaFlags,omitempty"`
	Env                  map[string]string `json:"env,omitempty"`
	PermissionMode       string            `json:"permissionMode,omitempty"`
	CoordinatorMode      bool              `json:"coordinatorMode,omitempty"`
}

// SessionMetadata is the rolling, monotonic-within-a-session-life metadata
// counters attached to a Session.
type SessionMetadata struct {
	MessageCount    int     `json:"messageCount"`
	InputTokens     int64   `json:"inputTokens"`
	OutputTokens    int64   `json:"outputTokens"`
	TotalTokens     int64   `json:"totalTokens"`
	TotalCostUSD    float64 `json:"totalCost"`
	ToolCallCount   int     `json:"toolCallCount"`
	TitleGenerated  bool    `json:"titleGenerated"`
}

// Session is a conversation instance (§3.1).
type Session struct {
	ID         string          `db:"id" json:"id"`
	Title      string          `db:"title" json:"title"`
	Workspace  string          `db:"workspace" json:"workspace"`
	Status     SessionStatus   `db:"status" json:"status"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
	LastActive time.Time       `db:"last_active" json:"lastActive"`
	Config     SessionConfig   `db:"config" json:"config"`
	Metadata   SessionMetadata `db:"metadata" json:"metadata"`
}

// Checkpoint is a replayable marker at a user turn (§3.3).
type Checkpoint struct {
	ID        string    `db:"id" json:"id"` // == originating message uuid
	SessionID string    `db:"session_id" json:"sessionId"`
	Preview   string    `db:"preview" json:"preview"`
	Turn      int       `db:"turn" json:"turn"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// ScheduleKind tags the variant of a RecurringJob's Schedule.
type ScheduleKind string

const (
	ScheduleInterval ScheduleKind = "interval"
	ScheduleDaily    ScheduleKind = "daily"
	ScheduleWeekly   ScheduleKind = "weekly"
	ScheduleCron     ScheduleKind = "cron"
)

// Schedule is the tagged schedule variant of a RecurringJob (§3.4).
type Schedule struct {
	Kind           ScheduleKind `json:"kind"`
	IntervalMin    int          `json:"intervalMinutes,omitempty"`
	Hour           int          `json:"hour,omitempty"`
	Minute         int          `json:"minute,omitempty"`
	DayOfWeek      int          `json:"dayOfWeek,omitempty"` // 0=Sunday
	CronExpression string       `json:"cronExpression,omitempty"`
}

// ExecutionMode is a Task's execution mode domain (§3.5).
type ExecutionMode string

const (
	ExecSingle           ExecutionMode = "single"
	ExecParallel         ExecutionMode = "parallel"
	ExecSerial           ExecutionMode = "serial"
	ExecParallelThenMerge ExecutionMode = "parallel_then_merge"
)

// TaskTemplate is the task-shaped payload a RecurringJob materializes on fire.
type TaskTemplate struct {
	Title             string        `json:"title"`
	Description       string        `json:"description,omitempty"`
	Priority          string        `json:"priority,omitempty"`
	ExecutionMode     ExecutionMode `json:"executionMode,omitempty"`
	SessionAssignment []string      `json:"sessionAssignments,omitempty"`
}

// RecurringJob is a persistent scheduling record (§3.4).
type RecurringJob struct {
	ID          string       `db:"id" json:"id"`
	RoomID      string       `db:"room_id" json:"roomId"`
	Name        string       `db:"name" json:"name"`
	Description string       `db:"description" json:"description,omitempty"`
	Schedule    Schedule     `db:"schedule" json:"schedule"`
	Template    TaskTemplate `db:"template" json:"template"`
	Enabled     bool         `db:"enabled" json:"enabled"`
	MaxRuns     *int         `db:"max_runs" json:"maxRuns,omitempty"`
	RunCount    int          `db:"run_count" json:"runCount"`
	LastRunAt   *time.Time   `db:"last_run_at" json:"lastRunAt,omitempty"`
	NextRunAt   *time.Time   `db:"next_run_at" json:"nextRunAt,omitempty"`
}

// HasReachedMaxRuns reports whether the job has exhausted its MaxRuns budget.
func (j *RecurringJob) HasReachedMaxRuns() bool {
	return j.MaxRuns != nil && j.RunCount >= *j.MaxRuns
}

// Task is the materialization target of a recurring job run (§3.5).
type Task struct {
	ID              string        `db:"id" json:"id"`
	RoomID          string        `db:"room_id" json:"roomId"`
	Title           string        `db:"title" json:"title"`
	Description     string        `db:"description" json:"description,omitempty"`
	Priority        string        `db:"priority" json:"priority,omitempty"`
	ExecutionMode   ExecutionMode `db:"execution_mode" json:"executionMode,omitempty"`
	SessionAssign   []string      `db:"session_assignments" json:"sessionAssignments,omitempty"`
	RecurringJobID  *string       `db:"recurring_job_id" json:"recurringJobId,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"createdAt"`
}

// Draft is per-(session, client-identity) pending input text (§3.6).
type Draft struct {
	SessionID string    `db:"session_id" json:"sessionId"`
	ClientID  string    `db:"client_id" json:"clientId"`
	Text      string    `db:"text" json:"text"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// SDKMessageRecord is the persisted row shape backing sdk.Message.
type SDKMessageRecord = sdk.Message
