// Package sdk models the upstream agent SDK as a bidirectional typed stream:
// a Query accepts enqueued input and produces a sequence of Messages. The
// package does not prescribe the SDK's own wire protocol — it only defines
// the envelope the rest of the daemon persists, fans out, and classifies.
package sdk

import (
	"encoding/json"
	"time"
)

// MessageType tags one step of the conversation.
type MessageType string

const (
	TypeUser        MessageType = "user"
	TypeAssistant   MessageType = "assistant"
	TypeSystem      MessageType = "system"
	TypeResult      MessageType = "result"
	TypeStreamEvent MessageType = "stream_event"
)

// SystemSubtype further tags a system message.
type SystemSubtype string

const (
	SystemInit       SystemSubtype = "init"
	SystemCompaction SystemSubtype = "compaction"
)

// ResultSubtype further tags a result message.
type ResultSubtype string

const (
	ResultSuccess ResultSubtype = "success"
	ResultError   ResultSubtype = "error"
)

// PersistenceStatus is the message status domain (§6): queued | sent | saved.
type PersistenceStatus string

const (
	StatusQueued PersistenceStatus = "queued"
	StatusSent   PersistenceStatus = "sent"
	StatusSaved  PersistenceStatus = "saved"
)

// MainAgent is the circuit-breaker identity used when ParentToolUseID is empty.
const MainAgent = "main"

// Message is an immutable record of one step in the conversation (§3.2).
// Ordering is append-only by InsertionIndex, not wall-clock.
type Message struct {
	UUID             string            `db:"uuid" json:"uuid"`
	DBID             int64             `db:"db_id" json:"dbId,omitempty"`
	SessionID        string            `db:"session_id" json:"sessionId"`
	Type             MessageType       `db:"type" json:"type"`
	SystemSubtype    SystemSubtype     `db:"system_subtype" json:"systemSubtype,omitempty"`
	ResultSubtype    ResultSubtype     `db:"result_subtype" json:"resultSubtype,omitempty"`
	ParentToolUseID  string            `db:"parent_tool_use_id" json:"parentToolUseId,omitempty"`
	Timestamp        time.Time         `db:"timestamp" json:"timestamp"`
	Internal         bool              `db:"internal" json:"internal"`
	IsReplay         bool              `db:"is_replay" json:"isReplay"`
	IsSynthetic      bool              `db:"is_synthetic" json:"isSynthetic"`
	Status           PersistenceStatus `db:"status" json:"status"`
	InsertionIndex   int64             `db:"insertion_index" json:"insertionIndex"`
	Payload          Payload           `db:"payload" json:"payload"`
}

// AgentIdentity returns the circuit-breaker agent identity for this message:
// "main" when there is no parent tool use, else the tool-use id (§3.7).
func (m *Message) AgentIdentity() string {
	if m.ParentToolUseID == "" {
		return MainAgent
	}
	return m.ParentToolUseID
}

// Payload is the type-specific body of a Message. Exactly one of the
// pointers below is populated, selected by Message.Type.
type Payload struct {
	Text       *TextBlock       `json:"text,omitempty"`
	ToolUse    []ToolUseBlock   `json:"toolUse,omitempty"`
	ToolResult *ToolResultBlock `json:"toolResult,omitempty"`
	Thinking   *ThinkingBlock   `json:"thinking,omitempty"`
	Usage      *UsageBlock      `json:"usage,omitempty"`
	Error      *ErrorBlock      `json:"error,omitempty"`
}

// TextBlock is a plain-text content block.
type TextBlock struct {
	Text string `json:"text"`
}

// ToolUseBlock is one tool invocation emitted by the assistant.
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
}

// ToolResultBlock is the result of a tool invocation, linking back to its
// ToolUseBlock.ID via ToolUseID.
type ToolResultBlock struct {
	ToolUseID string `json:"toolUseId"`
	Content   string `json:"content"`
	IsError   bool   `json:"isError,omitempty"`
}

// ThinkingBlock carries extended-thinking content.
type ThinkingBlock struct {
	Thinking string `json:"thinking"`
}

// UsageBlock carries token accounting attached to a result message.
type UsageBlock struct {
	InputTokens         int     `json:"inputTokens"`
	OutputTokens        int     `json:"outputTokens"`
	CacheReadTokens     int     `json:"cacheReadTokens,omitempty"`
	CacheCreationTokens int     `json:"cacheCreationTokens,omitempty"`
	CostUSD             float64 `json:"costUsd,omitempty"`
}

// ErrorBlock carries an upstream SDK error surfaced as message content; its
// Content is inspected for circuit-breaker markers (§4.2.6).
type ErrorBlock struct {
	Content string `json:"content"`
}

// FirstText returns the first text block's content, or "" if the payload
// carries none. Used to derive checkpoint previews and circuit-breaker
// markers from a user message.
func (p Payload) FirstText() string {
	if p.Text != nil {
		return p.Text.Text
	}
	return ""
}

// ToolUseCount returns the number of tool_use blocks in the payload.
func (p Payload) ToolUseCount() int {
	return len(p.ToolUse)
}
