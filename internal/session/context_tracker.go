package session

import (
	"sync"

	"github.com/flowlane/agentd/internal/sdk"
)

// ContextTracker maintains a running estimate of token usage while an agent
// query streams, and the authoritative figures once a `result` message
// lands (§4.2.4 step 4: "stream_event: feed the Context Tracker";
// "result: ...call contextTracker.handleResultUsage").
type ContextTracker struct {
	mu              sync.Mutex
	estimatedTokens int
	lastUsage       *sdk.UsageBlock
}

// NewContextTracker builds an empty tracker.
func NewContextTracker() *ContextTracker {
	return &ContextTracker{}
}

// HandleStreamEvent updates the running estimate from a stream_event's
// usage block, if it carries one. stream_event payloads are partial and
// provisional — the estimate is overwritten, never accumulated.
func (c *ContextTracker) HandleStreamEvent(msg *sdk.Message) {
	if msg.Payload.Usage == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.estimatedTokens = msg.Payload.Usage.InputTokens + msg.Payload.Usage.OutputTokens
}

// HandleResultUsage records the authoritative usage figures carried by a
// `result` message, superseding any streaming estimate.
func (c *ContextTracker) HandleResultUsage(u *sdk.UsageBlock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUsage = u
	if u != nil {
		c.estimatedTokens = u.InputTokens + u.OutputTokens
	}
}

// EstimatedTokens returns the current best estimate of total tokens in play.
func (c *ContextTracker) EstimatedTokens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.estimatedTokens
}

// LastUsage returns the most recent authoritative usage block, or nil if no
// result has landed yet.
func (c *ContextTracker) LastUsage() *sdk.UsageBlock {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsage
}
