package sdk

import "context"

// Query is a single agent-SDK conversation attempt. The Session Runtime
// constructs one per `starting` transition (§4.2.2) and discards it on
// `result` or successful interrupt. The daemon treats the SDK's own wire
// protocol as opaque; Query is the only seam it depends on.
type Query interface {
	// Messages returns the channel of Messages produced by the upstream
	// SDK for this attempt. The channel is closed when the SDK considers
	// the attempt finished (after emitting a `result` message) or when
	// Close is called.
	Messages() <-chan Message

	// Interrupt asks the SDK to cancel the in-flight call. Implementations
	// MAY return an error if the SDK call failed; the Runtime only warns
	// on such failures, it never propagates them (§4.2.3 step 5).
	Interrupt(ctx context.Context) error

	// SetMaxThinkingTokens reconfigures the running query's thinking
	// budget. Returns an error if the SDK rejects the change.
	SetMaxThinkingTokens(ctx context.Context, tokens *int) error

	// SetPermissionMode reconfigures the running query's permission mode.
	SetPermissionMode(ctx context.Context, mode string) error

	// MCPServerStatus returns the status of configured MCP servers as seen
	// by the running query.
	MCPServerStatus(ctx context.Context) ([]MCPServerStatus, error)

	// Close releases any resources held by the query without waiting for
	// a natural completion. Safe to call more than once.
	Close()
}

// MCPServerStatus describes one configured MCP server as reported by a
// running Query (§4.2.8 getMcpServerStatus).
type MCPServerStatus struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	ToolCount int    `json:"toolCount"`
	Error     string `json:"error,omitempty"`
}

// Input is one item pulled from the session's message queue and fed to a
// running Query (§4.2.1's "messageGenerator" yield). ParentToolUseID is
// already resolved by the queue from any tool_result content block.
type Input struct {
	ID              string
	Content         string
	Internal        bool
	ParentToolUseID string
}

// InputFunc is the Query's pull side of the message queue: it blocks until
// an item is available, the queue is stopped, or ctx is cancelled, or the
// queue's generation has advanced past the one the Query was born with
// (§4.2.1, §9 "generator/async-iterator message pump"). ok is false
// whenever the Query must stop calling InputFunc. onSent MUST be invoked
// exactly once by the Query after it has consumed item — it completes the
// enqueue future and cancels its timeout.
type InputFunc func(ctx context.Context) (item Input, onSent func(), ok bool)

// Factory constructs a new Query for a session attempt. The Runtime invokes
// it exactly once per `starting` transition, passing the InputFunc the
// Query pulls queued user input from.
type Factory interface {
	NewQuery(ctx context.Context, sessionID string, cfg RuntimeConfig, input InputFunc) (Query, error)
}

// RuntimeConfig is the subset of session configuration that materializes a
// Query: the durable fields live in store.SessionConfig, this is the
// resolved view passed to Factory.NewQuery.
type RuntimeConfig struct {
	Model              string
	FallbackModel      string
	MaxTurns           int
	MaxThinkingTokens  *int
	SystemPromptOverride string
	ToolAllowList      []string
	ToolDenyList       []string
	MCPServers         map[string]string
	DisabledMCPServers []string
	PermissionMode     string
	OutputFormat       string
	BetaFlags          []string
	Env                map[string]string
	CoordinatorMode    bool
}
