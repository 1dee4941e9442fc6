// Package session implements the Session Runtime (§4.2): the
// single-writer-per-session state machine that drives one agent
// conversation — queuing user input, materializing SDK queries, persisting
// and fanning out every message, tripping a circuit breaker on failure
// storms, and tracking checkpoints for rewind.
//
// It is grounded on the teacher's internal/orchestrator/messagequeue and
// internal/orchestrator/queue packages for the bounded-queue and
// single-worker-goroutine idioms, generalized from a best-effort task queue
// to the generation-gated, future-settling message queue §4.2.1 requires.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/flowlane/agentd/internal/common/constants"
	"github.com/flowlane/agentd/internal/common/logger"
	"github.com/flowlane/agentd/internal/sdk"
	"github.com/flowlane/agentd/internal/store"
	v1 "github.com/flowlane/agentd/pkg/api/v1"
)

// State is the Agent Query Lifecycle's top-level state (§4.2.2).
type State string

const (
	StateIdle         State = "idle"
	StateStarting     State = "starting"
	StateProcessing   State = "processing"
	StateInterrupted  State = "interrupted"
)

// Phase is a finer-grained UI hint derived from the most recent message,
// independent of State (§4.2.2 "phase").
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseThinking  Phase = "thinking"
	PhaseStreaming Phase = "streaming"
	PhaseTool      Phase = "tool"
)

// PublishFunc emits an event scoped to sessionID. The session package stays
// decoupled from the Hub's concrete type; the Session Manager wires
// hub.Hub.Publish in as this function.
type PublishFunc func(ctx context.Context, sessionID, method string, payload any)

// Runtime owns the Agent Query Lifecycle for exactly one session. All
// mutation of its state/phase/cfg/meta/query fields happens under mu; the
// message pump itself runs on its own goroutine per query attempt.
type Runtime struct {
	id       string
	store    store.Store
	factory  sdk.Factory
	queue    *MessageQueue
	breaker  *Breaker
	checkpoints *CheckpointTracker
	context  *ContextTracker
	settings SettingsStore
	publish  PublishFunc
	log      *logger.Logger

	interrupts singleflight.Group

	mu               sync.Mutex
	state            State
	phase            Phase
	cfg              store.SessionConfig
	meta             store.SessionMetadata
	query            sdk.Query
	cancel           context.CancelFunc
	queryDone        chan struct{}
	monotonicVersion uint64
}

// NewRuntime builds a Runtime for sess, idle and ready to accept input.
// publish and settings may be nil — publish becomes a no-op, settings
// disables the settings-store write in UpdateToolsConfig.
func NewRuntime(sess *store.Session, st store.Store, factory sdk.Factory, publish PublishFunc, settings SettingsStore, log *logger.Logger) *Runtime {
	if log == nil {
		log = logger.Default()
	}
	if publish == nil {
		publish = func(context.Context, string, string, any) {}
	}

	r := &Runtime{
		id:       sess.ID,
		store:    st,
		factory:  factory,
		queue:    NewMessageQueue(constants.QueueConsumeTimeout),
		context:  NewContextTracker(),
		settings: settings,
		publish:  publish,
		log:      log.WithFields(zap.String("component", "runtime"), zap.String("session_id", sess.ID)),
		cfg:      sess.Config,
		meta:     sess.Metadata,
		state:    StateIdle,
		phase:    PhaseIdle,
	}
	r.checkpoints = NewCheckpointTracker(sess.ID, nil)
	r.breaker = NewBreaker(DefaultBreakerConfig(), func(state BreakerState) {
		r.publish(context.Background(), r.id, v1.MethodSessionUpdated, map[string]any{
			"source":  "circuit-breaker",
			"breaker": state,
		})
		_ = r.Interrupt(context.Background())
	})
	return r
}

// ID returns the owning session's id.
func (r *Runtime) ID() string { return r.id }

// State returns the current top-level lifecycle state.
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Phase returns the current UI-hint sub-state.
func (r *Runtime) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// BreakerState reports the circuit breaker's observable state.
func (r *Runtime) BreakerState() BreakerState { return r.breaker.GetState() }

// Checkpoints returns every checkpoint, newest first.
func (r *Runtime) Checkpoints() []*store.Checkpoint { return r.checkpoints.GetCheckpoints() }

// RewindTo removes every checkpoint after target's turn and deletes the
// corresponding persisted checkpoints. Returns the count removed.
func (r *Runtime) RewindTo(ctx context.Context, checkpointID string) (int, error) {
	cp, ok := r.checkpoints.GetCheckpoint(checkpointID)
	if !ok {
		return 0, nil
	}
	removed := r.checkpoints.RewindTo(checkpointID)
	if removed == 0 {
		return 0, nil
	}
	n, err := r.store.DeleteCheckpointsAfterTurn(ctx, r.id, cp.Turn)
	if err != nil {
		r.log.Error("failed to persist checkpoint rewind", zap.Error(err))
		return removed, err
	}
	return n, nil
}

// QueueSize reports the number of pending, not-yet-consumed messages.
func (r *Runtime) QueueSize() int { return r.queue.Size() }

// Enqueue queues content for the agent, starting a new query attempt if the
// runtime is currently idle (§4.2.1, §4.2.2 "idle -> starting"). The
// enqueued item's own consumption is awaited in the background; a message
// that is never consumed before its timeout only produces a warning log,
// matching the fire-and-forget posture of every other best-effort path in
// this package.
func (r *Runtime) Enqueue(ctx context.Context, content string, blocks []ContentBlock, internal bool) string {
	id, qi := r.queue.Enqueue(content, blocks, internal)

	r.mu.Lock()
	if r.state == StateIdle {
		r.startLocked()
	}
	r.mu.Unlock()

	go func() {
		if err := qi.Wait(context.Background()); err != nil {
			r.log.Warn("enqueued message was not consumed", zap.String("message_id", id), zap.Error(err))
		}
	}()

	return id
}

// startLocked transitions idle -> starting and spawns the goroutine that
// constructs a Query and pumps its messages. Callers must hold r.mu; it is
// released (and re-acquired) only by the spawned goroutine, never here.
func (r *Runtime) startLocked() {
	r.state = StateStarting
	r.phase = PhaseIdle

	gen := r.queue.Start()
	qctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	done := make(chan struct{})
	r.queryDone = done
	cfg := r.resolveRuntimeConfigLocked()
	sessionID := r.id

	go func() {
		defer close(done)

		q, err := r.factory.NewQuery(qctx, sessionID, cfg, r.makeInputFunc(gen))
		if err != nil {
			r.log.Error("failed to construct query", zap.Error(err))
			r.mu.Lock()
			r.state = StateIdle
			r.mu.Unlock()
			return
		}

		r.mu.Lock()
		r.query = q
		r.state = StateProcessing
		r.mu.Unlock()

		r.pump(qctx, q)
		q.Close()

		r.mu.Lock()
		r.query = nil
		if r.state != StateInterrupted {
			r.state = StateIdle
			r.phase = PhaseIdle
		}
		r.mu.Unlock()
	}()
}

// makeInputFunc adapts the message queue's Next into the sdk.InputFunc
// contract for the query attempt born at generation gen (§4.2.1, §9
// "generator/async-iterator message pump").
func (r *Runtime) makeInputFunc(gen uint64) sdk.InputFunc {
	return func(ctx context.Context) (sdk.Input, func(), bool) {
		qm, ok := r.queue.Next(ctx, gen)
		if !ok {
			return sdk.Input{}, nil, false
		}
		return sdk.Input{
			ID:              qm.ID,
			Content:         qm.Content,
			Internal:        qm.Internal,
			ParentToolUseID: qm.ParentToolUseID,
		}, qm.OnSent, true
	}
}

// pump drains q's message channel, dispatching each message to the Message
// Handler (§4.2.4) until the SDK closes the channel.
func (r *Runtime) pump(ctx context.Context, q sdk.Query) {
	for msg := range q.Messages() {
		msg := msg
		r.handleMessage(ctx, &msg)
	}
}

// handleMessage is the Message Handler (§4.2.4): it dispatches by type,
// feeds the checkpoint tracker, context tracker, and circuit breaker, then
// persists and fans out the message. A message whose persist write fails
// (e.g. a replayed uuid) is not fanned out; internal messages are fanned
// out but not persisted.
func (r *Runtime) handleMessage(ctx context.Context, msg *sdk.Message) {
	msg.SessionID = r.id
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	switch msg.Type {
	case sdk.TypeUser:
		r.handleUserMessage(ctx, msg)
	case sdk.TypeAssistant:
		r.handleAssistantMessage(ctx, msg)
	case sdk.TypeResult:
		r.handleResultMessage(ctx, msg)
	case sdk.TypeStreamEvent:
		r.context.HandleStreamEvent(msg)
	case sdk.TypeSystem:
		// system messages (init/compaction) carry no counters of their own;
		// they are persisted and fanned out below like any other message.
	}

	r.mu.Lock()
	r.phase = detectPhase(msg)
	r.mu.Unlock()

	if !msg.Internal {
		if err := r.store.SaveSDKMessage(ctx, msg); err != nil {
			r.log.Error("failed to persist sdk message", zap.Error(err))
			return
		}
		if err := r.store.TouchSessionLastActive(ctx, r.id, msg.Timestamp); err != nil {
			r.log.Warn("failed to touch session last_active", zap.Error(err))
		}
	}

	r.publish(ctx, r.id, v1.EventSDKMessage, msg)

	r.mu.Lock()
	r.monotonicVersion++
	version := r.monotonicVersion
	r.mu.Unlock()
	r.publish(ctx, r.id, v1.EventStateMessagesDelta, v1.SDKMessagesDelta{Added: []any{msg}, Version: version})
}

// handleUserMessage creates a checkpoint for a genuine (non-internal,
// non-replay) user turn and feeds circuit-breaker intake. Breaker intake is
// gated on the literal local-command-stderr marker (§4.2.4 step 6) here,
// in the Message Handler — Classify/Observe themselves do raw substring
// matching on whatever text they are given.
func (r *Runtime) handleUserMessage(ctx context.Context, msg *sdk.Message) {
	text := msg.Payload.FirstText()

	if !msg.Internal && !msg.IsReplay {
		cp := r.checkpoints.Create(msg.UUID, text, msg.Timestamp)
		if err := r.store.SaveCheckpoint(ctx, cp); err != nil {
			r.log.Error("failed to persist checkpoint", zap.Error(err))
		}
		r.publish(ctx, r.id, v1.EventCheckpointCreated, cp)
	}

	if strings.Contains(text, "local-command-stderr") {
		r.breaker.Observe(msg.AgentIdentity(), text, msg.Timestamp)
	}
}

// handleAssistantMessage accumulates the tool-call counter in session
// metadata (§4.2.4 step 3).
func (r *Runtime) handleAssistantMessage(ctx context.Context, msg *sdk.Message) {
	n := msg.Payload.ToolUseCount()
	if n == 0 {
		return
	}

	r.mu.Lock()
	r.meta.ToolCallCount += n
	meta := r.meta
	r.mu.Unlock()

	if err := r.store.UpdateSessionMetadata(ctx, r.id, meta); err != nil {
		r.log.Warn("failed to persist tool call count", zap.Error(err))
	}
}

// handleResultMessage records final usage/cost figures into session
// metadata and the context tracker (§4.2.4 step 4). The state machine's
// transition back to idle happens once the query's message channel
// actually closes (in startLocked's goroutine), not here — a result
// message is ordinarily the query's last, but treating idle as a
// consequence of channel closure (rather than of seeing a result) avoids a
// window where a concurrent Enqueue could start a second query attempt
// while the first is still draining.
func (r *Runtime) handleResultMessage(ctx context.Context, msg *sdk.Message) {
	r.context.HandleResultUsage(msg.Payload.Usage)

	r.mu.Lock()
	r.meta.MessageCount++
	if u := msg.Payload.Usage; u != nil {
		r.meta.InputTokens += int64(u.InputTokens)
		r.meta.OutputTokens += int64(u.OutputTokens)
		r.meta.TotalTokens += int64(u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheCreationTokens)
		r.meta.TotalCostUSD += u.CostUSD
	}
	meta := r.meta
	r.mu.Unlock()

	if err := r.store.UpdateSessionMetadata(ctx, r.id, meta); err != nil {
		r.log.Warn("failed to persist result metadata", zap.Error(err))
	}
}

// detectPhase derives a UI-hint phase from one message, independent of the
// top-level state (§4.2.2).
func detectPhase(msg *sdk.Message) Phase {
	switch {
	case msg.Payload.Thinking != nil:
		return PhaseThinking
	case msg.Type == sdk.TypeStreamEvent:
		return PhaseStreaming
	case msg.Type == sdk.TypeAssistant && msg.Payload.ToolUseCount() > 0:
		return PhaseTool
	default:
		return PhaseIdle
	}
}

// resolveRuntimeConfigLocked builds the sdk.RuntimeConfig view passed to
// Factory.NewQuery from the durable store.SessionConfig. Callers must hold
// r.mu.
func (r *Runtime) resolveRuntimeConfigLocked() sdk.RuntimeConfig {
	return sdk.RuntimeConfig{
		Model:                r.cfg.Model,
		FallbackModel:        r.cfg.FallbackModel,
		MaxTurns:             r.cfg.MaxTurns,
		MaxThinkingTokens:    r.cfg.MaxThinkingTokens,
		SystemPromptOverride: r.cfg.SystemPromptOverride,
		ToolAllowList:        r.cfg.ToolAllowList,
		ToolDenyList:         r.cfg.ToolDenyList,
		MCPServers:           r.cfg.MCPServers,
		DisabledMCPServers:   r.cfg.DisabledMCPServers,
		PermissionMode:       r.cfg.PermissionMode,
		OutputFormat:         r.cfg.OutputFormat,
		BetaFlags:            r.cfg.BetaFlags,
		Env:                  r.cfg.Env,
		CoordinatorMode:      r.cfg.CoordinatorMode,
	}
}
