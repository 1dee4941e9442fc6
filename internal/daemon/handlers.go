// Package daemon wires the Session Runtime, Message Hub, Session Manager,
// and Recurring Job Scheduler into the request/response handlers the Hub
// dispatches (§6 "Method namespaces"). Namespaces named in the spec but
// backed by an external collaborator the core does not implement — goal
// tracking, settings I/O, the file manager — are left unregistered; the
// Hub already answers an unregistered method with a clean "not found"
// error (internal/hub.Hub.HandleRequest), so no stub is needed here.
package daemon

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowlane/agentd/internal/apierr"
	"github.com/flowlane/agentd/internal/common/logger"
	"github.com/flowlane/agentd/internal/hub"
	"github.com/flowlane/agentd/internal/scheduler"
	"github.com/flowlane/agentd/internal/session"
	"github.com/flowlane/agentd/internal/sessionmgr"
	"github.com/flowlane/agentd/internal/store"
	v1 "github.com/flowlane/agentd/pkg/api/v1"
)

// Handlers groups the core's state and registers every method it answers
// onto a Hub.
type Handlers struct {
	mgr   *sessionmgr.Manager
	store store.Store
	sched *scheduler.Scheduler
	log   *logger.Logger
}

// NewHandlers builds a Handlers bound to the given collaborators.
func NewHandlers(mgr *sessionmgr.Manager, st store.Store, sched *scheduler.Scheduler, log *logger.Logger) *Handlers {
	if log == nil {
		log = logger.Default()
	}
	return &Handlers{mgr: mgr, store: st, sched: sched, log: log.WithFields(zap.String("component", "daemon"))}
}

// RegisterAll attaches every handler this package implements onto h.
func (d *Handlers) RegisterAll(h *hub.Hub) {
	h.RegisterHandler(v1.MethodSessionCreate, d.sessionCreate)
	h.RegisterHandler(v1.MethodSessionGet, d.sessionGet)
	h.RegisterHandler(v1.MethodSessionDelete, d.sessionDelete)
	h.RegisterHandler(v1.MethodSessionExport, d.sessionExport)
	h.RegisterHandler(v1.MethodSessionResetQuery, d.sessionResetQuery)

	h.RegisterHandler(v1.MethodMessageSDKMessages, d.messageSDKMessages)
	h.RegisterHandler(v1.MethodMessageCount, d.messageCount)

	h.RegisterHandler(v1.MethodConfigTools, d.configTools)
	h.RegisterHandler(v1.MethodConfigPermissions, d.configPermissions)
	h.RegisterHandler(v1.MethodConfigMCP, d.configMCP)
	h.RegisterHandler(v1.MethodConfigGetAll, d.configGetAll)
	h.RegisterHandler(v1.MethodConfigUpdateBulk, d.configUpdateBulk)
}

type sessionCreateRequest struct {
	Title     string             `json:"title"`
	Workspace string             `json:"workspace"`
	Config    store.SessionConfig `json:"config"`
}

func (d *Handlers) sessionCreate(ctx context.Context, _ string, payload json.RawMessage) (any, error) {
	var req sessionCreateRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, apierr.ErrValidation
		}
	}

	id := uuid.New().String()
	rt, err := d.mgr.CreateSession(ctx, id, req.Title, req.Workspace, req.Config)
	if err != nil {
		return nil, err
	}
	sess, err := d.store.GetSession(ctx, rt.ID())
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (d *Handlers) sessionGet(ctx context.Context, sessionID string, _ json.RawMessage) (any, error) {
	if sessionID == "" {
		return nil, apierr.ErrValidation
	}
	rt, err := d.mgr.GetSessionAsync(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess, err := d.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sessionView{
		Session:     sess,
		State:       rt.State(),
		Phase:       rt.Phase(),
		Breaker:     rt.BreakerState(),
		QueueSize:   rt.QueueSize(),
		Checkpoints: rt.Checkpoints(),
	}, nil
}

// sessionView is the response shape for session.get: the persisted row
// enriched with the live Runtime's in-memory state (§4.2.2, §4.2.5,
// §4.2.6), none of which is itself persisted.
type sessionView struct {
	*store.Session
	State       session.State        `json:"state"`
	Phase       session.Phase        `json:"phase"`
	Breaker     session.BreakerState `json:"breaker"`
	QueueSize   int                  `json:"queueSize"`
	Checkpoints []*store.Checkpoint  `json:"checkpoints"`
}

func (d *Handlers) sessionDelete(ctx context.Context, sessionID string, _ json.RawMessage) (any, error) {
	if sessionID == "" {
		return nil, apierr.ErrValidation
	}
	if err := d.mgr.DeleteSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return v1.Ok(), nil
}

func (d *Handlers) sessionExport(ctx context.Context, sessionID string, _ json.RawMessage) (any, error) {
	if sessionID == "" {
		return nil, apierr.ErrValidation
	}
	msgs, err := d.store.ListSDKMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (d *Handlers) sessionResetQuery(ctx context.Context, sessionID string, _ json.RawMessage) (any, error) {
	rt, ok := d.mgr.Peek(sessionID)
	if !ok {
		return v1.Ok(), nil
	}
	if err := rt.Interrupt(ctx); err != nil {
		return v1.Fail(err.Error()), nil
	}
	return v1.Ok(), nil
}

func (d *Handlers) messageSDKMessages(ctx context.Context, sessionID string, _ json.RawMessage) (any, error) {
	if sessionID == "" {
		return nil, apierr.ErrValidation
	}
	return d.store.ListSDKMessages(ctx, sessionID)
}

func (d *Handlers) messageCount(ctx context.Context, sessionID string, _ json.RawMessage) (any, error) {
	if sessionID == "" {
		return nil, apierr.ErrValidation
	}
	msgs, err := d.store.ListSDKMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return map[string]int{"count": len(msgs)}, nil
}

func (d *Handlers) configTools(ctx context.Context, sessionID string, payload json.RawMessage) (any, error) {
	rt, err := d.mgr.GetSessionAsync(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var patch session.ToolsConfigPatch
	if err := json.Unmarshal(payload, &patch); err != nil {
		return nil, apierr.ErrValidation
	}
	return rt.UpdateToolsConfig(ctx, patch), nil
}

func (d *Handlers) configPermissions(ctx context.Context, sessionID string, payload json.RawMessage) (any, error) {
	rt, err := d.mgr.GetSessionAsync(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var body struct {
		Mode string `json:"mode"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, apierr.ErrValidation
	}
	return rt.SetPermissionMode(ctx, body.Mode), nil
}

// configMCP is the getMcpServerStatus SDK Runtime Config operation (§4.2.8),
// wrapped through hub.BuildMCPServerStatus so the response carries a typed
// tool catalogue alongside connection status; no tool catalogue source is
// in scope, so every entry's Tools list is empty.
func (d *Handlers) configMCP(ctx context.Context, sessionID string, _ json.RawMessage) (any, error) {
	rt, err := d.mgr.GetSessionAsync(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return hub.BuildMCPServerStatus(rt.GetMcpServerStatus(ctx), nil), nil
}

func (d *Handlers) configGetAll(ctx context.Context, sessionID string, _ json.RawMessage) (any, error) {
	sess, err := d.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Config, nil
}

func (d *Handlers) configUpdateBulk(ctx context.Context, sessionID string, payload json.RawMessage) (any, error) {
	var cfg store.SessionConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return nil, apierr.ErrValidation
	}
	if err := d.store.UpdateSessionConfig(ctx, sessionID, cfg); err != nil {
		return nil, err
	}
	return v1.Ok(), nil
}
