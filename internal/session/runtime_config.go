package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/flowlane/agentd/internal/sdk"
	v1 "github.com/flowlane/agentd/pkg/api/v1"
)

// SettingsStore is the narrow settings-I/O contract named in §6 as an
// external collaborator; the Runtime only ever needs to record which MCP
// servers are disabled for a session. Settings read/list/source-merge
// operations live outside the Runtime entirely.
type SettingsStore interface {
	SetDisabledMCPServers(ctx context.Context, sessionID string, disabled []string) error
}

// ToolsConfigPatch is the mutable subset of tool configuration accepted by
// UpdateToolsConfig (§4.2.8 "updateToolsConfig").
type ToolsConfigPatch struct {
	ToolAllowList      []string
	ToolDenyList       []string
	DisabledMCPServers []string
}

// SetMaxThinkingTokens is an SDK Runtime Config operation (§4.2.8): if a
// query is actively processing, the running query's budget is reconfigured
// live; the change is always persisted. The runtime enters the processing
// state as soon as the query is constructed, so a query that has not yet
// emitted its first message is also reconfigured live.
// These operations never throw — failures come back as a failed Result.
func (r *Runtime) SetMaxThinkingTokens(ctx context.Context, tokens *int) v1.Result {
	r.mu.Lock()
	q := r.query
	active := r.state == StateProcessing
	r.cfg.MaxThinkingTokens = tokens
	cfg := r.cfg
	r.mu.Unlock()

	if active && q != nil {
		if err := q.SetMaxThinkingTokens(ctx, tokens); err != nil {
			r.log.Warn("failed to set max thinking tokens on running query", zap.Error(err))
		}
	}
	if err := r.store.UpdateSessionConfig(ctx, r.id, cfg); err != nil {
		r.log.Error("failed to persist session config", zap.Error(err))
		return v1.Fail(err.Error())
	}

	r.publish(ctx, r.id, v1.MethodSessionUpdated, map[string]any{"source": "thinking-tokens"})
	return v1.Ok()
}

// SetPermissionMode is an SDK Runtime Config operation (§4.2.8), mirroring
// SetMaxThinkingTokens's live-reconfigure-then-persist shape.
func (r *Runtime) SetPermissionMode(ctx context.Context, mode string) v1.Result {
	r.mu.Lock()
	q := r.query
	active := r.state == StateProcessing
	r.cfg.PermissionMode = mode
	cfg := r.cfg
	r.mu.Unlock()

	if active && q != nil {
		if err := q.SetPermissionMode(ctx, mode); err != nil {
			r.log.Warn("failed to set permission mode on running query", zap.Error(err))
		}
	}
	if err := r.store.UpdateSessionConfig(ctx, r.id, cfg); err != nil {
		r.log.Error("failed to persist session config", zap.Error(err))
		return v1.Fail(err.Error())
	}

	r.publish(ctx, r.id, v1.MethodSessionUpdated, map[string]any{"source": "permission-mode"})
	return v1.Ok()
}

// GetMcpServerStatus delegates to the running query if one is active; an
// idle or starting runtime has nothing to report (§4.2.8
// "getMcpServerStatus").
func (r *Runtime) GetMcpServerStatus(ctx context.Context) []sdk.MCPServerStatus {
	r.mu.Lock()
	q := r.query
	active := r.state == StateProcessing
	r.mu.Unlock()

	if !active || q == nil {
		return nil
	}
	statuses, err := q.MCPServerStatus(ctx)
	if err != nil {
		r.log.Warn("failed to fetch mcp server status", zap.Error(err))
		return nil
	}
	return statuses
}

// UpdateToolsConfig is an SDK Runtime Config operation (§4.2.8): it always
// persists the patch; if the disabled-MCP-server set changed, it writes
// through to the settings store and restarts the query so the new MCP set
// takes effect; if the queue is currently running, it additionally
// enqueues an internal /context refresh so the agent observes the new
// tool surface without waiting on the next user turn.
func (r *Runtime) UpdateToolsConfig(ctx context.Context, patch ToolsConfigPatch) v1.Result {
	r.mu.Lock()
	mcpChanged := !stringSliceEqual(r.cfg.DisabledMCPServers, patch.DisabledMCPServers)
	r.cfg.ToolAllowList = patch.ToolAllowList
	r.cfg.ToolDenyList = patch.ToolDenyList
	r.cfg.DisabledMCPServers = patch.DisabledMCPServers
	cfg := r.cfg
	running := r.queue.IsRunning()
	r.mu.Unlock()

	if err := r.store.UpdateSessionConfig(ctx, r.id, cfg); err != nil {
		r.log.Error("failed to persist session config", zap.Error(err))
		return v1.Fail(err.Error())
	}

	if mcpChanged {
		if r.settings != nil {
			if err := r.settings.SetDisabledMCPServers(ctx, r.id, patch.DisabledMCPServers); err != nil {
				r.log.Warn("failed to persist disabled mcp servers to settings store", zap.Error(err))
			}
		}
		r.restartQuery(ctx)
	}

	if running {
		go r.Enqueue(context.Background(), "/context", nil, true)
	}

	r.publish(ctx, r.id, v1.MethodSessionUpdated, map[string]any{"source": "tools-config"})
	return v1.Ok()
}

// restartQuery interrupts any in-flight attempt and immediately starts a
// fresh one so a materialization-time config change (such as the MCP
// server set) takes effect without waiting on the next enqueue.
func (r *Runtime) restartQuery(ctx context.Context) {
	_ = r.Interrupt(ctx)

	r.mu.Lock()
	if r.state == StateIdle {
		r.startLocked()
	}
	r.mu.Unlock()
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
