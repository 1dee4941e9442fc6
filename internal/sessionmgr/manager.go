// Package sessionmgr implements the Session Manager (§4.3): the
// process-wide registry of live Runtimes. Exactly one Runtime exists per
// session for the lifetime of the process; eviction is always explicit,
// never an implicit LRU.
//
// It is grounded on the teacher's internal/orchestrator.Orchestrator
// (a single map of live session state guarded by one mutex, constructed
// lazily on first reference) generalized to the load-or-construct-and-
// recover pattern §4.3 requires.
package sessionmgr

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flowlane/agentd/internal/apierr"
	"github.com/flowlane/agentd/internal/common/logger"
	"github.com/flowlane/agentd/internal/sdk"
	"github.com/flowlane/agentd/internal/session"
	"github.com/flowlane/agentd/internal/store"
)

// Manager owns the process-wide map of live session Runtimes (§4.3).
type Manager struct {
	store    store.Store
	factory  sdk.Factory
	publish  session.PublishFunc
	settings session.SettingsStore
	log      *logger.Logger

	mu       sync.RWMutex
	runtimes map[string]*session.Runtime
}

// New builds an empty Manager. publish and settings are forwarded to every
// Runtime it constructs; either may be nil.
func New(st store.Store, factory sdk.Factory, publish session.PublishFunc, settings session.SettingsStore, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Default()
	}
	return &Manager{
		store:    st,
		factory:  factory,
		publish:  publish,
		settings: settings,
		log:      log.WithFields(zap.String("component", "sessionmgr")),
		runtimes: make(map[string]*session.Runtime),
	}
}

// GetSessionAsync returns the live Runtime for id, constructing it (and
// running Message Recovery, §4.2.7) on first reference. Concurrent callers
// requesting the same id race to construct, but only the first one to
// acquire the write lock wins — the others observe its result (§4.3
// "load-or-construct").
func (m *Manager) GetSessionAsync(ctx context.Context, id string) (*session.Runtime, error) {
	m.mu.RLock()
	rt, ok := m.runtimes[id]
	m.mu.RUnlock()
	if ok {
		return rt, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if rt, ok := m.runtimes[id]; ok {
		return rt, nil
	}

	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	session.Recover(ctx, m.store, id, m.log)

	rt = session.NewRuntime(sess, m.store, m.factory, m.publish, m.settings, m.log)
	m.runtimes[id] = rt
	m.log.Info("session attached", zap.String("session_id", id))
	return rt, nil
}

// CreateSession persists a new session row and registers its Runtime
// immediately — a freshly created session never needs recovery.
func (m *Manager) CreateSession(ctx context.Context, id, title, workspace string, cfg store.SessionConfig) (*session.Runtime, error) {
	now := time.Now().UTC()
	sess := &store.Session{
		ID:         id,
		Title:      title,
		Workspace:  workspace,
		Status:     store.SessionActive,
		CreatedAt:  now,
		LastActive: now,
		Config:     cfg,
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	rt := session.NewRuntime(sess, m.store, m.factory, m.publish, m.settings, m.log)

	m.mu.Lock()
	m.runtimes[id] = rt
	m.mu.Unlock()

	return rt, nil
}

// Peek returns the already-live Runtime for id without constructing one,
// useful for read paths that should not trigger recovery as a side effect.
func (m *Manager) Peek(id string) (*session.Runtime, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rt, ok := m.runtimes[id]
	return rt, ok
}

// Evict removes id's Runtime from the registry, interrupting any in-flight
// query first. It does not touch the persisted session row — callers that
// want archival or deletion do that separately via the Store.
func (m *Manager) Evict(ctx context.Context, id string) error {
	m.mu.Lock()
	rt, ok := m.runtimes[id]
	delete(m.runtimes, id)
	m.mu.Unlock()

	if !ok {
		return apierr.ErrNotFound
	}
	return rt.Interrupt(ctx)
}

// DeleteSession evicts id's Runtime (if live) and deletes its persisted
// row. Eviction failures are logged, not propagated — the delete itself
// always proceeds.
func (m *Manager) DeleteSession(ctx context.Context, id string) error {
	if err := m.Evict(ctx, id); err != nil && err != apierr.ErrNotFound {
		m.log.Warn("failed to interrupt session before delete", zap.String("session_id", id), zap.Error(err))
	}
	return m.store.DeleteSession(ctx, id)
}

// Count reports the number of currently live (attached) sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runtimes)
}
