// Package hub implements the Message Hub (§4.1): a transport-agnostic
// request/response and publish/subscribe router connecting client
// connections to per-session event streams, with bounded memory,
// deduplication, and delivery accounting.
//
// It is grounded on the teacher's internal/orchestrator/streaming.Hub
// (register/unregister/broadcast channel loop, one map keyed by task id)
// generalized to the two-level session -> method -> set<clientID>
// subscription index the spec requires, and on
// internal/orchestrator/messagequeue for the bounded per-key state idiom
// reused by the dedup cache.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flowlane/agentd/internal/apierr"
	"github.com/flowlane/agentd/internal/cache"
	"github.com/flowlane/agentd/internal/common/logger"
	"github.com/flowlane/agentd/internal/events/bus"
	v1 "github.com/flowlane/agentd/pkg/api/v1"
)

// HandlerFunc answers a REQUEST frame addressed to method. Implementations
// never panic across the Hub boundary — HandleRequest recovers and
// converts a panic into apierr.ErrInternal, matching §7's "handler
// exception never propagates" rule.
type HandlerFunc func(ctx context.Context, sessionID string, payload json.RawMessage) (any, error)

// DeliveryReport is returned by Publish for observability (§4.1 routing
// algorithm step 4).
type DeliveryReport struct {
	Sent             int
	Failed           int
	TotalSubscribers int
	Session          string
	Method           string
}

// Config tunes the Hub's dedup cache and auto-subscribe policy.
type Config struct {
	DedupCacheSize       int
	DedupCacheTTL        time.Duration
	DedupSweepInterval   time.Duration
	GlobalAutoSubscribe  []string
	SessionAutoSubscribe []string
}

// DefaultConfig matches §4.1's stated defaults (500-entry, 60s TTL dedup
// cache, 30s sweep) and the wire-level auto-subscribe lists in pkg/api/v1.
func DefaultConfig() Config {
	return Config{
		DedupCacheSize:       500,
		DedupCacheTTL:        60 * time.Second,
		DedupSweepInterval:   30 * time.Second,
		GlobalAutoSubscribe:  v1.DefaultGlobalAutoSubscribe,
		SessionAutoSubscribe: v1.DefaultSessionAutoSubscribe,
	}
}

// Hub is the central router (§4.1). One Hub instance serves every
// connection and session in the process.
type Hub struct {
	mu          sync.RWMutex
	index       *subscriptionIndex
	connections map[string]Connection

	handlersMu sync.RWMutex
	handlers   map[string]HandlerFunc

	dedup *cache.LRU
	cfg   Config
	log   *logger.Logger

	// eventBus, if non-nil, additionally republishes every event so a
	// second daemon process sharing the same bus deployment observes the
	// same stream (§4.1 "additive to, never a replacement for, the
	// in-process fan-out"). A nil bus makes this entirely a no-op.
	eventBus bus.EventBus
}

// New builds a Hub. eventBus may be nil.
func New(cfg Config, eventBus bus.EventBus, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Default()
	}
	h := &Hub{
		index:       newSubscriptionIndex(),
		connections: make(map[string]Connection),
		handlers:    make(map[string]HandlerFunc),
		dedup:       cache.New(cfg.DedupCacheSize, cfg.DedupCacheTTL, cfg.DedupSweepInterval, log),
		cfg:         cfg,
		log:         log.WithFields(zap.String("component", "hub")),
		eventBus:    eventBus,
	}
	return h
}

// RegisterHandler attaches the handler invoked by HandleRequest for method.
func (h *Hub) RegisterHandler(method string, fn HandlerFunc) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.handlers[method] = fn
}

// Join registers conn and applies the auto-subscribe policy for scope:
// v1.GlobalSession subscribes the configured global method list, any other
// scope subscribes the configured per-session list scoped to that session
// id (§4.1 "Auto-subscribe").
func (h *Hub) Join(conn Connection, scope string) {
	h.mu.Lock()
	h.connections[conn.ID()] = conn
	methods := h.cfg.SessionAutoSubscribe
	if scope == v1.GlobalSession {
		methods = h.cfg.GlobalAutoSubscribe
	}
	for _, m := range methods {
		h.index.subscribe(conn.ID(), scope, m)
	}
	h.mu.Unlock()

	h.log.Debug("connection joined", zap.String("client_id", conn.ID()), zap.String("scope", scope))
}

// Leave removes conn and every subscription it owns (§4.1 "O(1) cleanup").
func (h *Hub) Leave(clientID string) {
	h.mu.Lock()
	delete(h.connections, clientID)
	h.index.unsubscribeAll(clientID)
	h.mu.Unlock()

	h.log.Debug("connection left", zap.String("client_id", clientID))
}

// Subscribe registers clientID for (session, method). Idempotent.
func (h *Hub) Subscribe(clientID, session, method string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.index.subscribe(clientID, session, method)
}

// Unsubscribe removes clientID from (session, method).
func (h *Hub) Unsubscribe(clientID, session, method string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.index.unsubscribe(clientID, session, method)
}

// SubscriberCount reports how many clients are subscribed to (session,
// method); used by tests asserting §8 property 5.
func (h *Hub) SubscriberCount(session, method string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.index.subscribers(session, method))
}

// Publish routes an event to every subscriber of (session, method) (§4.1
// routing algorithm). The payload is serialized once and reused across
// every subscriber's frame.
func (h *Hub) Publish(ctx context.Context, session, method string, payload any) DeliveryReport {
	h.mu.RLock()
	clientIDs := h.index.subscribers(session, method)
	report := DeliveryReport{Session: session, Method: method, TotalSubscribers: len(clientIDs)}
	if len(clientIDs) == 0 {
		h.mu.RUnlock()
		h.republish(ctx, session, method, payload)
		return report
	}

	frame, err := v1.NewEvent(session, method, payload)
	if err != nil {
		h.mu.RUnlock()
		h.log.Error("failed to encode event frame", zap.String("method", method), zap.Error(err))
		return report
	}
	data, err := json.Marshal(frame)
	if err != nil {
		h.mu.RUnlock()
		h.log.Error("failed to marshal event frame", zap.String("method", method), zap.Error(err))
		return report
	}

	conns := make([]Connection, 0, len(clientIDs))
	for _, id := range clientIDs {
		if c, ok := h.connections[id]; ok {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if !c.IsOpen() {
			report.Failed++
			continue
		}
		if c.Send(data) {
			report.Sent++
		} else {
			report.Failed++
		}
	}

	h.republish(ctx, session, method, payload)
	return report
}

// republish forwards the event onto the cross-process event bus, if one is
// configured. Failures are logged, never propagated — this path is purely
// additive (§4.1's NATS republish note).
func (h *Hub) republish(ctx context.Context, session, method string, payload any) {
	if h.eventBus == nil {
		return
	}
	data := map[string]any{"sessionId": session, "payload": payload}
	evt := bus.NewEvent(method, "hub", data)
	if err := h.eventBus.Publish(ctx, subjectFor(session, method), evt); err != nil {
		h.log.Warn("event bus republish failed", zap.String("method", method), zap.Error(err))
	}
}

func subjectFor(session, method string) string {
	return "hub." + session + "." + method
}

// HandleRequest dispatches a REQUEST frame to its registered handler,
// applying dedup for idempotent reads when dedupe is true. It never lets a
// handler panic escape (§7 "handler exception never propagates").
func (h *Hub) HandleRequest(ctx context.Context, req *v1.Frame, dedupe bool) *v1.Frame {
	h.handlersMu.RLock()
	fn, ok := h.handlers[req.Method]
	h.handlersMu.RUnlock()
	if !ok {
		return v1.NewErrorFrame(req.ID, req.SessionID, req.Method, "not_found", "no handler registered for method "+req.Method)
	}

	if dedupe {
		key := dedupKey(req.Method, req.SessionID, req.Payload)
		if cached, ok := h.dedup.Get(key); ok {
			if resp, ok := cached.(*v1.Frame); ok {
				cloned := *resp
				cloned.ID = req.ID
				return &cloned
			}
		}
		resp := h.invoke(ctx, fn, req)
		h.dedup.Set(key, resp)
		return resp
	}

	return h.invoke(ctx, fn, req)
}

func (h *Hub) invoke(ctx context.Context, fn HandlerFunc, req *v1.Frame) (resp *v1.Frame) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("handler panicked", zap.String("method", req.Method), zap.Any("panic", r))
			resp = v1.NewErrorFrame(req.ID, req.SessionID, req.Method, "internal", apierr.ErrInternal.Error())
		}
	}()

	result, err := fn(ctx, req.SessionID, req.Payload)
	if err != nil {
		return v1.NewErrorFrame(req.ID, req.SessionID, req.Method, apierr.Kind(err), err.Error())
	}
	frame, encErr := v1.NewResponse(req.ID, req.SessionID, req.Method, result)
	if encErr != nil {
		return v1.NewErrorFrame(req.ID, req.SessionID, req.Method, "internal", encErr.Error())
	}
	return frame
}
