package session

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrorKind classifies an SDK error surfaced as message content (§4.2.6).
type ErrorKind string

const (
	KindContextOverflow ErrorKind = "context-overflow"
	KindRateLimit       ErrorKind = "rate-limit"
	KindConnection      ErrorKind = "connection"
	KindGeneric4xx      ErrorKind = "generic-4xx"
	KindGeneric5xx      ErrorKind = "generic-5xx"
)

// Classify inspects text for one of the content markers in §4.2.6 and
// returns the matching kind. ok is false if no marker is present — the
// caller (the Message Handler) then ignores the message for breaker intake.
func Classify(text string) (kind ErrorKind, contextLimit int, ok bool) {
	if idx := strings.Index(text, "prompt is too long:"); idx >= 0 {
		limit := parseContextLimit(text[idx:])
		return KindContextOverflow, limit, true
	}
	if strings.Contains(text, "Error: 429") {
		return KindRateLimit, 0, true
	}
	if strings.Contains(text, "Connection error.") {
		return KindConnection, 0, true
	}
	if strings.Contains(text, "Error: 400") {
		return KindGeneric4xx, 0, true
	}
	if strings.Contains(text, "Error: 5") {
		return KindGeneric5xx, 0, true
	}
	return "", 0, false
}

// parseContextLimit extracts M from a "N tokens > M maximum" substring.
func parseContextLimit(s string) int {
	const marker = "maximum"
	end := strings.Index(s, marker)
	if end < 0 {
		return 0
	}
	head := s[:end]
	gt := strings.LastIndex(head, ">")
	if gt < 0 {
		return 0
	}
	field := strings.TrimSpace(head[gt+1:])
	n, _ := strconv.Atoi(field)
	return n
}

// agentWindow is the per-identity sliding-window state (§3.7).
type agentWindow struct {
	consecutiveErrors int
	lastKind          ErrorKind
	rapidFireTimes    []time.Time
}

// BreakerState reflects the observable state of a Breaker (§4.2.6).
type BreakerState struct {
	Tripped   bool   `json:"tripped"`
	TripCount int    `json:"tripCount"`
	Message   string `json:"message,omitempty"`
}

// BreakerConfig tunes trip thresholds (§9 "Per-agent circuit breaker").
type BreakerConfig struct {
	ErrorThreshold      int
	RapidFireThreshold  int
	RapidFireWindow     time.Duration
}

// DefaultBreakerConfig matches the specified defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{ErrorThreshold: 3, RapidFireThreshold: 5, RapidFireWindow: 3 * time.Second}
}

// Breaker detects failure storms and halts repeated failing calls to the
// agent SDK (§4.2.6, §3.7). Counting is per-agent identity.
type Breaker struct {
	mu        sync.Mutex
	cfg       BreakerConfig
	windows   map[string]*agentWindow
	tripped   bool
	tripCount int
	message   string

	onTrip func(BreakerState)
}

// NewBreaker builds an untripped breaker. onTrip, if non-nil, is invoked
// asynchronously (its own goroutine) when a trip occurs (§4.2.6 step 3).
func NewBreaker(cfg BreakerConfig, onTrip func(BreakerState)) *Breaker {
	return &Breaker{
		cfg:     cfg,
		windows: make(map[string]*agentWindow),
		onTrip:  onTrip,
	}
}

// Observe feeds one user message's text content for agentIdentity. Returns
// whether the breaker is now tripped. Non-matching text is ignored (§4.2.6).
func (b *Breaker) Observe(agentIdentity, text string, now time.Time) bool {
	kind, limit, ok := Classify(text)
	if !ok {
		return b.IsTripped()
	}

	b.mu.Lock()
	if b.tripped {
		b.mu.Unlock()
		return true
	}

	w, exists := b.windows[agentIdentity]
	if !exists {
		w = &agentWindow{}
		b.windows[agentIdentity] = w
	}

	if w.lastKind == kind {
		w.consecutiveErrors++
	} else {
		w.consecutiveErrors = 1
		w.lastKind = kind
	}

	w.rapidFireTimes = append(w.rapidFireTimes, now)
	cutoff := now.Add(-b.cfg.RapidFireWindow)
	pruned := w.rapidFireTimes[:0]
	for _, ts := range w.rapidFireTimes {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}
	w.rapidFireTimes = pruned

	trip := w.consecutiveErrors >= b.cfg.ErrorThreshold || len(w.rapidFireTimes) >= b.cfg.RapidFireThreshold
	if !trip {
		b.mu.Unlock()
		return false
	}

	b.tripped = true
	b.tripCount++
	b.message = tripMessage(kind, limit)
	state := BreakerState{Tripped: true, TripCount: b.tripCount, Message: b.message}
	cb := b.onTrip
	b.mu.Unlock()

	if cb != nil {
		go cb(state)
	}
	return true
}

func tripMessage(kind ErrorKind, limit int) string {
	switch kind {
	case KindContextOverflow:
		return fmt.Sprintf("Context limit exceeded (%d tokens). The conversation is too long for the model's context window.", limit)
	case KindRateLimit:
		return "Rate limit exceeded. The agent SDK is being throttled by the upstream provider."
	case KindConnection:
		return "Connection error detected repeatedly. Network connectivity issues are preventing the agent from completing requests."
	case KindGeneric4xx:
		return "Repeated client errors from the agent SDK halted this session."
	case KindGeneric5xx:
		return "Repeated server errors from the agent SDK halted this session."
	default:
		return "Repeated errors halted this session."
	}
}

// Reset clears per-agent counts but preserves the cumulative trip count
// (§4.2.6). MarkSuccess is its documented equivalent.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.windows = make(map[string]*agentWindow)
	b.tripped = false
	b.message = ""
}

// MarkSuccess is equivalent to Reset (§4.2.6).
func (b *Breaker) MarkSuccess() { b.Reset() }

func (b *Breaker) IsTripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

func (b *Breaker) GetState() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerState{Tripped: b.tripped, TripCount: b.tripCount, Message: b.message}
}
