package session

import (
	"sync"
	"time"

	"github.com/flowlane/agentd/internal/common/constants"
	"github.com/flowlane/agentd/internal/common/stringutil"
	"github.com/flowlane/agentd/internal/store"
)

// CheckpointTracker maintains an ordered map of checkpoints in insertion
// order (§4.2.5, §3.3). Turn numbers are assigned by an incrementing
// counter and are never renumbered by rewind.
type CheckpointTracker struct {
	mu        sync.Mutex
	sessionID string
	order     []string // checkpoint ids, insertion order
	byID      map[string]*store.Checkpoint
	nextTurn  int

	onCreated func(*store.Checkpoint)
}

// NewCheckpointTracker builds an empty tracker. onCreated, if non-nil, is
// invoked synchronously after every checkpoint creation (the caller
// publishes checkpoint.created from it).
func NewCheckpointTracker(sessionID string, onCreated func(*store.Checkpoint)) *CheckpointTracker {
	return &CheckpointTracker{
		sessionID: sessionID,
		byID:      make(map[string]*store.Checkpoint),
		onCreated: onCreated,
	}
}

// Create records a checkpoint for a non-replay user message. id is the
// message uuid; text is the first text block's content, truncated to
// constants.CheckpointPreviewLen for the preview.
func (t *CheckpointTracker) Create(id, text string, at time.Time) *store.Checkpoint {
	t.mu.Lock()
	t.nextTurn++
	cp := &store.Checkpoint{
		ID:        id,
		SessionID: t.sessionID,
		Preview:   stringutil.TruncateString(text, constants.CheckpointPreviewLen),
		Turn:      t.nextTurn,
		CreatedAt: at,
	}
	t.order = append(t.order, id)
	t.byID[id] = cp
	t.mu.Unlock()

	if t.onCreated != nil {
		t.onCreated(cp)
	}
	return cp
}

// GetCheckpoints returns checkpoints newest-first (descending turn number).
func (t *CheckpointTracker) GetCheckpoints() []*store.Checkpoint {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make([]*store.Checkpoint, 0, len(t.order))
	for i := len(t.order) - 1; i >= 0; i-- {
		result = append(result, t.byID[t.order[i]])
	}
	return result
}

// RewindTo removes every checkpoint with a turn number strictly greater
// than the target's and returns the count removed. Remaining checkpoints
// keep their original turn numbers; new checkpoints continue from
// max(remaining.turn)+1. An id not present returns 0 and leaves state
// unchanged (§4.2.5, §8 idempotence).
func (t *CheckpointTracker) RewindTo(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	target, ok := t.byID[id]
	if !ok {
		return 0
	}

	removed := 0
	kept := t.order[:0:0]
	maxRemaining := 0
	for _, cid := range t.order {
		cp := t.byID[cid]
		if cp.Turn > target.Turn {
			delete(t.byID, cid)
			removed++
			continue
		}
		kept = append(kept, cid)
		if cp.Turn > maxRemaining {
			maxRemaining = cp.Turn
		}
	}
	t.order = kept
	t.nextTurn = maxRemaining
	return removed
}

func (t *CheckpointTracker) GetCheckpoint(id string) (*store.Checkpoint, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp, ok := t.byID[id]
	return cp, ok
}

func (t *CheckpointTracker) GetLatestCheckpoint() (*store.Checkpoint, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.order) == 0 {
		return nil, false
	}
	return t.byID[t.order[len(t.order)-1]], true
}

func (t *CheckpointTracker) GetFirstCheckpoint() (*store.Checkpoint, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.order) == 0 {
		return nil, false
	}
	return t.byID[t.order[0]], true
}

func (t *CheckpointTracker) Has(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.byID[id]
	return ok
}

func (t *CheckpointTracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

func (t *CheckpointTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.order = nil
	t.byID = make(map[string]*store.Checkpoint)
	t.nextTurn = 0
}
