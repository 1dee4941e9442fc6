package session

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// MessageQueueTimeoutError is returned to an enqueue future when its item
// was never consumed before the arm timeout (§4.2.1).
type MessageQueueTimeoutError struct {
	MessageID string
}

func (e *MessageQueueTimeoutError) Error() string {
	return fmt.Sprintf("message %s: queue consumption timed out", e.MessageID)
}

// ContentBlock is a minimal structured-content marker the queue inspects
// only to extract a tool_result's tool_use_id as ParentToolUseID.
type ContentBlock struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id,omitempty"`
}

// queueItem is one pending enqueue, tracked until a consumer calls OnSent,
// it is rejected by clear(), or its timeout fires.
type queueItem struct {
	id              string
	content         string
	blocks          []ContentBlock
	internal        bool
	parentToolUseID string

	done     chan struct{}
	err      error
	once     sync.Once
	timer    *time.Timer
	resolved atomic.Bool
}

// resolve settles the item's future exactly once.
func (qi *queueItem) resolve(err error) {
	qi.once.Do(func() {
		qi.err = err
		qi.resolved.Store(true)
		if qi.timer != nil {
			qi.timer.Stop()
		}
		close(qi.done)
	})
}

// Wait blocks until the item's future settles or ctx is cancelled.
func (qi *queueItem) Wait(ctx context.Context) error {
	select {
	case <-qi.done:
		return qi.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueuedMessage is one item handed to the agent pump by messageGenerator.
// The consumer MUST call OnSent exactly once.
type QueuedMessage struct {
	ID              string
	Content         string
	Blocks          []ContentBlock
	Internal        bool
	ParentToolUseID string
	OnSent          func()
}

// MessageQueue is the FIFO, single-producer-multiple-consumer queue feeding
// the agent SDK (§4.2.1). Its length is not capped: Enqueue never rejects an
// item for lack of room.
type MessageQueue struct {
	mu         sync.Mutex
	items      *list.List // of *queueItem
	running    bool
	generation atomic.Uint64
	notify     chan struct{}

	consumeTimeout time.Duration
}

// NewMessageQueue builds an idle queue. consumeTimeout bounds how long an
// enqueued item waits to be consumed before its future rejects.
func NewMessageQueue(consumeTimeout time.Duration) *MessageQueue {
	return &MessageQueue{
		items:          list.New(),
		notify:         make(chan struct{}, 1),
		consumeTimeout: consumeTimeout,
	}
}

func (q *MessageQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Enqueue accepts text or structured content, assigns a uuid, arms a
// consumption timeout, and returns a future settled by the consumer's
// OnSent call or by clear()/timeout.
func (q *MessageQueue) Enqueue(content string, blocks []ContentBlock, internal bool) (string, *queueItem) {
	id := uuid.New().String()
	parentToolUseID := extractToolResultParent(blocks)

	qi := &queueItem{
		id:              id,
		content:         content,
		blocks:          blocks,
		internal:        internal,
		parentToolUseID: parentToolUseID,
		done:            make(chan struct{}),
	}
	qi.timer = time.AfterFunc(q.consumeTimeout, func() {
		qi.resolve(&MessageQueueTimeoutError{MessageID: id})
	})

	q.mu.Lock()
	q.items.PushBack(qi)
	q.mu.Unlock()
	q.wake()

	return id, qi
}

func extractToolResultParent(blocks []ContentBlock) string {
	for _, b := range blocks {
		if b.Type == "tool_result" && b.ToolUseID != "" {
			return b.ToolUseID
		}
	}
	return ""
}

// Next blocks until an item is available, the queue is stopped, or ctx is
// cancelled, or generation no longer matches the queue's current
// generation (the caller's generation is stale — terminate, per §4.2.1).
// ok is false whenever the generator should stop.
func (q *MessageQueue) Next(ctx context.Context, generation uint64) (*QueuedMessage, bool) {
	for {
		if q.generation.Load() != generation {
			return nil, false
		}

		q.mu.Lock()
		if !q.running {
			q.mu.Unlock()
			return nil, false
		}
		front := q.items.Front()
		if front != nil {
			qi := q.items.Remove(front).(*queueItem)
			q.mu.Unlock()
			return &QueuedMessage{
				ID:              qi.id,
				Content:         qi.content,
				Blocks:          qi.blocks,
				Internal:        qi.internal,
				ParentToolUseID: qi.parentToolUseID,
				OnSent:          func() { qi.resolve(nil) },
			}, true
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
			continue
		case <-ctx.Done():
			return nil, false
		}
	}
}

// Clear rejects all pending futures with "Interrupted by user" and clears
// their timeouts. Running state is preserved.
func (q *MessageQueue) Clear() {
	q.mu.Lock()
	pending := make([]*queueItem, 0, q.items.Len())
	for el := q.items.Front(); el != nil; el = el.Next() {
		pending = append(pending, el.Value.(*queueItem))
	}
	q.items.Init()
	q.mu.Unlock()

	for _, qi := range pending {
		qi.resolve(errInterruptedByUser)
	}
}

// Start arms the queue for consumption, incrementing the generation counter
// so any generator born under a prior generation terminates.
func (q *MessageQueue) Start() uint64 {
	q.mu.Lock()
	q.running = true
	q.mu.Unlock()
	gen := q.generation.Add(1)
	q.wake()
	return gen
}

// Stop disarms the queue; pending items remain queued (callers that also
// want them rejected should call Clear).
func (q *MessageQueue) Stop() {
	q.mu.Lock()
	q.running = false
	q.mu.Unlock()
	q.wake()
}

func (q *MessageQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

func (q *MessageQueue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

func (q *MessageQueue) Generation() uint64 {
	return q.generation.Load()
}
