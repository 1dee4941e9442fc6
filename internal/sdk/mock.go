package sdk

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MockFactory is a stand-in Query factory for wiring and local
// experimentation. The upstream agent SDK's own protocol is explicitly out
// of scope (§1 Non-goals) — a production deployment supplies its own
// Factory talking to the real SDK process; this one only echoes queued
// input back as an assistant reply followed by a result, enough to drive
// the Session Runtime end to end. Grounded on the teacher's
// executor.NewMockAgentManagerClient/scheduler.NewMockTaskRepository
// convention of shipping a mock implementation for an out-of-scope
// external collaborator.
type MockFactory struct{}

// NewMockFactory builds a MockFactory.
func NewMockFactory() *MockFactory { return &MockFactory{} }

func (f *MockFactory) NewQuery(ctx context.Context, sessionID string, cfg RuntimeConfig, input InputFunc) (Query, error) {
	q := &mockQuery{
		ch:     make(chan Message, 8),
		cancel: func() {},
	}
	qctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	go q.run(qctx, sessionID, input)
	return q, nil
}

type mockQuery struct {
	ch       chan Message
	cancel   context.CancelFunc
	closeMu  sync.Once
}

func (q *mockQuery) run(ctx context.Context, sessionID string, input InputFunc) {
	defer close(q.ch)

	q.emit(Message{
		UUID:      uuid.New().String(),
		SessionID: sessionID,
		Type:      TypeSystem,
		SystemSubtype: SystemInit,
		Status:    StatusSaved,
	})

	for {
		item, onSent, ok := input(ctx)
		if !ok {
			return
		}
		onSent()

		q.emit(Message{
			UUID:      uuid.New().String(),
			SessionID: sessionID,
			Type:      TypeAssistant,
			Status:    StatusSaved,
			Payload:   Payload{Text: &TextBlock{Text: fmt.Sprintf("echo: %s", item.Content)}},
		})

		select {
		case <-ctx.Done():
			return
		default:
		}

		q.emit(Message{
			UUID:          uuid.New().String(),
			SessionID:     sessionID,
			Type:          TypeResult,
			ResultSubtype: ResultSuccess,
			Status:        StatusSaved,
			Payload:       Payload{Usage: &UsageBlock{InputTokens: len(item.Content), OutputTokens: 8}},
		})
		return
	}
}

func (q *mockQuery) emit(m Message) {
	select {
	case q.ch <- m:
	default:
	}
}

func (q *mockQuery) Messages() <-chan Message { return q.ch }

func (q *mockQuery) Interrupt(ctx context.Context) error {
	q.cancel()
	return nil
}

func (q *mockQuery) SetMaxThinkingTokens(ctx context.Context, tokens *int) error { return nil }

func (q *mockQuery) SetPermissionMode(ctx context.Context, mode string) error { return nil }

func (q *mockQuery) MCPServerStatus(ctx context.Context) ([]MCPServerStatus, error) {
	return nil, nil
}

func (q *mockQuery) Close() {
	q.closeMu.Do(q.cancel)
}
