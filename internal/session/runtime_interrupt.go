package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/flowlane/agentd/internal/common/constants"
	v1 "github.com/flowlane/agentd/pkg/api/v1"
)

// Interrupt implements the Interrupt Protocol (§4.2.3): concurrent callers
// coalesce onto a single in-flight interrupt via singleflight, so a burst
// of interrupt requests against the same running query produces exactly
// one cancellation sequence.
func (r *Runtime) Interrupt(ctx context.Context) error {
	_, err, _ := r.interrupts.Do(r.id, func() (interface{}, error) {
		return nil, r.doInterrupt(ctx)
	})
	return err
}

// doInterrupt runs the actual cancellation sequence (§4.2.3 steps 1-10): a
// no-op when already idle/interrupted, else clear the queue, cancel the
// query's context, ask the SDK to interrupt, await the pump settling
// (bounded by constants.InterruptTimeout), stop the queue, and publish
// session.interrupted.
func (r *Runtime) doInterrupt(ctx context.Context) error {
	r.mu.Lock()
	if r.state == StateIdle || r.state == StateInterrupted {
		r.mu.Unlock()
		return nil
	}
	r.state = StateInterrupted
	q := r.query
	cancel := r.cancel
	done := r.queryDone
	r.mu.Unlock()

	r.queue.Clear()

	if cancel != nil {
		cancel()
	}
	if q != nil {
		ictx, icancel := context.WithTimeout(ctx, constants.InterruptTimeout)
		if err := q.Interrupt(ictx); err != nil {
			r.log.Warn("sdk interrupt call failed", zap.Error(err))
		}
		icancel()
	}

	if done != nil {
		select {
		case <-done:
		case <-time.After(constants.InterruptTimeout):
			r.log.Warn("interrupt: query pump did not settle before timeout")
		}
	}

	r.queue.Stop()
	r.publish(ctx, r.id, v1.MethodSessionInterrupted, nil)

	r.mu.Lock()
	r.state = StateIdle
	r.phase = PhaseIdle
	r.mu.Unlock()

	return nil
}
