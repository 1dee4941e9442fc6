// Package constants provides application-wide constants and timeouts.
package constants

import "time"

// Timeouts for various operations.
const (
	// QueueConsumeTimeout bounds how long an enqueued message may wait to
	// be consumed before its enqueue future fails with a timeout.
	QueueConsumeTimeout = 30 * time.Second

	// DedupCacheTTL is the default lifetime of a cached response in the
	// Message Hub's dedup cache.
	DedupCacheTTL = 60 * time.Second

	// CacheSweepInterval is how often the LRU cache's TTL sweeper runs.
	CacheSweepInterval = 30 * time.Second

	// RapidFireWindow is the circuit breaker's rapid-fire error window, the
	// same value session.DefaultBreakerConfig uses.
	RapidFireWindow = 3 * time.Second

	// BreakerCooldown is not read by the circuit breaker, which has no
	// cooldown: a tripped breaker stays tripped until it is reset.
	BreakerCooldown = 60 * time.Second

	// SchedulerSweepInterval is not read by the scheduler, which arms one
	// timer per job instead of sweeping.
	SchedulerSweepInterval = 30 * time.Second

	// InterruptTimeout bounds how long Interrupt() waits for the running
	// query to acknowledge cancellation before forcing the phase to Idle.
	InterruptTimeout = 10 * time.Second

	// CheckpointPreviewLen is the maximum length of a checkpoint's
	// human-readable preview string.
	CheckpointPreviewLen = 100
)
