// Package scheduler implements the Recurring Job Scheduler (§4.4): a
// room-scoped cron/interval/calendar scheduler that materializes scheduled
// jobs into tasks and survives process restarts.
//
// It is grounded on the teacher's internal/orchestrator/scheduler.Scheduler
// (start/stop lifecycle, sync.WaitGroup-drained goroutines, a tracking map
// guarded by its own mutex) generalized from a fixed-interval poll loop
// over a shared task queue to the per-job one-shot timer model §4.4
// requires.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowlane/agentd/internal/common/logger"
	v1 "github.com/flowlane/agentd/pkg/api/v1"
	"github.com/flowlane/agentd/internal/store"
)

// ErrAlreadyRunning is returned by Start when the scheduler is already
// running.
var ErrAlreadyRunning = errors.New("scheduler: already running")

// PublishFunc emits an event scoped to sessionID (a room's compound scope
// "room:<roomId>" for scheduler events, per §6 Scoping). The scheduler
// package stays decoupled from the Hub's concrete type — the hosting
// binary wires hub.Hub.Publish in as this function.
type PublishFunc func(ctx context.Context, sessionID, method string, payload any)

// Scheduler owns the per-job one-shot timer map (§4.4 "Timers").
type Scheduler struct {
	store   store.Store
	publish PublishFunc
	log     *logger.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	running bool
	wg      sync.WaitGroup
}

// New builds a Scheduler. publish may be nil (events are then dropped,
// useful for tests exercising only persistence/timer behavior).
func New(st store.Store, publish PublishFunc, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Default()
	}
	if publish == nil {
		publish = func(context.Context, string, string, any) {}
	}
	return &Scheduler{
		store:   st,
		publish: publish,
		log:     log.WithFields(zap.String("component", "scheduler")),
		timers:  make(map[string]*time.Timer),
	}
}

// Start loads every enabled job, computing a next-run time where missing,
// and arms a timer for each unless it has already reached MaxRuns (§4.4
// "start()"). A job whose NextRunAt already lies in the past is armed with
// delay 0 — it fires once immediately; the spec does not catch up missed
// intervals (§9 Open Question).
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	jobs, err := s.store.ListEnabledRecurringJobs(ctx)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		job := job
		if job.HasReachedMaxRuns() {
			continue
		}
		if job.NextRunAt == nil {
			next, err := nextRun(job.Schedule, time.Now())
			if err != nil {
				s.log.Warn("failed to compute next run at startup", zap.String("job_id", job.ID), zap.Error(err))
				continue
			}
			job.NextRunAt = &next
			if err := s.store.UpdateRecurringJob(ctx, job); err != nil {
				s.log.Warn("failed to persist computed next run", zap.String("job_id", job.ID), zap.Error(err))
			}
		}
		s.arm(ctx, job)
	}

	s.log.Info("scheduler started", zap.Int("jobs", len(jobs)))
	return nil
}

// Stop clears every timer and empties the map. Idempotent.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("scheduler stopped")
	return nil
}

// ScheduledJobs reports the number of armed timers — the scheduler
// conservation invariant (§8 property 7) requires this to equal the count
// of enabled, not-maxed-out jobs with an armed timer.
func (s *Scheduler) ScheduledJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// arm schedules job's next firing. Must be called with s.mu unlocked; it
// takes the lock itself.
func (s *Scheduler) arm(ctx context.Context, job *store.RecurringJob) {
	if job.NextRunAt == nil {
		return
	}
	delay := time.Until(*job.NextRunAt)
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	if existing, ok := s.timers[job.ID]; ok {
		existing.Stop()
	}
	s.timers[job.ID] = time.AfterFunc(delay, func() { s.fire(ctx, job.ID) })
	s.mu.Unlock()
}

// cancel stops and removes job's timer, if any.
func (s *Scheduler) cancel(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[jobID]; ok {
		t.Stop()
		delete(s.timers, jobID)
	}
}

// fire runs when a job's timer elapses (§4.4.3).
func (s *Scheduler) fire(ctx context.Context, jobID string) {
	s.mu.Lock()
	delete(s.timers, jobID) // this firing consumes the armed timer
	running := s.running
	s.mu.Unlock()
	if !running {
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	job, err := s.store.GetRecurringJob(ctx, jobID)
	if err != nil {
		s.log.Warn("failed to load job on fire", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if !job.Enabled || job.HasReachedMaxRuns() {
		return
	}

	taskID, err := s.materialize(ctx, job)
	if err != nil {
		s.log.Error("failed to materialize task from recurring job", zap.String("job_id", jobID), zap.Error(err))
		return
	}

	now := time.Now()
	job.RunCount++
	job.LastRunAt = &now
	next, err := nextRun(job.Schedule, now)
	if err != nil {
		s.log.Warn("failed to compute next run after firing", zap.String("job_id", jobID), zap.Error(err))
		job.NextRunAt = nil
	} else {
		job.NextRunAt = &next
	}

	if err := s.store.UpdateRecurringJob(ctx, job); err != nil {
		s.log.Error("failed to persist job after firing", zap.String("job_id", jobID), zap.Error(err))
	}

	s.publish(ctx, roomScope(job.RoomID), v1.EventRecurringJobTriggered, map[string]any{
		"roomId": job.RoomID,
		"jobId":  job.ID,
		"taskId": taskID,
	})

	if job.NextRunAt != nil && !job.HasReachedMaxRuns() && job.Enabled {
		s.arm(ctx, job)
	}
}

// materialize persists a Task from job's template, attaching the
// originating recurring job id (§3.5, §4.4.3 step 2).
func (s *Scheduler) materialize(ctx context.Context, job *store.RecurringJob) (string, error) {
	jobID := job.ID
	task := &store.Task{
		ID:             uuid.New().String(),
		RoomID:         job.RoomID,
		Title:          job.Template.Title,
		Description:    job.Template.Description,
		Priority:       job.Template.Priority,
		ExecutionMode:  job.Template.ExecutionMode,
		SessionAssign:  job.Template.SessionAssignment,
		RecurringJobID: &jobID,
		CreatedAt:      time.Now(),
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return "", err
	}
	return task.ID, nil
}

// CreateJob inserts job, emits recurringJob.created, and arms a timer iff
// the job is enabled and has not already reached MaxRuns.
func (s *Scheduler) CreateJob(ctx context.Context, job *store.RecurringJob) error {
	if job.NextRunAt == nil {
		next, err := nextRun(job.Schedule, time.Now())
		if err == nil {
			job.NextRunAt = &next
		}
	}
	if err := s.store.CreateRecurringJob(ctx, job); err != nil {
		return err
	}

	s.publish(ctx, roomScope(job.RoomID), v1.EventRecurringJobCreated, map[string]any{
		"roomId": job.RoomID,
		"jobId":  job.ID,
	})

	if job.Enabled && !job.HasReachedMaxRuns() {
		s.arm(ctx, job)
	}
	return nil
}

// UpdateJob persists patch and reschedules (cancel+rearm) if the schedule
// or enabled flag changed.
func (s *Scheduler) UpdateJob(ctx context.Context, job *store.RecurringJob) error {
	if err := s.store.UpdateRecurringJob(ctx, job); err != nil {
		return err
	}
	s.cancel(job.ID)
	if job.Enabled && !job.HasReachedMaxRuns() {
		if job.NextRunAt == nil {
			next, err := nextRun(job.Schedule, time.Now())
			if err == nil {
				job.NextRunAt = &next
			}
		}
		s.arm(ctx, job)
	}
	return nil
}

// EnableJob sets the enabled flag and (un)schedules accordingly.
func (s *Scheduler) EnableJob(ctx context.Context, jobID string) error {
	job, err := s.store.GetRecurringJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.Enabled = true
	return s.UpdateJob(ctx, job)
}

// DisableJob sets the enabled flag false and cancels the active timer.
func (s *Scheduler) DisableJob(ctx context.Context, jobID string) error {
	job, err := s.store.GetRecurringJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.Enabled = false
	if err := s.store.UpdateRecurringJob(ctx, job); err != nil {
		return err
	}
	s.cancel(jobID)
	return nil
}

// DeleteJob cancels the timer, deletes the row (cascades in storage), and
// emits recurringJob.updated (§4.4 "deleteJob: ... emit updated event").
func (s *Scheduler) DeleteJob(ctx context.Context, jobID string) error {
	job, err := s.store.GetRecurringJob(ctx, jobID)
	if err != nil {
		return err
	}

	s.cancel(jobID)
	if err := s.store.DeleteRecurringJob(ctx, jobID); err != nil {
		return err
	}

	s.publish(ctx, roomScope(job.RoomID), v1.EventRecurringJobUpdated, map[string]any{
		"roomId": job.RoomID,
		"jobId":  job.ID,
	})
	return nil
}

// TriggerJob materializes a task from the template immediately, outside
// the normal timer cadence. It does NOT increment RunCount — only
// scheduled firings do (§4.4 "triggerJob").
func (s *Scheduler) TriggerJob(ctx context.Context, jobID string) (string, error) {
	job, err := s.store.GetRecurringJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	taskID, err := s.materialize(ctx, job)
	if err != nil {
		return "", err
	}

	s.publish(ctx, roomScope(job.RoomID), v1.EventRecurringJobTriggered, map[string]any{
		"roomId": job.RoomID,
		"jobId":  job.ID,
		"taskId": taskID,
	})
	return taskID, nil
}

func roomScope(roomID string) string {
	return "room:" + roomID
}
