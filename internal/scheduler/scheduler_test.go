package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/flowlane/agentd/pkg/api/v1"
	"github.com/flowlane/agentd/internal/store"
)

// fakeStore is a minimal in-memory store.Store sufficient for scheduler
// tests; it only implements what the scheduler actually calls.
type fakeStore struct {
	mu    sync.Mutex
	jobs  map[string]*store.RecurringJob
	tasks []*store.Task
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: make(map[string]*store.RecurringJob)}
}

func (f *fakeStore) CreateSession(context.Context, *store.Session) error            { return nil }
func (f *fakeStore) GetSession(context.Context, string) (*store.Session, error)     { return nil, nil }
func (f *fakeStore) UpdateSessionConfig(context.Context, string, store.SessionConfig) error {
	return nil
}
func (f *fakeStore) UpdateSessionMetadata(context.Context, string, store.SessionMetadata) error {
	return nil
}
func (f *fakeStore) TouchSessionLastActive(context.Context, string, time.Time) error { return nil }
func (f *fakeStore) DeleteSession(context.Context, string) error                     { return nil }

func (f *fakeStore) SaveSDKMessage(context.Context, *store.SDKMessageRecord) error { return nil }
func (f *fakeStore) UpdateSDKMessageStatus(context.Context, string, string, string) error {
	return nil
}
func (f *fakeStore) UpdateSDKMessageStatusByDBID(context.Context, string, int64, string) error {
	return nil
}
func (f *fakeStore) ListSDKMessages(context.Context, string) ([]*store.SDKMessageRecord, error) {
	return nil, nil
}
func (f *fakeStore) ListSDKMessagesByStatus(context.Context, string, []string) ([]*store.SDKMessageRecord, error) {
	return nil, nil
}
func (f *fakeStore) LatestSystemInitTimestamp(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

func (f *fakeStore) SaveCheckpoint(context.Context, *store.Checkpoint) error { return nil }
func (f *fakeStore) DeleteCheckpointsAfterTurn(context.Context, string, int) (int, error) {
	return 0, nil
}
func (f *fakeStore) ListCheckpoints(context.Context, string) ([]*store.Checkpoint, error) {
	return nil, nil
}

func (f *fakeStore) CreateRecurringJob(ctx context.Context, j *store.RecurringJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[j.ID] = j
	return nil
}
func (f *fakeStore) GetRecurringJob(ctx context.Context, id string) (*store.RecurringJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, assert.AnError
	}
	cp := *j
	return &cp, nil
}
func (f *fakeStore) ListEnabledRecurringJobs(ctx context.Context) ([]*store.RecurringJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.RecurringJob
	for _, j := range f.jobs {
		if j.Enabled {
			out = append(out, j)
		}
	}
	return out, nil
}
func (f *fakeStore) UpdateRecurringJob(ctx context.Context, j *store.RecurringJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[j.ID] = j
	return nil
}
func (f *fakeStore) DeleteRecurringJob(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, id)
	return nil
}

func (f *fakeStore) CreateTask(ctx context.Context, t *store.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, t)
	return nil
}

func (f *fakeStore) UpsertDraft(context.Context, *store.Draft) error           { return nil }
func (f *fakeStore) DeleteDraft(context.Context, string, string) error         { return nil }
func (f *fakeStore) GetDraft(context.Context, string, string) (*store.Draft, error) {
	return nil, nil
}

// Scenario (E): creating an interval job and triggering it materializes a
// task carrying the template fields and the originating job id, and emits
// recurringJob.triggered.
func TestScheduler_TriggerJobMaterializesTask(t *testing.T) {
	st := newFakeStore()
	var published []string
	pub := func(ctx context.Context, sessionID, method string, payload any) {
		published = append(published, method)
	}
	sched := New(st, pub, nil)

	job := &store.RecurringJob{
		ID:      uuid.New().String(),
		RoomID:  "room-1",
		Name:    "daily report",
		Enabled: true,
		Schedule: store.Schedule{Kind: store.ScheduleInterval, IntervalMin: 60},
		Template: store.TaskTemplate{Title: "Daily Task", Priority: "high"},
	}
	require.NoError(t, sched.CreateJob(context.Background(), job))

	taskID, err := sched.TriggerJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	require.Len(t, st.tasks, 1)
	task := st.tasks[0]
	assert.Equal(t, "Daily Task", task.Title)
	assert.Equal(t, "high", task.Priority)
	require.NotNil(t, task.RecurringJobID)
	assert.Equal(t, job.ID, *task.RecurringJobID)

	assert.Contains(t, published, v1.EventRecurringJobCreated)
	assert.Contains(t, published, v1.EventRecurringJobTriggered)

	// Triggering must not increment RunCount — only scheduled firings do.
	st.mu.Lock()
	stored := st.jobs[job.ID]
	st.mu.Unlock()
	assert.Equal(t, 0, stored.RunCount)
}

func TestScheduler_ScheduledFiringIncrementsRunCountAndReschedules(t *testing.T) {
	st := newFakeStore()
	sched := New(st, nil, nil)

	job := &store.RecurringJob{
		ID:      uuid.New().String(),
		RoomID:  "room-1",
		Enabled: true,
		Schedule: store.Schedule{Kind: store.ScheduleInterval, IntervalMin: 0},
		Template: store.TaskTemplate{Title: "Immediate"},
	}
	require.NoError(t, sched.CreateJob(context.Background(), job))
	require.NoError(t, sched.Start(context.Background()))

	require.Eventually(t, func() bool {
		st.mu.Lock()
		defer st.mu.Unlock()
		return len(st.tasks) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sched.Stop())

	st.mu.Lock()
	stored := st.jobs[job.ID]
	st.mu.Unlock()
	assert.GreaterOrEqual(t, stored.RunCount, 1)
}

func TestScheduler_DisableJobCancelsTimer(t *testing.T) {
	st := newFakeStore()
	sched := New(st, nil, nil)

	job := &store.RecurringJob{
		ID:       uuid.New().String(),
		RoomID:   "room-1",
		Enabled:  true,
		Schedule: store.Schedule{Kind: store.ScheduleInterval, IntervalMin: 60},
		Template: store.TaskTemplate{Title: "x"},
	}
	require.NoError(t, sched.CreateJob(context.Background(), job))
	assert.Equal(t, 1, sched.ScheduledJobs())

	require.NoError(t, sched.DisableJob(context.Background(), job.ID))
	assert.Equal(t, 0, sched.ScheduledJobs())
}

func TestScheduler_DeleteJobCancelsTimerAndEmitsUpdated(t *testing.T) {
	st := newFakeStore()
	var published []string
	pub := func(ctx context.Context, sessionID, method string, payload any) {
		published = append(published, method)
	}
	sched := New(st, pub, nil)

	job := &store.RecurringJob{
		ID:       uuid.New().String(),
		RoomID:   "room-1",
		Enabled:  true,
		Schedule: store.Schedule{Kind: store.ScheduleInterval, IntervalMin: 60},
		Template: store.TaskTemplate{Title: "x"},
	}
	require.NoError(t, sched.CreateJob(context.Background(), job))
	assert.Equal(t, 1, sched.ScheduledJobs())

	require.NoError(t, sched.DeleteJob(context.Background(), job.ID))

	assert.Equal(t, 0, sched.ScheduledJobs())
	assert.Contains(t, published, v1.EventRecurringJobUpdated)

	st.mu.Lock()
	_, stillExists := st.jobs[job.ID]
	st.mu.Unlock()
	assert.False(t, stillExists)
}

// §8 "scheduler conservation": scheduledJobs == |enabled jobs with
// runCount < maxRuns and a timer armed|.
func TestScheduler_ConservationInvariant(t *testing.T) {
	st := newFakeStore()
	sched := New(st, nil, nil)

	for i := 0; i < 3; i++ {
		job := &store.RecurringJob{
			ID:       uuid.New().String(),
			RoomID:   "room-1",
			Enabled:  true,
			Schedule: store.Schedule{Kind: store.ScheduleInterval, IntervalMin: 60},
			Template: store.TaskTemplate{Title: "x"},
		}
		require.NoError(t, sched.CreateJob(context.Background(), job))
	}
	maxed := 1
	disabledJob := &store.RecurringJob{
		ID:       uuid.New().String(),
		RoomID:   "room-1",
		Enabled:  true,
		MaxRuns:  &maxed,
		RunCount: 1,
		Schedule: store.Schedule{Kind: store.ScheduleInterval, IntervalMin: 60},
		Template: store.TaskTemplate{Title: "x"},
	}
	require.NoError(t, sched.CreateJob(context.Background(), disabledJob))

	assert.Equal(t, 3, sched.ScheduledJobs())
}

func TestNextRun_DailyAdvancesWhenTimePassed(t *testing.T) {
	now := time.Date(2026, 7, 31, 15, 0, 0, 0, time.UTC)
	next := nextDailyRun(10, 0, now)
	assert.Equal(t, now.Year(), next.Year())
	assert.Equal(t, now.AddDate(0, 0, 1).Day(), next.Day())
	assert.Equal(t, 10, next.Hour())
}

func TestNextRun_WeeklySameDayFutureTimeStaysToday(t *testing.T) {
	// Friday 2026-07-31 at 15:00 UTC; target Friday (5) at 18:00.
	now := time.Date(2026, 7, 31, 15, 0, 0, 0, time.UTC)
	require.Equal(t, time.Friday, now.Weekday())
	next := nextWeeklyRun(5, 18, 0, now)
	assert.Equal(t, now.Day(), next.Day())
}

func TestNextRun_WeeklySameDayPastTimeAdvancesWeek(t *testing.T) {
	now := time.Date(2026, 7, 31, 15, 0, 0, 0, time.UTC)
	next := nextWeeklyRun(5, 10, 0, now)
	assert.Equal(t, now.AddDate(0, 0, 7).Day(), next.Day())
}

func TestNextRun_IntervalZeroFiresImmediately(t *testing.T) {
	now := time.Now()
	next := nextIntervalRun(0, now)
	assert.Equal(t, now, next)
}
