package scheduler

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/flowlane/agentd/internal/store"
)

// nextRun computes the next fire time for sched relative to now, per
// §4.4.2. cron schedules are evaluated with a real cron library
// (github.com/adhocore/gronx) — this resolves the spec's Open Question
// ("a production port MUST select a real cron evaluator") in favor of
// gronx rather than the daily-at-midnight stub the spec describes as a
// last resort.
func nextRun(sched store.Schedule, now time.Time) (time.Time, error) {
	switch sched.Kind {
	case store.ScheduleInterval:
		return nextIntervalRun(sched.IntervalMin, now), nil
	case store.ScheduleDaily:
		return nextDailyRun(sched.Hour, sched.Minute, now), nil
	case store.ScheduleWeekly:
		return nextWeeklyRun(sched.DayOfWeek, sched.Hour, sched.Minute, now), nil
	case store.ScheduleCron:
		return nextCronRun(sched.CronExpression, now)
	default:
		return time.Time{}, fmt.Errorf("scheduler: unknown schedule kind %q", sched.Kind)
	}
}

// nextIntervalRun: now + min minutes. min=0 yields now itself — an
// intentional immediate re-fire per §4.4.2.
func nextIntervalRun(min int, now time.Time) time.Time {
	return now.Add(time.Duration(min) * time.Minute)
}

// nextDailyRun: today at (h, m) local time; advances one day if that is
// not strictly after now.
func nextDailyRun(h, m int, now time.Time) time.Time {
	candidate := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// nextWeeklyRun: days-to-add = (dow - now.dow + 7) % 7; if 0 and the
// time-of-day is not strictly after now, add 7.
func nextWeeklyRun(dow, h, m int, now time.Time) time.Time {
	daysToAdd := (dow - int(now.Weekday()) + 7) % 7
	candidate := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location()).AddDate(0, 0, daysToAdd)
	if daysToAdd == 0 && !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}

// nextCronRun evaluates expr with gronx, returning the next tick strictly
// after now.
func nextCronRun(expr string, now time.Time) (time.Time, error) {
	if !gronx.IsValid(expr) {
		return time.Time{}, fmt.Errorf("scheduler: invalid cron expression %q", expr)
	}
	return gronx.NextTickAfter(expr, now, false)
}
