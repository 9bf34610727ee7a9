package simulation

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"focus_sched/internal/domain"
	"focus_sched/internal/scheduler"
)

// Replay re-executes the decisions recorded in plan against alternate, a
// task set with the same ids but different hidden characteristics. The
// selector is never consulted and learners receive no feedback. Within a
// day, decisions stop once the day's minutes are spent; decisions on
// already completed or exhausted tasks are skipped.
func (s *Simulator) Replay(sched *scheduler.Scheduler, plan []domain.Event, alternate []domain.Task) (domain.Result, error) {
	b, err := domain.NewBacklog(alternate)
	if err != nil {
		return domain.Result{}, fmt.Errorf("prepare backlog: %w", err)
	}
	rng := rand.New(rand.NewSource(s.cfg.Seed))
	sched.Reset(s.cfg.Seed)

	rec := newRecorder()
	dayMinutes := float64(s.cfg.WorkMinutesPerDay())
	day := -1
	var now time.Time
	used := 0.0
	for i, ev := range plan {
		if ev.Day < day || ev.Day >= s.cfg.Days {
			return domain.Result{}, fmt.Errorf("%w: plan event %d has day %d", domain.ErrInvalidArgument, i, ev.Day)
		}
		if ev.Day != day {
			day = ev.Day
			now = s.cfg.Start.AddDate(0, 0, day)
			used = 0
			sched.StartDay()
		}
		if used >= dayMinutes {
			continue
		}

		switch ev.Kind {
		case domain.EventBreak:
			minutes := int(ev.DurationMinutes)
			if err := sched.Rest(minutes); err != nil {
				return domain.Result{}, fmt.Errorf("plan event %d: %w", i, err)
			}
			rec.rest(now, day, minutes, sched.Model().Level())
			now = now.Add(time.Duration(minutes) * time.Minute)
			used += float64(minutes)
		case domain.EventWork:
			if ev.TaskID == nil {
				return domain.Result{}, fmt.Errorf("%w: plan event %d has no task id", domain.ErrInvalidArgument, i)
			}
			task, ok := b.Get(*ev.TaskID)
			if !ok {
				return domain.Result{}, fmt.Errorf("%w: plan event %d references task %d", domain.ErrNotFound, i, *ev.TaskID)
			}
			roll := rng.Float64()
			if task.Completed || task.Exhausted() {
				continue
			}
			out, err := sched.Apply(b, task, now, roll)
			if err != nil {
				return domain.Result{}, fmt.Errorf("plan event %d: %w", i, err)
			}
			rec.work(day, out)
			now = out.End
			used += out.ActualMinutes
		default:
			return domain.Result{}, fmt.Errorf("%w: plan event %d has kind %q", domain.ErrInvalidArgument, i, ev.Kind)
		}
	}

	result := summarize(b, rec, s.cfg.Start, s.cfg.End())
	result.RunID = uuid.NewString()
	result.Scheduler = sched.Name() + "-replay"
	s.logger.Printf("replay finished id=%s scheduler=%s decisions=%d score=%d",
		result.RunID, result.Scheduler, len(plan), result.TotalScore)
	return result, nil
}
