package simulation

import (
	"sort"
	"time"

	"focus_sched/internal/domain"
	"focus_sched/internal/scheduler"
)

type recorder struct {
	events       []domain.Event
	workMinutes  float64
	breakMinutes float64
}

func newRecorder() *recorder {
	return &recorder{events: make([]domain.Event, 0, 64)}
}

func (r *recorder) rest(at time.Time, day, minutes int, level float64) {
	r.breakMinutes += float64(minutes)
	r.events = append(r.events, domain.Event{
		At:              at,
		Day:             day,
		Kind:            domain.EventBreak,
		DurationMinutes: float64(minutes),
		Concentration:   level,
	})
}

func (r *recorder) work(day int, out scheduler.Outcome) {
	r.workMinutes += out.ActualMinutes
	id := out.Task.ID
	completed := out.Completed
	r.events = append(r.events, domain.Event{
		At:                  out.Start,
		Day:                 day,
		Kind:                domain.EventWork,
		DurationMinutes:     out.ActualMinutes,
		TaskID:              &id,
		BaseDurationMinutes: out.Task.BaseDurationMinutes,
		Completed:           &completed,
		Concentration:       out.EndLevel,
	})
}

func summarize(b *domain.Backlog, rec *recorder, start, end time.Time) domain.Result {
	completed := b.Completed()
	incomplete := b.Incomplete()
	sort.SliceStable(completed, func(i, j int) bool {
		ci, cj := doneAt(completed[i], start), doneAt(completed[j], start)
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return completed[i].ID < completed[j].ID
	})

	res := domain.Result{
		CompletedCount:    len(completed),
		IncompleteCount:   len(incomplete),
		CompletionRate:    domain.CompletionRate(len(completed), len(incomplete)),
		TotalWorkMinutes:  rec.workMinutes,
		TotalBreakMinutes: rec.breakMinutes,
		Completed:         make([]domain.TaskSummary, 0, len(completed)),
		Incomplete:        make([]domain.TaskSummary, 0, len(incomplete)),
		Events:            rec.events,
		StartedAt:         start,
		EndsAt:            end,
	}
	onTime := 0
	for _, t := range completed {
		res.TotalScore += t.Score()
		res.Completed = append(res.Completed, summary(t))
		if at := doneAt(t, start); !at.After(t.Deadline) && !at.After(end) {
			onTime++
		}
	}
	for _, t := range incomplete {
		res.Incomplete = append(res.Incomplete, summary(t))
		if t.IsOverdue(end) {
			res.OverdueCount++
		}
	}
	if total := b.Len(); total > 0 {
		res.DeadlineComplianceRate = float64(onTime) / float64(total)
	}
	if spent := rec.workMinutes + rec.breakMinutes; spent > 0 {
		res.Efficiency = rec.workMinutes / spent
	}
	return res
}

func summary(t *domain.Task) domain.TaskSummary {
	return domain.TaskSummary{ID: t.ID, Score: t.Score(), Priority: t.Priority.String()}
}

// doneAt tolerates templates that arrive already completed without a
// completion time.
func doneAt(t *domain.Task, fallback time.Time) time.Time {
	if t.CompletedAt == nil {
		return fallback
	}
	return *t.CompletedAt
}
