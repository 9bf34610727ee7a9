package scheduler

import (
	"math/rand"
	"sort"
	"time"

	"focus_sched/internal/domain"
)

// Snapshot is the read-only agent state handed to selectors.
type Snapshot struct {
	Now          time.Time
	Level        float64
	FatigueRatio float64
}

// TaskSelector picks the next task from the backlog's ready set. A nil
// result means no task is ready; it is not an error.
type TaskSelector interface {
	Name() string
	Select(b *domain.Backlog, snap Snapshot) *domain.Task
}

// Reseeder is implemented by selectors that own a random source.
type Reseeder interface {
	Reseed(seed int64)
}

// Learner is implemented by selectors that consume outcome feedback.
type Learner interface {
	TaskFeedback(b *domain.Backlog, outcome Outcome)
	BreakFeedback(minutes int)
	ResetEpisode()
}

type DeadlineFirst struct{}

func (DeadlineFirst) Name() string { return "deadline" }

func (DeadlineFirst) Select(b *domain.Backlog, _ Snapshot) *domain.Task {
	ready := b.Ready()
	if len(ready) == 0 {
		return nil
	}
	sort.SliceStable(ready, func(i, j int) bool {
		if !ready[i].Deadline.Equal(ready[j].Deadline) {
			return ready[i].Deadline.Before(ready[j].Deadline)
		}
		return ready[i].ID < ready[j].ID
	})
	return ready[0]
}

type PriorityFirst struct{}

func (PriorityFirst) Name() string { return "priority" }

func (PriorityFirst) Select(b *domain.Backlog, _ Snapshot) *domain.Task {
	ready := b.Ready()
	if len(ready) == 0 {
		return nil
	}
	sort.SliceStable(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority > ready[j].Priority
		}
		if !ready[i].Deadline.Equal(ready[j].Deadline) {
			return ready[i].Deadline.Before(ready[j].Deadline)
		}
		return ready[i].ID < ready[j].ID
	})
	return ready[0]
}

type Random struct {
	rng *rand.Rand
}

func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

func (r *Random) Name() string { return "random" }

func (r *Random) Reseed(seed int64) {
	r.rng = rand.New(rand.NewSource(seed))
}

func (r *Random) Select(b *domain.Backlog, _ Snapshot) *domain.Task {
	ready := b.Ready()
	if len(ready) == 0 {
		return nil
	}
	return ready[r.rng.Intn(len(ready))]
}
