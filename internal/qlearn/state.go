package qlearn

import (
	"fmt"
	"math"
	"time"

	"focus_sched/internal/config"
	"focus_sched/internal/domain"
	"focus_sched/internal/scheduler"
)

// State is the discretized observation used as the Q-table key. Changing
// any bin parameter in config.State, or the order of generation.genres,
// makes saved tables incompatible.
type State struct {
	Tasks         int
	HighRatio     int
	Deadline      int
	Duration      int
	Concentration int
	Fatigue       int
	PrevPriority  int
	PrevGenre     int
}

func (s State) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d,%d,%d,%d,%d)",
		s.Tasks, s.HighRatio, s.Deadline, s.Duration, s.Concentration, s.Fatigue, s.PrevPriority, s.PrevGenre)
}

func (s State) array() [8]int {
	return [8]int{s.Tasks, s.HighRatio, s.Deadline, s.Duration, s.Concentration, s.Fatigue, s.PrevPriority, s.PrevGenre}
}

func stateFromArray(a [8]int) State {
	return State{a[0], a[1], a[2], a[3], a[4], a[5], a[6], a[7]}
}

// memory is the previous-task context carried between selections.
type memory struct {
	priority    domain.Priority
	genre       domain.Genre
	consecutive int
}

type discretizer struct {
	cfg    config.State
	genres map[domain.Genre]int
}

func newDiscretizer(cfg config.State, genres []string) discretizer {
	index := make(map[domain.Genre]int, len(genres))
	for i, g := range genres {
		index[domain.Genre(g)] = i + 1
	}
	return discretizer{cfg: cfg, genres: index}
}

func (d discretizer) state(cands []*domain.Task, snap scheduler.Snapshot, prev memory) State {
	var st State
	st.Concentration = clipBin(int(snap.Level*float64(d.cfg.ConcentrationBins)), d.cfg.ConcentrationBins)
	st.Fatigue = clipBin(int(math.Min(1, snap.FatigueRatio)*float64(d.cfg.FatigueBins)), d.cfg.FatigueBins)
	st.PrevPriority = int(prev.priority)
	if prev.genre != "" {
		st.PrevGenre = clipBin(d.genres[prev.genre], d.cfg.GenreBinMax)
	}
	if len(cands) == 0 {
		return st
	}

	st.Tasks = clipBin(len(cands)/d.cfg.NumTasksBinDivisor, d.cfg.NumTasksBinMax)

	high := 0
	total := 0
	nearest := math.Inf(1)
	for _, t := range cands {
		if t.Priority == domain.PriorityHigh {
			high++
		}
		total += t.BaseDurationMinutes
		hours := math.Max(0, t.Deadline.Sub(snap.Now).Hours())
		if hours < nearest {
			nearest = hours
		}
	}
	st.HighRatio = clipBin(int(float64(high)/float64(len(cands))*float64(d.cfg.HighPriorityRatioBins)), d.cfg.HighPriorityRatioBins)
	st.Deadline = clipBin(int(nearest/float64(d.cfg.DeadlineBinHours)), d.cfg.DeadlineBinMax)
	mean := float64(total) / float64(len(cands))
	st.Duration = clipBin(int(mean/float64(d.cfg.AvgDurationBinMinutes)), d.cfg.AvgDurationBinMax)
	return st
}

func clipBin(v, limit int) int {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}

// feasible keeps tasks that still meet their deadline at nominal duration,
// falling back to all candidates when none do.
func feasible(ready []*domain.Task, now time.Time) []*domain.Task {
	out := make([]*domain.Task, 0, len(ready))
	for _, t := range ready {
		finish := now.Add(time.Duration(t.BaseDurationMinutes) * time.Minute)
		if !finish.After(t.Deadline) {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return ready
	}
	return out
}
