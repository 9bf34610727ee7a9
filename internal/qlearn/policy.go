package qlearn

import (
	"math"

	"focus_sched/internal/config"
	"focus_sched/internal/domain"
)

type Action int

const (
	HighestPriority Action = iota
	NearestDeadline
	ShortestTask
	HighestScore
	PriorityDeadlineMix
	ConcentrationMatched
	SafeHighPriority
)

const NumActions = 7

var actionNames = [NumActions]string{
	"highest_priority",
	"nearest_deadline",
	"shortest_task",
	"highest_score",
	"priority_deadline_mix",
	"concentration_matched",
	"safe_high_priority",
}

func (a Action) String() string {
	if a < 0 || int(a) >= NumActions {
		return "unknown"
	}
	return actionNames[a]
}

func ActionNames() []string {
	return append([]string(nil), actionNames[:]...)
}

type policyContext struct {
	cfg        config.Policy
	thresholds map[domain.Priority]float64
	level      float64
	daysLeft   func(*domain.Task) float64
}

// pick returns the first candidate no later candidate beats. Candidates
// arrive in id order, so equal ranks resolve to the lowest id.
func pick(cands []*domain.Task, better func(a, b *domain.Task) bool) *domain.Task {
	if len(cands) == 0 {
		return nil
	}
	best := cands[0]
	for _, t := range cands[1:] {
		if better(t, best) {
			best = t
		}
	}
	return best
}

// narrow prefers short tasks, then medium ones, then everything.
func narrow(cands []*domain.Task, cfg config.Policy) []*domain.Task {
	for _, limit := range []int{cfg.ShortTaskThreshold, cfg.MediumTaskThreshold} {
		if limit <= 0 {
			continue
		}
		var out []*domain.Task
		for _, t := range cands {
			if t.BaseDurationMinutes <= limit {
				out = append(out, t)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return cands
}

func (pc policyContext) run(a Action, cands []*domain.Task) *domain.Task {
	cands = narrow(cands, pc.cfg)
	switch a {
	case HighestPriority:
		return pick(cands, func(x, y *domain.Task) bool {
			if x.Priority != y.Priority {
				return x.Priority > y.Priority
			}
			return x.Deadline.Before(y.Deadline)
		})
	case NearestDeadline:
		return pick(cands, func(x, y *domain.Task) bool { return x.Deadline.Before(y.Deadline) })
	case ShortestTask:
		return pick(cands, func(x, y *domain.Task) bool { return x.BaseDurationMinutes < y.BaseDurationMinutes })
	case HighestScore:
		return pick(cands, func(x, y *domain.Task) bool { return x.Score() > y.Score() })
	case PriorityDeadlineMix:
		return pick(cands, func(x, y *domain.Task) bool { return pc.urgency(x) > pc.urgency(y) })
	case ConcentrationMatched:
		if !pc.anyManageable(cands) {
			return pc.leastDemanding(cands)
		}
		return pick(cands, func(x, y *domain.Task) bool { return pc.match(x) > pc.match(y) })
	case SafeHighPriority:
		var safe []*domain.Task
		for _, t := range cands {
			if pc.level >= t.RequiredConcentration(pc.thresholds) {
				safe = append(safe, t)
			}
		}
		if len(safe) == 0 {
			return pc.leastDemanding(cands)
		}
		return pick(safe, func(x, y *domain.Task) bool {
			if x.Priority != y.Priority {
				return x.Priority > y.Priority
			}
			return x.Score() > y.Score()
		})
	}
	return cands[0]
}

func (pc policyContext) urgency(t *domain.Task) float64 {
	days := math.Max(pc.daysLeft(t), pc.cfg.MinDays)
	return float64(t.Priority)*pc.cfg.PriorityWeight + 1/days
}

func (pc policyContext) match(t *domain.Task) float64 {
	required := t.RequiredConcentration(pc.thresholds)
	score := float64(t.Score())
	if pc.level >= required {
		return score * (1 + pc.level - required)
	}
	return score * pc.level / required
}

func (pc policyContext) anyManageable(cands []*domain.Task) bool {
	for _, t := range cands {
		if pc.level >= t.RequiredConcentration(pc.thresholds) {
			return true
		}
	}
	return false
}

func (pc policyContext) leastDemanding(cands []*domain.Task) *domain.Task {
	return pick(cands, func(x, y *domain.Task) bool {
		rx, ry := x.RequiredConcentration(pc.thresholds), y.RequiredConcentration(pc.thresholds)
		if rx != ry {
			return rx < ry
		}
		return x.BaseDurationMinutes < y.BaseDurationMinutes
	})
}
