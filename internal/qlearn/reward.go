package qlearn

import (
	"focus_sched/internal/config"
	"focus_sched/internal/domain"
	"focus_sched/internal/scheduler"
)

// Reward scores one executed action against the current previous-task
// memory. Call it before the memory advances.
func (s *Selector) Reward(out scheduler.Outcome) float64 {
	rc := s.rl.Reward
	task := out.Task
	if !out.Completed {
		return -rc.FailureTimePenaltyMultiplier * out.ActualMinutes
	}

	reward := float64(task.Score())
	if out.StartLevel > rc.HighConcentrationThreshold {
		reward += rc.HighConcentrationBonus
	}
	if !out.End.After(task.Deadline) {
		reward += rc.DeadlineMetBonus
	} else {
		reward -= rc.DeadlineMissPenalty
	}
	nominal := float64(task.BaseDurationMinutes)
	if out.ActualMinutes > nominal {
		reward -= (out.ActualMinutes - nominal) * rc.OverrunPenaltyMultiplier
	}
	if out.StartLevel < task.RequiredConcentration(s.thresholds) {
		reward -= rc.RecklessAttemptPenalty
	}

	if s.prev.genre != "" {
		same := s.prev.genre == task.Genre
		switch s.traits.GenrePreference {
		case config.PreferenceSame:
			if same {
				reward += rc.GenreContinuityBonus
			} else {
				reward -= rc.GenreContinuityPenalty
			}
		case config.PreferenceSwitch:
			if same {
				reward -= rc.GenreContinuityPenalty
			} else {
				reward += rc.GenreContinuityBonus
			}
		}
	}

	if task.Priority == domain.PriorityHigh && s.prev.priority == domain.PriorityHigh {
		run := s.prev.consecutive + 1
		if over := run - rc.ConsecutivePriorityLimit; over > 0 {
			reward -= rc.ConsecutivePriorityPenalty * float64(over)
		}
	}
	return reward
}
