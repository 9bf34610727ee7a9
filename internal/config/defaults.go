package config

import (
	"fmt"
	"time"

	"focus_sched/internal/domain"
)

func Default() Config {
	return Config{
		Simulation: Simulation{
			Days:                  7,
			WorkHoursPerDay:       8,
			NumTasks:              30,
			Start:                 time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
			Seed:                  42,
			MinSuccessProbability: 0.1,
		},
		Concentration: Concentration{
			MaxWorkTimeMinutes:  120,
			RestRecoveryMinutes: 15,
			InitialLevel:        1.0,
			MinLevel:            0.2,
			RestRecoveryRate:    0.5,
			HighLevel:           0.7,
			LowLevel:            0.4,
			HighEfficiency:      0.8,
			LowEfficiency:       1.2,
			PriorityFatigue:     map[string]float64{"1": 1.0, "2": 1.3, "3": 1.6},
			ConsecutivePenalty:  map[string]float64{"1": 1.0, "2": 1.1, "3": 1.25},
			DecayFactors:        map[string]float64{"short": 1.3, "medium": 1.0, "long": 0.8},
			GenreBiasLimit:      0.2,
			PriorityThresholds:  map[string]float64{"1": 0.3, "2": 0.6, "3": 0.8},
		},
		Breaks: Breaks{Threshold: 0.4},
		Generation: Generation{
			DurationMode:        "bucket",
			ShortTaskMin:        30,
			ShortTaskMax:        90,
			MediumTaskMax:       180,
			LongTaskMax:         270,
			ShortTaskRatio:      0.7,
			MediumTaskRatio:     0.2,
			PriorityLowRatio:    0.6,
			PriorityMediumRatio: 0.25,
			PriorityDurations: map[string][]int{
				"1": {15, 60},
				"2": {30, 120},
				"3": {60, 180},
			},
			DeadlineBaseDays:       1,
			DeadlineDurationFactor: 1,
			DeadlinePriorityFactor: 1,
			Genres:                 []string{"1", "2", "3", "4"},
			GenreDistribution:      map[string]float64{"1": 0.25, "2": 0.25, "3": 0.25, "4": 0.25},
			DependencyRatio:        0.3,
			DependencyWindow:       20,
			DependencyGapHours:     12,
			MaxAttempts:            3,
			HiddenEnabled:          true,
			EffortMean:             1.0,
			EffortStd:              0.15,
			EffortMin:              0.8,
			EffortMax:              1.4,
			AffinityMin:            -0.2,
			AffinityMax:            0.3,
		},
		RL: RL{
			LearningRate:   0.1,
			DiscountFactor: 0.9,
			Epsilon:        0.1,
			State: State{
				NumTasksBinDivisor:    10,
				NumTasksBinMax:        10,
				HighPriorityRatioBins: 5,
				DeadlineBinHours:      12,
				DeadlineBinMax:        10,
				AvgDurationBinMinutes: 30,
				AvgDurationBinMax:     7,
				ConcentrationBins:     4,
				FatigueBins:           5,
				GenreBinMax:           4,
			},
			Reward: Reward{
				HighConcentrationBonus:       20,
				HighConcentrationThreshold:   0.7,
				DeadlineMetBonus:             10,
				DeadlineMissPenalty:          30,
				OverrunPenaltyMultiplier:     0.5,
				RecklessAttemptPenalty:       50,
				GenreContinuityBonus:         5,
				GenreContinuityPenalty:       5,
				ConsecutivePriorityPenalty:   10,
				ConsecutivePriorityLimit:     2,
				FailureTimePenaltyMultiplier: 0.5,
				BreakPenaltyPerMinute:        0.1,
			},
			Policy: Policy{
				PriorityWeight:      2,
				MinDays:             0.1,
				ShortTaskThreshold:  135,
				MediumTaskThreshold: 180,
			},
			Training: Training{
				TrainEpsilon:     0.5,
				TestEpsilon:      0.0,
				EpsilonDecayRate: 0.995,
				MinEpsilon:       0.05,
				Episodes:         1000,
			},
		},
		Experiment: Experiment{
			Repetitions: 50,
			Parallel:    4,
			DBPath:      "data/focus_sched.db",
			ModelPath:   "trained_models/rl_model_default.json",
		},
		Server: Server{Addr: ":8092"},
		Personal: PersonalTraits{
			GenrePreference: PreferenceNone,
			GenreBonus:      0.05,
			GenrePenalty:    0.05,
			Sustainability:  "medium",
		},
	}
}

func (c Config) Validate() error {
	s := c.Simulation
	if s.Days <= 0 || s.WorkHoursPerDay <= 0 || s.WorkHoursPerDay > 24 {
		return invalid("simulation days=%d work_hours_per_day=%d", s.Days, s.WorkHoursPerDay)
	}
	if s.MinSuccessProbability < 0 || s.MinSuccessProbability > 1 {
		return invalid("min_success_probability=%v must be in [0,1]", s.MinSuccessProbability)
	}

	cc := c.Concentration
	if cc.MaxWorkTimeMinutes <= 0 || cc.RestRecoveryMinutes <= 0 {
		return invalid("max_work_time_minutes and rest_recovery_minutes must be positive")
	}
	if cc.MinLevel < 0 || cc.MinLevel > cc.InitialLevel || cc.InitialLevel > 1 {
		return invalid("levels must satisfy 0 <= min_level <= initial_level <= 1")
	}
	if cc.LowLevel > cc.HighLevel {
		return invalid("low_level=%v above high_level=%v", cc.LowLevel, cc.HighLevel)
	}
	for _, p := range domain.Priorities {
		if cc.FatigueFor(p) <= 0 || cc.ConsecutiveFor(p) <= 0 {
			return invalid("fatigue multipliers for %s must be positive", p)
		}
	}
	if _, ok := cc.DecayFactors[c.Personal.Sustainability]; !ok {
		return invalid("no decay factor for sustainability %q", c.Personal.Sustainability)
	}
	if c.Breaks.Threshold < 0 || c.Breaks.Threshold > 1 {
		return invalid("break threshold=%v must be in [0,1]", c.Breaks.Threshold)
	}

	g := c.Generation
	if g.PriorityLowRatio < 0 || g.PriorityMediumRatio < 0 || g.PriorityLowRatio+g.PriorityMediumRatio > 1 {
		return invalid("priority ratios must be non-negative and sum to at most 1")
	}
	if g.ShortTaskRatio < 0 || g.MediumTaskRatio < 0 || g.ShortTaskRatio+g.MediumTaskRatio > 1 {
		return invalid("duration ratios must be non-negative and sum to at most 1")
	}
	if g.DurationMode != "bucket" && g.DurationMode != "priority" {
		return invalid("duration_mode=%q must be bucket or priority", g.DurationMode)
	}
	if g.ShortTaskMin <= 0 || g.ShortTaskMin > g.ShortTaskMax || g.ShortTaskMax > g.MediumTaskMax || g.MediumTaskMax > g.LongTaskMax {
		return invalid("task duration bounds must be positive and increasing")
	}
	for p, bounds := range g.PriorityDurations {
		if len(bounds) != 2 || bounds[0] <= 0 || bounds[0] > bounds[1] {
			return invalid("priority_durations[%s]=%v must be a positive [min, max] range", p, bounds)
		}
	}
	if len(g.Genres) == 0 {
		return invalid("at least one genre is required")
	}
	if g.DependencyRatio < 0 || g.DependencyRatio > 1 {
		return invalid("dependency_ratio=%v must be in [0,1]", g.DependencyRatio)
	}

	rl := c.RL
	if rl.LearningRate <= 0 || rl.LearningRate > 1 {
		return invalid("learning_rate=%v must be in (0,1]", rl.LearningRate)
	}
	if rl.DiscountFactor < 0 || rl.DiscountFactor > 1 {
		return invalid("discount_factor=%v must be in [0,1]", rl.DiscountFactor)
	}
	if rl.Epsilon < 0 || rl.Epsilon > 1 {
		return invalid("epsilon=%v must be in [0,1]", rl.Epsilon)
	}
	st := rl.State
	if st.NumTasksBinDivisor <= 0 || st.DeadlineBinHours <= 0 || st.AvgDurationBinMinutes <= 0 {
		return invalid("state bin widths must be positive")
	}
	if st.NumTasksBinMax < 0 || st.HighPriorityRatioBins <= 0 || st.DeadlineBinMax < 0 ||
		st.AvgDurationBinMax < 0 || st.ConcentrationBins <= 0 || st.FatigueBins <= 0 || st.GenreBinMax < 0 {
		return invalid("state bin maximums must be non-negative")
	}

	switch c.Personal.GenrePreference {
	case PreferenceSame, PreferenceSwitch, PreferenceNone:
	default:
		return invalid("genre_preference=%q must be same, switch or none", c.Personal.GenrePreference)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: config: %s", domain.ErrInvalidArgument, fmt.Sprintf(format, args...))
}
