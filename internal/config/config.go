package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"focus_sched/internal/domain"
)

type Config struct {
	Simulation    Simulation    `toml:"simulation"`
	Concentration Concentration `toml:"concentration"`
	Breaks        Breaks        `toml:"breaks"`
	Generation    Generation    `toml:"generation"`
	RL            RL            `toml:"rl"`
	Experiment    Experiment    `toml:"experiment"`
	Server        Server        `toml:"server"`
	// PersonalDataPath points at the YAML trait file; empty keeps Config.Personal.
	PersonalDataPath string         `toml:"personal_data_path"`
	Personal         PersonalTraits `toml:"personal"`
	Path             string         `toml:"-"`
}

type Simulation struct {
	Days            int       `toml:"simulation_days"`
	WorkHoursPerDay int       `toml:"work_hours_per_day"`
	NumTasks        int       `toml:"num_tasks"`
	Start           time.Time `toml:"start"`
	Seed            int64     `toml:"seed"`
	// FailureEnabled turns on the probabilistic-failure variant.
	FailureEnabled        bool    `toml:"failure_enabled"`
	MinSuccessProbability float64 `toml:"min_success_probability"`
	EpisodePerDay         bool    `toml:"episode_per_day"`
}

func (s Simulation) WorkMinutesPerDay() int {
	return s.WorkHoursPerDay * 60
}

func (s Simulation) End() time.Time {
	return s.Start.AddDate(0, 0, s.Days)
}

type Concentration struct {
	MaxWorkTimeMinutes  float64 `toml:"max_work_time_minutes"`
	RestRecoveryMinutes int     `toml:"rest_recovery_minutes"`
	InitialLevel        float64 `toml:"initial_level"`
	MinLevel            float64 `toml:"min_level"`
	RestRecoveryRate    float64 `toml:"rest_recovery_rate"`
	HighLevel           float64 `toml:"high_level"`
	LowLevel            float64 `toml:"low_level"`
	HighEfficiency      float64 `toml:"high_efficiency"`
	LowEfficiency       float64 `toml:"low_efficiency"`
	// Keyed by priority value ("1".."3") so the TOML stays flat.
	PriorityFatigue    map[string]float64 `toml:"priority_fatigue"`
	ConsecutivePenalty map[string]float64 `toml:"consecutive_penalty"`
	// Keyed by sustainability trait (short, medium, long).
	DecayFactors   map[string]float64 `toml:"decay_factors"`
	GenreBiasLimit float64            `toml:"genre_bias_limit"`
	// Required level per priority value.
	PriorityThresholds map[string]float64 `toml:"priority_thresholds"`
}

func (c Concentration) FatigueFor(p domain.Priority) float64 {
	return lookupPriority(c.PriorityFatigue, p, 1.0)
}

func (c Concentration) ConsecutiveFor(p domain.Priority) float64 {
	return lookupPriority(c.ConsecutivePenalty, p, 1.0)
}

func (c Concentration) Thresholds() map[domain.Priority]float64 {
	out := make(map[domain.Priority]float64, len(domain.Priorities))
	for _, p := range domain.Priorities {
		out[p] = lookupPriority(c.PriorityThresholds, p, 0.5)
	}
	return out
}

func lookupPriority(m map[string]float64, p domain.Priority, def float64) float64 {
	if v, ok := m[fmt.Sprint(int(p))]; ok {
		return v
	}
	return def
}

type Breaks struct {
	Threshold float64 `toml:"threshold"`
}

type Generation struct {
	DurationMode        string  `toml:"duration_mode"`
	ShortTaskMin        int     `toml:"short_task_min"`
	ShortTaskMax        int     `toml:"short_task_max"`
	MediumTaskMax       int     `toml:"medium_task_max"`
	LongTaskMax         int     `toml:"long_task_max"`
	ShortTaskRatio      float64 `toml:"short_task_ratio"`
	MediumTaskRatio     float64 `toml:"medium_task_ratio"`
	PriorityLowRatio    float64 `toml:"priority_low_ratio"`
	PriorityMediumRatio float64 `toml:"priority_medium_ratio"`
	// Inclusive duration ranges per priority for duration_mode = "priority".
	PriorityDurations map[string][]int `toml:"priority_durations"`

	DeadlineBaseDays       float64 `toml:"deadline_base_days"`
	DeadlineDurationFactor float64 `toml:"deadline_duration_factor"`
	DeadlinePriorityFactor float64 `toml:"deadline_priority_factor"`

	Genres             []string           `toml:"genres"`
	GenreDistribution  map[string]float64 `toml:"genre_distribution"`
	DependencyRatio    float64            `toml:"dependency_ratio"`
	DependencyWindow   int                `toml:"dependency_window_size"`
	DependencyGapHours float64            `toml:"dependency_deadline_gap_hours"`
	MaxAttempts        int                `toml:"max_attempts"`

	HiddenEnabled bool    `toml:"hidden_enabled"`
	EffortMean    float64 `toml:"effort_mean"`
	EffortStd     float64 `toml:"effort_std"`
	EffortMin     float64 `toml:"effort_min"`
	EffortMax     float64 `toml:"effort_max"`
	AffinityMin   float64 `toml:"affinity_min"`
	AffinityMax   float64 `toml:"affinity_max"`
}

type RL struct {
	LearningRate   float64  `toml:"learning_rate"`
	DiscountFactor float64  `toml:"discount_factor"`
	Epsilon        float64  `toml:"epsilon"`
	State          State    `toml:"state"`
	Reward         Reward   `toml:"reward"`
	Policy         Policy   `toml:"policy"`
	Training       Training `toml:"training"`
}

// State holds the discretization parameters. Changing any of them
// invalidates previously saved Q-tables.
type State struct {
	NumTasksBinDivisor    int `toml:"num_tasks_bin_divisor" json:"num_tasks_bin_divisor"`
	NumTasksBinMax        int `toml:"num_tasks_bin_max" json:"num_tasks_bin_max"`
	HighPriorityRatioBins int `toml:"high_priority_ratio_bins" json:"high_priority_ratio_bins"`
	DeadlineBinHours      int `toml:"deadline_bin_hours" json:"deadline_bin_hours"`
	DeadlineBinMax        int `toml:"deadline_bin_max" json:"deadline_bin_max"`
	AvgDurationBinMinutes int `toml:"avg_duration_bin_minutes" json:"avg_duration_bin_minutes"`
	AvgDurationBinMax     int `toml:"avg_duration_bin_max" json:"avg_duration_bin_max"`
	ConcentrationBins     int `toml:"concentration_bins" json:"concentration_bins"`
	FatigueBins           int `toml:"fatigue_bins" json:"fatigue_bins"`
	// Genre history bin: index into Generation.Genres plus one.
	GenreBinMax int `toml:"genre_bin_max" json:"genre_bin_max"`
}

type Reward struct {
	HighConcentrationBonus       float64 `toml:"high_concentration_bonus"`
	HighConcentrationThreshold   float64 `toml:"high_concentration_threshold"`
	DeadlineMetBonus             float64 `toml:"deadline_met_bonus"`
	DeadlineMissPenalty          float64 `toml:"deadline_miss_penalty"`
	OverrunPenaltyMultiplier     float64 `toml:"overrun_penalty_multiplier"`
	RecklessAttemptPenalty       float64 `toml:"reckless_attempt_penalty"`
	GenreContinuityBonus         float64 `toml:"genre_continuity_bonus"`
	GenreContinuityPenalty       float64 `toml:"genre_continuity_penalty"`
	ConsecutivePriorityPenalty   float64 `toml:"consecutive_priority_penalty"`
	ConsecutivePriorityLimit     int     `toml:"consecutive_priority_limit"`
	FailureTimePenaltyMultiplier float64 `toml:"failure_time_penalty_multiplier"`
	BreakPenaltyPerMinute        float64 `toml:"break_penalty_per_minute"`
}

type Policy struct {
	PriorityWeight float64 `toml:"priority_weight"`
	MinDays        float64 `toml:"min_days"`
	// Candidates are narrowed to the shortest non-empty duration class
	// before a policy ranks them.
	ShortTaskThreshold  int `toml:"short_task_threshold"`
	MediumTaskThreshold int `toml:"medium_task_threshold"`
}

type Training struct {
	TrainEpsilon     float64 `toml:"train_epsilon"`
	TestEpsilon      float64 `toml:"test_epsilon"`
	EpsilonDecayRate float64 `toml:"epsilon_decay_rate"`
	MinEpsilon       float64 `toml:"min_epsilon"`
	Episodes         int     `toml:"episodes"`
}

type Experiment struct {
	Repetitions int    `toml:"num_experiments"`
	Parallel    int    `toml:"parallel"`
	DBPath      string `toml:"db_path"`
	ModelPath   string `toml:"model_path"`
}

type Server struct {
	Addr           string   `toml:"addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, cfg.Validate()
	}
	resolved, err := expandHome(path)
	if err != nil {
		return Config{}, err
	}

	bytes, err := os.ReadFile(resolved)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
	}
	if _, err := toml.Decode(string(bytes), &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file: %w", err)
	}
	cfg.Path = resolved

	if cfg.PersonalDataPath != "" {
		personalPath := cfg.PersonalDataPath
		if !filepath.IsAbs(personalPath) && !strings.HasPrefix(personalPath, "~") {
			personalPath = filepath.Join(filepath.Dir(resolved), personalPath)
		}
		traits, err := LoadPersonal(personalPath, cfg.Personal)
		if err != nil {
			return Config{}, err
		}
		cfg.Personal = traits
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func expandHome(path string) (string, error) {
	resolved := path
	if strings.HasPrefix(resolved, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed := strings.TrimPrefix(resolved, "~")
		trimmed = strings.TrimPrefix(trimmed, "\\")
		trimmed = strings.TrimPrefix(trimmed, "/")
		resolved = filepath.Join(home, trimmed)
	}
	return filepath.Clean(resolved), nil
}
