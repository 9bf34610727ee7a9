package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"focus_sched/internal/domain"
)

func TestDefaultIsValid(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if cfg.Simulation.WorkMinutesPerDay() != 480 {
		t.Fatalf("work minutes=%d want 480", cfg.Simulation.WorkMinutesPerDay())
	}
	if got := cfg.Concentration.Thresholds()[domain.PriorityHigh]; got != 0.8 {
		t.Fatalf("high threshold=%v want 0.8", got)
	}
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "personal.yaml"), `
genre_preference: switch
genre_bonus: 0.1
sustainability: long
`)
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, `
personal_data_path = "personal.yaml"

[simulation]
simulation_days = 2
work_hours_per_day = 4

[concentration.priority_fatigue]
"3" = 2.0

[rl]
epsilon = 0.3
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Simulation.Days != 2 || cfg.Simulation.WorkHoursPerDay != 4 {
		t.Fatalf("simulation=%+v", cfg.Simulation)
	}
	if cfg.Simulation.NumTasks != 30 {
		t.Fatalf("num_tasks default lost: %d", cfg.Simulation.NumTasks)
	}
	if got := cfg.Concentration.FatigueFor(domain.PriorityHigh); got != 2.0 {
		t.Fatalf("high fatigue=%v want 2.0", got)
	}
	if got := cfg.Concentration.FatigueFor(domain.PriorityMedium); got != 1.3 {
		t.Fatalf("medium fatigue default lost: %v", got)
	}
	if cfg.RL.Epsilon != 0.3 || cfg.RL.LearningRate != 0.1 {
		t.Fatalf("rl=%+v", cfg.RL)
	}
	if cfg.Personal.GenrePreference != PreferenceSwitch || cfg.Personal.GenreBonus != 0.1 {
		t.Fatalf("personal=%+v", cfg.Personal)
	}
	if cfg.Personal.GenrePenalty != 0.05 {
		t.Fatalf("personal penalty default lost: %v", cfg.Personal.GenrePenalty)
	}
	if cfg.Personal.Sustainability != "long" {
		t.Fatalf("sustainability=%q want long", cfg.Personal.Sustainability)
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	cases := map[string]func(*Config){
		"negative days":     func(c *Config) { c.Simulation.Days = -1 },
		"epsilon above one": func(c *Config) { c.RL.Epsilon = 1.5 },
		"unknown trait":     func(c *Config) { c.Personal.Sustainability = "forever" },
		"bad preference":    func(c *Config) { c.Personal.GenrePreference = "sometimes" },
		"zero bin width":    func(c *Config) { c.RL.State.DeadlineBinHours = 0 },
		"ratios over one":   func(c *Config) { c.Generation.PriorityLowRatio = 0.9 },
		"zero duration":     func(c *Config) { c.Generation.PriorityDurations["1"] = []int{0, 10} },
		"inverted duration": func(c *Config) { c.Generation.PriorityDurations["2"] = []int{120, 30} },
		"duration triple":   func(c *Config) { c.Generation.PriorityDurations["3"] = []int{60, 120, 180} },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("%s: err=%v want ErrInvalidArgument", name, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
