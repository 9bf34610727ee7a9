package qlearn

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"focus_sched/internal/config"
	"focus_sched/internal/domain"
	"focus_sched/internal/scheduler"
)

func trainedSelector(t *testing.T) (*Selector, State, Action) {
	t.Helper()
	s := newTestSelector(0)
	b := policyBacklog(t)
	s.Select(b, scheduler.Snapshot{Now: start, Level: 1})
	s.UpdateQValue(42, nil, true)
	st, action, _ := s.LastStep()
	return s, st, action
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, st, action := trainedSelector(t)
	s.SetEpsilon(0.25)
	path := filepath.Join(t.TempDir(), "models", "q.json")
	if err := s.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := newTestSelector(0)
	if err := loaded.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.QValues(st) != s.QValues(st) {
		t.Fatalf("values=%v want %v", loaded.QValues(st), s.QValues(st))
	}
	if loaded.QValues(st)[action] == 0 {
		t.Fatalf("trained value lost")
	}
	if loaded.Epsilon() != 0.25 || loaded.Stats().States != s.Stats().States {
		t.Fatalf("epsilon=%v states=%d", loaded.Epsilon(), loaded.Stats().States)
	}
}

func TestLoadMissingFileIsNotFound(t *testing.T) {
	s := newTestSelector(0)
	err := s.Load(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestLoadRejectsCorruptFiles(t *testing.T) {
	cases := map[string]string{
		"not json":      `{"q_table": [`,
		"missing field": `{"format_version":1,"actions":[],"learning_rate":0.1,"discount_factor":0.9,"q_table":[]}`,
		"bad entry": `{"format_version":1,"discretization":{},"genres":[],"actions":[],"learning_rate":0.1,` +
			`"discount_factor":0.9,"epsilon":0.1,"q_table":[{"state":[1,2],"values":[0]}]}`,
	}
	for name, body := range cases {
		path := filepath.Join(t.TempDir(), "q.json")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		err := newTestSelector(0).Load(path)
		if !errors.Is(err, domain.ErrCorrupt) {
			t.Fatalf("%s: err=%v want ErrCorrupt", name, err)
		}
	}
}

func TestLoadRejectsDifferentDiscretization(t *testing.T) {
	s, _, _ := trainedSelector(t)
	path := filepath.Join(t.TempDir(), "q.json")
	if err := s.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	cases := map[string]func(*config.Config){
		"deadline bin width": func(c *config.Config) { c.RL.State.DeadlineBinHours = 6 },
		"reordered genres":   func(c *config.Config) { c.Generation.Genres = []string{"4", "3", "2", "1"} },
		"extra genre":        func(c *config.Config) { c.Generation.Genres = append(c.Generation.Genres, "5") },
	}
	for name, mutate := range cases {
		cfg := config.Default()
		mutate(&cfg)
		other := New(cfg, 1)
		err := other.Load(path)
		if !errors.Is(err, ErrIncompatible) || !errors.Is(err, domain.ErrCorrupt) {
			t.Fatalf("%s: err=%v want ErrIncompatible wrapping ErrCorrupt", name, err)
		}
		if other.Stats().States != 0 {
			t.Fatalf("%s: failed load replaced the table", name)
		}
	}
}

func TestLoadRejectsOutOfRangeHyperparameters(t *testing.T) {
	cases := map[string]func(*Selector){
		"learning rate above one": func(s *Selector) { s.learningRate = 5 },
		"zero learning rate":      func(s *Selector) { s.learningRate = 0 },
		"negative discount":       func(s *Selector) { s.discountFactor = -0.1 },
		"epsilon above one":       func(s *Selector) { s.epsilon = 1.5 },
	}
	for name, mutate := range cases {
		s, _, _ := trainedSelector(t)
		mutate(s)
		path := filepath.Join(t.TempDir(), "q.json")
		if err := s.Save(path); err != nil {
			t.Fatalf("%s: save: %v", name, err)
		}
		loaded := newTestSelector(0.3)
		err := loaded.Load(path)
		if !errors.Is(err, domain.ErrCorrupt) || errors.Is(err, ErrIncompatible) {
			t.Fatalf("%s: err=%v want ErrCorrupt", name, err)
		}
		if loaded.Epsilon() != 0.3 || loaded.Stats().States != 0 {
			t.Fatalf("%s: failed load changed the selector", name)
		}
	}
}
