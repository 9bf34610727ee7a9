package qlearn

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/tidwall/gjson"

	"focus_sched/internal/config"
	"focus_sched/internal/domain"
)

const formatVersion = 1

// ErrIncompatible marks a table trained under different bins, genres or actions.
var ErrIncompatible = fmt.Errorf("%w: q-table trained with a different discretization", domain.ErrCorrupt)

var requiredFields = []string{
	"format_version",
	"discretization",
	"genres",
	"actions",
	"learning_rate",
	"discount_factor",
	"epsilon",
	"q_table",
}

type tableEntry struct {
	State  [8]int              `json:"state"`
	Values [NumActions]float64 `json:"values"`
}

type tableFile struct {
	FormatVersion  int          `json:"format_version"`
	Discretization config.State `json:"discretization"`
	Genres         []string     `json:"genres"`
	Actions        []string     `json:"actions"`
	LearningRate   float64      `json:"learning_rate"`
	DiscountFactor float64      `json:"discount_factor"`
	Epsilon        float64      `json:"epsilon"`
	QTable         []tableEntry `json:"q_table"`
}

// Save writes the table with its hyperparameters and discretization.
func (s *Selector) Save(path string) error {
	entries := make([]tableEntry, 0, len(s.table))
	for st, values := range s.table {
		entries = append(entries, tableEntry{State: st.array(), Values: values})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].State, entries[j].State
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
	payload := tableFile{
		FormatVersion:  formatVersion,
		Discretization: s.disc.cfg,
		Genres:         s.genres,
		Actions:        ActionNames(),
		LearningRate:   s.learningRate,
		DiscountFactor: s.discountFactor,
		Epsilon:        s.epsilon,
		QTable:         entries,
	}
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode q-table: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create model directory: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write q-table: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace q-table: %w", err)
	}
	return nil
}

// Load replaces the table and hyperparameters with the file's contents.
// A missing file is domain.ErrNotFound; malformed content is
// domain.ErrCorrupt.
func (s *Selector) Load(path string) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: q-table %s", domain.ErrNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("read q-table: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		return fmt.Errorf("%w: q-table %s is not valid json", domain.ErrCorrupt, path)
	}
	for _, field := range requiredFields {
		if !gjson.GetBytes(raw, field).Exists() {
			return fmt.Errorf("%w: q-table %s missing %q", domain.ErrCorrupt, path, field)
		}
	}
	if v := gjson.GetBytes(raw, "format_version").Int(); v != formatVersion {
		return fmt.Errorf("%w: format version %d", ErrIncompatible, v)
	}
	if !gjson.GetBytes(raw, "q_table").IsArray() || !gjson.GetBytes(raw, "actions").IsArray() {
		return fmt.Errorf("%w: q-table %s has malformed arrays", domain.ErrCorrupt, path)
	}

	malformed := false
	gjson.GetBytes(raw, "q_table").ForEach(func(_, entry gjson.Result) bool {
		if len(entry.Get("state").Array()) != 8 || len(entry.Get("values").Array()) != NumActions {
			malformed = true
			return false
		}
		return true
	})
	if malformed {
		return fmt.Errorf("%w: q-table %s has an entry of the wrong shape", domain.ErrCorrupt, path)
	}

	var payload tableFile
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("%w: decode q-table %s: %v", domain.ErrCorrupt, path, err)
	}
	if payload.Discretization != s.disc.cfg {
		return fmt.Errorf("%w: saved bins %+v, running bins %+v", ErrIncompatible, payload.Discretization, s.disc.cfg)
	}
	if !sameStrings(payload.Genres, s.genres) {
		return fmt.Errorf("%w: saved genres %v, running %v", ErrIncompatible, payload.Genres, s.genres)
	}
	names := ActionNames()
	if len(payload.Actions) != len(names) {
		return fmt.Errorf("%w: saved %d actions, running %d", ErrIncompatible, len(payload.Actions), len(names))
	}
	for i := range names {
		if payload.Actions[i] != names[i] {
			return fmt.Errorf("%w: action %d is %q, running %q", ErrIncompatible, i, payload.Actions[i], names[i])
		}
	}

	if payload.LearningRate <= 0 || payload.LearningRate > 1 {
		return fmt.Errorf("%w: q-table %s learning_rate=%v outside (0,1]", domain.ErrCorrupt, path, payload.LearningRate)
	}
	if payload.DiscountFactor < 0 || payload.DiscountFactor > 1 {
		return fmt.Errorf("%w: q-table %s discount_factor=%v outside [0,1]", domain.ErrCorrupt, path, payload.DiscountFactor)
	}
	if payload.Epsilon < 0 || payload.Epsilon > 1 {
		return fmt.Errorf("%w: q-table %s epsilon=%v outside [0,1]", domain.ErrCorrupt, path, payload.Epsilon)
	}

	table := make(Table, len(payload.QTable))
	for _, entry := range payload.QTable {
		table[stateFromArray(entry.State)] = entry.Values
	}
	s.table = table
	s.learningRate = payload.LearningRate
	s.discountFactor = payload.DiscountFactor
	s.epsilon = payload.Epsilon
	s.history = s.history[:0]
	s.prev = memory{}
	return nil
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
