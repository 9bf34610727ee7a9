package sqlite

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"focus_sched/internal/concentration"
	"focus_sched/internal/config"
	"focus_sched/internal/domain"
	"focus_sched/internal/scheduler"
	"focus_sched/internal/simulation"
	"focus_sched/internal/taskgen"
)

func TestDatasetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	cfg := config.Default()
	tasks, err := taskgen.New(cfg.Generation, 11).Generate(25, cfg.Simulation.Start)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	ds, err := store.CreateDataset(ctx, domain.Dataset{Kind: domain.DatasetTest, Index: 0, Seed: 11}, tasks)
	if err != nil {
		t.Fatalf("create dataset: %v", err)
	}
	if ds.ID == "" || ds.TaskCount != len(tasks) {
		t.Fatalf("unexpected dataset %+v", ds)
	}

	loaded, err := store.LoadTasksByIndex(ctx, domain.DatasetTest, 0)
	if err != nil {
		t.Fatalf("load by index: %v", err)
	}
	if len(loaded) != len(tasks) {
		t.Fatalf("loaded %d tasks want %d", len(loaded), len(tasks))
	}
	for i := range tasks {
		want, got := tasks[i], loaded[i]
		if got.ID != want.ID || got.Name != want.Name || got.Priority != want.Priority || got.Genre != want.Genre {
			t.Fatalf("task %d mismatch: got=%+v want=%+v", i, got, want)
		}
		if got.BaseDurationMinutes != want.BaseDurationMinutes || got.Hidden != want.Hidden || got.MaxAttempts != want.MaxAttempts {
			t.Fatalf("task %d attributes mismatch: got=%+v want=%+v", i, got, want)
		}
		if d := got.Deadline.Sub(want.Deadline); d < -time.Millisecond || d > time.Millisecond {
			t.Fatalf("task %d deadline drift %v", i, d)
		}
		if len(got.Dependencies) != len(want.Dependencies) {
			t.Fatalf("task %d dependencies got=%v want=%v", i, got.Dependencies, want.Dependencies)
		}
		for j := range want.Dependencies {
			if got.Dependencies[j] != want.Dependencies[j] {
				t.Fatalf("task %d dependencies got=%v want=%v", i, got.Dependencies, want.Dependencies)
			}
		}
	}
	if _, err := domain.NewBacklog(loaded); err != nil {
		t.Fatalf("loaded tasks do not form a backlog: %v", err)
	}
}

func TestLoadTasksByIndexOutOfRange(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	_, err := store.LoadTasksByIndex(ctx, domain.DatasetTrain, 3)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, err = store.LoadTasks(ctx, "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateDatasetRejectsInvalidTasks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	tasks := []domain.Task{
		{ID: 1, Name: "a", BaseDurationMinutes: 30, Priority: domain.PriorityLow, Deadline: start, Genre: "1"},
		{ID: 1, Name: "b", BaseDurationMinutes: 30, Priority: domain.PriorityLow, Deadline: start, Genre: "1"},
	}
	if _, err := store.CreateDataset(ctx, domain.Dataset{Kind: domain.DatasetTrain}, tasks); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	datasets, err := store.ListDatasets(ctx, "")
	if err != nil {
		t.Fatalf("list datasets: %v", err)
	}
	if len(datasets) != 0 {
		t.Fatalf("rejected dataset was stored: %+v", datasets)
	}
}

func TestListDatasetsByKind(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	cfg := config.Default()
	gen := taskgen.New(cfg.Generation, 2)
	for _, tc := range []struct {
		kind  domain.DatasetKind
		index int
	}{
		{domain.DatasetTrain, 1},
		{domain.DatasetTest, 0},
		{domain.DatasetTrain, 0},
	} {
		tasks, err := gen.Generate(5, cfg.Simulation.Start)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if _, err := store.CreateDataset(ctx, domain.Dataset{Kind: tc.kind, Index: tc.index}, tasks); err != nil {
			t.Fatalf("create dataset: %v", err)
		}
	}

	train, err := store.ListDatasets(ctx, domain.DatasetTrain)
	if err != nil {
		t.Fatalf("list train: %v", err)
	}
	if len(train) != 2 || train[0].Index != 0 || train[1].Index != 1 {
		t.Fatalf("unexpected train datasets: %+v", train)
	}
	all, err := store.ListDatasets(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 datasets, got %d", len(all))
	}

	tasks, err := gen.Generate(5, cfg.Simulation.Start)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := store.CreateDataset(ctx, domain.Dataset{Kind: domain.DatasetTrain, Index: 1}, tasks); err == nil {
		t.Fatalf("expected duplicate index to be rejected")
	}
}

func TestSaveAndListRuns(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	cfg := config.Default()
	cfg.Simulation.Days = 2
	tasks, err := taskgen.New(cfg.Generation, 4).Generate(15, cfg.Simulation.Start)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	ds, err := store.CreateDataset(ctx, domain.Dataset{Kind: domain.DatasetTest, Seed: 4}, tasks)
	if err != nil {
		t.Fatalf("create dataset: %v", err)
	}

	model, err := concentration.New(cfg.Concentration, cfg.Personal)
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	sched := scheduler.New("", scheduler.DeadlineFirst{}, scheduler.NewConcentrationBreak(model, cfg.Breaks.Threshold), model, scheduler.Options{
		Thresholds: cfg.Concentration.Thresholds(),
	})
	sim := simulation.New(cfg.Simulation, log.New(io.Discard, "", 0))
	first, err := sim.Run(sched, tasks)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	second, err := sim.Run(sched, tasks)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := store.SaveRun(ctx, ds.ID, first); err != nil {
		t.Fatalf("save first run: %v", err)
	}
	if err := store.SaveRun(ctx, "", second); err != nil {
		t.Fatalf("save second run: %v", err)
	}

	got, err := store.GetRun(ctx, first.RunID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.DatasetID != ds.ID || got.Scheduler != first.Scheduler || got.TotalScore != first.TotalScore {
		t.Fatalf("unexpected run record %+v", got)
	}
	if got.CompletedCount != first.CompletedCount || len(got.Completed) != len(first.Completed) {
		t.Fatalf("completed mismatch got=%d want=%d", got.CompletedCount, first.CompletedCount)
	}
	if got.Efficiency != first.Efficiency || got.DeadlineComplianceRate != first.DeadlineComplianceRate {
		t.Fatalf("rates mismatch got=%+v", got)
	}

	events, err := store.ListRunEvents(ctx, first.RunID, 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != len(first.Events) {
		t.Fatalf("events=%d want=%d", len(events), len(first.Events))
	}
	for i, ev := range events {
		want := first.Events[i]
		if ev.Kind != want.Kind || ev.Day != want.Day || ev.DurationMinutes != want.DurationMinutes {
			t.Fatalf("event %d got=%+v want=%+v", i, ev, want)
		}
		if (ev.TaskID == nil) != (want.TaskID == nil) || (ev.TaskID != nil && *ev.TaskID != *want.TaskID) {
			t.Fatalf("event %d task id mismatch", i)
		}
	}
	limited, err := store.ListRunEvents(ctx, first.RunID, 1)
	if err != nil {
		t.Fatalf("list limited events: %v", err)
	}
	if len(first.Events) > 0 && len(limited) != 1 {
		t.Fatalf("limit ignored: %d events", len(limited))
	}

	runs, err := store.ListRuns(ctx, "", 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != second.RunID {
		t.Fatalf("expected newest run first, got %d runs", len(runs))
	}
	if runs[0].DatasetID != "" {
		t.Fatalf("expected no dataset for second run, got %q", runs[0].DatasetID)
	}
	none, err := store.ListRuns(ctx, "priority", 10)
	if err != nil {
		t.Fatalf("list runs by scheduler: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no priority runs, got %d", len(none))
	}

	if _, err := store.GetRun(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		t.Fatalf("migrate store: %v", err)
	}
	return store
}
