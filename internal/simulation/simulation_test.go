package simulation

import (
	"io"
	"log"
	"math"
	"reflect"
	"testing"
	"time"

	"focus_sched/internal/concentration"
	"focus_sched/internal/config"
	"focus_sched/internal/domain"
	"focus_sched/internal/qlearn"
	"focus_sched/internal/scheduler"
	"focus_sched/internal/taskgen"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Simulation.Days = 3
	return cfg
}

func newTestScheduler(t *testing.T, cfg config.Config, selector scheduler.TaskSelector) *scheduler.Scheduler {
	t.Helper()
	model, err := concentration.New(cfg.Concentration, cfg.Personal)
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	return scheduler.New("", selector, scheduler.NewConcentrationBreak(model, cfg.Breaks.Threshold), model, scheduler.Options{
		Thresholds:            cfg.Concentration.Thresholds(),
		FailureEnabled:        cfg.Simulation.FailureEnabled,
		MinSuccessProbability: cfg.Simulation.MinSuccessProbability,
	})
}

func quietSimulator(cfg config.Config) *Simulator {
	return New(cfg.Simulation, log.New(io.Discard, "", 0))
}

func generated(t *testing.T, cfg config.Config, seed int64) []domain.Task {
	t.Helper()
	tasks, err := taskgen.New(cfg.Generation, seed).Generate(cfg.Simulation.NumTasks, cfg.Simulation.Start)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return tasks
}

func TestExampleDayCompletesAllTasks(t *testing.T) {
	cfg := config.Default()
	cfg.Simulation.Days = 1
	start := cfg.Simulation.Start
	tasks := []domain.Task{
		{ID: 1, Name: "a", BaseDurationMinutes: 30, Priority: domain.PriorityLow, Deadline: start.Add(24 * time.Hour), Genre: "1"},
		{ID: 2, Name: "b", BaseDurationMinutes: 60, Priority: domain.PriorityMedium, Deadline: start.Add(48 * time.Hour), Genre: "1"},
		{ID: 3, Name: "c", BaseDurationMinutes: 120, Priority: domain.PriorityHigh, Deadline: start.Add(72 * time.Hour), Genre: "1"},
	}
	res, err := quietSimulator(cfg).Run(newTestScheduler(t, cfg, scheduler.DeadlineFirst{}), tasks)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.CompletedCount != 3 || res.TotalScore != 510 {
		t.Fatalf("completed=%d score=%d", res.CompletedCount, res.TotalScore)
	}
	if res.DeadlineComplianceRate != 1 || res.CompletionRate != 1 || res.OverdueCount != 0 {
		t.Fatalf("rates: %+v", res)
	}
	wantOrder := []int{1, 2, 3}
	for i, s := range res.Completed {
		if s.ID != wantOrder[i] {
			t.Fatalf("completion order %v", res.Completed)
		}
	}
	// 24 + 60 + 144 minutes of work, then one break once the level bottoms out.
	if math.Abs(res.TotalWorkMinutes-228) > 1e-9 || res.TotalBreakMinutes != 15 {
		t.Fatalf("work=%v break=%v", res.TotalWorkMinutes, res.TotalBreakMinutes)
	}
	if len(res.Events) != 4 || res.Events[3].Kind != domain.EventBreak {
		t.Fatalf("events=%+v", res.Events)
	}
	if !res.Events[1].At.Equal(start.Add(24 * time.Minute)) {
		t.Fatalf("second event at %v", res.Events[1].At)
	}
	if math.Abs(res.Efficiency-228.0/243.0) > 1e-9 {
		t.Fatalf("efficiency=%v", res.Efficiency)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	cfg := testConfig()
	cfg.Simulation.FailureEnabled = true
	tasks := generated(t, cfg, 21)
	sim := quietSimulator(cfg)

	rl := qlearn.New(cfg, 5)
	rl.SetLearning(false)
	rl.SetEpsilon(0.3)
	selectors := []scheduler.TaskSelector{
		scheduler.DeadlineFirst{},
		scheduler.PriorityFirst{},
		scheduler.NewRandom(5),
		rl,
	}
	for _, sel := range selectors {
		sched := newTestScheduler(t, cfg, sel)
		first, err := sim.Run(sched, tasks)
		if err != nil {
			t.Fatalf("%s: %v", sel.Name(), err)
		}
		second, err := sim.Run(sched, tasks)
		if err != nil {
			t.Fatalf("%s: %v", sel.Name(), err)
		}
		if !reflect.DeepEqual(first.Events, second.Events) {
			t.Fatalf("%s: event logs differ between runs", sel.Name())
		}
		if first.RunID == second.RunID {
			t.Fatalf("%s: run ids must be unique", sel.Name())
		}
	}
}

func TestRunLeavesTemplatesUntouched(t *testing.T) {
	cfg := testConfig()
	tasks := generated(t, cfg, 3)
	before := domain.CloneTasks(tasks)
	if _, err := quietSimulator(cfg).Run(newTestScheduler(t, cfg, scheduler.PriorityFirst{}), tasks); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !reflect.DeepEqual(before, tasks) {
		t.Fatalf("templates mutated by run")
	}
}

func TestResultInvariants(t *testing.T) {
	cfg := testConfig()
	cfg.Simulation.NumTasks = 60
	tasks := generated(t, cfg, 8)
	res, err := quietSimulator(cfg).Run(newTestScheduler(t, cfg, scheduler.NewRandom(1)), tasks)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.CompletedCount+res.IncompleteCount != len(tasks) {
		t.Fatalf("counts %d+%d != %d", res.CompletedCount, res.IncompleteCount, len(tasks))
	}
	want := float64(res.CompletedCount) / float64(len(tasks))
	if res.CompletionRate != want {
		t.Fatalf("completion rate=%v want %v", res.CompletionRate, want)
	}
	if res.OverdueCount > res.IncompleteCount {
		t.Fatalf("overdue %d exceeds incomplete %d", res.OverdueCount, res.IncompleteCount)
	}
	var work, rest float64
	for _, ev := range res.Events {
		if ev.Concentration < cfg.Concentration.MinLevel || ev.Concentration > 1 {
			t.Fatalf("event concentration %v out of range", ev.Concentration)
		}
		if ev.Day < 0 || ev.Day >= cfg.Simulation.Days {
			t.Fatalf("event day %d", ev.Day)
		}
		if ev.Kind == domain.EventWork {
			work += ev.DurationMinutes
		} else {
			rest += ev.DurationMinutes
		}
	}
	if math.Abs(work-res.TotalWorkMinutes) > 1e-6 || rest != res.TotalBreakMinutes {
		t.Fatalf("event totals work=%v break=%v vs result %v/%v", work, rest, res.TotalWorkMinutes, res.TotalBreakMinutes)
	}
}

func TestEmptyTaskSet(t *testing.T) {
	cfg := testConfig()
	res, err := quietSimulator(cfg).Run(newTestScheduler(t, cfg, scheduler.DeadlineFirst{}), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.CompletionRate != 0 || res.DeadlineComplianceRate != 0 || res.Efficiency != 0 || len(res.Events) != 0 {
		t.Fatalf("empty run result %+v", res)
	}
}

func TestReplayReproducesPlanWithSameTasks(t *testing.T) {
	cfg := testConfig()
	tasks := generated(t, cfg, 13)
	sim := quietSimulator(cfg)
	sched := newTestScheduler(t, cfg, scheduler.DeadlineFirst{})
	res, err := sim.Run(sched, tasks)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	replayed, err := sim.Replay(sched, res.Events, tasks)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !reflect.DeepEqual(res.Events, replayed.Events) {
		t.Fatalf("replay against identical tasks diverged")
	}
}

func TestReplayAppliesHiddenEffort(t *testing.T) {
	cfg := testConfig()
	tasks := taskgen.StripHidden(generated(t, cfg, 13))
	sim := quietSimulator(cfg)
	sched := newTestScheduler(t, cfg, scheduler.PriorityFirst{})
	planned, err := sim.Run(sched, tasks)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	slower := domain.CloneTasks(tasks)
	for i := range slower {
		slower[i].Hidden.EffortMultiplier = 1.4
	}
	actual, err := sim.Replay(sched, planned.Events, slower)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(actual.Events) == 0 || len(actual.Events) > len(planned.Events) {
		t.Fatalf("replayed %d events from a plan of %d", len(actual.Events), len(planned.Events))
	}
	first := actual.Events[0]
	if first.Kind == domain.EventWork && math.Abs(first.DurationMinutes-planned.Events[0].DurationMinutes*1.4) > 1e-9 {
		t.Fatalf("first duration %v want %v", first.DurationMinutes, planned.Events[0].DurationMinutes*1.4)
	}
}

func TestReplayRejectsUnknownTask(t *testing.T) {
	cfg := testConfig()
	id := 999
	plan := []domain.Event{{Day: 0, Kind: domain.EventWork, TaskID: &id}}
	_, err := quietSimulator(cfg).Replay(newTestScheduler(t, cfg, scheduler.DeadlineFirst{}), plan, generated(t, cfg, 1))
	if err == nil {
		t.Fatalf("expected error for unknown task")
	}
}
