package main

import (
	"strings"
	"testing"

	"focus_sched/internal/domain"
	"focus_sched/internal/experiment"
)

func TestRenderSummaryListsSchedulers(t *testing.T) {
	out := renderSummary([]experiment.Summary{
		{Scheduler: "deadline", Runs: 3, MeanScore: 120.5},
		{Scheduler: "rl", Runs: 3, MeanScore: 140},
	})
	for _, want := range []string{"deadline", "rl", "120.5", "140.0"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestRenderEventsMarksBreaks(t *testing.T) {
	id := 4
	done := false
	out := renderEvents([]domain.Event{
		{Kind: domain.EventWork, TaskID: &id, Completed: &done, DurationMinutes: 30},
		{Kind: domain.EventBreak, DurationMinutes: 15},
	})
	if !strings.Contains(out, "break") || !strings.Contains(out, "false") {
		t.Fatalf("unexpected event table:\n%s", out)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" rl, deadline ,,")
	if len(got) != 2 || got[0] != "rl" || got[1] != "deadline" {
		t.Fatalf("splitList=%v", got)
	}
	if splitList("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestFormatProgress(t *testing.T) {
	got := formatProgress(domain.Progress{Stage: domain.StageComparing, Step: 2, Total: 8, Scheduler: "rl", Score: 90})
	if got != "compare 2/8 scheduler=rl score=90" {
		t.Fatalf("formatProgress=%q", got)
	}
}
