package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"focus_sched/internal/domain"
	"focus_sched/internal/experiment"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E5C07B")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#C678DD"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#3F4451"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func renderDatasets(datasets []domain.Dataset) string {
	t := newTable("kind", "index", "seed", "tasks", "id")
	for _, ds := range datasets {
		t.Row(string(ds.Kind), strconv.Itoa(ds.Index), strconv.FormatInt(ds.Seed, 10), strconv.Itoa(ds.TaskCount), ds.ID)
	}
	return titleStyle.Render(fmt.Sprintf("%d datasets stored", len(datasets))) + "\n" + t.String()
}

func renderTraining(res experiment.TrainOutput) string {
	n := len(res.EpisodeRewards)
	window := 50
	if window > n {
		window = n
	}
	var reward, score float64
	for i := n - window; i < n; i++ {
		reward += res.EpisodeRewards[i]
		score += float64(res.EpisodeScores[i])
	}
	if window > 0 {
		reward /= float64(window)
		score /= float64(window)
	}
	t := newTable("episodes", "states", "updates", "mean reward", fmt.Sprintf("last %d reward", window), fmt.Sprintf("last %d score", window))
	t.Row(
		strconv.Itoa(n),
		strconv.Itoa(res.Stats.States),
		strconv.Itoa(res.Stats.Updates),
		fmt.Sprintf("%.2f", res.Stats.MeanReward),
		fmt.Sprintf("%.2f", reward),
		fmt.Sprintf("%.1f", score),
	)
	return titleStyle.Render("training finished") + "\n" + t.String()
}

func renderSummary(summary []experiment.Summary) string {
	t := newTable("scheduler", "runs", "score", "std", "completed", "overdue", "completion", "on time", "work min", "break min", "efficiency")
	for _, s := range summary {
		t.Row(
			s.Scheduler,
			strconv.Itoa(s.Runs),
			fmt.Sprintf("%.1f", s.MeanScore),
			fmt.Sprintf("%.1f", s.StdScore),
			fmt.Sprintf("%.1f", s.MeanCompleted),
			fmt.Sprintf("%.1f", s.MeanOverdue),
			fmt.Sprintf("%.1f%%", s.MeanCompletionRate*100),
			fmt.Sprintf("%.1f%%", s.MeanDeadlineCompliance*100),
			fmt.Sprintf("%.0f", s.MeanWorkMinutes),
			fmt.Sprintf("%.0f", s.MeanBreakMinutes),
			fmt.Sprintf("%.3f", s.MeanEfficiency),
		)
	}
	return titleStyle.Render("scheduler comparison") + "\n" + t.String()
}

func renderReplay(res experiment.ReplayOutput) string {
	t := newTable("run", "scheduler", "score", "completed", "incomplete", "overdue", "work min", "break min", "events")
	for _, r := range []domain.Result{res.Planned, res.Actual} {
		t.Row(
			r.RunID,
			r.Scheduler,
			strconv.Itoa(r.TotalScore),
			strconv.Itoa(r.CompletedCount),
			strconv.Itoa(r.IncompleteCount),
			strconv.Itoa(r.OverdueCount),
			fmt.Sprintf("%.0f", r.TotalWorkMinutes),
			fmt.Sprintf("%.0f", r.TotalBreakMinutes),
			strconv.Itoa(len(r.Events)),
		)
	}
	return titleStyle.Render("plan vs replay") + "\n" + t.String()
}

func renderEvents(events []domain.Event) string {
	t := newTable("day", "at", "kind", "task", "minutes", "done", "level")
	for _, ev := range events {
		task, done := "-", "-"
		if ev.TaskID != nil {
			task = strconv.Itoa(*ev.TaskID)
		}
		if ev.Completed != nil {
			done = strconv.FormatBool(*ev.Completed)
		}
		t.Row(
			strconv.Itoa(ev.Day),
			ev.At.Format("Jan 02 15:04"),
			string(ev.Kind),
			task,
			fmt.Sprintf("%.1f", ev.DurationMinutes),
			done,
			fmt.Sprintf("%.2f", ev.Concentration),
		)
	}
	return t.String()
}

func formatProgress(p domain.Progress) string {
	switch p.Stage {
	case domain.StageTraining:
		return fmt.Sprintf("train %d/%d reward=%.2f score=%d epsilon=%.3f", p.Step, p.Total, p.Reward, p.Score, p.Epsilon)
	case domain.StageComparing:
		return fmt.Sprintf("compare %d/%d scheduler=%s score=%d", p.Step, p.Total, p.Scheduler, p.Score)
	default:
		return fmt.Sprintf("%s %d/%d", p.Stage, p.Step, p.Total)
	}
}
