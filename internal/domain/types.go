package domain

import (
	"fmt"
	"time"
)

type Priority int

const (
	PriorityLow    Priority = 1
	PriorityMedium Priority = 2
	PriorityHigh   Priority = 3
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityHigh
}

func ParsePriority(s string) (Priority, error) {
	switch s {
	case "LOW", "low", "1":
		return PriorityLow, nil
	case "MEDIUM", "medium", "2":
		return PriorityMedium, nil
	case "HIGH", "high", "3":
		return PriorityHigh, nil
	}
	return 0, fmt.Errorf("%w: unknown priority %q", ErrInvalidArgument, s)
}

// Genre is an opaque tag; the default tag set is "1".."4".
type Genre string

// HiddenTraits carry effort characteristics the scheduler never sees.
// Zero values mean "as planned".
type HiddenTraits struct {
	EffortMultiplier float64 `json:"effort_multiplier,omitempty"`
	GenreAffinity    float64 `json:"genre_affinity,omitempty"`
}

type Task struct {
	ID                  int          `json:"id"`
	Name                string       `json:"name"`
	BaseDurationMinutes int          `json:"base_duration_minutes"`
	Priority            Priority     `json:"priority"`
	Deadline            time.Time    `json:"deadline"`
	Genre               Genre        `json:"genre"`
	Dependencies        []int        `json:"dependencies,omitempty"`
	Completed           bool         `json:"is_completed"`
	CompletedAt         *time.Time   `json:"completed_at,omitempty"`
	FailedAttempts      int          `json:"failed_attempts"`
	MaxAttempts         int          `json:"max_attempts"`
	Hidden              HiddenTraits `json:"hidden"`
}

func (t *Task) Score() int {
	return t.BaseDurationMinutes * int(t.Priority)
}

func (t *Task) IsOverdue(now time.Time) bool {
	return now.After(t.Deadline) && !t.Completed
}

func (t *Task) Exhausted() bool {
	return t.MaxAttempts > 0 && t.FailedAttempts >= t.MaxAttempts
}

func (t *Task) EffortMultiplier() float64 {
	if t.Hidden.EffortMultiplier <= 0 {
		return 1.0
	}
	return t.Hidden.EffortMultiplier
}

// RequiredConcentration looks up the level the task's priority demands.
// Unknown priorities demand 0.5.
func (t *Task) RequiredConcentration(thresholds map[Priority]float64) float64 {
	if v, ok := thresholds[t.Priority]; ok {
		return v
	}
	return 0.5
}

func (t Task) Clone() Task {
	out := t
	if t.Dependencies != nil {
		out.Dependencies = append([]int(nil), t.Dependencies...)
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		out.CompletedAt = &at
	}
	return out
}

func (t *Task) Validate() error {
	if t.BaseDurationMinutes <= 0 {
		return fmt.Errorf("%w: task %d has non-positive duration %d", ErrInvalidArgument, t.ID, t.BaseDurationMinutes)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("%w: task %d has invalid priority %d", ErrInvalidArgument, t.ID, int(t.Priority))
	}
	if t.Genre == "" {
		return fmt.Errorf("%w: task %d has empty genre", ErrInvalidArgument, t.ID)
	}
	if t.Deadline.IsZero() {
		return fmt.Errorf("%w: task %d has no deadline", ErrInvalidArgument, t.ID)
	}
	for _, dep := range t.Dependencies {
		if dep == t.ID {
			return fmt.Errorf("%w: task %d depends on itself", ErrInvalidArgument, t.ID)
		}
	}
	return nil
}

func CloneTasks(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	for i := range tasks {
		out[i] = tasks[i].Clone()
	}
	return out
}

type EventKind string

const (
	EventWork  EventKind = "work"
	EventBreak EventKind = "break"
)

type Event struct {
	At                  time.Time `json:"at"`
	Day                 int       `json:"day"`
	Kind                EventKind `json:"kind"`
	DurationMinutes     float64   `json:"duration"`
	TaskID              *int      `json:"task_id,omitempty"`
	BaseDurationMinutes int       `json:"base_duration,omitempty"`
	Completed           *bool     `json:"completed,omitempty"`
	Concentration       float64   `json:"concentration"`
}

type TaskSummary struct {
	ID       int    `json:"id"`
	Score    int    `json:"score"`
	Priority string `json:"priority"`
}

type Result struct {
	RunID                  string        `json:"run_id"`
	Scheduler              string        `json:"scheduler"`
	TotalScore             int           `json:"total_score"`
	CompletedCount         int           `json:"completed_tasks_count"`
	IncompleteCount        int           `json:"incomplete_tasks_count"`
	OverdueCount           int           `json:"overdue_tasks_count"`
	CompletionRate         float64       `json:"completion_rate"`
	DeadlineComplianceRate float64       `json:"deadline_compliance_rate"`
	TotalWorkMinutes       float64       `json:"total_work_time"`
	TotalBreakMinutes      float64       `json:"total_break_time"`
	Efficiency             float64       `json:"efficiency"`
	Completed              []TaskSummary `json:"completed"`
	Incomplete             []TaskSummary `json:"incomplete"`
	Events                 []Event       `json:"simulation_log"`
	StartedAt              time.Time     `json:"started_at"`
	EndsAt                 time.Time     `json:"ends_at"`
}

// CompletionRate is completed/(completed+incomplete), or 0 for an empty set.
func CompletionRate(completed, incomplete int) float64 {
	total := completed + incomplete
	if total == 0 {
		return 0
	}
	return float64(completed) / float64(total)
}
