package scheduler

import (
	"fmt"
	"math"
	"time"

	"focus_sched/internal/concentration"
	"focus_sched/internal/domain"
)

type Options struct {
	// Required concentration per priority; used for success probability.
	Thresholds            map[domain.Priority]float64
	FailureEnabled        bool
	MinSuccessProbability float64
	// EpisodePerDay clears learner history at every StartDay instead of
	// only at Reset.
	EpisodePerDay bool
}

// Outcome describes one executed work action.
type Outcome struct {
	Task          *domain.Task
	Start         time.Time
	End           time.Time
	StartLevel    float64
	EndLevel      float64
	Efficiency    float64
	ActualMinutes float64
	Completed     bool
}

// Scheduler composes a selector, a break strategy and the concentration
// model it drives. One Scheduler serves one simulation at a time.
type Scheduler struct {
	name     string
	selector TaskSelector
	breaks   BreakStrategy
	model    *concentration.Model
	learner  Learner
	opts     Options
}

func New(name string, selector TaskSelector, breaks BreakStrategy, model *concentration.Model, opts Options) *Scheduler {
	if name == "" {
		name = selector.Name()
	}
	s := &Scheduler{
		name:     name,
		selector: selector,
		breaks:   breaks,
		model:    model,
		opts:     opts,
	}
	if learner, ok := selector.(Learner); ok {
		s.learner = learner
	}
	return s
}

func (s *Scheduler) Name() string {
	return s.name
}

func (s *Scheduler) Selector() TaskSelector {
	return s.selector
}

func (s *Scheduler) Model() *concentration.Model {
	return s.model
}

// Reset prepares the scheduler for a new run.
func (s *Scheduler) Reset(seed int64) {
	s.model.Reset()
	s.breaks.Reset()
	if r, ok := s.selector.(Reseeder); ok {
		r.Reseed(seed)
	}
	if s.learner != nil {
		s.learner.ResetEpisode()
	}
}

// StartDay restores the concentration model for a fresh day.
func (s *Scheduler) StartDay() {
	s.model.Reset()
	if s.opts.EpisodePerDay && s.learner != nil {
		s.learner.ResetEpisode()
	}
}

func (s *Scheduler) ShouldTakeBreak() bool {
	return s.breaks.ShouldTakeBreak()
}

// NextTask returns nil when a break is due or nothing is ready.
func (s *Scheduler) NextTask(b *domain.Backlog, now time.Time) *domain.Task {
	if s.breaks.ShouldTakeBreak() {
		return nil
	}
	return s.selector.Select(b, Snapshot{
		Now:          now,
		Level:        s.model.Level(),
		FatigueRatio: s.model.FatigueRatio(),
	})
}

// EstimateMinutes is the task's duration at the current efficiency.
func (s *Scheduler) EstimateMinutes(task *domain.Task) float64 {
	return float64(task.BaseDurationMinutes) * s.model.Efficiency()
}

// TakeBreak rests for the strategy's duration and reports it to learners.
func (s *Scheduler) TakeBreak() (int, error) {
	minutes := s.breaks.BreakDuration()
	if err := s.Rest(minutes); err != nil {
		return 0, err
	}
	if s.learner != nil {
		s.learner.BreakFeedback(minutes)
	}
	return minutes, nil
}

// Rest applies a break without learner feedback.
func (s *Scheduler) Rest(minutes int) error {
	if err := s.model.Rest(float64(minutes)); err != nil {
		return fmt.Errorf("take break: %w", err)
	}
	return nil
}

// Execute runs task and feeds the outcome back to a learning selector.
// roll is a uniform [0,1) draw consumed only when failures are enabled.
func (s *Scheduler) Execute(b *domain.Backlog, task *domain.Task, now time.Time, roll float64) (Outcome, error) {
	out, err := s.Apply(b, task, now, roll)
	if err != nil {
		return Outcome{}, err
	}
	if s.learner != nil {
		s.learner.TaskFeedback(b, out)
	}
	return out, nil
}

// Apply runs task against the concentration model without learner
// feedback.
func (s *Scheduler) Apply(b *domain.Backlog, task *domain.Task, now time.Time, roll float64) (Outcome, error) {
	if task == nil {
		return Outcome{}, fmt.Errorf("%w: execute nil task", domain.ErrInvalidArgument)
	}
	startLevel := s.model.Level()
	s.model.ApplyGenreSwitch(task.Genre)
	efficiency, err := s.model.Work(float64(task.BaseDurationMinutes), task.Priority)
	if err != nil {
		return Outcome{}, fmt.Errorf("execute task %d: %w", task.ID, err)
	}
	actual := float64(task.BaseDurationMinutes) * efficiency * task.EffortMultiplier() * (1 - task.Hidden.GenreAffinity)
	end := now.Add(time.Duration(actual * float64(time.Minute)))

	completed := true
	if s.opts.FailureEnabled {
		completed = roll < s.SuccessProbability(task, startLevel)
	}
	if completed {
		err = b.MarkCompleted(task.ID, end)
	} else {
		err = b.RecordFailure(task.ID)
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("execute task %d: %w", task.ID, err)
	}
	return Outcome{
		Task:          task,
		Start:         now,
		End:           end,
		StartLevel:    startLevel,
		EndLevel:      s.model.Level(),
		Efficiency:    efficiency,
		ActualMinutes: actual,
		Completed:     completed,
	}, nil
}

// SuccessProbability is level over required concentration, bounded below
// by the configured floor and above by 1.
func (s *Scheduler) SuccessProbability(task *domain.Task, level float64) float64 {
	required := task.RequiredConcentration(s.opts.Thresholds)
	if required <= 0 {
		return 1
	}
	return math.Max(s.opts.MinSuccessProbability, math.Min(1, level/required))
}
