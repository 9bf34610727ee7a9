package simulation

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"focus_sched/internal/config"
	"focus_sched/internal/domain"
	"focus_sched/internal/scheduler"
)

// Simulator drives one scheduler through the configured workdays. A
// Simulator holds no run state and may be shared; the scheduler may not.
type Simulator struct {
	cfg    config.Simulation
	logger *log.Logger
}

func New(cfg config.Simulation, logger *log.Logger) *Simulator {
	if logger == nil {
		logger = log.Default()
	}
	return &Simulator{cfg: cfg, logger: logger}
}

func (s *Simulator) Config() config.Simulation {
	return s.cfg
}

// Run executes templates with sched. Templates are copied into a fresh
// backlog and never modified. Unfinished work is reported in the result,
// not as an error.
func (s *Simulator) Run(sched *scheduler.Scheduler, templates []domain.Task) (domain.Result, error) {
	b, err := domain.NewBacklog(templates)
	if err != nil {
		return domain.Result{}, fmt.Errorf("prepare backlog: %w", err)
	}
	rng := rand.New(rand.NewSource(s.cfg.Seed))
	sched.Reset(s.cfg.Seed)

	rec := newRecorder()
	dayMinutes := float64(s.cfg.WorkMinutesPerDay())
	for day := 0; day < s.cfg.Days; day++ {
		now := s.cfg.Start.AddDate(0, 0, day)
		used := 0.0
		sched.StartDay()

		for used < dayMinutes {
			remaining := dayMinutes - used
			task := sched.NextTask(b, now)
			if task != nil && sched.EstimateMinutes(task) > remaining {
				task = nil
			}

			if task == nil {
				if !sched.ShouldTakeBreak() {
					break
				}
				minutes, err := sched.TakeBreak()
				if err != nil {
					return domain.Result{}, fmt.Errorf("day %d: %w", day, err)
				}
				rec.rest(now, day, minutes, sched.Model().Level())
				now = now.Add(time.Duration(minutes) * time.Minute)
				used += float64(minutes)
				continue
			}

			out, err := sched.Execute(b, task, now, rng.Float64())
			if err != nil {
				return domain.Result{}, fmt.Errorf("day %d: %w", day, err)
			}
			rec.work(day, out)
			now = out.End
			used += out.ActualMinutes
		}
	}

	result := summarize(b, rec, s.cfg.Start, s.cfg.End())
	result.RunID = uuid.NewString()
	result.Scheduler = sched.Name()
	s.logger.Printf("run finished id=%s scheduler=%s score=%d completed=%d incomplete=%d",
		result.RunID, result.Scheduler, result.TotalScore, result.CompletedCount, result.IncompleteCount)
	return result, nil
}
