package taskgen

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"focus_sched/internal/config"
	"focus_sched/internal/domain"
)

const (
	DurationModeBucket   = "bucket"
	DurationModePriority = "priority"
)

// Generator draws random backlogs. It is not safe for concurrent use; give
// each goroutine its own Generator.
type Generator struct {
	cfg config.Generation
	rng *rand.Rand
}

func New(cfg config.Generation, seed int64) *Generator {
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// NewWithRand shares an existing source, for callers that interleave task
// generation with other draws from one seed.
func NewWithRand(cfg config.Generation, rng *rand.Rand) *Generator {
	return &Generator{cfg: cfg, rng: rng}
}

// Generate produces n tasks with dependencies and hidden traits assigned.
func (g *Generator) Generate(n int, ref time.Time) ([]domain.Task, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: task count %d", domain.ErrInvalidArgument, n)
	}
	tasks := make([]domain.Task, 0, n)
	for i := 0; i < n; i++ {
		tasks = append(tasks, g.GenerateTask(i, ref))
	}
	g.AssignDependencies(tasks)
	if g.cfg.HiddenEnabled {
		g.AssignHiddenTraits(tasks)
	}
	return tasks, nil
}

func (g *Generator) GenerateTask(id int, ref time.Time) domain.Task {
	priority := g.samplePriority()
	duration := g.sampleDuration(priority)

	days := g.cfg.DeadlineBaseDays +
		float64(duration)/60*g.cfg.DeadlineDurationFactor +
		float64(priority)*g.cfg.DeadlinePriorityFactor
	deadline := ref.Add(time.Duration(days * 24 * float64(time.Hour)))

	return domain.Task{
		ID:                  id,
		Name:                fmt.Sprintf("Task_%d", id),
		BaseDurationMinutes: duration,
		Priority:            priority,
		Deadline:            deadline,
		Genre:               g.sampleGenre(),
		MaxAttempts:         g.cfg.MaxAttempts,
	}
}

func (g *Generator) samplePriority() domain.Priority {
	r := g.rng.Float64()
	switch {
	case r < g.cfg.PriorityLowRatio:
		return domain.PriorityLow
	case r < g.cfg.PriorityLowRatio+g.cfg.PriorityMediumRatio:
		return domain.PriorityMedium
	default:
		return domain.PriorityHigh
	}
}

func (g *Generator) sampleDuration(p domain.Priority) int {
	if g.cfg.DurationMode == DurationModePriority {
		if bounds, ok := g.cfg.PriorityDurations[fmt.Sprint(int(p))]; ok && len(bounds) == 2 {
			return g.intBetween(bounds[0], bounds[1])
		}
	}
	r := g.rng.Float64()
	switch {
	case r < g.cfg.ShortTaskRatio:
		return g.intBetween(g.cfg.ShortTaskMin, g.cfg.ShortTaskMax)
	case r < g.cfg.ShortTaskRatio+g.cfg.MediumTaskRatio:
		return g.intBetween(g.cfg.ShortTaskMax, g.cfg.MediumTaskMax)
	default:
		return g.intBetween(g.cfg.MediumTaskMax, g.cfg.LongTaskMax)
	}
}

// intBetween is inclusive on both ends.
func (g *Generator) intBetween(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + g.rng.Intn(hi-lo+1)
}

func (g *Generator) sampleGenre() domain.Genre {
	genres := g.cfg.Genres
	var total float64
	for _, name := range genres {
		total += g.cfg.GenreDistribution[name]
	}
	if total <= 0 {
		return domain.Genre(genres[g.rng.Intn(len(genres))])
	}
	r := g.rng.Float64() * total
	for _, name := range genres {
		r -= g.cfg.GenreDistribution[name]
		if r < 0 {
			return domain.Genre(name)
		}
	}
	return domain.Genre(genres[len(genres)-1])
}

// AssignDependencies links tasks to earlier ones inside the look-back
// window. Later indices are more likely to receive dependencies; the mean
// share of dependent tasks stays near the configured ratio.
func (g *Generator) AssignDependencies(tasks []domain.Task) {
	n := len(tasks)
	if n < 2 || g.cfg.DependencyRatio <= 0 {
		return
	}
	window := g.cfg.DependencyWindow
	if window <= 0 {
		window = n
	}
	gap := time.Duration(g.cfg.DependencyGapHours * float64(time.Hour))
	for i := 1; i < n; i++ {
		prob := math.Min(1, g.cfg.DependencyRatio*2*float64(i)/float64(n-1))
		if g.rng.Float64() >= prob {
			continue
		}
		lo := i - window
		if lo < 0 {
			lo = 0
		}
		span := i - lo
		count := 1 + g.rng.Intn(2)
		if count > span {
			count = span
		}
		picked := g.rng.Perm(span)[:count]
		deps := make([]int, 0, count)
		latest := time.Time{}
		for _, off := range picked {
			dep := &tasks[lo+off]
			deps = append(deps, dep.ID)
			if dep.Deadline.After(latest) {
				latest = dep.Deadline
			}
		}
		tasks[i].Dependencies = deps
		if !tasks[i].Deadline.After(latest) {
			tasks[i].Deadline = latest.Add(gap)
		}
	}
}

// AssignHiddenTraits draws one affinity per genre and one effort
// multiplier per task.
func (g *Generator) AssignHiddenTraits(tasks []domain.Task) {
	affinity := make(map[domain.Genre]float64, len(g.cfg.Genres))
	for _, name := range g.cfg.Genres {
		affinity[domain.Genre(name)] = g.cfg.AffinityMin + g.rng.Float64()*(g.cfg.AffinityMax-g.cfg.AffinityMin)
	}
	for i := range tasks {
		effort := g.cfg.EffortMean + g.rng.NormFloat64()*g.cfg.EffortStd
		effort = math.Max(g.cfg.EffortMin, math.Min(g.cfg.EffortMax, effort))
		tasks[i].Hidden = domain.HiddenTraits{
			EffortMultiplier: effort,
			GenreAffinity:    affinity[tasks[i].Genre],
		}
	}
}

// StripHidden returns copies carrying only the planned characteristics.
func StripHidden(tasks []domain.Task) []domain.Task {
	out := domain.CloneTasks(tasks)
	for i := range out {
		out[i].Hidden = domain.HiddenTraits{}
	}
	return out
}
