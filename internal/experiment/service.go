package experiment

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"focus_sched/internal/concentration"
	"focus_sched/internal/config"
	"focus_sched/internal/domain"
	"focus_sched/internal/qlearn"
	"focus_sched/internal/scheduler"
	"focus_sched/internal/simulation"
	"focus_sched/internal/taskgen"
)

const (
	KindDeadline = "deadline"
	KindPriority = "priority"
	KindRandom   = "random"
	KindRL       = "rl"
)

// Kinds lists the registered schedulers in report order.
var Kinds = []string{KindDeadline, KindPriority, KindRandom, KindRL}

// Seed offsets keep training and evaluation task sets disjoint.
const (
	trainSeedOffset = 0
	testSeedOffset  = 100000
)

type Store interface {
	CreateDataset(ctx context.Context, ds domain.Dataset, tasks []domain.Task) (domain.Dataset, error)
	ListDatasets(ctx context.Context, kind domain.DatasetKind) ([]domain.Dataset, error)
	LoadTasks(ctx context.Context, datasetID string) ([]domain.Task, error)
	SaveRun(ctx context.Context, datasetID string, res domain.Result) error
}

type Bus interface {
	Publish(p domain.Progress) error
}

// Service runs training and comparison experiments. Store and bus are
// optional.
type Service struct {
	store  Store
	bus    Bus
	cfg    config.Config
	logger *log.Logger
	sim    *simulation.Simulator
}

func New(store Store, bus Bus, cfg config.Config, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:  store,
		bus:    bus,
		cfg:    cfg,
		logger: logger,
		sim:    simulation.New(cfg.Simulation, logger),
	}
}

func (s *Service) Config() config.Config {
	return s.cfg
}

// NewScheduler builds a fresh scheduler of kind. The rl kind gets an
// untrained selector.
func (s *Service) NewScheduler(kind string) (*scheduler.Scheduler, error) {
	return s.buildScheduler(kind, s.cfg.Simulation.Seed, nil)
}

func (s *Service) buildScheduler(kind string, seed int64, rl *qlearn.Selector) (*scheduler.Scheduler, error) {
	var selector scheduler.TaskSelector
	switch kind {
	case KindDeadline:
		selector = scheduler.DeadlineFirst{}
	case KindPriority:
		selector = scheduler.PriorityFirst{}
	case KindRandom:
		selector = scheduler.NewRandom(seed)
	case KindRL:
		if rl == nil {
			rl = qlearn.New(s.cfg, seed)
		}
		selector = rl
	default:
		return nil, fmt.Errorf("%w: unknown scheduler %q", domain.ErrInvalidArgument, kind)
	}

	model, err := concentration.New(s.cfg.Concentration, s.cfg.Personal)
	if err != nil {
		return nil, fmt.Errorf("build concentration model: %w", err)
	}
	return scheduler.New(kind, selector, scheduler.NewConcentrationBreak(model, s.cfg.Breaks.Threshold), model, scheduler.Options{
		Thresholds:            s.cfg.Concentration.Thresholds(),
		FailureEnabled:        s.cfg.Simulation.FailureEnabled,
		MinSuccessProbability: s.cfg.Simulation.MinSuccessProbability,
		EpisodePerDay:         s.cfg.Simulation.EpisodePerDay,
	}), nil
}

// GenerateDatasets stores train and test task sets drawn from consecutive
// seeds.
func (s *Service) GenerateDatasets(ctx context.Context, train, test int) ([]domain.Dataset, error) {
	if s.store == nil {
		return nil, fmt.Errorf("%w: generating datasets requires a store", domain.ErrInvalidArgument)
	}
	if train < 0 || test < 0 {
		return nil, fmt.Errorf("%w: dataset counts must be non-negative", domain.ErrInvalidArgument)
	}
	out := make([]domain.Dataset, 0, train+test)
	for _, batch := range []struct {
		kind   domain.DatasetKind
		count  int
		offset int64
	}{
		{domain.DatasetTrain, train, trainSeedOffset},
		{domain.DatasetTest, test, testSeedOffset},
	} {
		for i := 0; i < batch.count; i++ {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			seed := s.cfg.Simulation.Seed + batch.offset + int64(i)
			tasks, err := s.generate(seed)
			if err != nil {
				return out, err
			}
			ds, err := s.store.CreateDataset(ctx, domain.Dataset{Kind: batch.kind, Index: i, Seed: seed}, tasks)
			if err != nil {
				return out, fmt.Errorf("store %s dataset %d: %w", batch.kind, i, err)
			}
			out = append(out, ds)
		}
	}
	s.logger.Printf("datasets generated train=%d test=%d tasks_per_set=%d", train, test, s.cfg.Simulation.NumTasks)
	return out, nil
}

func (s *Service) generate(seed int64) ([]domain.Task, error) {
	tasks, err := taskgen.New(s.cfg.Generation, seed).Generate(s.cfg.Simulation.NumTasks, s.cfg.Simulation.Start)
	if err != nil {
		return nil, fmt.Errorf("generate tasks seed=%d: %w", seed, err)
	}
	return tasks, nil
}

type taskSet struct {
	datasetID string
	tasks     []domain.Task
}

// taskSets returns n task sets. Stored datasets of kind are used when kind
// is set; otherwise tasks are generated from seeds starting at offset.
func (s *Service) taskSets(ctx context.Context, kind domain.DatasetKind, n int, offset int64) ([]taskSet, error) {
	out := make([]taskSet, 0, n)
	if kind == "" {
		for i := 0; i < n; i++ {
			tasks, err := s.generate(s.cfg.Simulation.Seed + offset + int64(i))
			if err != nil {
				return nil, err
			}
			out = append(out, taskSet{tasks: tasks})
		}
		return out, nil
	}

	if s.store == nil {
		return nil, fmt.Errorf("%w: dataset kind %q requires a store", domain.ErrInvalidArgument, kind)
	}
	datasets, err := s.store.ListDatasets(ctx, kind)
	if err != nil {
		return nil, err
	}
	if len(datasets) == 0 {
		return nil, fmt.Errorf("%w: no %s datasets", domain.ErrNotFound, kind)
	}
	loaded := make(map[string][]domain.Task, len(datasets))
	for i := 0; i < n; i++ {
		ds := datasets[i%len(datasets)]
		tasks, ok := loaded[ds.ID]
		if !ok {
			tasks, err = s.store.LoadTasks(ctx, ds.ID)
			if err != nil {
				return nil, fmt.Errorf("load %s dataset %d: %w", kind, ds.Index, err)
			}
			loaded[ds.ID] = tasks
		}
		out = append(out, taskSet{datasetID: ds.ID, tasks: tasks})
	}
	return out, nil
}

type TrainInput struct {
	Episodes int
	// DatasetKind selects stored task sets; empty generates one per episode.
	DatasetKind domain.DatasetKind
	// Selector continues training an existing table; nil starts fresh.
	Selector *qlearn.Selector
	// ModelPath, when set, receives the trained table.
	ModelPath string
}

type TrainOutput struct {
	Selector       *qlearn.Selector
	EpisodeRewards []float64
	EpisodeScores  []int
	Stats          qlearn.Stats
}

// EpsilonAt is the exploration rate of episode k.
func EpsilonAt(t config.Training, k int) float64 {
	return math.Max(t.MinEpsilon, t.TrainEpsilon*math.Pow(t.EpsilonDecayRate, float64(k)))
}

// Train runs the RL scheduler for the requested episodes with learning on
// and decaying exploration.
func (s *Service) Train(ctx context.Context, in TrainInput) (TrainOutput, error) {
	episodes := in.Episodes
	if episodes <= 0 {
		episodes = s.cfg.RL.Training.Episodes
	}
	if episodes <= 0 {
		return TrainOutput{}, fmt.Errorf("%w: episodes must be positive", domain.ErrInvalidArgument)
	}
	sets, err := s.taskSets(ctx, in.DatasetKind, episodes, trainSeedOffset)
	if err != nil {
		return TrainOutput{}, fmt.Errorf("prepare training tasks: %w", err)
	}

	rl := in.Selector
	if rl == nil {
		rl = qlearn.New(s.cfg, s.cfg.Simulation.Seed)
	}
	rl.SetLearning(true)
	sched, err := s.buildScheduler(KindRL, s.cfg.Simulation.Seed, rl)
	if err != nil {
		return TrainOutput{}, err
	}

	out := TrainOutput{
		Selector:       rl,
		EpisodeRewards: make([]float64, 0, episodes),
		EpisodeScores:  make([]int, 0, episodes),
	}
	quiet := log.New(io.Discard, "", 0)
	for k := 0; k < episodes; k++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		epsilon := EpsilonAt(s.cfg.RL.Training, k)
		rl.SetEpsilon(epsilon)

		simCfg := s.cfg.Simulation
		simCfg.Seed += int64(k)
		before := rl.TotalReward()
		res, err := simulation.New(simCfg, quiet).Run(sched, sets[k].tasks)
		if err != nil {
			return out, fmt.Errorf("training episode %d: %w", k, err)
		}
		reward := rl.TotalReward() - before
		out.EpisodeRewards = append(out.EpisodeRewards, reward)
		out.EpisodeScores = append(out.EpisodeScores, res.TotalScore)

		s.publish(domain.Progress{
			Stage:     domain.StageTraining,
			Scheduler: KindRL,
			Step:      k + 1,
			Total:     episodes,
			Score:     res.TotalScore,
			Reward:    reward,
			Epsilon:   epsilon,
		})
		if (k+1)%100 == 0 || k+1 == episodes {
			s.logger.Printf("train episode=%d/%d reward=%.2f score=%d epsilon=%.3f states=%d",
				k+1, episodes, reward, res.TotalScore, epsilon, rl.Stats().States)
		}
	}
	out.Stats = rl.Stats()

	if in.ModelPath != "" {
		if err := rl.Save(in.ModelPath); err != nil {
			return out, fmt.Errorf("save model: %w", err)
		}
		s.logger.Printf("model saved path=%s states=%d", in.ModelPath, out.Stats.States)
	}
	s.publish(domain.Progress{Stage: domain.StageDone, Scheduler: KindRL, Step: episodes, Total: episodes})
	return out, nil
}

// LoadModel reads a trained table for the configured discretization.
func (s *Service) LoadModel(path string) (*qlearn.Selector, error) {
	rl := qlearn.New(s.cfg, s.cfg.Simulation.Seed)
	if err := rl.Load(path); err != nil {
		return nil, err
	}
	return rl, nil
}

type CompareInput struct {
	Repetitions int
	Parallel    int
	// Kinds defaults to every registered scheduler.
	Kinds []string
	// Model is cloned per repetition. When nil, ModelPath is loaded; when
	// both are empty the rl kind runs untrained.
	Model       *qlearn.Selector
	ModelPath   string
	DatasetKind domain.DatasetKind
}

type CompareOutput struct {
	Results map[string][]domain.Result
	Summary []Summary
}

// Compare evaluates every scheduler kind on the same task sets. Each
// repetition runs on a worker that owns its schedulers.
func (s *Service) Compare(ctx context.Context, in CompareInput) (CompareOutput, error) {
	reps := in.Repetitions
	if reps <= 0 {
		reps = s.cfg.Experiment.Repetitions
	}
	if reps <= 0 {
		return CompareOutput{}, fmt.Errorf("%w: repetitions must be positive", domain.ErrInvalidArgument)
	}
	parallel := in.Parallel
	if parallel <= 0 {
		parallel = s.cfg.Experiment.Parallel
	}
	if parallel <= 0 {
		parallel = 1
	}
	if parallel > reps {
		parallel = reps
	}
	kinds := in.Kinds
	if len(kinds) == 0 {
		kinds = Kinds
	}
	for _, kind := range kinds {
		if _, err := s.buildScheduler(kind, 0, nil); err != nil {
			return CompareOutput{}, err
		}
	}

	model := in.Model
	if model == nil && in.ModelPath != "" && containsKind(kinds, KindRL) {
		loaded, err := s.LoadModel(in.ModelPath)
		if err != nil {
			return CompareOutput{}, fmt.Errorf("load model %s: %w", in.ModelPath, err)
		}
		model = loaded
	}
	if model == nil && containsKind(kinds, KindRL) {
		s.logger.Printf("compare rl scheduler has no trained model; running untrained")
	}

	sets, err := s.taskSets(ctx, in.DatasetKind, reps, testSeedOffset)
	if err != nil {
		return CompareOutput{}, fmt.Errorf("prepare evaluation tasks: %w", err)
	}

	results := make(map[string][]domain.Result, len(kinds))
	for _, kind := range kinds {
		results[kind] = make([]domain.Result, reps)
	}

	jobs := make(chan int)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		done     int
	)
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}
	total := reps * len(kinds)
	for w := 0; w < parallel; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rep := range jobs {
				for _, kind := range kinds {
					if ctx.Err() != nil || failed() {
						break
					}
					res, err := s.evaluate(kind, rep, model, sets[rep].tasks)
					mu.Lock()
					if err != nil {
						if firstErr == nil {
							firstErr = fmt.Errorf("repetition %d scheduler %s: %w", rep, kind, err)
						}
						mu.Unlock()
						break
					}
					results[kind][rep] = res
					done++
					step := done
					mu.Unlock()

					s.publish(domain.Progress{
						Stage:     domain.StageComparing,
						Scheduler: kind,
						Step:      step,
						Total:     total,
						RunID:     res.RunID,
						Score:     res.TotalScore,
					})
				}
			}
		}()
	}

feed:
	for rep := 0; rep < reps; rep++ {
		if failed() {
			break
		}
		select {
		case jobs <- rep:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return CompareOutput{}, firstErr
	}
	if err := ctx.Err(); err != nil {
		return CompareOutput{}, err
	}

	if s.store != nil {
		for _, kind := range kinds {
			for rep, res := range results[kind] {
				if err := s.store.SaveRun(ctx, sets[rep].datasetID, res); err != nil {
					return CompareOutput{}, fmt.Errorf("save run %s: %w", res.RunID, err)
				}
			}
		}
	}

	out := CompareOutput{Results: results, Summary: Summarize(results)}
	for _, sum := range out.Summary {
		s.logger.Printf("compare scheduler=%s runs=%d mean_score=%.1f completion=%.3f compliance=%.3f",
			sum.Scheduler, sum.Runs, sum.MeanScore, sum.MeanCompletionRate, sum.MeanDeadlineCompliance)
	}
	s.publish(domain.Progress{Stage: domain.StageDone, Step: total, Total: total})
	return out, nil
}

func (s *Service) evaluate(kind string, rep int, model *qlearn.Selector, tasks []domain.Task) (domain.Result, error) {
	seed := s.cfg.Simulation.Seed + int64(rep)
	var rl *qlearn.Selector
	if kind == KindRL {
		rl = s.evaluationSelector(model, seed)
	}
	sched, err := s.buildScheduler(kind, seed, rl)
	if err != nil {
		return domain.Result{}, err
	}
	simCfg := s.cfg.Simulation
	simCfg.Seed = seed
	return simulation.New(simCfg, s.logger).Run(sched, tasks)
}

// evaluationSelector clones model, or starts untrained, with learning off
// and the test exploration rate.
func (s *Service) evaluationSelector(model *qlearn.Selector, seed int64) *qlearn.Selector {
	var rl *qlearn.Selector
	if model != nil {
		rl = model.Clone(seed)
	} else {
		rl = qlearn.New(s.cfg, seed)
	}
	rl.SetLearning(false)
	rl.SetEpsilon(s.cfg.RL.Training.TestEpsilon)
	return rl
}

type ReplayInput struct {
	Seed int64
	Kind string
	// Model is used for the rl kind; nil runs untrained.
	Model *qlearn.Selector
}

type ReplayOutput struct {
	Planned domain.Result
	Actual  domain.Result
}

// Replay plans a day sequence on tasks without hidden traits and then
// re-executes the same decisions against the full tasks.
func (s *Service) Replay(ctx context.Context, in ReplayInput) (ReplayOutput, error) {
	tasks, err := s.generate(in.Seed)
	if err != nil {
		return ReplayOutput{}, err
	}
	var rl *qlearn.Selector
	if in.Kind == KindRL {
		rl = s.evaluationSelector(in.Model, in.Seed)
	}
	sched, err := s.buildScheduler(in.Kind, in.Seed, rl)
	if err != nil {
		return ReplayOutput{}, err
	}

	planned, err := s.sim.Run(sched, taskgen.StripHidden(tasks))
	if err != nil {
		return ReplayOutput{}, fmt.Errorf("plan: %w", err)
	}
	actual, err := s.sim.Replay(sched, planned.Events, tasks)
	if err != nil {
		return ReplayOutput{}, fmt.Errorf("replay: %w", err)
	}
	if s.store != nil {
		for _, res := range []domain.Result{planned, actual} {
			if err := s.store.SaveRun(ctx, "", res); err != nil {
				return ReplayOutput{}, fmt.Errorf("save run %s: %w", res.RunID, err)
			}
		}
	}
	return ReplayOutput{Planned: planned, Actual: actual}, nil
}

type Summary struct {
	Scheduler              string  `json:"scheduler"`
	Runs                   int     `json:"runs"`
	MeanScore              float64 `json:"mean_score"`
	StdScore               float64 `json:"std_score"`
	MeanCompleted          float64 `json:"mean_completed"`
	MeanOverdue            float64 `json:"mean_overdue"`
	MeanCompletionRate     float64 `json:"mean_completion_rate"`
	MeanDeadlineCompliance float64 `json:"mean_deadline_compliance_rate"`
	MeanWorkMinutes        float64 `json:"mean_work_minutes"`
	MeanBreakMinutes       float64 `json:"mean_break_minutes"`
	MeanEfficiency         float64 `json:"mean_efficiency"`
}

// Summarize averages results per scheduler. Registered kinds come first
// in registry order, any others follow by name.
func Summarize(results map[string][]domain.Result) []Summary {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	rank := make(map[string]int, len(Kinds))
	for i, k := range Kinds {
		rank[k] = i
	}
	sort.Slice(names, func(i, j int) bool {
		ri, iok := rank[names[i]]
		rj, jok := rank[names[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return names[i] < names[j]
		}
	})

	out := make([]Summary, 0, len(names))
	for _, name := range names {
		runs := results[name]
		sum := Summary{Scheduler: name, Runs: len(runs)}
		if len(runs) == 0 {
			out = append(out, sum)
			continue
		}
		n := float64(len(runs))
		for _, r := range runs {
			sum.MeanScore += float64(r.TotalScore)
			sum.MeanCompleted += float64(r.CompletedCount)
			sum.MeanOverdue += float64(r.OverdueCount)
			sum.MeanCompletionRate += r.CompletionRate
			sum.MeanDeadlineCompliance += r.DeadlineComplianceRate
			sum.MeanWorkMinutes += r.TotalWorkMinutes
			sum.MeanBreakMinutes += r.TotalBreakMinutes
			sum.MeanEfficiency += r.Efficiency
		}
		sum.MeanScore /= n
		sum.MeanCompleted /= n
		sum.MeanOverdue /= n
		sum.MeanCompletionRate /= n
		sum.MeanDeadlineCompliance /= n
		sum.MeanWorkMinutes /= n
		sum.MeanBreakMinutes /= n
		sum.MeanEfficiency /= n

		var sq float64
		for _, r := range runs {
			d := float64(r.TotalScore) - sum.MeanScore
			sq += d * d
		}
		sum.StdScore = math.Sqrt(sq / n)
		out = append(out, sum)
	}
	return out
}

func (s *Service) publish(p domain.Progress) {
	if s.bus == nil {
		return
	}
	if p.At.IsZero() {
		p.At = time.Now().UTC()
	}
	if err := s.bus.Publish(p); err != nil {
		s.logger.Printf("progress publish failed stage=%s step=%d err=%v", p.Stage, p.Step, err)
	}
}

func containsKind(kinds []string, kind string) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}
