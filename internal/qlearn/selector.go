package qlearn

import (
	"math/rand"

	"focus_sched/internal/config"
	"focus_sched/internal/domain"
	"focus_sched/internal/scheduler"
)

// Table maps a discretized state to one value per action. Missing states
// read as all zeros.
type Table map[State][NumActions]float64

type step struct {
	state  State
	action Action
}

type Stats struct {
	States      int     `json:"q_table_size"`
	Updates     int     `json:"updates"`
	Rewards     int     `json:"rewards"`
	TotalReward float64 `json:"total_reward"`
	MeanReward  float64 `json:"avg_reward"`
}

// Selector is a Q-learning task selector whose actions are ranking
// policies rather than individual tasks. It is not safe for concurrent
// use; Clone it for parallel evaluation.
type Selector struct {
	rl         config.RL
	thresholds map[domain.Priority]float64
	traits     config.PersonalTraits
	disc       discretizer
	genres     []string

	learningRate   float64
	discountFactor float64
	epsilon        float64
	learning       bool

	table   Table
	rng     *rand.Rand
	history []step
	prev    memory

	updates     int
	rewards     int
	totalReward float64
}

var (
	_ scheduler.TaskSelector = (*Selector)(nil)
	_ scheduler.Learner      = (*Selector)(nil)
	_ scheduler.Reseeder     = (*Selector)(nil)
)

func New(cfg config.Config, seed int64) *Selector {
	return &Selector{
		rl:             cfg.RL,
		thresholds:     cfg.Concentration.Thresholds(),
		traits:         cfg.Personal,
		disc:           newDiscretizer(cfg.RL.State, cfg.Generation.Genres),
		genres:         append([]string(nil), cfg.Generation.Genres...),
		learningRate:   cfg.RL.LearningRate,
		discountFactor: cfg.RL.DiscountFactor,
		epsilon:        cfg.RL.Epsilon,
		learning:       true,
		table:          make(Table),
		rng:            rand.New(rand.NewSource(seed)),
	}
}

func (s *Selector) Name() string { return "rl" }

func (s *Selector) Reseed(seed int64) {
	s.rng = rand.New(rand.NewSource(seed))
}

func (s *Selector) SetEpsilon(epsilon float64) { s.epsilon = epsilon }

func (s *Selector) Epsilon() float64 { return s.epsilon }

// SetLearning toggles Q updates. Evaluation runs turn it off explicitly;
// a zero epsilon alone does not stop learning.
func (s *Selector) SetLearning(on bool) { s.learning = on }

func (s *Selector) Learning() bool { return s.learning }

func (s *Selector) Select(b *domain.Backlog, snap scheduler.Snapshot) *domain.Task {
	ready := b.Ready()
	if len(ready) == 0 {
		return nil
	}
	cands := feasible(ready, snap.Now)
	state := s.disc.state(cands, snap, s.prev)
	action := s.chooseAction(state)

	pc := policyContext{
		cfg:        s.rl.Policy,
		thresholds: s.thresholds,
		level:      snap.Level,
		daysLeft: func(t *domain.Task) float64 {
			return t.Deadline.Sub(snap.Now).Hours() / 24
		},
	}
	task := pc.run(action, cands)
	s.history = append(s.history, step{state: state, action: action})
	return task
}

// Observe returns the state Select would compute for the current backlog
// without choosing an action.
func (s *Selector) Observe(b *domain.Backlog, snap scheduler.Snapshot) State {
	ready := b.Ready()
	return s.disc.state(feasible(ready, snap.Now), snap, s.prev)
}

func (s *Selector) chooseAction(st State) Action {
	if s.rng.Float64() < s.epsilon {
		return Action(s.rng.Intn(NumActions))
	}
	values, ok := s.table[st]
	if !ok {
		s.table[st] = values
	}
	return argmax(values)
}

func argmax(values [NumActions]float64) Action {
	best := 0
	for i := 1; i < NumActions; i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return Action(best)
}

// LastStep reports the most recent (state, action) of the episode.
func (s *Selector) LastStep() (State, Action, bool) {
	if len(s.history) == 0 {
		return State{}, 0, false
	}
	last := s.history[len(s.history)-1]
	return last.state, last.action, true
}

// UpdateQValue applies one tabular Q-learning step to the latest
// (state, action). A nil next state or done makes the target the reward
// itself.
func (s *Selector) UpdateQValue(reward float64, next *State, done bool) {
	if !s.learning || len(s.history) == 0 {
		return
	}
	last := s.history[len(s.history)-1]
	values := s.table[last.state]
	current := values[last.action]

	target := reward
	if !done && next != nil {
		nextValues := s.table[*next]
		target += s.discountFactor * nextValues[argmax(nextValues)]
	}
	values[last.action] = current + s.learningRate*(target-current)
	s.table[last.state] = values
	s.updates++
}

func (s *Selector) QValues(st State) [NumActions]float64 {
	return s.table[st]
}

func (s *Selector) TaskFeedback(_ *domain.Backlog, out scheduler.Outcome) {
	if out.Task == nil {
		return
	}
	reward := s.Reward(out)
	s.record(reward)
	s.UpdateQValue(reward, nil, out.Completed)
	s.remember(out.Task)
}

func (s *Selector) BreakFeedback(minutes int) {
	reward := -s.rl.Reward.BreakPenaltyPerMinute * float64(minutes)
	s.record(reward)
	s.UpdateQValue(reward, nil, false)
}

// ResetEpisode clears the step history and previous-task memory. The
// table and statistics are kept.
func (s *Selector) ResetEpisode() {
	s.history = s.history[:0]
	s.prev = memory{}
}

func (s *Selector) remember(t *domain.Task) {
	if t.Priority == s.prev.priority {
		s.prev.consecutive++
	} else {
		s.prev.consecutive = 1
	}
	s.prev.priority = t.Priority
	s.prev.genre = t.Genre
}

func (s *Selector) record(reward float64) {
	s.rewards++
	s.totalReward += reward
}

func (s *Selector) Stats() Stats {
	st := Stats{
		States:      len(s.table),
		Updates:     s.updates,
		Rewards:     s.rewards,
		TotalReward: s.totalReward,
	}
	if s.rewards > 0 {
		st.MeanReward = s.totalReward / float64(s.rewards)
	}
	return st
}

// TotalReward is the running reward sum; callers diff it across episodes.
func (s *Selector) TotalReward() float64 {
	return s.totalReward
}

// Clone deep-copies the table and settings with fresh history, stats and
// random source.
func (s *Selector) Clone(seed int64) *Selector {
	table := make(Table, len(s.table))
	for k, v := range s.table {
		table[k] = v
	}
	return &Selector{
		rl:             s.rl,
		thresholds:     s.thresholds,
		traits:         s.traits,
		disc:           s.disc,
		genres:         s.genres,
		learningRate:   s.learningRate,
		discountFactor: s.discountFactor,
		epsilon:        s.epsilon,
		learning:       s.learning,
		table:          table,
		rng:            rand.New(rand.NewSource(seed)),
	}
}
