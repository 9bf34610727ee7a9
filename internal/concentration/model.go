package concentration

import (
	"fmt"
	"math"

	"focus_sched/internal/config"
	"focus_sched/internal/domain"
)

// Model tracks one agent's concentration over a day. Selectors read it
// through the accessors; only the owning scheduler mutates it.
type Model struct {
	cfg    config.Concentration
	traits config.PersonalTraits
	decay  float64

	level          float64
	continuousWork float64
	genreBias      float64
	lastGenre      domain.Genre
	lastPriority   domain.Priority
}

func New(cfg config.Concentration, traits config.PersonalTraits) (*Model, error) {
	if cfg.MaxWorkTimeMinutes <= 0 || cfg.RestRecoveryMinutes <= 0 {
		return nil, fmt.Errorf("%w: concentration: max work time and rest unit must be positive", domain.ErrInvalidArgument)
	}
	if cfg.MinLevel < 0 || cfg.MinLevel > cfg.InitialLevel || cfg.InitialLevel > 1 {
		return nil, fmt.Errorf("%w: concentration: initial_level=%v min_level=%v", domain.ErrInvalidArgument, cfg.InitialLevel, cfg.MinLevel)
	}
	decay, ok := cfg.DecayFactors[traits.Sustainability]
	if !ok {
		if traits.Sustainability != "" {
			return nil, fmt.Errorf("%w: concentration: unknown sustainability %q", domain.ErrInvalidArgument, traits.Sustainability)
		}
		decay = 1.0
	}
	if decay <= 0 {
		return nil, fmt.Errorf("%w: concentration: decay factor %v must be positive", domain.ErrInvalidArgument, decay)
	}
	m := &Model{cfg: cfg, traits: traits, decay: decay}
	m.Reset()
	return m, nil
}

// Reset restores the start-of-day state.
func (m *Model) Reset() {
	m.level = m.cfg.InitialLevel
	m.continuousWork = 0
	m.genreBias = 0
	m.lastGenre = ""
	m.lastPriority = 0
}

// Work consumes fatigue for minutes of work at priority p and returns the
// efficiency multiplier at the resulting level.
func (m *Model) Work(minutes float64, p domain.Priority) (float64, error) {
	if minutes < 0 || math.IsNaN(minutes) {
		return 0, fmt.Errorf("%w: work duration %v", domain.ErrInvalidArgument, minutes)
	}
	if minutes == 0 {
		return m.Efficiency(), nil
	}
	effective := minutes * m.cfg.FatigueFor(p)
	if m.lastPriority == p {
		effective *= m.cfg.ConsecutiveFor(p)
	}
	m.continuousWork += effective
	m.level = m.clamp(m.cfg.InitialLevel*math.Exp(-m.decay*m.continuousWork/m.cfg.MaxWorkTimeMinutes) + m.genreBias)
	m.lastPriority = p
	return m.Efficiency(), nil
}

// Rest recovers the level linearly. Accumulated work is cleared only by a
// rest of at least one full recovery unit.
func (m *Model) Rest(minutes float64) error {
	if minutes < 0 || math.IsNaN(minutes) {
		return fmt.Errorf("%w: rest duration %v", domain.ErrInvalidArgument, minutes)
	}
	unit := float64(m.cfg.RestRecoveryMinutes)
	m.level = m.clamp(m.level + minutes/unit*m.cfg.RestRecoveryRate)
	if minutes >= unit {
		m.continuousWork = 0
		m.genreBias = 0
	}
	return nil
}

// ApplyGenreSwitch compares genre with the previous task's genre and shifts
// the level according to the agent's preference. The first call of a day
// only records the genre.
func (m *Model) ApplyGenreSwitch(genre domain.Genre) {
	prev := m.lastGenre
	m.lastGenre = genre
	if prev == "" {
		return
	}
	same := prev == genre
	var shift float64
	switch m.traits.GenrePreference {
	case config.PreferenceSame:
		if same {
			shift = m.traits.GenreBonus
		} else {
			shift = -m.traits.GenrePenalty
		}
	case config.PreferenceSwitch:
		if same {
			shift = -m.traits.GenrePenalty
		} else {
			shift = m.traits.GenreBonus
		}
	default:
		return
	}
	limit := m.cfg.GenreBiasLimit
	bias := m.genreBias + shift
	if limit > 0 {
		bias = math.Max(-limit, math.Min(limit, bias))
	}
	m.level = m.clamp(m.level + bias - m.genreBias)
	m.genreBias = bias
}

func (m *Model) clamp(v float64) float64 {
	if v < m.cfg.MinLevel {
		return m.cfg.MinLevel
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}

func (m *Model) Level() float64 {
	return m.level
}

func (m *Model) ContinuousWork() float64 {
	return m.continuousWork
}

// FatigueRatio is continuous work over the maximum, capped at 1.
func (m *Model) FatigueRatio() float64 {
	return math.Min(1.0, m.continuousWork/m.cfg.MaxWorkTimeMinutes)
}

func (m *Model) Efficiency() float64 {
	switch {
	case m.level >= m.cfg.HighLevel:
		return m.cfg.HighEfficiency
	case m.level <= m.cfg.LowLevel:
		return m.cfg.LowEfficiency
	default:
		return 1.0
	}
}

func (m *Model) RestRecoveryMinutes() int {
	return m.cfg.RestRecoveryMinutes
}

func (m *Model) LastGenre() domain.Genre {
	return m.lastGenre
}

func (m *Model) LastPriority() domain.Priority {
	return m.lastPriority
}

func (m *Model) Traits() config.PersonalTraits {
	return m.traits
}
