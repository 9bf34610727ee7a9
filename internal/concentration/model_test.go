package concentration

import (
	"errors"
	"math"
	"testing"

	"focus_sched/internal/config"
	"focus_sched/internal/domain"
)

func newTestModel(t *testing.T, traits config.PersonalTraits) *Model {
	t.Helper()
	cfg := config.Default()
	m, err := New(cfg.Concentration, traits)
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	return m
}

func neutralTraits() config.PersonalTraits {
	return config.PersonalTraits{GenrePreference: config.PreferenceNone, Sustainability: "medium"}
}

func TestWorkFollowsExponentialDecay(t *testing.T) {
	m := newTestModel(t, neutralTraits())
	eff, err := m.Work(120, domain.PriorityLow)
	if err != nil {
		t.Fatalf("work: %v", err)
	}
	if math.Abs(m.Level()-math.Exp(-1)) > 1e-12 {
		t.Fatalf("level=%v want exp(-1)", m.Level())
	}
	if eff != 1.2 {
		t.Fatalf("efficiency=%v want 1.2 at level %.3f", eff, m.Level())
	}
}

func TestWorkKeepsLevelInRange(t *testing.T) {
	m := newTestModel(t, config.PersonalTraits{
		GenrePreference: config.PreferenceSwitch,
		GenreBonus:      0.3,
		GenrePenalty:    0.3,
		Sustainability:  "short",
	})
	genres := []domain.Genre{"1", "2", "2", "3", "1"}
	for i := 0; i < 50; i++ {
		m.ApplyGenreSwitch(genres[i%len(genres)])
		if _, err := m.Work(float64(i%7)*20, domain.Priorities[i%3]); err != nil {
			t.Fatalf("work: %v", err)
		}
		if m.Level() < 0.2 || m.Level() > 1.0 {
			t.Fatalf("step %d: level %v out of range", i, m.Level())
		}
		if i%11 == 0 {
			_ = m.Rest(5)
		}
	}
}

func TestConsecutiveHighDegradesAtLeastAsMuchAsLow(t *testing.T) {
	low := newTestModel(t, neutralTraits())
	high := newTestModel(t, neutralTraits())
	for i := 0; i < 2; i++ {
		if _, err := low.Work(30, domain.PriorityLow); err != nil {
			t.Fatalf("low work: %v", err)
		}
		if _, err := high.Work(30, domain.PriorityHigh); err != nil {
			t.Fatalf("high work: %v", err)
		}
	}
	if high.Level() > low.Level() {
		t.Fatalf("high level %v above low level %v", high.Level(), low.Level())
	}
	if high.ContinuousWork() <= low.ContinuousWork() {
		t.Fatalf("expected more accumulated fatigue for HIGH, got %v vs %v", high.ContinuousWork(), low.ContinuousWork())
	}
}

func TestRestThenZeroWorkIsNoOp(t *testing.T) {
	m := newTestModel(t, neutralTraits())
	_, _ = m.Work(150, domain.PriorityMedium)
	if err := m.Rest(5); err != nil {
		t.Fatalf("rest: %v", err)
	}
	before := m.Level()
	if _, err := m.Work(0, domain.PriorityHigh); err != nil {
		t.Fatalf("work(0): %v", err)
	}
	if m.Level() != before {
		t.Fatalf("level changed from %v to %v", before, m.Level())
	}
}

func TestPartialRestKeepsAccumulatedWork(t *testing.T) {
	m := newTestModel(t, neutralTraits())
	_, _ = m.Work(60, domain.PriorityLow)
	_ = m.Rest(10)
	if m.ContinuousWork() != 60 {
		t.Fatalf("partial rest reset continuous work to %v", m.ContinuousWork())
	}
	_ = m.Rest(15)
	if m.ContinuousWork() != 0 {
		t.Fatalf("full rest left continuous work %v", m.ContinuousWork())
	}
	if m.Level() != 1.0 {
		t.Fatalf("level=%v want clamp at 1.0", m.Level())
	}
}

func TestNegativeDurationsAreRejected(t *testing.T) {
	m := newTestModel(t, neutralTraits())
	if _, err := m.Work(-1, domain.PriorityLow); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("work err=%v want ErrInvalidArgument", err)
	}
	if err := m.Rest(-5); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("rest err=%v want ErrInvalidArgument", err)
	}
}

func TestGenrePreferenceShiftsLevel(t *testing.T) {
	traits := config.PersonalTraits{
		GenrePreference: config.PreferenceSame,
		GenreBonus:      0.05,
		GenrePenalty:    0.1,
		Sustainability:  "medium",
	}
	m := newTestModel(t, traits)
	_, _ = m.Work(60, domain.PriorityLow)
	base := m.Level()

	m.ApplyGenreSwitch("1")
	if m.Level() != base {
		t.Fatalf("first genre call changed level")
	}
	m.ApplyGenreSwitch("2")
	if math.Abs(m.Level()-(base-0.1)) > 1e-12 {
		t.Fatalf("switch level=%v want %v", m.Level(), base-0.1)
	}
	_, _ = m.Work(30, domain.PriorityMedium)
	expected := math.Exp(-(60+30*1.3)/120.0) - 0.1
	if math.Abs(m.Level()-expected) > 1e-12 {
		t.Fatalf("bias lost after work: level=%v want %v", m.Level(), expected)
	}
	m.Reset()
	if m.Level() != 1.0 || m.LastGenre() != "" || m.LastPriority() != 0 {
		t.Fatalf("reset left state: level=%v genre=%q priority=%v", m.Level(), m.LastGenre(), m.LastPriority())
	}
}

func TestSustainabilityChangesDecay(t *testing.T) {
	short := newTestModel(t, config.PersonalTraits{Sustainability: "short"})
	long := newTestModel(t, config.PersonalTraits{Sustainability: "long"})
	_, _ = short.Work(90, domain.PriorityLow)
	_, _ = long.Work(90, domain.PriorityLow)
	if short.Level() >= long.Level() {
		t.Fatalf("short sustainability level %v should be below long %v", short.Level(), long.Level())
	}
	cfg := config.Default()
	if _, err := New(cfg.Concentration, config.PersonalTraits{Sustainability: "endless"}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("unknown trait err=%v", err)
	}
}
