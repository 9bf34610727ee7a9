package scheduler

import "focus_sched/internal/concentration"

type BreakStrategy interface {
	ShouldTakeBreak() bool
	BreakDuration() int
	Reset()
}

// ConcentrationBreak asks for a break once the level drops below Threshold.
type ConcentrationBreak struct {
	model     *concentration.Model
	threshold float64
}

func NewConcentrationBreak(model *concentration.Model, threshold float64) *ConcentrationBreak {
	return &ConcentrationBreak{model: model, threshold: threshold}
}

func (c *ConcentrationBreak) ShouldTakeBreak() bool {
	return c.model.Level() < c.threshold
}

func (c *ConcentrationBreak) BreakDuration() int {
	return c.model.RestRecoveryMinutes()
}

func (c *ConcentrationBreak) Reset() {}
