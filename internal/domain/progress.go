package domain

import "time"

type ProgressStage string

const (
	StageTraining  ProgressStage = "training"
	StageComparing ProgressStage = "comparing"
	StageDone      ProgressStage = "done"
)

// Progress is published while a long experiment runs. Step counts
// episodes during training and finished runs during comparison.
type Progress struct {
	Stage     ProgressStage `json:"stage"`
	Scheduler string        `json:"scheduler,omitempty"`
	Step      int           `json:"step"`
	Total     int           `json:"total"`
	RunID     string        `json:"run_id,omitempty"`
	Score     int           `json:"score,omitempty"`
	Reward    float64       `json:"reward,omitempty"`
	Epsilon   float64       `json:"epsilon,omitempty"`
	At        time.Time     `json:"at"`
}
