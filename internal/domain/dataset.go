package domain

import "time"

type DatasetKind string

const (
	DatasetTrain DatasetKind = "train"
	DatasetTest  DatasetKind = "test"
)

// Dataset is one pre-generated backlog in the stored corpus. Index is the
// position within its kind.
type Dataset struct {
	ID        string      `json:"id"`
	Kind      DatasetKind `json:"kind"`
	Index     int         `json:"index"`
	Seed      int64       `json:"seed"`
	TaskCount int         `json:"task_count"`
	CreatedAt time.Time   `json:"created_at"`
}

// RunRecord is a stored Result. Events are loaded separately.
type RunRecord struct {
	Result
	DatasetID string    `json:"dataset_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
