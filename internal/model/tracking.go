package model

import "time"

// Metrics is the immutable snapshot of a run's stage instrumentation.
type Metrics struct {
	StagesMs         map[string]float64 `json:"stages_ms"`
	StageOrder       []string           `json:"stage_order"`
	TotalMs          float64            `json:"total_ms"`
	ReadOps          int64              `json:"read_ops"`
	WriteOps         int64              `json:"write_ops"`
	IntermediateRows int64              `json:"intermediate_rows"`
	PeakMemoryMB     float64            `json:"peak_memory_mb"`
}

// Warning kinds.
const (
	WarnZeroElectorate = "zero_electorate"
	WarnZeroValidVotes = "zero_valid_votes"
	WarnDuplicateKey   = "duplicate_key"
)

// Warning is a non-fatal condition observed during a run.
type Warning struct {
	Kind     string `json:"kind"`
	Round    string `json:"round"`
	Key      string `json:"key"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message"`
}

// RunLog is what a run hands to the persistence port once it completes.
type RunLog struct {
	RunID      string    `json:"run_id"`
	Topology   string    `json:"topology"`
	Rounds     [2]string `json:"rounds"`
	InputRows  [2]int    `json:"input_rows"`
	OutputRows int       `json:"output_rows"`
	Warnings   int       `json:"warnings"`
	Metrics    Metrics   `json:"metrics"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
