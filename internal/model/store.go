package model

import (
	"encoding/json"
	"time"
)

// Collections used by the engine.
const (
	CollectionRawRows      = "raw_rows"
	CollectionDerivedRows  = "derived_rows"
	CollectionIntermediate = "intermediate"
	CollectionRunLogs      = "run_logs"
)

// StoredRecord is the unit of persistence: a JSON body addressed by a few filterable fields.
type StoredRecord struct {
	Collection string          `json:"collection"`
	RunID      string          `json:"run_id"`
	Kind       string          `json:"kind"`
	Key        string          `json:"key"`
	Body       json.RawMessage `json:"body"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Filter selects stored records by equality. Empty fields match anything.
type Filter struct {
	Collection string `json:"collection,omitempty"`
	RunID      string `json:"run_id,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Key        string `json:"key,omitempty"`
}

// Matches reports whether rec satisfies the filter.
func (f Filter) Matches(rec StoredRecord) bool {
	return (f.Collection == "" || f.Collection == rec.Collection) &&
		(f.RunID == "" || f.RunID == rec.RunID) &&
		(f.Kind == "" || f.Kind == rec.Kind) &&
		(f.Key == "" || f.Key == rec.Key)
}
