package model

// Topology identifiers.
const (
	TopologySeparate = "separate" // separate-then-join
	TopologyUnion    = "union"    // union-then-pivot
	TopologyStaged   = "staged"   // staged multi-join
)

// Topologies lists every supported topology in a stable order.
var Topologies = []string{TopologySeparate, TopologyUnion, TopologyStaged}

// MergeRequest is the body of POST /api/v1/merges and /api/v1/merges/compare
type MergeRequest struct {
	Topology      string `json:"topology"`
	Round1        Batch  `json:"round1"`
	Round2        Batch  `json:"round2"`
	RetainRaw     bool   `json:"retain_raw"`       // persist raw rows of both rounds
	RetainDerived bool   `json:"retain_derived"`   // persist the merged rows
	Externalize   bool   `json:"externalize"`      // round-trip intermediates through the store
	Export        string `json:"export,omitempty"` // "csv" or "json": also write the table to a file
}

// MergeResponse is what a single run returns to API and CLI callers
type MergeResponse struct {
	RunID    string        `json:"run_id"`
	Topology string        `json:"topology"`
	Columns  []string      `json:"columns"`
	Rows     []Row         `json:"rows"`
	Metrics  Metrics       `json:"metrics"`
	Warnings []Warning     `json:"warnings"`
	Export   *ExportResult `json:"export,omitempty"`
}

// CompareResponse summarises the three topologies over the same input
type CompareResponse struct {
	Runs       map[string]Metrics `json:"runs"`
	RunIDs     map[string]string  `json:"run_ids"`
	OutputRows int                `json:"output_rows"`
	Equivalent bool               `json:"equivalent"`
}
