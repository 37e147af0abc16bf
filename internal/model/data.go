package model

import "time"

// Row is one output row: metadata columns hold strings, numeric columns hold a Ratio.
type Row map[string]interface{}

// Table is the ordered column list plus the rows of a merge result.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Strings renders a row following the table's column order.
func (t Table) Strings(row Row) []string {
	out := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		switch v := row[col].(type) {
		case nil:
			out[i] = ""
		case string:
			out[i] = v
		case Ratio:
			out[i] = v.String()
		default:
			out[i] = ZeroRatio.String()
		}
	}
	return out
}

// ExportResult describes one file emitted by the sink.
type ExportResult struct {
	Type        string    `json:"type"` // "csv", "json"
	Path        string    `json:"path"`
	RecordCount int       `json:"record_count"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	ExportedAt  time.Time `json:"exported_at"`
}
