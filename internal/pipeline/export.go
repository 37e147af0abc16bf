package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go-election-merge/internal/model"
	"go-election-merge/pkg/utils"
)

// ExportInfo is the metadata block written alongside JSON exports.
type ExportInfo struct {
	RunID    string `json:"run_id"`
	Topology string `json:"topology"`
}

// ExportTable writes the table to path, choosing CSV or JSON by extension.
// Unknown extensions fall back to CSV.
func ExportTable(path string, t model.Table, info ExportInfo) model.ExportResult {
	result := model.ExportResult{
		Type:       "csv",
		Path:       path,
		ExportedAt: time.Now(),
	}
	if utils.GetFileType(path) == "json" {
		result.Type = "json"
	}

	err := writeFile(path, func(w io.Writer) error {
		if result.Type == "json" {
			return WriteJSON(w, t, info)
		}
		return WriteCSV(w, t)
	})
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Success = true
	result.RecordCount = len(t.Rows)
	return result
}

func writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// WriteCSV writes the header and one line per row in column order.
func WriteCSV(w io.Writer, t model.Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, row := range t.Rows {
		if err := writer.Write(t.Strings(row)); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteJSON writes the table with its export metadata. Rows keep column order.
func WriteJSON(w io.Writer, t model.Table, info ExportInfo) error {
	rows := make([]orderedRow, 0, len(t.Rows))
	for _, row := range t.Rows {
		rows = append(rows, orderedRow{columns: t.Columns, row: row})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	exportData := struct {
		Info    ExportInfo   `json:"export_info"`
		Count   int          `json:"record_count"`
		Columns []string     `json:"columns"`
		Rows    []orderedRow `json:"rows"`
	}{info, len(t.Rows), t.Columns, rows}

	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// orderedRow marshals a row as an object whose keys follow the column order.
type orderedRow struct {
	columns []string
	row     model.Row
}

func (o orderedRow) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, col := range o.columns {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(o.row[col])
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	return append(buf, '}'), nil
}
