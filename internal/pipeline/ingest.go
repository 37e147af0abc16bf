package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"go-election-merge/internal/model"
	"go-election-merge/pkg/utils"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ColumnAliases lists accepted header names for each fixed column. Matching
// ignores case and surrounding whitespace.
type ColumnAliases struct {
	Key          []string `yaml:"key"`
	RegionCode   []string `yaml:"region_code"`
	RegionName   []string `yaml:"region_name"`
	DistrictName []string `yaml:"district_name"`
	Electorate   []string `yaml:"electorate"`
	Ballots      []string `yaml:"ballots"`
	ValidVotes   []string `yaml:"valid_votes"`
	Ignore       []string `yaml:"ignore"` // columns that are neither fixed nor categories
}

// IngestOptions configure ReadBatch.
type IngestOptions struct {
	Delimiter rune
	Encoding  string // utf-8 (default), latin1 / iso-8859-1, windows-1252
	Columns   ColumnAliases
}

// DefaultColumnAliases accepts the English names plus the usual headers of
// municipal election result sheets.
var DefaultColumnAliases = ColumnAliases{
	Key:          []string{"key", "code", "municipal_code", "codigo", "codigo_municipio", "cod_municipio"},
	RegionCode:   []string{"region_code", "codigo_provincia", "cod_provincia"},
	RegionName:   []string{"region_name", "provincia", "nombre_provincia"},
	DistrictName: []string{"district_name", "municipio", "nombre_municipio"},
	Electorate:   []string{"electorate", "censo", "total_censo_electoral"},
	Ballots:      []string{"ballots", "votantes", "total_votantes"},
	ValidVotes:   []string{"valid_votes", "votos_validos"},
}

type field int

const (
	fieldCategory field = iota
	fieldKey
	fieldRegionCode
	fieldRegionName
	fieldDistrictName
	fieldElectorate
	fieldBallots
	fieldValidVotes
	fieldIgnored
)

// LoadBatch reads a round from a local CSV file or an http(s) URL.
func LoadBatch(ctx context.Context, pathOrURL, round string, opts IngestOptions) (model.Batch, error) {
	var reader io.Reader
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pathOrURL, nil)
		if err != nil {
			return model.Batch{}, fmt.Errorf("failed to build request: %w", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return model.Batch{}, fmt.Errorf("failed to GET CSV: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return model.Batch{}, fmt.Errorf("failed to GET CSV: %s", resp.Status)
		}
		reader = resp.Body
	} else {
		file, err := os.Open(pathOrURL)
		if err != nil {
			return model.Batch{}, fmt.Errorf("failed to open CSV file: %w", err)
		}
		defer file.Close()
		reader = file
	}
	return ReadBatch(reader, round, opts)
}

// ReadBatch parses one round. Every column that is not a fixed column becomes a category.
func ReadBatch(r io.Reader, round string, opts IngestOptions) (model.Batch, error) {
	decoded, err := decodeReader(r, opts.Encoding)
	if err != nil {
		return model.Batch{}, err
	}

	csvReader := csv.NewReader(decoded)
	csvReader.LazyQuotes = true
	csvReader.TrimLeadingSpace = true
	if opts.Delimiter != 0 {
		csvReader.Comma = opts.Delimiter
	}

	headers, err := csvReader.Read()
	if err != nil {
		return model.Batch{}, fmt.Errorf("failed to read CSV header: %w", err)
	}
	fields, categories, err := discoverColumns(headers, opts.Columns)
	if err != nil {
		return model.Batch{}, err
	}

	batch := model.Batch{Round: round, Categories: categories}
	for {
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.Batch{}, fmt.Errorf("CSV read error: %w", err)
		}
		line, _ := csvReader.FieldPos(0)

		row, err := parseRow(record, headers, fields)
		if err != nil {
			return model.Batch{}, fmt.Errorf("line %d: %w", line, err)
		}
		batch.Rows = append(batch.Rows, row)
	}
	return batch, nil
}

func decodeReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf-8", "utf8":
		return r, nil
	case "latin1", "latin-1", "iso-8859-1":
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder()), nil
	case "windows-1252", "cp1252":
		return transform.NewReader(r, charmap.Windows1252.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

// normalizeHeader trims a header, strips stray quotes and BOM, and puts it in NFC
// so the same category name spelled with combining marks matches across rounds.
func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ReplaceAll(h, `"`, "")
	return norm.NFC.String(strings.TrimSpace(h))
}

func discoverColumns(headers []string, aliases ColumnAliases) ([]field, []string, error) {
	if len(aliases.Key) == 0 {
		aliases = DefaultColumnAliases
	}
	lookup := make(map[string]field)
	add := func(f field, names []string) {
		for _, n := range names {
			lookup[strings.ToLower(normalizeHeader(n))] = f
		}
	}
	add(fieldKey, aliases.Key)
	add(fieldRegionCode, aliases.RegionCode)
	add(fieldRegionName, aliases.RegionName)
	add(fieldDistrictName, aliases.DistrictName)
	add(fieldElectorate, aliases.Electorate)
	add(fieldBallots, aliases.Ballots)
	add(fieldValidVotes, aliases.ValidVotes)
	add(fieldIgnored, aliases.Ignore)

	fields := make([]field, len(headers))
	seen := make(map[field]bool)
	seenCategory := make(map[string]bool)
	var categories []string
	for i, h := range headers {
		name := normalizeHeader(h)
		headers[i] = name
		f, ok := lookup[strings.ToLower(name)]
		if !ok {
			if name == "" {
				return nil, nil, fmt.Errorf("%w: header %d is blank", ErrInvalidInput, i+1)
			}
			if seenCategory[name] {
				return nil, nil, fmt.Errorf("%w: category column %q appears twice", ErrInvalidInput, name)
			}
			seenCategory[name] = true
			categories = append(categories, name)
			fields[i] = fieldCategory
			continue
		}
		if f != fieldIgnored && seen[f] {
			return nil, nil, fmt.Errorf("%w: column %q maps to a field already present", ErrInvalidInput, name)
		}
		seen[f] = true
		fields[i] = f
	}

	for _, required := range []struct {
		f    field
		name string
	}{
		{fieldKey, "key"},
		{fieldElectorate, "electorate"},
		{fieldBallots, "ballots"},
		{fieldValidVotes, "valid votes"},
	} {
		if !seen[required.f] {
			return nil, nil, fmt.Errorf("%w: no %s column in header", ErrInvalidInput, required.name)
		}
	}

	sort.Strings(categories)
	return fields, categories, nil
}

func parseRow(record, headers []string, fields []field) (model.SourceRow, error) {
	row := model.SourceRow{Votes: make(map[string]int64)}
	for i, f := range fields {
		if i >= len(record) {
			break
		}
		value := strings.TrimSpace(record[i])
		if f == fieldKey || f == fieldRegionCode || f == fieldRegionName || f == fieldDistrictName {
			value = norm.NFC.String(value)
		}
		switch f {
		case fieldKey:
			row.Key = value
		case fieldRegionCode:
			row.RegionCode = value
		case fieldRegionName:
			row.RegionName = value
		case fieldDistrictName:
			row.DistrictName = value
		case fieldIgnored:
		default:
			n, err := utils.ParseCount(value)
			if err != nil {
				return model.SourceRow{}, fmt.Errorf("column %q: %w", headers[i], err)
			}
			switch f {
			case fieldElectorate:
				row.Electorate = n
			case fieldBallots:
				row.Ballots = n
			case fieldValidVotes:
				row.ValidVotes = n
			case fieldCategory:
				row.Votes[headers[i]] = n
			}
		}
	}
	return row, nil
}
