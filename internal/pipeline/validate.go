package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"go-election-merge/internal/model"
)

var (
	// ErrInvalidInput marks a structurally invalid input batch.
	ErrInvalidInput = errors.New("invalid input")
	// ErrMetadataMismatch marks a district whose identity differs between rounds.
	ErrMetadataMismatch = errors.New("metadata mismatch between rounds")
	// ErrColumnCollision marks a category name that produces an existing column.
	ErrColumnCollision = errors.New("column collision")
)

// ValidateInput checks both batches before any topology runs.
// Duplicate keys are not rejected here: every topology keeps the first row of a key.
func ValidateInput(b1, b2 model.Batch) error {
	if strings.TrimSpace(b1.Round) == "" || strings.TrimSpace(b2.Round) == "" {
		return fmt.Errorf("%w: round identifiers are required", ErrInvalidInput)
	}
	if b1.Round == b2.Round {
		return fmt.Errorf("%w: both rounds are named %q", ErrInvalidInput, b1.Round)
	}
	if err := validateBatch(b1); err != nil {
		return err
	}
	if err := validateBatch(b2); err != nil {
		return err
	}
	return checkMetadata(b1, b2)
}

// validateBatch applies the per-round rules to a batch.
func validateBatch(b model.Batch) error {
	declared := make(map[string]struct{}, len(b.Categories))
	for _, c := range b.Categories {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%w: round %s: blank category name", ErrInvalidInput, b.Round)
		}
		if _, dup := declared[c]; dup {
			return fmt.Errorf("%w: round %s: category %q listed twice", ErrInvalidInput, b.Round, c)
		}
		declared[c] = struct{}{}
	}

	for i, row := range b.Rows {
		if err := validateRow(row, declared); err != nil {
			return fmt.Errorf("%w: round %s row %d: %v", ErrInvalidInput, b.Round, i+1, err)
		}
	}
	return nil
}

func validateRow(row model.SourceRow, declared map[string]struct{}) error {
	if strings.TrimSpace(row.Key) == "" {
		return errors.New("missing district key")
	}
	counts := []struct {
		name string
		v    int64
	}{
		{"electorate", row.Electorate},
		{"ballots", row.Ballots},
		{"valid votes", row.ValidVotes},
	}
	for _, c := range counts {
		if c.v < 0 {
			return fmt.Errorf("key %s: %s below zero: %d", row.Key, c.name, c.v)
		}
	}
	for category, votes := range row.Votes {
		if _, ok := declared[category]; !ok {
			return fmt.Errorf("key %s: votes for undeclared category %q", row.Key, category)
		}
		if votes < 0 {
			return fmt.Errorf("key %s: votes for %q below zero: %d", row.Key, category, votes)
		}
	}
	return nil
}

// checkMetadata compares the first row of every key present in both rounds.
func checkMetadata(b1, b2 model.Batch) error {
	first := make(map[string]model.DistrictMeta, len(b1.Rows))
	for _, row := range b1.Rows {
		if _, seen := first[row.Key]; !seen {
			first[row.Key] = row.Meta()
		}
	}
	checked := make(map[string]struct{}, len(b2.Rows))
	for _, row := range b2.Rows {
		if _, done := checked[row.Key]; done {
			continue
		}
		checked[row.Key] = struct{}{}
		m1, ok := first[row.Key]
		if !ok {
			continue
		}
		if m1 != row.Meta() {
			return fmt.Errorf("%w: key %s: %+v in round %s, %+v in round %s",
				ErrMetadataMismatch, row.Key, m1, b1.Round, row.Meta(), b2.Round)
		}
	}
	return nil
}
