package pipeline

import (
	"testing"

	"go-election-merge/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestValidateInput(t *testing.T) {
	valid := func() (model.Batch, model.Batch) { return scenarioRounds() }

	tests := []struct {
		name   string
		mutate func(b1, b2 *model.Batch)
		want   error
	}{
		{"valid", func(b1, b2 *model.Batch) {}, nil},
		{"blank round", func(b1, b2 *model.Batch) { b1.Round = " " }, ErrInvalidInput},
		{"same round", func(b1, b2 *model.Batch) { b2.Round = b1.Round }, ErrInvalidInput},
		{"blank category", func(b1, b2 *model.Batch) { b1.Categories = []string{"P", ""} }, ErrInvalidInput},
		{"repeated category", func(b1, b2 *model.Batch) { b2.Categories = []string{"P", "P"} }, ErrInvalidInput},
		{"missing key", func(b1, b2 *model.Batch) { b1.Rows[0].Key = "" }, ErrInvalidInput},
		{"negative ballots", func(b1, b2 *model.Batch) { b2.Rows[0].Ballots = -1 }, ErrInvalidInput},
		{"negative votes", func(b1, b2 *model.Batch) { b1.Rows[0].Votes = map[string]int64{"P": -3} }, ErrInvalidInput},
		{"undeclared category", func(b1, b2 *model.Batch) { b1.Rows[0].Votes = map[string]int64{"R": 1} }, ErrInvalidInput},
		{"region code differs", func(b1, b2 *model.Batch) { b2.Rows[0].RegionCode = "45" }, ErrMetadataMismatch},
		{"district name differs", func(b1, b2 *model.Batch) { b2.Rows[0].DistrictName = "Alcala" }, ErrMetadataMismatch},
		{"unmatched key with other metadata", func(b1, b2 *model.Batch) {
			extra := b2.Rows[0]
			extra.Key, extra.RegionName = "999", "Toledo"
			b2.Rows = append(b2.Rows, extra)
		}, nil},
		{"later duplicate is not checked", func(b1, b2 *model.Batch) {
			dup := b2.Rows[0]
			dup.RegionName = "Toledo"
			b2.Rows = append(b2.Rows, dup)
		}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b1, b2 := valid()
			tt.mutate(&b1, &b2)
			err := ValidateInput(b1, b2)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
