package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRatioRoundsHalfAwayFromZero(t *testing.T) {
	tests := []struct {
		num, den int64
		want     string
	}{
		{1, 3, "0.3333"},
		{2, 3, "0.6667"},
		{340, 640, "0.5313"},
		{300, 640, "0.4688"},
		{300, 580, "0.5172"},
		{1, 1, "1.0000"},
		{0, 7, "0.0000"},
		{1, 20000, "0.0001"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewRatio(tt.num, tt.den).String(), "%d/%d", tt.num, tt.den)
	}
}

func TestRatioJSON(t *testing.T) {
	b, err := json.Marshal(map[string]Ratio{"v": NewRatio(13, 20)})
	require.NoError(t, err)
	assert.Equal(t, `{"v":0.6500}`, string(b))

	var back map[string]Ratio
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back["v"].Equal(NewRatio(13, 20)))

	var quoted Ratio
	require.NoError(t, json.Unmarshal([]byte(`"0.12345"`), &quoted))
	assert.Equal(t, "0.1235", quoted.String())

	var null Ratio
	require.NoError(t, json.Unmarshal([]byte(`null`), &null))
	assert.True(t, null.IsZero())

	var bad Ratio
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &bad))
}

func TestRatioConversions(t *testing.T) {
	r := RatioFromDecimal(decimal.RequireFromString("0.33335"))
	assert.Equal(t, "0.3334", r.String())
	assert.Equal(t, 0.3334, r.Float64())
	assert.True(t, r.Decimal().Equal(decimal.RequireFromString("0.3334")))
	assert.True(t, ZeroRatio.IsZero())

	var unset Ratio
	assert.Equal(t, "0.0000", unset.String())
	assert.True(t, unset.Equal(ZeroRatio))
}

func TestTableStrings(t *testing.T) {
	tb := Table{Columns: []string{"key", "share", "missing"}}
	got := tb.Strings(Row{"key": "001", "share": NewRatio(1, 4)})
	assert.Equal(t, []string{"001", "0.2500", ""}, got)
}

func TestFilterMatches(t *testing.T) {
	rec := StoredRecord{Collection: CollectionRunLogs, RunID: "r1", Kind: "union", Key: "k"}

	assert.True(t, Filter{}.Matches(rec))
	assert.True(t, Filter{Collection: CollectionRunLogs, RunID: "r1"}.Matches(rec))
	assert.False(t, Filter{RunID: "r2"}.Matches(rec))
	assert.False(t, Filter{Kind: "staged"}.Matches(rec))
	assert.False(t, Filter{Key: "other"}.Matches(rec))
}

func TestSourceRowMeta(t *testing.T) {
	row := SourceRow{Key: "1", RegionCode: "28", RegionName: "Madrid", DistrictName: "Getafe", Electorate: 10}
	assert.Equal(t, DistrictMeta{Key: "1", RegionCode: "28", RegionName: "Madrid", DistrictName: "Getafe"}, row.Meta())
}
