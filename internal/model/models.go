package model

// SourceRow is one district's results for a single round, as produced by ingestion.
type SourceRow struct {
	Key          string           `json:"key"`
	RegionCode   string           `json:"region_code"`
	RegionName   string           `json:"region_name"`
	DistrictName string           `json:"district_name"`
	Electorate   int64            `json:"electorate"`
	Ballots      int64            `json:"ballots"`
	ValidVotes   int64            `json:"valid_votes"`
	Votes        map[string]int64 `json:"votes"` // category -> vote count
}

// Meta returns the identity fields of the row.
func (r SourceRow) Meta() DistrictMeta {
	return DistrictMeta{
		Key:          r.Key,
		RegionCode:   r.RegionCode,
		RegionName:   r.RegionName,
		DistrictName: r.DistrictName,
	}
}

// Batch is one round's parsed input: rows plus the sorted category names discovered for it.
type Batch struct {
	Round      string      `json:"round"`
	Rows       []SourceRow `json:"rows"`
	Categories []string    `json:"categories"`
}

// DistrictMeta holds the identity fields of a district.
type DistrictMeta struct {
	Key          string `json:"key"`
	RegionCode   string `json:"region_code"`
	RegionName   string `json:"region_name"`
	DistrictName string `json:"district_name"`
}

// DerivedRow is a source row tagged with its round and annotated with computed rates.
type DerivedRow struct {
	Round   string           `json:"round"`
	Row     SourceRow        `json:"row"`
	Turnout Ratio            `json:"turnout"`
	Shares  map[string]Ratio `json:"shares"`
}

// RoundRecord is the per-key record of a single round.
type RoundRecord struct {
	Meta    DistrictMeta     `json:"meta"`
	Turnout Ratio            `json:"turnout"`
	Shares  map[string]Ratio `json:"shares"`
}

// MergedRecord is the final per-district entity. Index 0 is round 1, index 1 is round 2.
type MergedRecord struct {
	Meta    DistrictMeta        `json:"meta"`
	Turnout [2]Ratio            `json:"turnout"`
	Shares  map[string][2]Ratio `json:"shares"`
}
