package pipeline

import (
	"fmt"

	"go-election-merge/internal/model"

	"go.uber.org/zap"
)

type warningKey struct {
	kind, round, key, category string
}

// warn records a non-fatal condition once per (kind, round, key, category).
func (r *run) warn(w model.Warning) {
	k := warningKey{w.Kind, w.Round, w.Key, w.Category}
	if _, seen := r.seenWarnings[k]; seen {
		return
	}
	r.seenWarnings[k] = struct{}{}
	r.warnings = append(r.warnings, w)
	r.logger.Warn(w.Message,
		zap.String("kind", w.Kind),
		zap.String("round", w.Round),
		zap.String("key", w.Key),
	)
}

func (r *run) turnout(round string, row model.SourceRow) model.Ratio {
	t, ok := Turnout(row.Ballots, row.Electorate)
	if !ok {
		r.warn(model.Warning{
			Kind:    model.WarnZeroElectorate,
			Round:   round,
			Key:     row.Key,
			Message: "electorate is zero, turnout set to 0",
		})
	}
	return t
}

func (r *run) shares(round string, row model.SourceRow, categories []string) map[string]model.Ratio {
	if row.ValidVotes == 0 {
		r.warn(model.Warning{
			Kind:    model.WarnZeroValidVotes,
			Round:   round,
			Key:     row.Key,
			Message: "valid votes are zero, shares set to 0",
		})
	}
	return computeShares(row, categories)
}

func computeShares(row model.SourceRow, categories []string) map[string]model.Ratio {
	out := make(map[string]model.Ratio, len(categories))
	for _, c := range categories {
		// a category missing from the row counts as zero votes
		s, _ := RelativeShare(row.Votes[c], row.ValidVotes)
		out[c] = s
	}
	return out
}

// derive computes turnout and every share of the run's category union for a
// tagged row. Only reported rows raise zero-guard warnings.
func (r *run) derive(d model.DerivedRow, report bool) model.DerivedRow {
	if report {
		d.Turnout = r.turnout(d.Round, d.Row)
		d.Shares = r.shares(d.Round, d.Row, r.categories)
		return d
	}
	d.Turnout, _ = Turnout(d.Row.Ballots, d.Row.Electorate)
	d.Shares = computeShares(d.Row, r.categories)
	return d
}

func (r *run) duplicate(round, key string, n int) {
	r.warn(model.Warning{
		Kind:    model.WarnDuplicateKey,
		Round:   round,
		Key:     key,
		Message: fmt.Sprintf("%d rows share this key, keeping the first", n),
	})
}

// firstSeen collapses rows sharing a key to the first one.
func (r *run) firstSeen(b model.Batch) []model.SourceRow {
	groups := GroupBy(b.Rows, sourceKey)
	for _, k := range groups.Keys() {
		if n := len(groups.Get(k)); n > 1 {
			r.duplicate(b.Round, k, n)
		}
	}
	return groups.First()
}

// roundRecords computes the per-key records of one round.
func (r *run) roundRecords(b model.Batch) []model.RoundRecord {
	rows := r.firstSeen(b)
	out := make([]model.RoundRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.RoundRecord{
			Meta:    row.Meta(),
			Turnout: r.turnout(b.Round, row),
			Shares:  r.shares(b.Round, row, b.Categories),
		})
	}
	return out
}

// mergeRecords builds the merged record of a key from both rounds' records.
// Metadata comes from round 1.
func (r *run) mergeRecords(first, second model.RoundRecord) model.MergedRecord {
	m := model.MergedRecord{
		Meta:    first.Meta,
		Turnout: [2]model.Ratio{first.Turnout, second.Turnout},
		Shares:  make(map[string][2]model.Ratio, len(r.categories)),
	}
	for _, c := range r.categories {
		m.Shares[c] = [2]model.Ratio{shareOf(first.Shares, c), shareOf(second.Shares, c)}
	}
	return m
}

func shareOf(shares map[string]model.Ratio, category string) model.Ratio {
	if s, ok := shares[category]; ok {
		return s
	}
	return model.ZeroRatio
}

func sourceKey(row model.SourceRow) string { return row.Key }
func recordKey(rec model.RoundRecord) string { return rec.Meta.Key }
func derivedKey(d model.DerivedRow) string { return d.Row.Key }
func taggedKey(d model.DerivedRow) string { return d.Round + "/" + d.Row.Key }
