package pipeline

import "go-election-merge/internal/model"

// unionThenPivot tags every row with its round, concatenates both rounds,
// computes rates once over the concatenation, then groups by key and pivots
// the round tags into wide columns.
func unionThenPivot(r *run) ([]model.MergedRecord, error) {
	var union []model.DerivedRow
	err := r.stage(StageExtract, func() error {
		union = make([]model.DerivedRow, 0, len(r.b1.Rows)+len(r.b2.Rows))
		for _, b := range []model.Batch{r.b1, r.b2} {
			for _, row := range b.Rows {
				union = append(union, model.DerivedRow{Round: b.Round, Row: row})
			}
		}
		r.tracker.AddReadOps(len(union))
		r.tracker.AddWriteOps(len(union))
		r.tracker.AddIntermediateRows(len(union))
		return r.retainRaw()
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(StageTransform, func() error {
		// one formula for every row, only the tag differs; later duplicates
		// are discarded by pick and stay silent
		type roundKey struct{ round, key string }
		seen := make(map[roundKey]struct{}, len(union))
		for i := range union {
			k := roundKey{union[i].Round, union[i].Row.Key}
			_, dup := seen[k]
			seen[k] = struct{}{}
			union[i] = r.derive(union[i], !dup)
		}
		r.tracker.AddReadOps(len(union))
		r.tracker.AddWriteOps(len(union))
		r.tracker.RecordMemoryEstimate(len(union), r.rowBytes)

		var err error
		union, err = stash(r, "union/computed", union, taggedKey)
		return err
	})
	if err != nil {
		return nil, err
	}

	var merged []model.MergedRecord
	err = r.stage(StageJoin, func() error {
		groups := GroupBy(union, derivedKey)
		r.tracker.AddReadOps(len(union))
		r.tracker.AddIntermediateRows(groups.Len())

		merged = make([]model.MergedRecord, 0, groups.Len())
		for _, key := range groups.Keys() {
			first, second, ok := r.pick(key, groups.Get(key))
			if !ok {
				continue
			}
			merged = append(merged, r.pivot(first, second))
		}
		r.tracker.AddWriteOps(len(merged))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// pick locates the first member tagged with each round. Groups missing either
// round are dropped.
func (r *run) pick(key string, members []model.DerivedRow) (first, second model.DerivedRow, ok bool) {
	var n1, n2 int
	for _, m := range members {
		switch m.Round {
		case r.b1.Round:
			if n1 == 0 {
				first = m
			}
			n1++
		case r.b2.Round:
			if n2 == 0 {
				second = m
			}
			n2++
		}
	}
	if n1 > 1 {
		r.duplicate(r.b1.Round, key, n1)
	}
	if n2 > 1 {
		r.duplicate(r.b2.Round, key, n2)
	}
	return first, second, n1 > 0 && n2 > 0
}

func (r *run) pivot(first, second model.DerivedRow) model.MergedRecord {
	m := model.MergedRecord{
		Meta:    first.Row.Meta(),
		Turnout: [2]model.Ratio{first.Turnout, second.Turnout},
		Shares:  make(map[string][2]model.Ratio, len(r.categories)),
	}
	for _, c := range r.categories {
		m.Shares[c] = [2]model.Ratio{shareOf(first.Shares, c), shareOf(second.Shares, c)}
	}
	return m
}
