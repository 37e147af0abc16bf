package pipeline

import "go-election-merge/internal/model"

// BaseRow is one district of a round with metadata and turnout only.
type BaseRow struct {
	Meta    model.DistrictMeta `json:"meta"`
	Turnout model.Ratio        `json:"turnout"`
}

// DetailRow is one district of a round with its category shares.
type DetailRow struct {
	Key    string                 `json:"key"`
	Shares map[string]model.Ratio `json:"shares"`
}

type stagedTables struct {
	base   []BaseRow
	detail []DetailRow
}

// stagedJoin builds separate Base and Detail tables per round, joins them
// into a per-round intermediate and finally joins the two intermediates.
// Each table can be inspected on its own when intermediates are externalized.
func stagedJoin(r *run) ([]model.MergedRecord, error) {
	err := r.stage(StageExtract, func() error {
		r.tracker.AddReadOps(len(r.b1.Rows) + len(r.b2.Rows))
		return r.retainRaw()
	})
	if err != nil {
		return nil, err
	}

	var t1, t2 stagedTables
	err = r.stage(StageTransform, func() error {
		var err error
		if t1, err = r.stagedTables(r.b1); err != nil {
			return err
		}
		t2, err = r.stagedTables(r.b2)
		return err
	})
	if err != nil {
		return nil, err
	}

	var merged []model.MergedRecord
	err = r.stage(StageJoin, func() error {
		i1, err := r.intermediate(r.b1.Round, t1)
		if err != nil {
			return err
		}
		i2, err := r.intermediate(r.b2.Round, t2)
		if err != nil {
			return err
		}
		r.tracker.AddReadOps(len(i1) + len(i2))
		merged = EquiJoin(i1, i2, recordKey, recordKey, r.mergeRecords)
		r.tracker.AddWriteOps(len(merged))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// stagedTables builds the Base and Detail tables of one round. Rows sharing a
// key collapse to the first one in both tables.
func (r *run) stagedTables(b model.Batch) (stagedTables, error) {
	groups := GroupBy(b.Rows, sourceKey)

	base := make([]BaseRow, 0, groups.Len())
	for _, key := range groups.Keys() {
		members := groups.Get(key)
		if len(members) > 1 {
			r.duplicate(b.Round, key, len(members))
		}
		row := members[0]
		base = append(base, BaseRow{Meta: row.Meta(), Turnout: r.turnout(b.Round, row)})
	}

	first := groups.First()
	detail := make([]DetailRow, 0, len(first))
	for _, row := range first {
		detail = append(detail, DetailRow{Key: row.Key, Shares: r.shares(b.Round, row, b.Categories)})
	}

	r.tracker.AddReadOps(2 * len(b.Rows))
	r.tracker.AddWriteOps(len(base) + len(detail))
	r.tracker.AddIntermediateRows(len(base) + len(detail))
	r.tracker.RecordMemoryEstimate(len(base)+len(detail), r.rowBytes)

	var err error
	if base, err = stash(r, "staged/base/"+b.Round, base, baseKey); err != nil {
		return stagedTables{}, err
	}
	if detail, err = stash(r, "staged/detail/"+b.Round, detail, detailKey); err != nil {
		return stagedTables{}, err
	}
	return stagedTables{base: base, detail: detail}, nil
}

// intermediate joins Base and Detail of one round into per-key records.
func (r *run) intermediate(round string, t stagedTables) ([]model.RoundRecord, error) {
	r.tracker.AddReadOps(len(t.base) + len(t.detail))
	records := EquiJoin(t.base, t.detail, baseKey, detailKey, func(b BaseRow, d DetailRow) model.RoundRecord {
		return model.RoundRecord{Meta: b.Meta, Turnout: b.Turnout, Shares: d.Shares}
	})
	r.tracker.AddWriteOps(len(records))
	r.tracker.AddIntermediateRows(len(records))
	r.tracker.RecordMemoryEstimate(len(records), r.rowBytes)
	return stash(r, "staged/intermediate/"+round, records, recordKey)
}

func baseKey(b BaseRow) string { return b.Meta.Key }

func detailKey(d DetailRow) string { return d.Key }
