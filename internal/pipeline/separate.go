package pipeline

import "go-election-merge/internal/model"

// separateThenJoin transforms each round on its own into per-key records and
// joins the two record sets on district key.
func separateThenJoin(r *run) ([]model.MergedRecord, error) {
	err := r.stage(StageExtract, func() error {
		r.tracker.AddReadOps(len(r.b1.Rows) + len(r.b2.Rows))
		return r.retainRaw()
	})
	if err != nil {
		return nil, err
	}

	var first, second []model.RoundRecord
	err = r.stage(StageTransform, func() error {
		var err error
		if first, err = r.separateRound(r.b1); err != nil {
			return err
		}
		second, err = r.separateRound(r.b2)
		return err
	})
	if err != nil {
		return nil, err
	}

	var merged []model.MergedRecord
	err = r.stage(StageJoin, func() error {
		r.tracker.AddReadOps(len(first) + len(second))
		merged = EquiJoin(first, second, recordKey, recordKey, r.mergeRecords)
		r.tracker.AddWriteOps(len(merged))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// separateRound computes one round as a single intermediate batch.
func (r *run) separateRound(b model.Batch) ([]model.RoundRecord, error) {
	records := r.roundRecords(b)
	r.tracker.AddWriteOps(len(records))
	r.tracker.AddIntermediateRows(len(records))
	r.tracker.RecordMemoryEstimate(len(records), r.rowBytes)
	return stash(r, "separate/"+b.Round, records, recordKey)
}
