package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go-election-merge/internal/model"
)

// discardTimeout bounds the cleanup of a failed run.
const discardTimeout = 30 * time.Second

// Store is the persistence port the engine writes raw rows, intermediates,
// derived rows and run logs to. Read must return records in insertion order.
type Store interface {
	Create(ctx context.Context, recs []model.StoredRecord) error
	Read(ctx context.Context, f model.Filter) ([]model.StoredRecord, error)
	Delete(ctx context.Context, f model.Filter) (int64, error)
}

// stash round-trips an intermediate table through the store when the run
// externalizes its intermediates; otherwise rows are returned untouched.
func stash[T any](r *run, name string, rows []T, keyOf func(T) string) ([]T, error) {
	if !r.opts.Externalize || r.opts.Store == nil {
		return rows, nil
	}

	recs := make([]model.StoredRecord, 0, len(rows))
	for _, row := range rows {
		body, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("encode %s row: %w", name, err)
		}
		recs = append(recs, model.StoredRecord{
			Collection: model.CollectionIntermediate,
			RunID:      r.id,
			Kind:       name,
			Key:        keyOf(row),
			Body:       body,
			CreatedAt:  r.now(),
		})
	}
	if err := r.opts.Store.Create(r.ctx, recs); err != nil {
		return nil, fmt.Errorf("store %s: %w", name, err)
	}
	r.tracker.AddWriteOps(len(recs))

	back, err := r.opts.Store.Read(r.ctx, model.Filter{
		Collection: model.CollectionIntermediate,
		RunID:      r.id,
		Kind:       name,
	})
	if err != nil {
		return nil, fmt.Errorf("read back %s: %w", name, err)
	}
	r.tracker.AddReadOps(len(back))

	out := make([]T, 0, len(back))
	for _, rec := range back {
		var row T
		if err := json.Unmarshal(rec.Body, &row); err != nil {
			return nil, fmt.Errorf("decode %s row %q: %w", name, rec.Key, err)
		}
		out = append(out, row)
	}
	return out, nil
}

// dropIntermediates deletes everything the run externalized.
func (r *run) dropIntermediates() error {
	if !r.opts.Externalize || r.opts.Store == nil {
		return nil
	}
	_, err := r.opts.Store.Delete(r.ctx, model.Filter{
		Collection: model.CollectionIntermediate,
		RunID:      r.id,
	})
	return err
}

// discard deletes every record a failed run wrote: retained rows,
// intermediates and a run log if one got through. It runs detached from the
// run's context so that a cancelled run still cleans up.
func (r *run) discard() (int64, error) {
	if r.opts.Store == nil {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), discardTimeout)
	defer cancel()
	return r.opts.Store.Delete(ctx, model.Filter{RunID: r.id})
}

// retainRaw writes both rounds' source rows when requested.
func (r *run) retainRaw() error {
	if !r.opts.RetainRaw || r.opts.Store == nil {
		return nil
	}
	recs := make([]model.StoredRecord, 0, len(r.b1.Rows)+len(r.b2.Rows))
	for _, b := range []model.Batch{r.b1, r.b2} {
		for _, row := range b.Rows {
			body, err := json.Marshal(row)
			if err != nil {
				return fmt.Errorf("encode raw row %q: %w", row.Key, err)
			}
			recs = append(recs, model.StoredRecord{
				Collection: model.CollectionRawRows,
				RunID:      r.id,
				Kind:       b.Round,
				Key:        row.Key,
				Body:       body,
				CreatedAt:  r.now(),
			})
		}
	}
	if err := r.opts.Store.Create(r.ctx, recs); err != nil {
		return fmt.Errorf("store raw rows: %w", err)
	}
	r.tracker.AddWriteOps(len(recs))
	return nil
}

// retainDerived writes the final rows when requested.
func (r *run) retainDerived(t model.Table) error {
	if !r.opts.RetainDerived || r.opts.Store == nil {
		return nil
	}
	recs := make([]model.StoredRecord, 0, len(t.Rows))
	for _, row := range t.Rows {
		body, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encode derived row: %w", err)
		}
		key, _ := row[ColumnKey].(string)
		recs = append(recs, model.StoredRecord{
			Collection: model.CollectionDerivedRows,
			RunID:      r.id,
			Kind:       r.topology,
			Key:        key,
			Body:       body,
			CreatedAt:  r.now(),
		})
	}
	if err := r.opts.Store.Create(r.ctx, recs); err != nil {
		return fmt.Errorf("store derived rows: %w", err)
	}
	r.tracker.AddWriteOps(len(recs))
	return nil
}

// saveRunLog hands the metrics snapshot to the store verbatim.
func (r *run) saveRunLog(log model.RunLog) error {
	if r.opts.Store == nil {
		return nil
	}
	body, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("encode run log: %w", err)
	}
	return r.opts.Store.Create(r.ctx, []model.StoredRecord{{
		Collection: model.CollectionRunLogs,
		RunID:      r.id,
		Kind:       r.topology,
		Key:        r.id,
		Body:       body,
		CreatedAt:  r.now(),
	}})
}

// RunLogs reads run logs back from a store, newest last.
func RunLogs(ctx context.Context, s Store, runID string) ([]model.RunLog, error) {
	recs, err := s.Read(ctx, model.Filter{Collection: model.CollectionRunLogs, RunID: runID})
	if err != nil {
		return nil, err
	}
	logs := make([]model.RunLog, 0, len(recs))
	for _, rec := range recs {
		var l model.RunLog
		if err := json.Unmarshal(rec.Body, &l); err != nil {
			return nil, fmt.Errorf("decode run log %s: %w", rec.RunID, err)
		}
		logs = append(logs, l)
	}
	return logs, nil
}

// DeleteRun removes every record a run left in the store.
func DeleteRun(ctx context.Context, s Store, runID string) (int64, error) {
	if runID == "" {
		return 0, fmt.Errorf("delete run: %w: empty run id", ErrInvalidInput)
	}
	return s.Delete(ctx, model.Filter{RunID: runID})
}
