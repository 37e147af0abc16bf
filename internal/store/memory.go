package store

import (
	"context"
	"sync"
	"time"

	"go-election-merge/internal/model"
)

// Memory is an in-process store. It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	records []model.StoredRecord
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Create(ctx context.Context, recs []model.StoredRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range recs {
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now()
		}
		rec.Body = append([]byte(nil), rec.Body...)
		m.records = append(m.records, rec)
	}
	return nil
}

func (m *Memory) Read(ctx context.Context, f model.Filter) ([]model.StoredRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.StoredRecord
	for _, rec := range m.records {
		if f.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *Memory) Delete(ctx context.Context, f model.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	var n int64
	for _, rec := range m.records {
		if f.Matches(rec) {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	m.records = kept
	return n, nil
}

// Len is the number of records held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
