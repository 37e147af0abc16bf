package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"go-election-merge/internal/model"
	"go-election-merge/internal/store"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStore remembers which intermediate kinds were written.
type recordingStore struct {
	*store.Memory
	mu    sync.Mutex
	kinds map[string]int
}

func newRecordingStore() *recordingStore {
	return &recordingStore{Memory: store.NewMemory(), kinds: make(map[string]int)}
}

func (s *recordingStore) Create(ctx context.Context, recs []model.StoredRecord) error {
	s.mu.Lock()
	for _, rec := range recs {
		if rec.Collection == model.CollectionIntermediate {
			s.kinds[rec.Kind]++
		}
	}
	s.mu.Unlock()
	return s.Memory.Create(ctx, recs)
}

func (s *recordingStore) kindNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// flakyStore fails the first failures calls to Create with err.
type flakyStore struct {
	*store.Memory
	failures int
	err      error
	calls    int
}

func (s *flakyStore) Create(ctx context.Context, recs []model.StoredRecord) error {
	s.calls++
	if s.calls <= s.failures {
		return s.err
	}
	return s.Memory.Create(ctx, recs)
}

// cancelingStore cancels the caller's context once its first write lands.
type cancelingStore struct {
	*store.Memory
	cancel context.CancelFunc
}

func (s *cancelingStore) Create(ctx context.Context, recs []model.StoredRecord) error {
	err := s.Memory.Create(ctx, recs)
	s.cancel()
	return err
}

// runLogRejectingStore accepts everything except run logs.
type runLogRejectingStore struct {
	*store.Memory
	err error
}

func (s *runLogRejectingStore) Create(ctx context.Context, recs []model.StoredRecord) error {
	for _, rec := range recs {
		if rec.Collection == model.CollectionRunLogs {
			return s.err
		}
	}
	return s.Memory.Create(ctx, recs)
}

func count(t *testing.T, s Store, f model.Filter) int {
	t.Helper()
	recs, err := s.Read(context.Background(), f)
	require.NoError(t, err)
	return len(recs)
}

func TestExternalizeMatchesInMemory(t *testing.T) {
	b1, b2 := messyRounds()
	plain := runAll(t, b1, b2, Options{})

	wantKinds := map[string][]string{
		model.TopologySeparate: {"separate/2019", "separate/2023"},
		model.TopologyUnion:    {"union/computed"},
		model.TopologyStaged: {
			"staged/base/2019", "staged/base/2023",
			"staged/detail/2019", "staged/detail/2023",
			"staged/intermediate/2019", "staged/intermediate/2023",
		},
	}

	for _, topology := range model.Topologies {
		t.Run(topology, func(t *testing.T) {
			s := newRecordingStore()
			res, err := Run(context.Background(), topology, b1, b2, Options{Store: s, Externalize: true})
			require.NoError(t, err)

			if diff := cmp.Diff(plain[topology].Table, res.Table); diff != "" {
				t.Errorf("externalized table differs (-memory +store):\n%s", diff)
			}
			assert.ElementsMatch(t, warningIDs(plain[topology].Warnings), warningIDs(res.Warnings))
			assert.Equal(t, wantKinds[topology], s.kindNames())

			// intermediates are dropped, only the run log remains
			assert.Zero(t, count(t, s, model.Filter{Collection: model.CollectionIntermediate}))
			assert.Equal(t, 1, s.Len())

			assert.Greater(t, res.Metrics.WriteOps, plain[topology].Metrics.WriteOps)
			assert.Greater(t, res.Metrics.ReadOps, plain[topology].Metrics.ReadOps)
		})
	}
}

func TestRetainRawAndDerived(t *testing.T) {
	b1, b2 := messyRounds()
	for _, topology := range model.Topologies {
		t.Run(topology, func(t *testing.T) {
			s := store.NewMemory()
			res, err := Run(context.Background(), topology, b1, b2, Options{
				RunID:         "run-" + topology,
				Store:         s,
				RetainRaw:     true,
				RetainDerived: true,
			})
			require.NoError(t, err)

			raw := model.Filter{Collection: model.CollectionRawRows, RunID: res.RunID}
			assert.Equal(t, len(b1.Rows)+len(b2.Rows), count(t, s, raw))
			raw.Kind = "2023"
			assert.Equal(t, len(b2.Rows), count(t, s, raw))

			derived, err := s.Read(context.Background(), model.Filter{Collection: model.CollectionDerivedRows, RunID: res.RunID})
			require.NoError(t, err)
			require.Len(t, derived, len(res.Table.Rows))
			assert.Equal(t, "A", derived[0].Key)
			assert.Equal(t, topology, derived[0].Kind)
			assert.JSONEq(t,
				`{"key":"A","region_code":"28","region_name":"Madrid","district_name":"District A",
				"turnout_2019":0.5,"turnout_2023":0.7,"X_2019":0.25,"X_2023":0,"Y_2019":0.75,"Y_2023":0.3333,"Z_2019":0,"Z_2023":0.6667}`,
				string(derived[0].Body))
		})
	}
}

func TestRunLogIsWritten(t *testing.T) {
	b1, b2 := scenarioRounds()
	s := store.NewMemory()
	res, err := Run(context.Background(), model.TopologyUnion, b1, b2, Options{RunID: "r1", Store: s})
	require.NoError(t, err)

	logs, err := RunLogs(context.Background(), s, "r1")
	require.NoError(t, err)
	require.Len(t, logs, 1)

	l := logs[0]
	assert.Equal(t, "r1", l.RunID)
	assert.Equal(t, model.TopologyUnion, l.Topology)
	assert.Equal(t, [2]string{"1", "2"}, l.Rounds)
	assert.Equal(t, [2]int{1, 1}, l.InputRows)
	assert.Equal(t, 1, l.OutputRows)
	assert.Equal(t, res.Metrics, l.Metrics)
	assert.False(t, l.FinishedAt.Before(l.StartedAt))

	all, err := RunLogs(context.Background(), s, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDeleteRun(t *testing.T) {
	b1, b2 := scenarioRounds()
	s := store.NewMemory()
	for _, id := range []string{"keep", "drop"} {
		_, err := Run(context.Background(), model.TopologyStaged, b1, b2, Options{
			RunID: id, Store: s, RetainRaw: true, RetainDerived: true,
		})
		require.NoError(t, err)
	}

	n, err := DeleteRun(context.Background(), s, "drop")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n) // two raw rows, one derived row, one run log
	assert.Equal(t, 4, s.Len())

	_, err = DeleteRun(context.Background(), s, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStoreFailureAbortsRun(t *testing.T) {
	b1, b2 := scenarioRounds()
	boom := errors.New("disk full")
	s := &flakyStore{Memory: store.NewMemory(), failures: 1, err: boom}

	_, err := Run(context.Background(), model.TopologySeparate, b1, b2, Options{Store: s, Externalize: true})
	require.ErrorIs(t, err, boom)
	assert.Zero(t, count(t, s, model.Filter{Collection: model.CollectionIntermediate}))
}

func TestCancelledRunDropsIntermediates(t *testing.T) {
	b1, b2 := messyRounds()
	for _, topology := range model.Topologies {
		t.Run(topology, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			s := &cancelingStore{Memory: store.NewMemory(), cancel: cancel}

			_, err := Run(ctx, topology, b1, b2, Options{Store: s, Externalize: true})
			require.ErrorIs(t, err, context.Canceled)
			assert.Zero(t, count(t, s, model.Filter{Collection: model.CollectionIntermediate}))
			assert.Zero(t, s.Len())
		})
	}
}

func TestFailedRunLeavesNoRecords(t *testing.T) {
	b1, b2 := messyRounds()
	boom := errors.New("disk full")
	for _, topology := range model.Topologies {
		t.Run(topology, func(t *testing.T) {
			s := &runLogRejectingStore{Memory: store.NewMemory(), err: boom}

			_, err := Run(context.Background(), topology, b1, b2, Options{
				RunID:         "doomed",
				Store:         s,
				RetainRaw:     true,
				RetainDerived: true,
				Externalize:   true,
			})
			require.ErrorIs(t, err, boom)
			assert.Zero(t, count(t, s, model.Filter{Collection: model.CollectionRawRows}))
			assert.Zero(t, count(t, s, model.Filter{Collection: model.CollectionDerivedRows}))
			assert.Zero(t, s.Len())
		})
	}
}

func TestStashWithoutStoreIsPassThrough(t *testing.T) {
	r := &run{ctx: context.Background(), opts: Options{Externalize: true}, tracker: NewTracker()}
	rows := []DetailRow{{Key: "A"}}
	out, err := stash(r, "x", rows, detailKey)
	require.NoError(t, err)
	assert.Equal(t, rows, out)
	assert.Zero(t, r.tracker.Snapshot().WriteOps)
}
