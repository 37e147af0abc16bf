package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker() (*Tracker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), step: time.Millisecond}
	return newTrackerWithClock(clock.now), clock
}

func TestEndStageWithoutStart(t *testing.T) {
	tr, _ := newTestTracker()
	err := tr.EndStage(StageJoin)
	require.ErrorIs(t, err, ErrStageNotStarted)
	assert.Empty(t, tr.Snapshot().StagesMs)
}

func TestStageTimings(t *testing.T) {
	tr, _ := newTestTracker()

	// every clock read advances 1ms: start reads once, end reads once
	tr.StartStage()
	require.NoError(t, tr.EndStage(StageExtract))
	tr.StartStage()
	require.NoError(t, tr.EndStage(StageTransform))

	m := tr.Snapshot()
	assert.Equal(t, []string{StageExtract, StageTransform}, m.StageOrder)
	assert.Equal(t, 1.0, m.StagesMs[StageExtract])
	assert.Equal(t, 1.0, m.StagesMs[StageTransform])
	assert.Equal(t, 5.0, m.TotalMs)
}

func TestNestedStagesCloseLastStarted(t *testing.T) {
	tr, _ := newTestTracker()

	tr.StartStage()
	tr.StartStage()
	require.NoError(t, tr.EndStage("inner"))
	require.NoError(t, tr.EndStage("outer"))
	require.ErrorIs(t, tr.EndStage("extra"), ErrStageNotStarted)

	m := tr.Snapshot()
	assert.Equal(t, []string{"inner", "outer"}, m.StageOrder)
	assert.Equal(t, 1.0, m.StagesMs["inner"])
	assert.Equal(t, 3.0, m.StagesMs["outer"])
}

func TestRepeatedStageAccumulates(t *testing.T) {
	tr, _ := newTestTracker()
	for i := 0; i < 3; i++ {
		tr.StartStage()
		require.NoError(t, tr.EndStage(StageLoad))
	}
	m := tr.Snapshot()
	assert.Equal(t, []string{StageLoad}, m.StageOrder)
	assert.Equal(t, 3.0, m.StagesMs[StageLoad])
}

func TestCountersAreMonotonic(t *testing.T) {
	tr, _ := newTestTracker()
	prev := tr.Snapshot()

	steps := []func(){
		func() { tr.AddReadOps(3) },
		func() { tr.AddWriteOps(2) },
		func() { tr.AddIntermediateRows(5) },
		func() { tr.AddReadOps(-4) },
		func() { tr.AddWriteOps(0) },
		func() { tr.RecordMemoryEstimate(1024, 1024) },
		func() { tr.RecordMemoryEstimate(1, 1) },
		func() { tr.StartStage(); _ = tr.EndStage(StageJoin) },
	}
	for _, step := range steps {
		step()
		cur := tr.Snapshot()
		assert.GreaterOrEqual(t, cur.ReadOps, prev.ReadOps)
		assert.GreaterOrEqual(t, cur.WriteOps, prev.WriteOps)
		assert.GreaterOrEqual(t, cur.IntermediateRows, prev.IntermediateRows)
		assert.GreaterOrEqual(t, cur.PeakMemoryMB, prev.PeakMemoryMB)
		assert.GreaterOrEqual(t, cur.TotalMs, prev.TotalMs)
		for name, ms := range prev.StagesMs {
			assert.GreaterOrEqual(t, cur.StagesMs[name], ms)
		}
		prev = cur
	}

	assert.Equal(t, int64(3), prev.ReadOps)
	assert.Equal(t, int64(2), prev.WriteOps)
	assert.Equal(t, int64(5), prev.IntermediateRows)
	assert.Equal(t, 1.0, prev.PeakMemoryMB)
}

func TestRecordActualMemory(t *testing.T) {
	tr, _ := newTestTracker()
	tr.readMem = func() uint64 { return 3 * bytesPerMB }
	tr.RecordMemoryEstimate(1, 1024)
	tr.RecordActualMemory()
	assert.Equal(t, 3.0, tr.Snapshot().PeakMemoryMB)

	tr.readMem = func() uint64 { return bytesPerMB }
	tr.RecordActualMemory()
	assert.Equal(t, 3.0, tr.Snapshot().PeakMemoryMB, "peak never goes down")
}

func TestResidentMemoryIsReported(t *testing.T) {
	assert.Greater(t, residentMemory(), uint64(0))

	tr := NewTracker()
	tr.RecordActualMemory()
	assert.Greater(t, tr.Snapshot().PeakMemoryMB, 0.0)
}

func TestSnapshotIsACopy(t *testing.T) {
	tr, _ := newTestTracker()
	tr.StartStage()
	require.NoError(t, tr.EndStage(StageExtract))

	m := tr.Snapshot()
	m.StagesMs[StageExtract] = 99
	m.StageOrder[0] = "changed"

	again := tr.Snapshot()
	assert.Equal(t, 1.0, again.StagesMs[StageExtract])
	assert.Equal(t, StageExtract, again.StageOrder[0])
}
