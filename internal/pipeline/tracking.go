package pipeline

import (
	"errors"
	"fmt"
	"runtime/metrics"
	"sync"
	"time"

	"go-election-merge/internal/model"
)

// Stage names shared by every topology so their cost profiles line up.
const (
	StageExtract   = "extract"
	StageTransform = "transform"
	StageJoin      = "join"
	StageLoad      = "load"
)

// ErrStageNotStarted is returned by EndStage when no stage is open.
var ErrStageNotStarted = errors.New("stage not started")

const bytesPerMB = 1024 * 1024

// Tracker accumulates per-stage timings and logical resource counters for one run.
// A Tracker belongs to exactly one run and is never reused.
type Tracker struct {
	mu sync.Mutex

	now     func() time.Time
	created time.Time
	open    []time.Time

	stages     map[string]time.Duration
	stageOrder []string

	readOps          int64
	writeOps         int64
	intermediateRows int64
	peakMemoryMB     float64

	readMem func() uint64
}

// NewTracker creates a tracker whose total elapsed time starts now.
func NewTracker() *Tracker {
	return newTrackerWithClock(time.Now)
}

func newTrackerWithClock(now func() time.Time) *Tracker {
	return &Tracker{
		now:     now,
		created: now(),
		stages:  make(map[string]time.Duration),
		readMem: residentMemory,
	}
}

// StartStage opens a stage. Stages nest: EndStage closes the most recent one.
func (t *Tracker) StartStage() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open = append(t.open, t.now())
}

// EndStage closes the most recently started stage and books its elapsed time
// under name. Time booked twice under the same name accumulates.
func (t *Tracker) EndStage(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.open) == 0 {
		return fmt.Errorf("end %q: %w", name, ErrStageNotStarted)
	}
	started := t.open[len(t.open)-1]
	t.open = t.open[:len(t.open)-1]

	if _, seen := t.stages[name]; !seen {
		t.stageOrder = append(t.stageOrder, name)
	}
	t.stages[name] += t.now().Sub(started)
	return nil
}

// AddReadOps counts logical row reads. Non-positive n is ignored.
func (t *Tracker) AddReadOps(n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	t.readOps += int64(n)
	t.mu.Unlock()
}

// AddWriteOps counts logical row writes. Non-positive n is ignored.
func (t *Tracker) AddWriteOps(n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	t.writeOps += int64(n)
	t.mu.Unlock()
}

// AddIntermediateRows counts rows materialised in intermediate collections.
func (t *Tracker) AddIntermediateRows(n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	t.intermediateRows += int64(n)
	t.mu.Unlock()
}

// RecordMemoryEstimate raises the peak to rowCount*bytesPerRow if larger.
func (t *Tracker) RecordMemoryEstimate(rowCount, bytesPerRow int) {
	if rowCount <= 0 || bytesPerRow <= 0 {
		return
	}
	t.raisePeak(float64(rowCount) * float64(bytesPerRow) / bytesPerMB)
}

// RecordActualMemory raises the peak to the memory the process currently holds
// from the OS if larger.
func (t *Tracker) RecordActualMemory() {
	t.raisePeak(float64(t.readMem()) / bytesPerMB)
}

func (t *Tracker) raisePeak(mb float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if mb > t.peakMemoryMB {
		t.peakMemoryMB = mb
	}
}

// Snapshot returns a copy of all counters plus the total elapsed time so far.
func (t *Tracker) Snapshot() model.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	stages := make(map[string]float64, len(t.stages))
	for name, d := range t.stages {
		stages[name] = millis(d)
	}
	return model.Metrics{
		StagesMs:         stages,
		StageOrder:       append([]string(nil), t.stageOrder...),
		TotalMs:          millis(t.now().Sub(t.created)),
		ReadOps:          t.readOps,
		WriteOps:         t.writeOps,
		IntermediateRows: t.intermediateRows,
		PeakMemoryMB:     Round(t.peakMemoryMB, 3),
	}
}

// stage runs fn between StartStage and EndStage(name).
func (t *Tracker) stage(name string, fn func() error) error {
	t.StartStage()
	if err := fn(); err != nil {
		// close the stage so nesting stays balanced; the run is discarded anyway
		_ = t.EndStage(name)
		return err
	}
	return t.EndStage(name)
}

func millis(d time.Duration) float64 {
	return Round(float64(d)/float64(time.Millisecond), 3)
}

// residentMemory is all memory the Go runtime has mapped, less heap pages
// already returned to the OS.
func residentMemory() uint64 {
	samples := []metrics.Sample{
		{Name: "/memory/classes/total:bytes"},
		{Name: "/memory/classes/heap/released:bytes"},
	}
	metrics.Read(samples)
	var v [2]uint64
	for i, s := range samples {
		if s.Value.Kind() == metrics.KindUint64 {
			v[i] = s.Value.Uint64()
		}
	}
	if v[1] > v[0] {
		return 0
	}
	return v[0] - v[1]
}
