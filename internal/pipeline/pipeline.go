package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go-election-merge/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Fixed metadata columns, in output order.
const (
	ColumnKey          = "key"
	ColumnRegionCode   = "region_code"
	ColumnRegionName   = "region_name"
	ColumnDistrictName = "district_name"
)

var metadataColumns = []string{ColumnKey, ColumnRegionCode, ColumnRegionName, ColumnDistrictName}

// Rough per-row footprint used for memory estimates.
const (
	baseRowBytes     = 160
	categoryRowBytes = 48
)

// ErrUnknownTopology is returned for topology names other than those in model.Topologies.
var ErrUnknownTopology = errors.New("unknown topology")

// Options configure a single run.
type Options struct {
	RunID         string // generated when empty
	Store         Store  // optional persistence port
	Logger        *zap.Logger
	RetainRaw     bool
	RetainDerived bool
	Externalize   bool

	now func() time.Time
}

// Result is everything a completed run returns.
type Result struct {
	RunID    string
	Topology string
	Table    model.Table
	Records  []model.MergedRecord
	Metrics  model.Metrics
	Warnings []model.Warning
}

type topologyFunc func(r *run) ([]model.MergedRecord, error)

var topologies = map[string]topologyFunc{
	model.TopologySeparate: separateThenJoin,
	model.TopologyUnion:    unionThenPivot,
	model.TopologyStaged:   stagedJoin,
}

// run is the arena of a single execution. Nothing in it is shared between runs.
type run struct {
	ctx      context.Context
	id       string
	topology string
	opts     Options
	logger   *zap.Logger
	now      func() time.Time

	b1, b2     model.Batch
	categories []string
	columns    []string
	rowBytes   int

	tracker      *Tracker
	warnings     []model.Warning
	seenWarnings map[warningKey]struct{}
}

// Run merges two rounds with the named topology.
func Run(ctx context.Context, topology string, b1, b2 model.Batch, opts Options) (*Result, error) {
	exec, ok := topologies[topology]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopology, topology)
	}
	if err := ValidateInput(b1, b2); err != nil {
		return nil, err
	}
	categories := CategoryUnion(b1.Categories, b2.Categories)
	columns, err := Columns(b1.Round, b2.Round, categories)
	if err != nil {
		return nil, err
	}

	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	now := opts.now
	if now == nil {
		now = time.Now
	}

	r := &run{
		ctx:          ctx,
		id:           opts.RunID,
		topology:     topology,
		opts:         opts,
		logger:       opts.Logger.With(zap.String("run_id", opts.RunID), zap.String("topology", topology)),
		now:          now,
		b1:           b1,
		b2:           b2,
		categories:   categories,
		columns:      columns,
		rowBytes:     baseRowBytes + categoryRowBytes*len(categories),
		tracker:      newTrackerWithClock(now),
		seenWarnings: make(map[warningKey]struct{}),
	}
	r.logger.Info("Starting merge",
		zap.Strings("rounds", []string{b1.Round, b2.Round}),
		zap.Ints("input_rows", []int{len(b1.Rows), len(b2.Rows)}),
		zap.Int("categories", len(categories)),
	)

	res, err := r.execute(exec)
	if err != nil {
		if n, discardErr := r.discard(); discardErr != nil {
			r.logger.Warn("Discarding failed run records failed", zap.Error(discardErr))
		} else if n > 0 {
			r.logger.Info("Discarded failed run records", zap.Int64("records", n))
		}
		r.logger.Error("Merge failed", zap.Error(err))
		return nil, fmt.Errorf("%s run %s: %w", topology, r.id, err)
	}

	r.logger.Info("Merge completed",
		zap.Int("output_rows", len(res.Table.Rows)),
		zap.Int("warnings", len(res.Warnings)),
		zap.Float64("total_ms", res.Metrics.TotalMs),
	)
	return res, nil
}

func (r *run) execute(exec topologyFunc) (*Result, error) {
	started := r.tracker.created

	records, err := exec(r)
	if err != nil {
		return nil, err
	}

	var table model.Table
	err = r.stage(StageLoad, func() error {
		table = r.table(records)
		r.tracker.RecordActualMemory()
		return r.retainDerived(table)
	})
	if err != nil {
		return nil, err
	}
	if err := r.dropIntermediates(); err != nil {
		return nil, fmt.Errorf("drop intermediates: %w", err)
	}

	res := &Result{
		RunID:    r.id,
		Topology: r.topology,
		Table:    table,
		Records:  records,
		Metrics:  r.tracker.Snapshot(),
		Warnings: r.warnings,
	}
	err = r.saveRunLog(model.RunLog{
		RunID:      r.id,
		Topology:   r.topology,
		Rounds:     [2]string{r.b1.Round, r.b2.Round},
		InputRows:  [2]int{len(r.b1.Rows), len(r.b2.Rows)},
		OutputRows: len(table.Rows),
		Warnings:   len(r.warnings),
		Metrics:    res.Metrics,
		StartedAt:  started,
		FinishedAt: r.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("save run log: %w", err)
	}
	return res, nil
}

// stage wraps the tracker's stage with debug logging.
func (r *run) stage(name string, fn func() error) error {
	r.logger.Debug("Stage started", zap.String("stage", name))
	if err := r.tracker.stage(name, fn); err != nil {
		return fmt.Errorf("stage %s: %w", name, err)
	}
	r.logger.Debug("Stage completed", zap.String("stage", name))
	return nil
}

// table lays the merged records out in output columns.
func (r *run) table(records []model.MergedRecord) model.Table {
	t1, t2 := turnoutColumn(r.b1.Round), turnoutColumn(r.b2.Round)
	rows := make([]model.Row, 0, len(records))
	for _, m := range records {
		row := model.Row{
			ColumnKey:          m.Meta.Key,
			ColumnRegionCode:   m.Meta.RegionCode,
			ColumnRegionName:   m.Meta.RegionName,
			ColumnDistrictName: m.Meta.DistrictName,
			t1:                 m.Turnout[0],
			t2:                 m.Turnout[1],
		}
		for _, c := range r.categories {
			pair := m.Shares[c]
			row[categoryColumn(c, r.b1.Round)] = pair[0]
			row[categoryColumn(c, r.b2.Round)] = pair[1]
		}
		rows = append(rows, row)
	}
	r.tracker.AddWriteOps(len(rows))
	return model.Table{Columns: r.columns, Rows: rows}
}

func turnoutColumn(round string) string { return "turnout_" + round }

func categoryColumn(category, round string) string { return category + "_" + round }

// CategoryUnion returns the sorted union of two category lists.
func CategoryUnion(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, c := range list {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// Columns returns the output column layout: metadata, both turnouts, then each
// category of the union for round 1 and round 2.
func Columns(round1, round2 string, categories []string) ([]string, error) {
	cols := make([]string, 0, len(metadataColumns)+2+2*len(categories))
	cols = append(cols, metadataColumns...)
	cols = append(cols, turnoutColumn(round1), turnoutColumn(round2))
	for _, c := range categories {
		cols = append(cols, categoryColumn(c, round1), categoryColumn(c, round2))
	}

	seen := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("%w: column %q generated twice", ErrColumnCollision, c)
		}
		seen[c] = struct{}{}
	}
	return cols, nil
}

// CompareOptions configure Compare.
type CompareOptions struct {
	Options
	Parallelism int // runs in flight at once; values below 1 mean sequential
}

// Comparison holds one result per topology.
type Comparison struct {
	Results    map[string]*Result
	Equivalent bool
}

// Compare runs every topology over the same input. Each run gets its own id,
// tracker and intermediates.
func Compare(ctx context.Context, b1, b2 model.Batch, opts CompareOptions) (*Comparison, error) {
	limit := opts.Parallelism
	if limit < 1 {
		limit = 1
	}
	results := make([]*Result, len(model.Topologies))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, topology := range model.Topologies {
		runOpts := opts.Options
		runOpts.RunID = ""
		g.Go(func() error {
			res, err := Run(gctx, topology, b1, b2, runOpts)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cmp := &Comparison{Results: make(map[string]*Result, len(results)), Equivalent: true}
	for i, res := range results {
		cmp.Results[model.Topologies[i]] = res
		if i > 0 && !Equivalent(results[0].Table, res.Table) {
			cmp.Equivalent = false
		}
	}
	return cmp, nil
}

// Equivalent reports whether two tables have the same columns and the same rows,
// ignoring row order.
func Equivalent(a, b model.Table) bool {
	if len(a.Columns) != len(b.Columns) || len(a.Rows) != len(b.Rows) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i] != b.Columns[i] {
			return false
		}
	}
	ra, rb := renderRows(a), renderRows(b)
	for i := range ra {
		if ra[i] != rb[i] {
			return false
		}
	}
	return true
}

func renderRows(t model.Table) []string {
	out := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		out = append(out, strings.Join(t.Strings(row), "\x1f"))
	}
	sort.Strings(out)
	return out
}
