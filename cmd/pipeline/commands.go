package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"go-election-merge/internal/api"
	"go-election-merge/internal/api/handler"
	"go-election-merge/internal/model"
	"go-election-merge/internal/pipeline"
	"go-election-merge/pkg/router"
	"go-election-merge/pkg/utils"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// inputOptions are the flags naming the two rounds.
type inputOptions struct {
	Round1File string
	Round2File string
	Round1     string
	Round2     string
}

func (o *inputOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Round1File, "round1", "", "CSV file or URL with the first round (required)")
	cmd.Flags().StringVar(&o.Round2File, "round2", "", "CSV file or URL with the second round (required)")
	cmd.Flags().StringVar(&o.Round1, "r1", "", "round 1 id, overrides config")
	cmd.Flags().StringVar(&o.Round2, "r2", "", "round 2 id, overrides config")
	_ = cmd.MarkFlagRequired("round1")
	_ = cmd.MarkFlagRequired("round2")
}

// load reads both rounds, falling back to the configured round ids.
func (o *inputOptions) load(ctx context.Context, a *app) (model.Batch, model.Batch, error) {
	r1, r2 := o.Round1, o.Round2
	if r1 == "" {
		r1 = a.cfg.Pipeline.Round1
	}
	if r2 == "" {
		r2 = a.cfg.Pipeline.Round2
	}
	ingest := a.cfg.IngestOptions()

	b1, err := pipeline.LoadBatch(ctx, o.Round1File, r1, ingest)
	if err != nil {
		return model.Batch{}, model.Batch{}, fmt.Errorf("round %s: %w", r1, err)
	}
	b2, err := pipeline.LoadBatch(ctx, o.Round2File, r2, ingest)
	if err != nil {
		return model.Batch{}, model.Batch{}, fmt.Errorf("round %s: %w", r2, err)
	}
	a.logger.Info("Loaded rounds",
		zap.String("round1", r1), zap.Int("rows1", len(b1.Rows)),
		zap.String("round2", r2), zap.Int("rows2", len(b2.Rows)))
	return b1, b2, nil
}

// runFlags are the persistence switches shared by run and compare.
type runFlags struct {
	RetainRaw     bool
	RetainDerived bool
	Externalize   bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.RetainRaw, "retain-raw", false, "persist raw rows of both rounds")
	cmd.Flags().BoolVar(&f.RetainDerived, "retain-derived", false, "persist the merged rows")
	cmd.Flags().BoolVar(&f.Externalize, "externalize", false, "round-trip intermediates through the store")
}

func (f *runFlags) options(a *app) pipeline.Options {
	p := a.cfg.Pipeline
	return pipeline.Options{
		Store:         a.store,
		Logger:        a.logger,
		RetainRaw:     f.RetainRaw || p.RetainRaw,
		RetainDerived: f.RetainDerived || p.RetainDerived,
		Externalize:   f.Externalize || p.Externalize,
	}
}

func newServeCommand(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(root)
			if err != nil {
				return err
			}
			defer a.shutdown()
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides config")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	r := router.New(a.logger)
	api.RegisterRoutes(r, handler.New(a.store, a.cfg, a.logger))
	srv := r.Server(a.cfg.Server.Addr)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("🚀 Server listening", zap.String("addr", a.cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRunCommand(root *rootOptions) *cobra.Command {
	var (
		in       inputOptions
		flags    runFlags
		topology string
		out      string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Merge two rounds with one topology",
		Long: `Merge two rounds with one topology and print the wide table.

Example:
  pipeline run --round1 2019.csv --round2 2023.csv --r1 2019 --r2 2023 --topology union --out merged.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(root)
			if err != nil {
				return err
			}
			defer a.shutdown()

			b1, b2, err := in.load(cmd.Context(), a)
			if err != nil {
				return err
			}
			if topology == "" {
				topology = a.cfg.Pipeline.Topology
			}
			opts := flags.options(a)
			opts.RunID = uuid.New().String()

			res, err := pipeline.Run(cmd.Context(), topology, b1, b2, opts)
			if err != nil {
				return err
			}
			return writeRun(cmd.OutOrStdout(), root.Format, res, out)
		},
	}

	in.register(cmd)
	flags.register(cmd)
	cmd.Flags().StringVarP(&topology, "topology", "t", "", "separate|union|staged, overrides config")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the table to this .csv or .json file instead of stdout")
	return cmd
}

// writeRun prints the table (or the export result) followed by the metrics.
func writeRun(w io.Writer, format string, res *pipeline.Result, out string) error {
	resp := model.MergeResponse{
		RunID:    res.RunID,
		Topology: res.Topology,
		Columns:  res.Table.Columns,
		Rows:     res.Table.Rows,
		Metrics:  res.Metrics,
		Warnings: res.Warnings,
	}
	if out != "" {
		export := pipeline.ExportTable(out, res.Table, pipeline.ExportInfo{RunID: res.RunID, Topology: res.Topology})
		if !export.Success {
			return fmt.Errorf("export failed: %s", export.Error)
		}
		resp.Export = &export
		resp.Rows = nil
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if out == "" {
		if err := pipeline.WriteCSV(w, res.Table); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(w, "✅ Wrote %d rows to %s\n", resp.Export.RecordCount, resp.Export.Path)
	}
	fmt.Fprintf(w, "\nrun %s (%s): %d rows, %d warnings\n", res.RunID, res.Topology, len(res.Table.Rows), len(res.Warnings))
	return writeMetrics(w, map[string]model.Metrics{res.Topology: res.Metrics})
}

// writeMetrics renders one metrics line per topology, in topology order.
func writeMetrics(w io.Writer, runs map[string]model.Metrics) error {
	names := make([]string, 0, len(runs))
	for _, t := range model.Topologies {
		if _, ok := runs[t]; ok {
			names = append(names, t)
		}
	}
	sort.SliceStable(names, func(i, j int) bool { return runs[names[i]].TotalMs < runs[names[j]].TotalMs })

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TOPOLOGY\tTOTAL_MS\tEXTRACT\tTRANSFORM\tJOIN\tLOAD\tREADS\tWRITES\tINTERMEDIATE\tPEAK_MB")
	for _, name := range names {
		m := runs[name]
		fmt.Fprintf(tw, "%s\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%d\t%d\t%d\t%.2f\n",
			name, m.TotalMs,
			m.StagesMs[pipeline.StageExtract], m.StagesMs[pipeline.StageTransform],
			m.StagesMs[pipeline.StageJoin], m.StagesMs[pipeline.StageLoad],
			m.ReadOps, m.WriteOps, m.IntermediateRows, m.PeakMemoryMB)
	}
	return tw.Flush()
}

func newCompareCommand(root *rootOptions) *cobra.Command {
	var (
		in          inputOptions
		flags       runFlags
		parallelism int
	)

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Run all three topologies over the same rounds and compare their cost",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(root)
			if err != nil {
				return err
			}
			defer a.shutdown()

			b1, b2, err := in.load(cmd.Context(), a)
			if err != nil {
				return err
			}
			if parallelism == 0 {
				parallelism = a.cfg.Pipeline.Parallelism
			}

			cmp, err := pipeline.Compare(cmd.Context(), b1, b2, pipeline.CompareOptions{
				Options:     flags.options(a),
				Parallelism: parallelism,
			})
			if err != nil {
				return err
			}
			return writeComparison(cmd.OutOrStdout(), root.Format, cmp)
		},
	}

	in.register(cmd)
	flags.register(cmd)
	cmd.Flags().IntVarP(&parallelism, "parallelism", "p", 0, "topologies run at once, overrides config")
	return cmd
}

func writeComparison(w io.Writer, format string, cmp *pipeline.Comparison) error {
	resp := model.CompareResponse{
		Runs:       make(map[string]model.Metrics, len(cmp.Results)),
		RunIDs:     make(map[string]string, len(cmp.Results)),
		Equivalent: cmp.Equivalent,
	}
	for topology, res := range cmp.Results {
		resp.Runs[topology] = res.Metrics
		resp.RunIDs[topology] = res.RunID
		resp.OutputRows = len(res.Table.Rows)
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if err := writeMetrics(w, resp.Runs); err != nil {
		return err
	}
	mark := "✅"
	if !resp.Equivalent {
		mark = "❌"
	}
	fmt.Fprintf(w, "\n%s %d rows, outputs equivalent: %t\n", mark, resp.OutputRows, resp.Equivalent)
	return nil
}

func newExplainCommand(root *rootOptions) *cobra.Command {
	var (
		topology string
		r1, r2   string
		c1, c2   string
		file1    string
		file2    string
	)

	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Print the SQL a topology is equivalent to",
		Long: `Print the SQL a topology is equivalent to. Categories come from --c1/--c2
or, when those are empty, from the headers of --round1/--round2.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(root)
			if err != nil {
				return err
			}
			defer a.shutdown()

			if topology == "" {
				topology = a.cfg.Pipeline.Topology
			}
			if r1 == "" {
				r1 = a.cfg.Pipeline.Round1
			}
			if r2 == "" {
				r2 = a.cfg.Pipeline.Round2
			}
			cats1, err := explainCategories(cmd.Context(), a, c1, file1, r1)
			if err != nil {
				return err
			}
			cats2, err := explainCategories(cmd.Context(), a, c2, file2, r2)
			if err != nil {
				return err
			}

			text, err := pipeline.Explain(topology, r1, r2, cats1, cats2)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}

	cmd.Flags().StringVarP(&topology, "topology", "t", "", "separate|union|staged, overrides config")
	cmd.Flags().StringVar(&r1, "r1", "", "round 1 id")
	cmd.Flags().StringVar(&r2, "r2", "", "round 2 id")
	cmd.Flags().StringVar(&c1, "c1", "", "comma separated round 1 categories")
	cmd.Flags().StringVar(&c2, "c2", "", "comma separated round 2 categories")
	cmd.Flags().StringVar(&file1, "round1", "", "CSV whose header lists the round 1 categories")
	cmd.Flags().StringVar(&file2, "round2", "", "CSV whose header lists the round 2 categories")
	return cmd
}

func explainCategories(ctx context.Context, a *app, list, file, round string) ([]string, error) {
	if list != "" || file == "" {
		return utils.SplitList(list), nil
	}
	b, err := pipeline.LoadBatch(ctx, file, round, a.cfg.IngestOptions())
	if err != nil {
		return nil, err
	}
	return b.Categories, nil
}
