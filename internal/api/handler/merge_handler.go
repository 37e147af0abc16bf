package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go-election-merge/internal/config"
	"go-election-merge/internal/model"
	"go-election-merge/internal/pipeline"
	"go-election-merge/pkg/router"
	"go-election-merge/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler serves the merge API. Store may be nil, in which case nothing is persisted
// and the run endpoints report 503.
type Handler struct {
	Store  pipeline.Store
	Config *config.Config
	Output *utils.OutputManager
	Logger *zap.Logger
}

// New wires a handler.
func New(store pipeline.Store, cfg *config.Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:  store,
		Config: cfg,
		Output: utils.NewOutputManager(cfg.Output.Dir),
		Logger: logger,
	}
}

// CreateMerge runs one topology over the two rounds in the body
// @Summary Run a merge
// @Description Merge two rounds of district results with the chosen topology and return the wide table plus run metrics
// @Tags merges
// @Accept json
// @Produce json
// @Param merge body model.MergeRequest true "Rounds and run options"
// @Success 200 {object} model.MergeResponse "Merged table"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /merges [post]
func (h *Handler) CreateMerge(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	res, err := pipeline.Run(r.Context(), req.Topology, req.Round1, req.Round2, h.options(req))
	if err != nil {
		h.fail(w, err)
		return
	}

	resp := model.MergeResponse{
		RunID:    res.RunID,
		Topology: res.Topology,
		Columns:  res.Table.Columns,
		Rows:     res.Table.Rows,
		Metrics:  res.Metrics,
		Warnings: res.Warnings,
	}
	if req.Export != "" {
		path, err := h.Output.GetOutputFilePath(res.RunID, "merged."+req.Export)
		if err != nil {
			h.fail(w, err)
			return
		}
		export := pipeline.ExportTable(path, res.Table, pipeline.ExportInfo{RunID: res.RunID, Topology: res.Topology})
		resp.Export = &export
	}
	writeJSON(w, http.StatusOK, resp)
}

// CompareMerges runs every topology over the same rounds
// @Summary Compare topologies
// @Description Run separate, union and staged over the same input and report their metrics side by side
// @Tags merges
// @Accept json
// @Produce json
// @Param merge body model.MergeRequest true "Rounds and run options (topology is ignored)"
// @Success 200 {object} model.CompareResponse "Per-topology metrics"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /merges/compare [post]
func (h *Handler) CompareMerges(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	cmp, err := pipeline.Compare(r.Context(), req.Round1, req.Round2, pipeline.CompareOptions{
		Options:     h.options(req),
		Parallelism: h.Config.Pipeline.Parallelism,
	})
	if err != nil {
		h.fail(w, err)
		return
	}

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
	writeJSON(w, http.StatusOK, resp)
}

// ListRuns lists every stored run log
// @Summary List runs
// @Description List the run logs of every persisted run
// @Tags runs
// @Produce json
// @Success 200 {array} model.RunLog "Run logs"
// @Failure 503 {object} map[string]string "No store configured"
// @Router /runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	logs, err := pipeline.RunLogs(r.Context(), h.Store, "")
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// GetRun returns one run log
// @Summary Get run
// @Description Retrieve the run log and metrics of a run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} model.RunLog "Run log"
// @Failure 404 {object} map[string]string "Run not found"
// @Router /runs/{id} [get]
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	runID := router.Param(r, 0)
	logs, err := pipeline.RunLogs(r.Context(), h.Store, runID)
	if err != nil {
		h.fail(w, err)
		return
	}
	if len(logs) == 0 {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, logs[len(logs)-1])
}

// DeleteRun removes everything a run stored
// @Summary Delete run
// @Description Delete the run log and any retained rows of a run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Deleted record count"
// @Failure 404 {object} map[string]string "Run not found"
// @Router /runs/{id} [delete]
func (h *Handler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	runID := router.Param(r, 0)
	n, err := pipeline.DeleteRun(r.Context(), h.Store, runID)
	if err != nil {
		h.fail(w, err)
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"run_id": runID, "deleted": n})
}

// Explain describes a topology as SQL
// @Summary Explain topology
// @Description Describe what a topology computes as SQL, for the given rounds and category lists
// @Tags merges
// @Produce plain
// @Param topology path string true "separate, union or staged"
// @Param r1 query string false "Round 1 id"
// @Param r2 query string false "Round 2 id"
// @Param c1 query string false "Comma separated round 1 categories"
// @Param c2 query string false "Comma separated round 2 categories"
// @Success 200 {string} string "SQL text"
// @Failure 400 {object} map[string]string "Unknown topology"
// @Router /explain/{topology} [get]
func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	r1, r2 := q.Get("r1"), q.Get("r2")
	if r1 == "" {
		r1 = h.Config.Pipeline.Round1
	}
	if r2 == "" {
		r2 = h.Config.Pipeline.Round2
	}
	text, err := pipeline.Explain(router.Param(r, 0), r1, r2, utils.SplitList(q.Get("c1")), utils.SplitList(q.Get("c2")))
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(text))
}

func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request) (model.MergeRequest, bool) {
	var req model.MergeRequest
	r.Body = http.MaxBytesReader(w, r.Body, h.Config.Server.MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return req, false
	}
	if req.Topology == "" {
		req.Topology = h.Config.Pipeline.Topology
	}
	if req.Round1.Round == "" {
		req.Round1.Round = h.Config.Pipeline.Round1
	}
	if req.Round2.Round == "" {
		req.Round2.Round = h.Config.Pipeline.Round2
	}
	switch req.Export {
	case "", "csv", "json":
	default:
		writeError(w, http.StatusBadRequest, "export must be csv or json")
		return req, false
	}
	return req, true
}

func (h *Handler) options(req model.MergeRequest) pipeline.Options {
	return pipeline.Options{
		RunID:         uuid.New().String(),
		Store:         h.Store,
		Logger:        h.Logger,
		RetainRaw:     req.RetainRaw || h.Config.Pipeline.RetainRaw,
		RetainDerived: req.RetainDerived || h.Config.Pipeline.RetainDerived,
		Externalize:   req.Externalize || h.Config.Pipeline.Externalize,
	}
}

func (h *Handler) requireStore(w http.ResponseWriter) bool {
	if h.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "no store configured")
		return false
	}
	return true
}

// fail maps engine errors to status codes.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput),
		errors.Is(err, pipeline.ErrMetadataMismatch),
		errors.Is(err, pipeline.ErrColumnCollision),
		errors.Is(err, pipeline.ErrUnknownTopology):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.Logger.Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
