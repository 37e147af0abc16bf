package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"go-election-merge/internal/api/handler"
	"go-election-merge/internal/config"
	"go-election-merge/internal/model"
	"go-election-merge/internal/pipeline"
	"go-election-merge/internal/store"
	"go-election-merge/pkg/router"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, s pipeline.Store) *router.Router {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Output.Dir = t.TempDir()
	r := router.New(nil)
	RegisterRoutes(r, handler.New(s, cfg, nil))
	return r
}

func scenarioRequest() model.MergeRequest {
	meta := model.SourceRow{Key: "001", RegionCode: "28", RegionName: "Madrid", DistrictName: "Alcalá de Henares"}
	r1, r2 := meta, meta
	r1.Electorate, r1.Ballots, r1.ValidVotes = 1000, 600, 580
	r1.Votes = map[string]int64{"P": 300, "Q": 280}
	r2.Electorate, r2.Ballots, r2.ValidVotes = 1000, 650, 640
	r2.Votes = map[string]int64{"P": 340, "R": 300}
	return model.MergeRequest{
		Topology: model.TopologyUnion,
		Round1:   model.Batch{Round: "1", Categories: []string{"P", "Q"}, Rows: []model.SourceRow{r1}},
		Round2:   model.Batch{Round: "2", Categories: []string{"P", "R"}, Rows: []model.SourceRow{r2}},
	}
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestCreateMerge(t *testing.T) {
	srv := newServer(t, store.NewMemory())

	rec := do(t, srv, http.MethodPost, "/api/v1/merges", scenarioRequest())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decode[model.MergeResponse](t, rec)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, model.TopologyUnion, resp.Topology)
	assert.Equal(t, []string{
		"key", "region_code", "region_name", "district_name",
		"turnout_1", "turnout_2", "P_1", "P_2", "Q_1", "Q_2", "R_1", "R_2",
	}, resp.Columns)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, 0.6, resp.Rows[0]["turnout_1"])
	assert.Equal(t, 0.5313, resp.Rows[0]["P_2"])
	assert.Equal(t, 0.4688, resp.Rows[0]["R_2"])
	assert.Equal(t, []string{pipeline.StageExtract, pipeline.StageTransform, pipeline.StageJoin, pipeline.StageLoad}, resp.Metrics.StageOrder)
	assert.Nil(t, resp.Export)
}

func TestCreateMergeWithExport(t *testing.T) {
	srv := newServer(t, nil)
	req := scenarioRequest()
	req.Export = "json"

	rec := do(t, srv, http.MethodPost, "/api/v1/merges", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[model.MergeResponse](t, rec)
	require.NotNil(t, resp.Export)
	assert.True(t, resp.Export.Success)
	assert.Equal(t, "json", resp.Export.Type)
	_, err := os.Stat(resp.Export.Path)
	assert.NoError(t, err)
}

func TestCreateMergeDefaultsToConfiguredTopology(t *testing.T) {
	srv := newServer(t, nil)
	req := scenarioRequest()
	req.Topology = ""

	resp := decode[model.MergeResponse](t, do(t, srv, http.MethodPost, "/api/v1/merges", req))
	assert.Equal(t, model.TopologySeparate, resp.Topology)
}

func TestCreateMergeRejectsBadInput(t *testing.T) {
	srv := newServer(t, nil)

	mismatch := scenarioRequest()
	mismatch.Round2.Rows[0].RegionName = "Toledo"
	unknown := scenarioRequest()
	unknown.Topology = "pivot"
	badExport := scenarioRequest()
	badExport.Export = "xlsx"
	sameRound := scenarioRequest()
	sameRound.Round2.Round = "1"

	tests := []struct {
		name string
		body interface{}
		want string
	}{
		{"malformed json", "{", "Invalid JSON payload"},
		{"metadata mismatch", mismatch, "metadata mismatch"},
		{"unknown topology", unknown, "unknown topology"},
		{"bad export", badExport, "export must be csv or json"},
		{"same round", sameRound, "invalid input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/v1/merges", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decode[map[string]string](t, rec)["error"], tt.want)
		})
	}
}

func TestCompareMerges(t *testing.T) {
	srv := newServer(t, store.NewMemory())

	rec := do(t, srv, http.MethodPost, "/api/v1/merges/compare", scenarioRequest())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[model.CompareResponse](t, rec)
	assert.True(t, resp.Equivalent)
	assert.Equal(t, 1, resp.OutputRows)
	assert.Len(t, resp.Runs, 3)
	for _, topology := range model.Topologies {
		assert.NotEmpty(t, resp.RunIDs[topology], topology)
		assert.Contains(t, resp.Runs, topology)
	}
}

func TestRunLifecycle(t *testing.T) {
	srv := newServer(t, store.NewMemory())

	req := scenarioRequest()
	req.RetainRaw = true
	req.RetainDerived = true
	created := decode[model.MergeResponse](t, do(t, srv, http.MethodPost, "/api/v1/merges", req))

	list := do(t, srv, http.MethodGet, "/api/v1/runs", nil)
	require.Equal(t, http.StatusOK, list.Code)
	logs := decode[[]model.RunLog](t, list)
	require.Len(t, logs, 1)
	assert.Equal(t, created.RunID, logs[0].RunID)

	got := do(t, srv, http.MethodGet, "/api/v1/runs/"+created.RunID, nil)
	require.Equal(t, http.StatusOK, got.Code)
	runLog := decode[model.RunLog](t, got)
	assert.Equal(t, model.TopologyUnion, runLog.Topology)
	assert.Equal(t, 1, runLog.OutputRows)

	del := do(t, srv, http.MethodDelete, "/api/v1/runs/"+created.RunID, nil)
	require.Equal(t, http.StatusOK, del.Code)
	assert.Equal(t, float64(4), decode[map[string]interface{}](t, del)["deleted"])

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/v1/runs/"+created.RunID, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodDelete, "/api/v1/runs/"+created.RunID, nil).Code)
}

func TestRunsWithoutStore(t *testing.T) {
	srv := newServer(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv, http.MethodGet, "/api/v1/runs", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv, http.MethodGet, "/api/v1/runs/x", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv, http.MethodDelete, "/api/v1/runs/x", nil).Code)
}

func TestExplain(t *testing.T) {
	srv := newServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/explain/union?r1=2019&r2=2023&c1=P,Q&c2=P,R", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "UNION ALL")
	assert.Contains(t, rec.Body.String(), `"R_2019"`)

	rec = do(t, srv, http.MethodGet, "/api/v1/explain/staged", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "base_1")

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/v1/explain/bogus", nil).Code)
}

func TestSwaggerDoc(t *testing.T) {
	srv := newServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/swagger/doc.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Election Merge API")
	assert.Contains(t, rec.Body.String(), "/merges/compare")
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/api/v1/merges", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}
