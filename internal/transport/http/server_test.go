package labhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"banditlab/internal/experiment"
	"banditlab/internal/policy"
	"banditlab/internal/presets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, withPresets bool) *Server {
	t.Helper()
	store, err := experiment.NewResultStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc, err := experiment.NewService(experiment.ServiceConfig{
		Store: store,
		Defaults: experiment.RunConfig{
			NActions: 3, DimContext: 2, Beta: -2,
			RewardType: "binary", RoundsTrain: 300, RoundsTest: 300, Seed: 12345,
			IPW: policy.IPWConfig{Epochs: 40, LearningRate: 0.2},
			NN:  policy.NNConfig{HiddenSize: 8, Epochs: 10, BatchSize: 64, LearningRate: 0.01},
		},
	})
	require.NoError(t, err)

	var registry *presets.Registry
	if withPresets {
		path := filepath.Join(t.TempDir(), "experiments.yaml")
		require.NoError(t, os.WriteFile(path, []byte(
			"experiments:\n  quick:\n    description: \"small and fast\"\n    rounds_train: 200\n    rounds_test: 200\n"), 0o644))
		registry, err = presets.NewRegistry(path)
		require.NoError(t, err)
	}

	srv, err := NewServer(Config{Addr: ":0", Svc: svc, Presets: registry})
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	out := map[string]json.RawMessage{}
	if strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body=%s", rec.Body.String())
	}
	return rec, out
}

func submitAndWait(t *testing.T, srv *Server, method, path, body string) experiment.Run {
	t.Helper()
	rec, out := doJSON(t, srv, method, path, body)
	require.Equal(t, http.StatusAccepted, rec.Code, "body=%s", rec.Body.String())
	var run experiment.Run
	require.NoError(t, json.Unmarshal(out["run"], &run))
	require.NotEmpty(t, run.ID)

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		rec, out = doJSON(t, srv, http.MethodGet, "/api/experiments/"+run.ID, "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(out["run"], &run))
		if run.Status == experiment.RunStatusDone || run.Status == experiment.RunStatusFailed {
			return run
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish in time", run.ID)
	return run
}

func TestSubmitAndFetchExperiment(t *testing.T) {
	srv := newTestServer(t, false)

	run := submitAndWait(t, srv, http.MethodPost, "/api/experiments", `{"name":"api-smoke"}`)
	require.Equal(t, experiment.RunStatusDone, run.Status, "message=%s", run.Message)
	assert.Equal(t, "api-smoke", run.Name)
	assert.NotEmpty(t, run.Stats.BestPolicy)

	rec, out := doJSON(t, srv, http.MethodGet, "/api/experiments?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []experiment.Run
	require.NoError(t, json.Unmarshal(out["runs"], &runs))
	assert.Len(t, runs, 1)

	rec, out = doJSON(t, srv, http.MethodGet, "/api/experiments/"+run.ID+"/policies", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var policies []experiment.PolicyResult
	require.NoError(t, json.Unmarshal(out["policies"], &policies))
	assert.Len(t, policies, 3)

	var summary string
	require.NoError(t, json.Unmarshal(out["summary"], &summary))
	assert.Contains(t, summary, "behavior=")
	for _, pr := range policies {
		assert.Contains(t, summary, pr.Policy+"=")
	}
}

func TestChartEndpoint(t *testing.T) {
	srv := newTestServer(t, false)
	run := submitAndWait(t, srv, http.MethodPost, "/api/experiments", `{"name":"chart"}`)
	require.Equal(t, experiment.RunStatusDone, run.Status)

	req := httptest.NewRequest(http.MethodGet, "/api/experiments/"+run.ID+"/chart", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "echarts")
}

func TestSubmitRejectsBadRequest(t *testing.T) {
	srv := newTestServer(t, false)
	rec, _ := doJSON(t, srv, http.MethodPost, "/api/experiments", `{"n_actions":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, srv, http.MethodGet, "/api/experiments/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPresetEndpoints(t *testing.T) {
	srv := newTestServer(t, true)

	rec, out := doJSON(t, srv, http.MethodGet, "/api/presets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(out["presets"]), "quick")

	run := submitAndWait(t, srv, http.MethodPost, "/api/presets/quick/runs", `{"seed":7}`)
	require.Equal(t, experiment.RunStatusDone, run.Status, "message=%s", run.Message)
	assert.Equal(t, "quick", run.Name)
	assert.Equal(t, int64(7), run.Config.Seed)

	rec, _ = doJSON(t, srv, http.MethodPost, "/api/presets/missing/runs", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPresetsDisabled(t *testing.T) {
	srv := newTestServer(t, false)
	rec, _ := doJSON(t, srv, http.MethodGet, "/api/presets", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, false)

	rec, _ := doJSON(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mrec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(mrec, req)
	assert.Equal(t, http.StatusOK, mrec.Code)
}
