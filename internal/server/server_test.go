package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihirnimgade/hypercube-optimization/internal/config"
	"github.com/mihirnimgade/hypercube-optimization/internal/logging"
)

func testConfig() *config.Config {
	cfg := &config.Config{Environment: "test"}
	cfg.HTTP.Port = 8080
	cfg.HTTP.ReadTimeout = 30 * time.Second
	cfg.HTTP.WriteTimeout = 30 * time.Second
	cfg.HTTP.IdleTimeout = 120 * time.Second
	cfg.HTTP.ShutdownTimeout = 30 * time.Second
	cfg.Logging.Level = "error"
	cfg.Logging.Format = "json"
	cfg.Logging.Output = "stderr"
	cfg.Optimizer.DefaultMaxLoops = 1000
	cfg.Optimizer.DefaultMaxEvaluations = 20000
	cfg.Optimizer.DefaultMaxTime = 60 * time.Second
	cfg.Optimizer.MaxConcurrent = 16
	return cfg
}

func testLogger() *logging.Logger {
	return logging.New(logging.ErrorLevel, io.Discard)
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *chi.Mux) {
	t.Helper()

	srv := NewServer(cfg, testLogger())
	t.Cleanup(func() { _ = srv.Close() })

	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	return srv, r
}

// doJSON performs one request against the router. A string body is sent
// verbatim; anything else is marshaled to JSON.
func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeStatus(t *testing.T, rr *httptest.ResponseRecorder) JobStatus {
	t.Helper()

	var status JobStatus
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&status))
	return status
}

// fetchState polls one job over HTTP without failing the test, for use in
// Eventually conditions.
func fetchState(handler http.Handler, id string) (JobStatus, bool) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/optimizations/"+id, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		return JobStatus{}, false
	}
	var status JobStatus
	if err := json.NewDecoder(rr.Body).Decode(&status); err != nil {
		return JobStatus{}, false
	}
	return status, true
}

// sphereRequest converges in well under a second.
func sphereRequest() StartRequest {
	return StartRequest{
		Objective:       "sphere",
		Lower:           -10,
		Upper:           10,
		InitialPoint:    []float64{5, 5, 5},
		InputTolerance:  0.01,
		OutputTolerance: 0.0001,
		MaxLoops:        2000,
		MaxEvaluations:  5000,
		MaxTimeSeconds:  30,
		Seed:            42,
	}
}

// endlessRequest cannot converge (tolerances are unreachably tight) and
// carries budgets far beyond any test's lifetime, so the job stays running
// until cancelled.
func endlessRequest() StartRequest {
	return StartRequest{
		Objective:       "rastrigin",
		Lower:           -5.12,
		Upper:           5.12,
		Dimensions:      4,
		InputTolerance:  1e-300,
		OutputTolerance: 1e-300,
		MaxLoops:        1 << 30,
		MaxEvaluations:  1 << 30,
		MaxTimeSeconds:  3600,
		Seed:            7,
	}
}

func TestNewServer(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	assert.NotNil(t, srv)
}

func TestSubmitAndComplete(t *testing.T) {
	_, r := newTestServer(t, testConfig())

	rr := doJSON(t, r, http.MethodPost, "/api/v1/optimizations", sphereRequest())
	require.Equal(t, http.StatusAccepted, rr.Code)

	submitted := decodeStatus(t, rr)
	require.NotEmpty(t, submitted.ID)
	assert.Equal(t, "sphere", submitted.Objective)
	assert.Equal(t, GoalMinimize, submitted.Goal)
	assert.False(t, submitted.State.Terminal())

	require.Eventually(t, func() bool {
		status, ok := fetchState(r, submitted.ID)
		return ok && status.State == JobCompleted
	}, 10*time.Second, 10*time.Millisecond)

	final, ok := fetchState(r, submitted.ID)
	require.True(t, ok)
	require.NotNil(t, final.Result)
	assert.Equal(t, "converged", final.Result.Reason)
	assert.Less(t, final.Result.BestValue, 0.01)
	assert.Len(t, final.Result.BestPoint, 3)
	assert.NotEmpty(t, final.Result.History)
	assert.NotNil(t, final.StartedAt)
	assert.NotNil(t, final.EndedAt)
	require.NotNil(t, final.Progress)
	assert.Equal(t, final.Result.Evaluations, final.Progress.Evaluations)
}

func TestSubmitWithDimensionsAndDefaults(t *testing.T) {
	_, r := newTestServer(t, testConfig())

	fill := 5.0
	req := StartRequest{
		Objective:    "sphere",
		Lower:        -10,
		Upper:        10,
		Dimensions:   2,
		InitialValue: &fill,
		Seed:         11,
	}

	rr := doJSON(t, r, http.MethodPost, "/api/v1/optimizations", req)
	require.Equal(t, http.StatusAccepted, rr.Code)
	submitted := decodeStatus(t, rr)

	require.Eventually(t, func() bool {
		status, ok := fetchState(r, submitted.ID)
		return ok && status.State == JobCompleted
	}, 30*time.Second, 10*time.Millisecond)

	final, ok := fetchState(r, submitted.ID)
	require.True(t, ok)
	require.NotNil(t, final.Result)
	assert.Len(t, final.Result.BestPoint, 2)
	assert.Less(t, final.Result.BestValue, 1.0)
}

func TestSubmitRejectsUnknownObjective(t *testing.T) {
	_, r := newTestServer(t, testConfig())

	req := sphereRequest()
	req.Objective = "himmelblau"

	rr := doJSON(t, r, http.MethodPost, "/api/v1/optimizations", req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "unknown objective")
}

func TestSubmitRejectsMalformedBody(t *testing.T) {
	_, r := newTestServer(t, testConfig())

	rr := doJSON(t, r, http.MethodPost, "/api/v1/optimizations", "{")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
}

func TestSubmitRejectsInvalidBounds(t *testing.T) {
	_, r := newTestServer(t, testConfig())

	req := sphereRequest()
	req.Lower, req.Upper = 10, -10

	rr := doJSON(t, r, http.MethodPost, "/api/v1/optimizations", req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid configuration")
}

func TestSubmitRejectsMissingStartLocation(t *testing.T) {
	_, r := newTestServer(t, testConfig())

	req := StartRequest{Objective: "sphere", Lower: -1, Upper: 1}

	rr := doJSON(t, r, http.MethodPost, "/api/v1/optimizations", req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "initial_point or dimensions")
}

func TestGetUnknownOptimization(t *testing.T) {
	_, r := newTestServer(t, testConfig())

	rr := doJSON(t, r, http.MethodGet, "/api/v1/optimizations/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCancelRunningOptimization(t *testing.T) {
	_, r := newTestServer(t, testConfig())

	rr := doJSON(t, r, http.MethodPost, "/api/v1/optimizations", endlessRequest())
	require.Equal(t, http.StatusAccepted, rr.Code)
	submitted := decodeStatus(t, rr)

	rr = doJSON(t, r, http.MethodDelete, "/api/v1/optimizations/"+submitted.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	cancelled := decodeStatus(t, rr)
	assert.Equal(t, JobCancelled, cancelled.State)
	assert.NotNil(t, cancelled.EndedAt)

	// The state must survive the run goroutine winding down.
	require.Eventually(t, func() bool {
		status, ok := fetchState(r, submitted.ID)
		return ok && status.State == JobCancelled && status.Result == nil
	}, 5*time.Second, 10*time.Millisecond)

	rr = doJSON(t, r, http.MethodDelete, "/api/v1/optimizations/"+submitted.ID, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestCancelUnknownOptimization(t *testing.T) {
	_, r := newTestServer(t, testConfig())

	rr := doJSON(t, r, http.MethodDelete, "/api/v1/optimizations/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestConcurrencyLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Optimizer.MaxConcurrent = 1
	_, r := newTestServer(t, cfg)

	rr := doJSON(t, r, http.MethodPost, "/api/v1/optimizations", endlessRequest())
	require.Equal(t, http.StatusAccepted, rr.Code)
	first := decodeStatus(t, rr)

	rr = doJSON(t, r, http.MethodPost, "/api/v1/optimizations", endlessRequest())
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Contains(t, rr.Body.String(), "too many concurrent")

	rr = doJSON(t, r, http.MethodDelete, "/api/v1/optimizations/"+first.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	// The slot frees once the cancelled run's goroutine finishes.
	require.Eventually(t, func() bool {
		rr := doJSON(t, r, http.MethodPost, "/api/v1/optimizations", sphereRequest())
		return rr.Code == http.StatusAccepted
	}, 10*time.Second, 20*time.Millisecond)
}

func TestListOptimizations(t *testing.T) {
	_, r := newTestServer(t, testConfig())

	rr := doJSON(t, r, http.MethodPost, "/api/v1/optimizations", sphereRequest())
	require.Equal(t, http.StatusAccepted, rr.Code)
	submitted := decodeStatus(t, rr)

	rr = doJSON(t, r, http.MethodGet, "/api/v1/optimizations", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var listing struct {
		Optimizations []JobStatus `json:"optimizations"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&listing))
	require.Len(t, listing.Optimizations, 1)
	assert.Equal(t, submitted.ID, listing.Optimizations[0].ID)
}

func TestListObjectives(t *testing.T) {
	_, r := newTestServer(t, testConfig())

	rr := doJSON(t, r, http.MethodGet, "/api/v1/objectives", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var listing struct {
		Objectives []string `json:"objectives"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&listing))
	assert.Contains(t, listing.Objectives, "sphere")
	assert.Contains(t, listing.Objectives, "rastrigin")
}

type rpcTestResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

func doRPC(t *testing.T, handler http.Handler, method string, params interface{}) rpcTestResponse {
	t.Helper()

	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		body["params"] = params
	}

	rr := doJSON(t, handler, http.MethodPost, "/rpc", body)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp rpcTestResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "2.0", resp.JSONRPC)
	return resp
}

func TestRPCStartAndStatus(t *testing.T) {
	_, r := newTestServer(t, testConfig())

	resp := doRPC(t, r, "optimization.start", sphereRequest())
	require.Nil(t, resp.Error)

	var submitted JobStatus
	require.NoError(t, json.Unmarshal(resp.Result, &submitted))
	require.NotEmpty(t, submitted.ID)

	require.Eventually(t, func() bool {
		status, ok := fetchState(r, submitted.ID)
		return ok && status.State == JobCompleted
	}, 10*time.Second, 10*time.Millisecond)

	resp = doRPC(t, r, "optimization.status", map[string]string{"id": submitted.ID})
	require.Nil(t, resp.Error)

	var final JobStatus
	require.NoError(t, json.Unmarshal(resp.Result, &final))
	assert.Equal(t, JobCompleted, final.State)
	require.NotNil(t, final.Result)
	assert.Equal(t, "converged", final.Result.Reason)
}

func TestRPCCancel(t *testing.T) {
	_, r := newTestServer(t, testConfig())

	resp := doRPC(t, r, "optimization.start", endlessRequest())
	require.Nil(t, resp.Error)

	var submitted JobStatus
	require.NoError(t, json.Unmarshal(resp.Result, &submitted))

	resp = doRPC(t, r, "optimization.cancel", map[string]string{"id": submitted.ID})
	require.Nil(t, resp.Error)

	var cancelled JobStatus
	require.NoError(t, json.Unmarshal(resp.Result, &cancelled))
	assert.Equal(t, JobCancelled, cancelled.State)

	resp = doRPC(t, r, "optimization.cancel", map[string]string{"id": submitted.ID})
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpcJobFinished, resp.Error.Code)
}

func TestRPCErrorCodes(t *testing.T) {
	_, r := newTestServer(t, testConfig())

	tests := []struct {
		name string
		body interface{}
		code int
	}{
		{
			name: "parse error",
			body: "not json",
			code: rpcParseError,
		},
		{
			name: "wrong version",
			body: map[string]interface{}{"jsonrpc": "1.0", "id": 1, "method": "optimization.status"},
			code: rpcInvalidRequest,
		},
		{
			name: "unknown method",
			body: map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": "optimization.pause"},
			code: rpcMethodNotFound,
		},
		{
			name: "missing params",
			body: map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": "optimization.status"},
			code: rpcInvalidParams,
		},
		{
			name: "params of the wrong shape",
			body: map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": "optimization.start", "params": []int{1, 2}},
			code: rpcInvalidParams,
		},
		{
			name: "unknown id",
			body: map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": "optimization.status", "params": map[string]string{"id": "nope"}},
			code: rpcJobNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, r, http.MethodPost, "/rpc", tt.body)
			require.Equal(t, http.StatusOK, rr.Code)

			var resp rpcTestResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}
