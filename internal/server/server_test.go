package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devgraph/devgraph-go/internal/config"
	"github.com/devgraph/devgraph-go/internal/errs"
	"github.com/devgraph/devgraph-go/internal/pipeline"
	"github.com/devgraph/devgraph-go/internal/query"
	"github.com/devgraph/devgraph-go/internal/temporal"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	queries := query.NewService(nil, query.NewResultCache("", "", logger), temporal.NewMetricsRing(), logger)
	return New(config.Default(), nil, queries, logger)
}

func do(s *Server, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(testServer(t), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatusUnknownJob(t *testing.T) {
	rec := do(testServer(t), http.MethodGet, "/ingest/status/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "config", body["error"].Kind)
}

func TestBootstrapRejectsConcurrentJob(t *testing.T) {
	s := testServer(t)
	_, err := s.jobs.Start()
	require.NoError(t, err)

	rec := do(s, http.MethodPost, "/ingest/bootstrap")
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"].Message, "already running")
}

func TestSearchRequiresQuery(t *testing.T) {
	rec := do(testServer(t), http.MethodGet, "/search")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubgraphRejectsBadLimit(t *testing.T) {
	rec := do(testServer(t), http.MethodGet, "/subgraph?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(testServer(t), http.MethodGet, "/subgraph?limit=-5")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSprintSubgraphRejectsBadNumber(t *testing.T) {
	rec := do(testServer(t), http.MethodGet, "/sprints/abc/subgraph")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBlameRequiresPath(t *testing.T) {
	rec := do(testServer(t), http.MethodGet, "/blame")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTelemetry(t *testing.T) {
	rec := do(testServer(t), http.MethodGet, "/telemetry")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "memory_usage_mb")
}

func TestStatusCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{pipeline.ErrJobAlreadyRunning, http.StatusConflict},
		{errs.New(errs.KindConfig, "bad option"), http.StatusBadRequest},
		{errs.New(errs.KindRepository, "shallow clone"), http.StatusUnprocessableEntity},
		{errs.New(errs.KindStoreTransient, "deadlock"), http.StatusServiceUnavailable},
		{errs.New(errs.KindInternal, "broken"), http.StatusInternalServerError},
		{errs.New(errs.KindStorePermanent, "constraint"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), "kind %v", errs.KindOf(tc.err))
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rec := do(testServer(t), http.MethodGet, "/ingest/bootstrap")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDeriveRequestSinceSpellings(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"canonical", `{"since_timestamp": "2025-06-01T00:00:00Z"}`, "2025-06-01T00:00:00Z"},
		{"alias", `{"since": "2025-06-02T00:00:00Z"}`, "2025-06-02T00:00:00Z"},
		{"canonical wins", `{"since_timestamp": "2025-06-01T00:00:00Z", "since": "2025-06-02T00:00:00Z"}`, "2025-06-01T00:00:00Z"},
		{"empty", `{}`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var req deriveRequest
			require.NoError(t, json.Unmarshal([]byte(tc.body), &req))
			assert.Equal(t, tc.want, req.since())
		})
	}
}
