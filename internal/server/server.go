// Package server is the thin HTTP shell over the pipeline and query
// layers. Handlers parse and validate input, delegate, and render
// JSON; no graph logic lives here.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devgraph/devgraph-go/internal/config"
	"github.com/devgraph/devgraph-go/internal/derive"
	"github.com/devgraph/devgraph-go/internal/errs"
	"github.com/devgraph/devgraph-go/internal/gitlog"
	"github.com/devgraph/devgraph-go/internal/graph"
	"github.com/devgraph/devgraph-go/internal/pipeline"
	"github.com/devgraph/devgraph-go/internal/query"
)

// Server wires the HTTP routes to the pipeline, validator, and query
// service. One ingestion job runs at a time; queries are always
// available.
type Server struct {
	cfg       *config.Config
	client    *graph.Client
	queries   *query.Service
	validator *pipeline.Validator
	jobs      *pipeline.Jobs
	git       *gitlog.Service
	logger    *logrus.Logger

	httpServer *http.Server
}

func New(cfg *config.Config, client *graph.Client, queries *query.Service, logger *logrus.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		client:    client,
		queries:   queries,
		validator: pipeline.NewValidator(client, logger),
		jobs:      pipeline.NewJobs(),
		git:       gitlog.NewService(cfg.RepoPath, logger),
		logger:    logger,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /ingest/bootstrap", s.handleBootstrap)
	mux.HandleFunc("POST /ingest/start", s.handleStart)
	mux.HandleFunc("POST /ingest/derive-relationships", s.handleDerive)
	mux.HandleFunc("GET /ingest/status/{id}", s.handleStatus)

	mux.HandleFunc("GET /subgraph", s.handleSubgraph)
	mux.HandleFunc("GET /sprints/{number}/subgraph", s.handleSprintSubgraph)
	mux.HandleFunc("GET /commits/buckets", s.handleBuckets)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /blame", s.handleBlame)

	mux.HandleFunc("GET /validate/schema", s.handleValidate(s.validator.Schema))
	mux.HandleFunc("GET /validate/temporal", s.handleValidate(s.validator.Temporal))
	mux.HandleFunc("GET /validate/relationships", s.handleValidate(s.validator.Relationships))
	mux.HandleFunc("POST /cleanup/orphans", s.handleCleanup)

	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /analytics", s.handleAnalytics)
	mux.HandleFunc("GET /telemetry", s.handleTelemetry)
	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.WithField("addr", s.cfg.ListenAddr).Info("http server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// bootstrapRequest optionally overrides ingestion options for one run.
type bootstrapRequest struct {
	ResetGraph          *bool `json:"reset_graph,omitempty"`
	CommitLimit         *int  `json:"commit_limit,omitempty"`
	DeriveRelationships *bool `json:"derive_relationships,omitempty"`
	DryRun              *bool `json:"dry_run,omitempty"`
}

// handleBootstrap runs the pipeline synchronously: the response always
// carries stage-level outcomes, so partial success is observable.
func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.ingestionConfig(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	job, err := s.jobs.Start()
	if err != nil {
		s.writeError(w, err)
		return
	}

	orch := pipeline.NewOrchestrator(cfg, s.client, s.logger)
	report, runErr := orch.Bootstrap(r.Context(), job.ID, func(stage string, frac float64) {
		s.jobs.StageDone(job.ID, stage, frac)
	})
	s.jobs.Finish(job.ID, runErr)

	status := http.StatusOK
	if runErr != nil {
		status = statusFor(runErr)
	}
	s.writeJSON(w, status, report)
}

// handleStart is the asynchronous variant, polled via /ingest/status.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.ingestionConfig(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	job, err := s.jobs.Start()
	if err != nil {
		s.writeError(w, err)
		return
	}

	go func() {
		// Detached from the request context: the job outlives the
		// HTTP exchange.
		orch := pipeline.NewOrchestrator(cfg, s.client, s.logger)
		_, runErr := orch.Bootstrap(context.Background(), job.ID, func(stage string, frac float64) {
			s.jobs.StageDone(job.ID, stage, frac)
		})
		s.jobs.Finish(job.ID, runErr)
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(pipeline.JobRunning),
	})
}

// ingestionConfig overlays per-run body overrides on the server config.
func (s *Server) ingestionConfig(r *http.Request) (*config.Config, error) {
	var req bootstrapRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, errs.Wrap(err, errs.KindConfig, "invalid request body")
		}
	}

	cfg := *s.cfg
	if req.ResetGraph != nil {
		cfg.ResetGraph = *req.ResetGraph
	}
	if req.CommitLimit != nil {
		cfg.CommitLimit = *req.CommitLimit
	}
	if req.DeriveRelationships != nil {
		cfg.DeriveRelationships = *req.DeriveRelationships
	}
	if req.DryRun != nil {
		cfg.DryRun = *req.DryRun
	}
	return &cfg, nil
}

type deriveRequest struct {
	SinceTimestamp string   `json:"since_timestamp,omitempty"`
	Since          string   `json:"since,omitempty"` // accepted alias for since_timestamp
	DryRun         bool     `json:"dry_run,omitempty"`
	Strategies     []string `json:"strategies,omitempty"`
}

func (r deriveRequest) since() string {
	if r.SinceTimestamp != "" {
		return r.SinceTimestamp
	}
	return r.Since
}

func (s *Server) handleDerive(w http.ResponseWriter, r *http.Request) {
	var req deriveRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, errs.Wrap(err, errs.KindConfig, "invalid request body"))
			return
		}
	}

	deriver := derive.NewDeriver(s.client, s.logger)
	report, err := deriver.Run(r.Context(), derive.Options{
		Since:      req.since(),
		DryRun:     req.DryRun,
		Strategies: req.Strategies,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(r.PathValue("id"))
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]errorBody{"error": {
			Kind:    errs.KindConfig.String(),
			Message: "unknown job " + r.PathValue("id"),
		}})
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleSubgraph(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := query.SubgraphRequest{
		From:   q.Get("from"),
		To:     q.Get("to"),
		Cursor: q.Get("cursor"),
	}
	if raw := q.Get("node_types"); raw != "" {
		req.NodeTypes = strings.Split(raw, ",")
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.writeError(w, errs.Newf(errs.KindConfig, "invalid limit %q", raw))
			return
		}
		req.Limit = limit
	}

	resp, err := s.queries.Subgraph(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSprintSubgraph(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil {
		s.writeError(w, errs.Newf(errs.KindConfig, "invalid sprint number %q", r.PathValue("number")))
		return
	}
	resp, err := s.queries.SprintSubgraph(r.Context(), number)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBuckets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	maxBuckets := 0
	if raw := q.Get("max_buckets"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, errs.Newf(errs.KindConfig, "invalid max_buckets %q", raw))
			return
		}
		maxBuckets = n
	}

	resp, err := s.queries.CommitBuckets(r.Context(), q.Get("granularity"), q.Get("from"), q.Get("to"), maxBuckets)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	term := q.Get("q")
	if term == "" {
		s.writeError(w, errs.New(errs.KindConfig, "missing query parameter q"))
		return
	}
	limit := 50
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, errs.Newf(errs.KindConfig, "invalid limit %q", raw))
			return
		}
		limit = n
	}

	nodes, perf, err := s.queries.Search(r.Context(), term, q.Get("node_type"), q.Get("rel_type"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"nodes":       nodes,
		"performance": perf,
	})
}

func (s *Server) handleBlame(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		s.writeError(w, errs.New(errs.KindConfig, "missing query parameter path"))
		return
	}
	lines, err := s.git.Blame(r.Context(), path, q.Get("at"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"path":  path,
		"lines": lines,
	})
}

func (s *Server) handleValidate(run func(context.Context) (*pipeline.ValidationReport, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := run(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, report)
	}
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := s.validator.CleanupOrphans(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queries.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := s.validator.Analytics(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, analytics)
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.queries.Telemetry())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// errorBody is the structured error shape every handler returns.
type errorBody struct {
	Kind      string `json:"kind"`
	Stage     string `json:"stage,omitempty"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).Error("request failed")
	}
	s.writeJSON(w, status, map[string]errorBody{"error": {
		Kind:      errs.KindOf(err).String(),
		Stage:     errs.StageOf(err),
		Message:   err.Error(),
		Retryable: errs.Retryable(err),
	}})
}

func statusFor(err error) int {
	// Identity check: kind-based errors.Is would lump this in with
	// every other config error, and it alone maps to 409.
	if err == pipeline.ErrJobAlreadyRunning {
		return http.StatusConflict
	}
	switch errs.KindOf(err) {
	case errs.KindConfig:
		return http.StatusBadRequest
	case errs.KindRepository:
		return http.StatusUnprocessableEntity
	case errs.KindStoreTransient:
		return http.StatusServiceUnavailable
	case errs.KindCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Warn("response encoding failed")
	}
}
