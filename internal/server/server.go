// Package server runs optimizations as asynchronous jobs behind a REST and
// JSON-RPC 2.0 interface. Each accepted job gets its own goroutine and a
// cancellable context; job state is kept in memory for the lifetime of the
// process.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mihirnimgade/hypercube-optimization/internal/config"
	apperrors "github.com/mihirnimgade/hypercube-optimization/internal/errors"
	"github.com/mihirnimgade/hypercube-optimization/internal/logging"
	"github.com/mihirnimgade/hypercube-optimization/internal/optimization"
	"github.com/mihirnimgade/hypercube-optimization/internal/optimization/hypercube"
	"github.com/mihirnimgade/hypercube-optimization/internal/optimization/objectives"
)

// Default tolerances applied to submissions that omit them.
const (
	defaultInputTolerance  = 0.01
	defaultOutputTolerance = 0.01
)

// ErrInvalidRequest tags client-side submission problems so the transport
// layers can map them to 400s and -32602s.
var ErrInvalidRequest = apperrors.New("invalid request").WithComponent("server")

// Server exposes the optimization service over HTTP.
type Server struct {
	cfg    *config.Config
	logger *logging.Logger
	zap    *zap.Logger
	jobs   *Manager
}

// NewServer creates a server using the given configuration and logger.
func NewServer(cfg *config.Config, logger *logging.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		zap:    logging.NewZapLogger(logger),
		jobs:   NewManager(cfg.Optimizer.MaxConcurrent),
	}
}

// RegisterRoutes mounts the service endpoints on the router.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/optimizations", s.handleCreate)
		r.Get("/optimizations", s.handleList)
		r.Get("/optimizations/{id}", s.handleGet)
		r.Delete("/optimizations/{id}", s.handleCancel)
		r.Get("/objectives", s.handleObjectives)
	})

	r.Post("/rpc", s.handleRPC)
}

// Close cancels every job still in flight.
func (s *Server) Close() error {
	s.jobs.CancelAll()
	return nil
}

// StartRequest is the submission body accepted by POST /api/v1/optimizations
// and the optimization.start RPC method. Omitted or non-positive tolerances
// and budgets fall back to service defaults.
type StartRequest struct {
	// Objective names a registered benchmark function.
	Objective string `json:"objective"`
	// Goal is "minimize" (default) or "maximize".
	Goal string `json:"goal,omitempty"`
	// Lower and Upper bound every dimension of the search space.
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	// InitialPoint fixes the start location and the dimensionality. When
	// omitted, Dimensions is required and the start is filled with
	// InitialValue (default: the bounds midpoint).
	InitialPoint []float64 `json:"initial_point,omitempty"`
	Dimensions   int       `json:"dimensions,omitempty"`
	InitialValue *float64  `json:"initial_value,omitempty"`

	InputTolerance  float64 `json:"input_tolerance,omitempty"`
	OutputTolerance float64 `json:"output_tolerance,omitempty"`
	MaxLoops        int     `json:"max_loops,omitempty"`
	MaxEvaluations  int     `json:"max_evaluations,omitempty"`
	MaxTimeSeconds  float64 `json:"max_time_seconds,omitempty"`
	PopulationSize  int     `json:"population_size,omitempty"`
	Seed            int64   `json:"seed,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	status, err := s.start(req)
	if err != nil {
		respondError(w, httpStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, status)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	status, err := s.jobs.Status(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, httpStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.jobs.Cancel(id); err != nil {
		respondError(w, httpStatus(err), err.Error())
		return
	}

	s.logger.Info("optimization cancelled", map[string]interface{}{
		"optimization_id": id,
	})

	status, err := s.jobs.Status(id)
	if err != nil {
		respondError(w, httpStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"optimizations": s.jobs.List(),
	})
}

func (s *Server) handleObjectives(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"objectives": objectives.Names(),
	})
}

// runSpec is a validated submission, ready to run.
type runSpec struct {
	objectiveName string
	objective     optimization.Objective
	goal          string
	config        hypercube.Config
}

// start validates the request, registers a job, and launches its goroutine.
func (s *Server) start(req StartRequest) (JobStatus, error) {
	spec, err := s.buildRun(req)
	if err != nil {
		return JobStatus{}, err
	}

	id := uuid.New().String()
	spec.config.Logger = s.zap

	// Progress updates and the evaluation counter both ride the iteration
	// callback; the callback runs on the job's own goroutine.
	prevEvals := 0
	spec.config.OnIteration = func(rec optimization.IterationRecord) {
		s.jobs.UpdateProgress(id, Progress{
			Iteration:   rec.Iteration,
			BestValue:   rec.BestValue,
			Radius:      rec.Radius,
			Evaluations: rec.Evaluations,
		})
		metricEvaluations.Add(float64(rec.Evaluations - prevEvals))
		prevEvals = rec.Evaluations
	}

	opt, err := hypercube.New(spec.config)
	if err != nil {
		return JobStatus{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:        id,
		Objective: spec.objectiveName,
		Goal:      spec.goal,
		Cancel:    cancel,
	}
	if err := s.jobs.Add(job); err != nil {
		cancel()
		return JobStatus{}, err
	}

	go s.runJob(ctx, id, opt, spec)

	s.logger.Info("optimization submitted", map[string]interface{}{
		"optimization_id": id,
		"objective":       spec.objectiveName,
		"goal":            spec.goal,
		"dimensions":      len(spec.config.InitialPoint),
	})

	return s.jobs.Status(id)
}

// buildRun resolves the named objective and normalizes the submission into
// an optimizer configuration.
func (s *Server) buildRun(req StartRequest) (*runSpec, error) {
	name := strings.ToLower(strings.TrimSpace(req.Objective))
	if name == "" {
		return nil, apperrors.Wrap(ErrInvalidRequest, "objective is required")
	}
	objective, ok := objectives.Lookup(name)
	if !ok {
		return nil, apperrors.Wrapf(ErrInvalidRequest, "unknown objective %q, known: %s",
			req.Objective, strings.Join(objectives.Names(), ", "))
	}

	goal := req.Goal
	switch goal {
	case "":
		goal = GoalMinimize
	case GoalMinimize, GoalMaximize:
	default:
		return nil, apperrors.Wrapf(ErrInvalidRequest, "goal must be %q or %q", GoalMinimize, GoalMaximize)
	}

	var initial optimization.Point
	switch {
	case len(req.InitialPoint) > 0:
		initial = optimization.NewPoint(req.InitialPoint)
	case req.Dimensions > 0:
		fill := (req.Lower + req.Upper) / 2
		if req.InitialValue != nil {
			fill = *req.InitialValue
		}
		initial = optimization.Fill(req.Dimensions, fill)
	default:
		return nil, apperrors.Wrap(ErrInvalidRequest, "either initial_point or dimensions is required")
	}

	cfg := hypercube.Config{
		InitialPoint:    initial,
		Lower:           req.Lower,
		Upper:           req.Upper,
		InputTolerance:  req.InputTolerance,
		OutputTolerance: req.OutputTolerance,
		MaxLoops:        req.MaxLoops,
		MaxEvaluations:  req.MaxEvaluations,
		MaxTime:         time.Duration(req.MaxTimeSeconds * float64(time.Second)),
		PopulationSize:  req.PopulationSize,
		RandomSeed:      req.Seed,
	}
	if cfg.InputTolerance <= 0 {
		cfg.InputTolerance = defaultInputTolerance
	}
	if cfg.OutputTolerance <= 0 {
		cfg.OutputTolerance = defaultOutputTolerance
	}
	if cfg.MaxLoops <= 0 {
		cfg.MaxLoops = s.cfg.Optimizer.DefaultMaxLoops
	}
	if cfg.MaxEvaluations <= 0 {
		cfg.MaxEvaluations = s.cfg.Optimizer.DefaultMaxEvaluations
	}
	if cfg.MaxTime <= 0 {
		cfg.MaxTime = s.cfg.Optimizer.DefaultMaxTime
	}

	return &runSpec{
		objectiveName: name,
		objective:     objective,
		goal:          goal,
		config:        cfg,
	}, nil
}

// runJob executes one optimization on its own goroutine and records the
// outcome.
func (s *Server) runJob(ctx context.Context, id string, opt optimization.Optimizer, spec *runSpec) {
	s.jobs.MarkRunning(id)
	metricRunsStarted.Inc()

	logger := s.logger.WithFields(map[string]interface{}{
		"optimization_id": id,
		"objective":       spec.objectiveName,
		"goal":            spec.goal,
	})
	logger.Info("optimization started")

	var result *optimization.Result
	var err error
	if spec.goal == GoalMaximize {
		result, err = opt.Maximize(ctx, spec.objective)
	} else {
		result, err = opt.Minimize(ctx, spec.objective)
	}

	s.jobs.Finish(id, result, err)

	status, statusErr := s.jobs.Status(id)
	if statusErr != nil {
		return
	}
	metricRunsFinished.WithLabelValues(outcome(status, result)).Inc()

	switch {
	case result != nil:
		metricRunDuration.Observe(result.Elapsed.Seconds())
		logger.Info("optimization finished", map[string]interface{}{
			"state":       string(status.State),
			"reason":      string(result.Reason),
			"best_value":  result.BestValue,
			"evaluations": result.Evaluations,
			"iterations":  result.Iterations,
			"elapsed_ms":  float64(result.Elapsed.Microseconds()) / 1000.0,
		})
	default:
		logger.Info("optimization finished", map[string]interface{}{
			"state": string(status.State),
			"error": err.Error(),
		})
	}
}

// outcome labels a finished run for metrics: the termination reason for
// completed runs, otherwise the terminal state.
func outcome(status JobStatus, result *optimization.Result) string {
	if status.State == JobCompleted && result != nil {
		return string(result.Reason)
	}
	return string(status.State)
}

// httpStatus maps service errors to response codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrJobFinished):
		return http.StatusConflict
	case errors.Is(err, ErrTooManyJobs):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	}
	if _, ok := optimization.IsConfigError(err); ok {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]interface{}{
		"error": msg,
	})
}
