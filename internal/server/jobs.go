package server

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/mihirnimgade/hypercube-optimization/internal/errors"
	"github.com/mihirnimgade/hypercube-optimization/internal/optimization"
)

// JobState is the lifecycle state of a submitted optimization.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// Goal values accepted on job submission.
const (
	GoalMinimize = "minimize"
	GoalMaximize = "maximize"
)

var (
	// ErrJobNotFound is returned for unknown optimization ids.
	ErrJobNotFound = apperrors.New("optimization not found").WithComponent("server")

	// ErrJobFinished is returned when cancelling a job already in a
	// terminal state.
	ErrJobFinished = apperrors.New("optimization already finished").WithComponent("server")

	// ErrTooManyJobs is returned when the concurrency cap is reached.
	ErrTooManyJobs = apperrors.New("too many concurrent optimizations").WithComponent("server")
)

// Progress is the live view of a running job, updated once per iteration.
type Progress struct {
	Iteration   int     `json:"iteration"`
	BestValue   float64 `json:"best_value"`
	Radius      float64 `json:"radius"`
	Evaluations int     `json:"evaluations"`
}

// Job tracks one optimization from submission to a terminal state. Mutable
// fields are guarded by the owning Manager's lock.
type Job struct {
	ID          string
	Objective   string
	Goal        string
	State       JobState
	SubmittedAt time.Time
	StartedAt   time.Time
	EndedAt     time.Time
	Progress    Progress
	Result      *optimization.Result
	Error       string
	Cancel      context.CancelFunc
}

// Manager holds every submitted job and enforces the concurrency cap. The
// cap counts jobs that have been accepted and not yet reached a terminal
// state.
type Manager struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	active int
	limit  int
}

// NewManager creates a Manager allowing at most limit concurrent jobs.
func NewManager(limit int) *Manager {
	if limit < 1 {
		limit = 1
	}
	return &Manager{
		jobs:  make(map[string]*Job),
		limit: limit,
	}
}

// Add registers a pending job, or fails with ErrTooManyJobs when the cap is
// reached.
func (m *Manager) Add(job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active >= m.limit {
		return ErrTooManyJobs
	}
	m.active++

	job.State = JobPending
	job.SubmittedAt = time.Now()
	m.jobs[job.ID] = job
	return nil
}

// MarkRunning flips a pending job to running. A job cancelled before its
// goroutine got scheduled stays cancelled.
func (m *Manager) MarkRunning(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, ok := m.jobs[id]; ok && job.State == JobPending {
		job.State = JobRunning
		job.StartedAt = time.Now()
	}
}

// UpdateProgress records the latest iteration of a running job.
func (m *Manager) UpdateProgress(id string, progress Progress) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, ok := m.jobs[id]; ok && job.State == JobRunning {
		job.Progress = progress
	}
}

// Finish moves the job to completed or failed and frees its concurrency
// slot. A job cancelled while running keeps the cancelled state; only its
// slot is released.
func (m *Manager) Finish(id string, result *optimization.Result, runErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return
	}
	m.active--

	if job.State.Terminal() {
		return
	}

	job.EndedAt = time.Now()
	if runErr != nil {
		job.State = JobFailed
		job.Error = runErr.Error()
		return
	}
	job.State = JobCompleted
	job.Result = result
}

// Cancel requests cancellation of a pending or running job.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.State.Terminal() {
		return ErrJobFinished
	}

	if job.Cancel != nil {
		job.Cancel()
	}
	job.State = JobCancelled
	job.EndedAt = time.Now()
	return nil
}

// CancelAll cancels every non-terminal job. Used at shutdown.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		if job.State.Terminal() {
			continue
		}
		if job.Cancel != nil {
			job.Cancel()
		}
		job.State = JobCancelled
		job.EndedAt = time.Now()
	}
}

// Status returns a point-in-time snapshot of one job.
func (m *Manager) Status(id string) (JobStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return JobStatus{}, ErrJobNotFound
	}
	return job.snapshot(), nil
}

// List returns snapshots of every job, newest first.
func (m *Manager) List() []JobStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]JobStatus, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, job.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out
}

// JobStatus is the wire form of a job snapshot.
type JobStatus struct {
	ID          string         `json:"id"`
	Objective   string         `json:"objective"`
	Goal        string         `json:"goal"`
	State       JobState       `json:"state"`
	SubmittedAt time.Time      `json:"submitted_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	EndedAt     *time.Time     `json:"ended_at,omitempty"`
	Progress    *Progress      `json:"progress,omitempty"`
	Result      *ResultPayload `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// ResultPayload is the wire form of a completed run's result.
type ResultPayload struct {
	BestPoint      []float64          `json:"best_point"`
	BestValue      float64            `json:"best_value"`
	Evaluations    int                `json:"evaluations"`
	Iterations     int                `json:"iterations"`
	ElapsedSeconds float64            `json:"elapsed_seconds"`
	Reason         string             `json:"reason"`
	History        []IterationPayload `json:"history,omitempty"`
}

// IterationPayload is the wire form of one iteration record.
type IterationPayload struct {
	Iteration        int     `json:"iteration"`
	BestValue        float64 `json:"best_value"`
	Radius           float64 `json:"radius"`
	Improved         bool    `json:"improved"`
	Evaluations      int     `json:"evaluations"`
	PopulationMean   float64 `json:"population_mean"`
	PopulationStdDev float64 `json:"population_stddev"`
}

// snapshot copies the job into its wire form. Caller holds the Manager lock.
func (j *Job) snapshot() JobStatus {
	status := JobStatus{
		ID:          j.ID,
		Objective:   j.Objective,
		Goal:        j.Goal,
		State:       j.State,
		SubmittedAt: j.SubmittedAt,
		Error:       j.Error,
	}
	if !j.StartedAt.IsZero() {
		started := j.StartedAt
		status.StartedAt = &started
	}
	if !j.EndedAt.IsZero() {
		ended := j.EndedAt
		status.EndedAt = &ended
	}
	if j.State != JobPending {
		progress := j.Progress
		status.Progress = &progress
	}
	if j.Result != nil {
		status.Result = resultPayload(j.Result)
	}
	return status
}

func resultPayload(result *optimization.Result) *ResultPayload {
	payload := &ResultPayload{
		BestPoint:      append([]float64(nil), result.BestPoint...),
		BestValue:      result.BestValue,
		Evaluations:    result.Evaluations,
		Iterations:     result.Iterations,
		ElapsedSeconds: result.Elapsed.Seconds(),
		Reason:         string(result.Reason),
		History:        make([]IterationPayload, 0, len(result.History)),
	}
	for _, rec := range result.History {
		payload.History = append(payload.History, IterationPayload{
			Iteration:        rec.Iteration,
			BestValue:        rec.BestValue,
			Radius:           rec.Radius,
			Improved:         rec.Improved,
			Evaluations:      rec.Evaluations,
			PopulationMean:   rec.PopulationMean,
			PopulationStdDev: rec.PopulationStdDev,
		})
	}
	return payload
}
