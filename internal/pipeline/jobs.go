// Package pipeline orchestrates the eight ingestion stages and tracks
// long-running jobs. The registry is in-memory only; durable state
// lives in the graph store.
package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devgraph/devgraph-go/internal/errs"
)

// ErrJobAlreadyRunning rejects a second concurrent bootstrap.
var ErrJobAlreadyRunning = errs.New(errs.KindConfig, "an ingestion job is already running")

// JobStatus is the lifecycle of a tracked job.
type JobStatus string

const (
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Job is one tracked bootstrap or derivation run.
type Job struct {
	ID              string    `json:"job_id"`
	Status          JobStatus `json:"status"`
	StagesCompleted []string  `json:"stages_completed"`
	Progress        float64   `json:"progress"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	Error           string    `json:"error,omitempty"`
}

// Jobs is the in-memory registry. At most one ingestion job runs at a
// time; queries about finished jobs stay answerable until restart.
type Jobs struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	active string
}

func NewJobs() *Jobs {
	return &Jobs{jobs: map[string]*Job{}}
}

// Start registers a new running job, rejecting concurrency.
func (j *Jobs) Start() (*Job, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.active != "" {
		return nil, ErrJobAlreadyRunning
	}
	job := &Job{
		ID:        uuid.NewString(),
		Status:    JobRunning,
		StartedAt: time.Now().UTC(),
	}
	j.jobs[job.ID] = job
	j.active = job.ID
	return job, nil
}

// StageDone records stage completion and progress for polling clients.
func (j *Jobs) StageDone(id, stage string, progress float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if job, ok := j.jobs[id]; ok {
		job.StagesCompleted = append(job.StagesCompleted, stage)
		job.Progress = progress
	}
}

// Finish marks the job done or failed and releases the activity slot.
func (j *Jobs) Finish(id string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	job, ok := j.jobs[id]
	if !ok {
		return
	}
	job.DurationSeconds = time.Since(job.StartedAt).Seconds()
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
	} else {
		job.Status = JobDone
		job.Progress = 1
	}
	if j.active == id {
		j.active = ""
	}
}

// Get returns a snapshot of one job.
func (j *Jobs) Get(id string) (Job, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[id]
	if !ok {
		return Job{}, false
	}
	snapshot := *job
	snapshot.StagesCompleted = append([]string(nil), job.StagesCompleted...)
	if job.Status == JobRunning {
		snapshot.DurationSeconds = time.Since(job.StartedAt).Seconds()
	}
	return snapshot, true
}
