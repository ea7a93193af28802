package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"audiobook-forge/backend/internal/pipeline"
)

// ErrJobAlreadyRunning is returned when starting a second active job.
var ErrJobAlreadyRunning = errors.New("job already running")

// ErrNoRunningJob is returned when cancel is requested for idle state.
var ErrNoRunningJob = errors.New("no running job")

// ErrUnknownJob is returned for job IDs the manager has never seen.
var ErrUnknownJob = errors.New("unknown job")

// Job status values. A job that produced output despite failed items is
// reported distinctly from a clean completion.
const (
	StatusRunning               = "running"
	StatusCompleted             = "completed"
	StatusCompletedWithFailures = "completed_with_failures"
	StatusFailed                = "failed"
	StatusCancelled             = "cancelled"
)

// Job is the externally visible state of one conversion.
type Job struct {
	ID         string                 `json:"id"`
	Stage      pipeline.Stage         `json:"stage"`
	Status     string                 `json:"status"`
	Fraction   float64                `json:"fraction"`
	Message    string                 `json:"message,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Failures   []pipeline.ItemFailure `json:"failures,omitempty"`
	InputPath  string                 `json:"inputPath"`
	OutputPath string                 `json:"outputPath,omitempty"`
	BookTitle  string                 `json:"bookTitle,omitempty"`
	StartedAt  time.Time              `json:"startedAt"`
	UpdatedAt  time.Time              `json:"updatedAt"`
}

// Terminal reports whether the job has finished one way or another.
func (j Job) Terminal() bool {
	switch j.Stage {
	case pipeline.StageComplete, pipeline.StageFailed, pipeline.StageCancelled:
		return true
	}
	return false
}

// Manager allows one active conversion at a time and keeps finished jobs
// around so their state and output remain queryable.
type Manager struct {
	mu       sync.RWMutex
	jobs     map[string]*Job
	cancels  map[string]context.CancelFunc
	activeID string
	bus      *EventBus
}

func NewManager(bus *EventBus) *Manager {
	return &Manager{
		jobs:    make(map[string]*Job),
		cancels: make(map[string]context.CancelFunc),
		bus:     bus,
	}
}

// Start registers a new job and hands back the context its pipeline must run
// under. Only one job may be active.
func (m *Manager) Start(inputPath string) (Job, context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeID != "" {
		if j, ok := m.jobs[m.activeID]; ok && !j.Terminal() {
			return Job{}, nil, ErrJobAlreadyRunning
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		Stage:     pipeline.StageParsing,
		Status:    StatusRunning,
		InputPath: inputPath,
		StartedAt: now,
		UpdatedAt: now,
	}
	m.jobs[job.ID] = job
	m.cancels[job.ID] = cancel
	m.activeID = job.ID
	return *job, ctx, nil
}

// Apply folds a pipeline event into the job state and republishes it on the
// bus. Fractions never move backwards except on the initial resume jump,
// which the pipeline emits before any regular progress.
func (m *Manager) Apply(jobID string, ev pipeline.Event) {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return
	}
	job.Stage = ev.Stage
	if ev.Fraction > job.Fraction || ev.Stage == pipeline.StageGenerating && job.Fraction == 0 {
		job.Fraction = ev.Fraction
	}
	if len(ev.Failures) > 0 {
		job.Failures = ev.Failures
	}
	switch ev.Stage {
	case pipeline.StageComplete:
		job.Fraction = 1.0
		if len(job.Failures) > 0 {
			job.Status = StatusCompletedWithFailures
		} else {
			job.Status = StatusCompleted
		}
	case pipeline.StageFailed:
		job.Status = StatusFailed
	case pipeline.StageCancelled:
		job.Status = StatusCancelled
	default:
		job.Status = StatusRunning
	}
	job.Message = ev.Message
	job.Error = ev.Error
	job.UpdatedAt = time.Now().UTC()
	snapshot := *job
	m.mu.Unlock()

	t := EventTypeProgress
	switch ev.Stage {
	case pipeline.StageComplete:
		t = EventTypeResult
	case pipeline.StageFailed:
		t = EventTypeError
	case pipeline.StageCancelled:
		t = EventTypeStatus
	}
	m.bus.Publish(Event{
		JobID:    jobID,
		Type:     t,
		Stage:    snapshot.Stage,
		Fraction: snapshot.Fraction,
		Message:  snapshot.Message,
		Error:    snapshot.Error,
		Failures: snapshot.Failures,
	})
}

// Finish records the job's final output path, title and per-item failures
// once the pipeline returns.
func (m *Manager) Finish(jobID, outputPath, bookTitle string, failures []pipeline.ItemFailure) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, ok := m.jobs[jobID]; ok {
		job.OutputPath = outputPath
		job.BookTitle = bookTitle
		if len(failures) > 0 {
			job.Failures = failures
			if job.Stage == pipeline.StageComplete {
				job.Status = StatusCompletedWithFailures
			}
		}
		job.UpdatedAt = time.Now().UTC()
	}
	delete(m.cancels, jobID)
}

// Get returns a snapshot of one job.
func (m *Manager) Get(jobID string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Active returns the most recently started job, if any.
func (m *Manager) Active() (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[m.activeID]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Cancel stops a running job. The pipeline observes the context and saves
// its checkpoint before exiting.
func (m *Manager) Cancel(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return ErrUnknownJob
	}
	if job.Terminal() {
		return ErrNoRunningJob
	}
	cancel, ok := m.cancels[jobID]
	if !ok {
		return ErrNoRunningJob
	}
	cancel()
	return nil
}
