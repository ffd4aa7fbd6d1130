package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-search/internal/constants"
	"github.com/kozaktomas/face-search/internal/faceindex"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// BuildJob is an async index initialization.
type BuildJob struct {
	EventBroadcaster

	ID              string
	Status          JobStatus
	TotalPhotos     int
	ProcessedPhotos int
	Error           string
	StartedAt       time.Time
	CompletedAt     *time.Time
	Result          *faceindex.BatchResult
}

// BuildJobView is the JSON form of a BuildJob.
type BuildJobView struct {
	ID              string                 `json:"id"`
	Status          JobStatus              `json:"status"`
	TotalPhotos     int                    `json:"total_photos"`
	ProcessedPhotos int                    `json:"processed_photos"`
	Error           string                 `json:"error,omitempty"`
	StartedAt       time.Time              `json:"started_at"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	Result          *faceindex.BatchResult `json:"result,omitempty"`
}

// GetStatus returns the current job status (implements SSEJob).
func (j *BuildJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// View returns a copy of the job safe to encode while it runs.
func (j *BuildJob) View() BuildJobView {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return BuildJobView{
		ID:              j.ID,
		Status:          j.Status,
		TotalPhotos:     j.TotalPhotos,
		ProcessedPhotos: j.ProcessedPhotos,
		Error:           j.Error,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
		Result:          j.Result,
	}
}

// Cancel cancels the job. Photos already analysed are kept.
func (j *BuildJob) Cancel() {
	j.mu.Lock()
	if isJobTerminal(j.Status) {
		j.mu.Unlock()
		return
	}
	j.Status = JobStatusCancelled
	now := time.Now()
	j.CompletedAt = &now
	j.mu.Unlock()
	j.EventBroadcaster.Cancel()
}

// setRunning marks the job as started.
func (j *BuildJob) setRunning(total int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status == JobStatusPending {
		j.Status = JobStatusRunning
	}
	j.TotalPhotos = total
}

// setProgress records how many photos the batch has processed.
func (j *BuildJob) setProgress(current int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ProcessedPhotos = current
}

// finish moves a running job into a terminal state. A job cancelled in the
// meantime stays cancelled.
func (j *BuildJob) finish(status JobStatus, result *faceindex.BatchResult, message string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if isJobTerminal(j.Status) {
		return false
	}
	now := time.Now()
	j.Status = status
	j.Result = result
	j.Error = message
	j.CompletedAt = &now
	return true
}

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// Cancel cancels the job via context and sends a cancelled event.
func (b *EventBroadcaster) Cancel() {
	b.mu.RLock()
	cancel := b.cancel
	b.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	b.SendEvent(JobEvent{Type: "cancelled", Message: "Job cancelled by user"})
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
}

// JobManager manages async jobs.
type JobManager struct {
	jobs map[string]*BuildJob
	mu   sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*BuildJob),
	}
}

// CreateJob creates a pending build job whose context is cancelled by
// BuildJob.Cancel.
func (m *JobManager) CreateJob() (*BuildJob, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	job := &BuildJob{
		ID:        uuid.New().String(),
		Status:    JobStatusPending,
		StartedAt: time.Now(),
	}
	job.cancel = cancel

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	return job, ctx
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *BuildJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// Running returns the job that has not finished yet, if any.
func (m *JobManager) Running() *BuildJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, job := range m.jobs {
		if !isJobTerminal(job.GetStatus()) {
			return job
		}
	}
	return nil
}

// DeleteJob removes a job.
func (m *JobManager) DeleteJob(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
}

// ListJobs returns all jobs.
func (m *JobManager) ListJobs() []*BuildJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]*BuildJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}
