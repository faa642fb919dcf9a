package jobs

import (
	"context"
	"time"

	"github.com/dvloznov/effortless/internal/pipeline"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeEnrichBatch represents a run of the enrichment pipeline over a
	// user's transactions.
	JobTypeEnrichBatch JobType = "enrich_batch"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// DefaultMaxRetries is used when a job is published without MaxRetries.
const DefaultMaxRetries = 3

// EnrichBatchJob asks for a user's transactions to be enriched and matched.
type EnrichBatchJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// UserID is the user whose transactions are processed.
	UserID string `json:"user_id"`

	// Source records who asked for the run, e.g. "api" or "cli".
	Source string `json:"source,omitempty"`

	// Since limits the run to transactions at or after this time. Zero means
	// all of the user's transactions.
	Since time.Time `json:"since,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// Report is the outcome of the last attempt.
	Report *pipeline.Report `json:"report,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *EnrichBatchJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *EnrichBatchJob) GetType() JobType {
	return JobTypeEnrichBatch
}

// GetStatus implements the Job interface.
func (j *EnrichBatchJob) GetStatus() JobStatus {
	return j.Status
}

// Clone returns a copy that shares no pointers with j.
func (j *EnrichBatchJob) Clone() *EnrichBatchJob {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.Report != nil {
		r := *j.Report
		c.Report = &r
	}
	return &c
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishEnrichBatch publishes an enrichment job.
	PublishEnrichBatch(ctx context.Context, job *EnrichBatchJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *EnrichBatchJob) error

	// GetJob retrieves a job by ID. Unknown IDs return an error wrapping
	// domain.ErrNotFound.
	GetJob(ctx context.Context, jobID string) (*EnrichBatchJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*EnrichBatchJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// UserID filters jobs by user.
	UserID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
