// -----------------------------------------------------------------------
// Job - persisted one-row-per-job record with lifecycle status
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle status of an ingestion job.
// Transitions only move forward: pending -> running -> terminal.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job is the persisted record for one end-to-end ingestion run.
//
// Job State Lifecycle:
//  1. IngestDescriptor (API request) - what to ingest
//  2. Job (this struct) - persisted row, status + aggregate counters
//  3. LiveSnapshot - in-memory progress view during execution
//  4. ProgressEvent log - durable record of every progress step
//
// RecordsIngested is a best-effort cache refreshed at minimum on every
// terminal transition; the event log is the audit source of truth.
type Job struct {
	ID   string `json:"id" badgerhold:"key"`
	Kind string `json:"kind" badgerhold:"index"` // Data kind discriminator (e.g. "eod_prices", "fund_prices")
	Name string `json:"name"`                    // Human-readable job name

	Scope Scope `json:"scope"`

	Status JobStatus `json:"status" badgerhold:"index"`
	Error  string    `json:"error,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"` // Set iff status is terminal

	// Aggregate counters
	ItemsCompleted  int  `json:"items_completed"`
	ItemsFailed     int  `json:"items_failed"`
	RecordsIngested int  `json:"records_ingested"`
	RecordsTarget   *int `json:"records_target,omitempty"`
}

// NewJob creates a new pending job with a server-generated task ID.
func NewJob(kind, name string, scope Scope) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.New().String(),
		Kind:      kind,
		Name:      name,
		Scope:     scope,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkRunning marks the job as started.
func (j *Job) MarkRunning() {
	j.Status = JobStatusRunning
	now := time.Now()
	j.StartedAt = &now
	j.UpdatedAt = now
}

// MarkCompleted marks the job as completed.
func (j *Job) MarkCompleted() {
	j.Status = JobStatusCompleted
	now := time.Now()
	j.EndedAt = &now
	j.UpdatedAt = now
}

// MarkFailed marks the job as failed with an error message.
func (j *Job) MarkFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.Error = errorMsg
	now := time.Now()
	j.EndedAt = &now
	j.UpdatedAt = now
}

// MarkCancelled marks the job as cancelled.
func (j *Job) MarkCancelled() {
	j.Status = JobStatusCancelled
	now := time.Now()
	j.EndedAt = &now
	j.UpdatedAt = now
}

// IsTerminal returns true if the job reached a terminal state.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted ||
		j.Status == JobStatusFailed ||
		j.Status == JobStatusCancelled
}

// Duration returns the elapsed time between start and end, or zero if the
// job has not both started and ended.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.EndedAt == nil {
		return 0
	}
	return j.EndedAt.Sub(*j.StartedAt)
}

// Validate validates the job row before persistence.
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if j.Kind == "" {
		return fmt.Errorf("job kind is required")
	}
	if err := j.Scope.Validate(); err != nil {
		return fmt.Errorf("invalid scope: %w", err)
	}
	return nil
}
