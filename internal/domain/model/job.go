// Package model defines the core data types shared across the portfolio
// analysis job system.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current status of an analysis job.
type JobStatus string

const (
	// JobStatusPending indicates a job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates a job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates a job has finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job has failed to complete.
	JobStatusFailed JobStatus = "failed"
)

// ErrNoJobsAvailable is returned when no queued jobs are available to claim.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusRunning || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// Terminal reports whether the status is a terminal state. Jobs never
// transition out of a terminal state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether the status machine permits moving to next.
// Transitions are monotonic: pending -> running -> {completed, failed}.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusRunning
	case JobStatusRunning:
		return next == JobStatusCompleted || next == JobStatusFailed
	case JobStatusCompleted, JobStatusFailed:
		return false
	default:
		return false
	}
}

// AnalysisJob represents one portfolio analysis request and its lifecycle
// record. Result fields are written independently, one per specialist agent,
// so concurrent writers never clobber each other's payloads.
type AnalysisJob struct {
	ID           string            `json:"id"                      db:"id"`
	UserID       string            `json:"user_id"                 db:"user_id"`
	Status       JobStatus         `json:"status"                  db:"status"`
	Request      json.RawMessage   `json:"request"                 db:"request"`
	Report       json.RawMessage   `json:"report,omitempty"        db:"report_payload"`
	Charts       json.RawMessage   `json:"charts,omitempty"        db:"charts_payload"`
	Retirement   json.RawMessage   `json:"retirement,omitempty"    db:"retirement_payload"`
	Summary      *string           `json:"summary,omitempty"       db:"summary"`
	AgentErrors  map[string]string `json:"agent_errors,omitempty"  db:"agent_errors"`
	ErrorMessage *string           `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time         `json:"created_at"              db:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"    db:"started_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"  db:"completed_at"`
}

// CreateJobRequest represents a request to create a new analysis job.
type CreateJobRequest struct {
	UserID  string          `json:"user_id"`
	Request json.RawMessage `json:"request,omitempty"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user id is required")
	}
	return nil
}

// QueueMessage is the payload delivered through the analysis queue.
// Delivery is at-least-once; consumers must treat redelivery of a job that
// already reached a terminal status as a no-op.
type QueueMessage struct {
	JobID string `json:"job_id"`
}

// Validate checks the queue message carries a well-formed job id.
func (m *QueueMessage) Validate() error {
	if m.JobID == "" {
		return errors.New("job_id is required")
	}
	if _, err := uuid.Parse(m.JobID); err != nil {
		return fmt.Errorf("job_id must be a valid UUID: %w", err)
	}
	return nil
}

// AgentResultPayloads carries the per-agent result fields to write on a job
// record in a single partial update. Nil fields are left untouched.
type AgentResultPayloads struct {
	Report      json.RawMessage
	Charts      json.RawMessage
	Retirement  json.RawMessage
	Summary     *string
	AgentErrors map[string]string
}

// JobStats represents counts of jobs in each state.
type JobStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
