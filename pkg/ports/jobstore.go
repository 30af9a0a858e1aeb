package ports

import (
	"context"
	"time"

	"github.com/aretw0/abyss/pkg/domain"
)

// JobStatus is the server-side status of a job record.
type JobStatus string

const (
	StatusRunning  JobStatus = "running"
	StatusComplete JobStatus = "complete"
	StatusFailed   JobStatus = "error"
)

// JobRecord is the persisted summary of a server-side job.
type JobRecord struct {
	ID            string    `json:"id"`
	Status        JobStatus `json:"status"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	ProgressCount int       `json:"progress_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// JobStore persists optimization jobs for the development service.
type JobStore interface {
	// Create registers a new running job.
	Create(ctx context.Context, id string) error

	// AppendProgress records one progress report.
	AppendProgress(ctx context.Context, id string, p domain.ProgressSnapshot) error

	// ProgressSince returns the reports recorded after the first offset ones.
	ProgressSince(ctx context.Context, id string, offset int) ([]domain.ProgressSnapshot, error)

	// Complete stores the result and marks the job complete.
	Complete(ctx context.Context, id string, result []byte) error

	// Fail marks the job failed with a message.
	Fail(ctx context.Context, id string, message string) error

	// Get returns the record. Returns domain.ErrJobNotFound if the job does not exist.
	Get(ctx context.Context, id string) (*JobRecord, error)

	// Result returns the stored result.
	// Returns domain.ErrResultNotReady while the job has not completed.
	Result(ctx context.Context, id string) ([]byte, error)

	// Delete removes the job and everything stored for it.
	Delete(ctx context.Context, id string) error
}
