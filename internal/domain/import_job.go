package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of an import job
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal, forward
// move in the state machine. Terminal states never transition; PENDING may
// only start processing or fail; PROCESSING may reach any terminal state.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing || next == JobStatusFailed || next == JobStatusCancelled
	case JobStatusProcessing:
		return next.IsTerminal()
	}
	return false
}

// ImportJob is the durable record of one ingestion run. It is created once
// in PENDING, mutated only by the orchestrator goroutine that owns it, and
// retained after completion as an audit trail.
type ImportJob struct {
	ID                  uuid.UUID     `json:"id"`
	UserID              string        `json:"user_id"`
	Filename            string        `json:"filename"`
	FileSize            int64         `json:"file_size"`
	TotalRows           int           `json:"total_rows"`
	ProcessedRows       int           `json:"processed_rows"`
	SuccessCount        int           `json:"success_count"`
	ErrorCount          int           `json:"error_count"`
	DuplicateCount      int           `json:"duplicate_count"`
	Status              JobStatus     `json:"status"`
	CancelRequested     bool          `json:"cancel_requested"`
	StartedAt           *time.Time    `json:"started_at,omitempty"`
	CompletedAt         *time.Time    `json:"completed_at,omitempty"`
	RowsPerSecond       float64       `json:"rows_per_second"`
	EstimatedCompletion *time.Time    `json:"estimated_completion,omitempty"`
	CurrentBatch        int           `json:"current_batch"`
	TotalBatches        int           `json:"total_batches"`
	Mapping             ColumnMapping `json:"column_mapping"`
	ErrorLog            []byte        `json:"-"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// NewImportJob creates a pending job for the given file and mapping.
func NewImportJob(userID, filename string, fileSize int64, mapping ColumnMapping) ImportJob {
	now := time.Now()
	return ImportJob{
		ID:        uuid.New(),
		UserID:    userID,
		Filename:  filename,
		FileSize:  fileSize,
		Status:    JobStatusPending,
		Mapping:   mapping.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ProgressPercentage returns processed/total in [0,100], 0 for an empty file.
func (j ImportJob) ProgressPercentage() float64 {
	if j.TotalRows == 0 {
		return 0
	}
	pct := float64(j.ProcessedRows) / float64(j.TotalRows) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// RemainingRows returns the rows not yet processed, never negative.
func (j ImportJob) RemainingRows() int {
	if remaining := j.TotalRows - j.ProcessedRows; remaining > 0 {
		return remaining
	}
	return 0
}
