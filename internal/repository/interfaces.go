package repository

import (
	"context"

	"github.com/contactkit/importer/internal/domain"

	"github.com/google/uuid"
)

// BatchWriteResult reports the outcome of one bulk contact write.
type BatchWriteResult struct {
	// Inserted is the number of rows the store accepted.
	Inserted int
	// ConflictEmails lists normalized emails the store rejected because a
	// contact with the same email already existed when the batch committed.
	ConflictEmails []string
}

// ContactRepository defines the interface for contact store operations
type ContactRepository interface {
	// CreateBatch writes all contacts inside a single transaction. Either the
	// whole batch commits or none of it does.
	CreateBatch(ctx context.Context, contacts []domain.Contact) (BatchWriteResult, error)
	// FindExistingEmails returns the subset of the given normalized emails
	// that are already present in the store.
	FindExistingEmails(ctx context.Context, emails []string) (map[string]bool, error)
}

// ImportJobRepository defines the interface for import job persistence
type ImportJobRepository interface {
	Create(ctx context.Context, job domain.ImportJob) error
	Update(ctx context.Context, job domain.ImportJob) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.ImportJob, error)
	// ListRecent returns most-recent-first job summaries, optionally scoped
	// to one user when userID is non-empty.
	ListRecent(ctx context.Context, userID string, limit int) ([]domain.ImportJob, error)
	// RequestCancel flags the job for cancellation. Returns false when the
	// job is already terminal.
	RequestCancel(ctx context.Context, id uuid.UUID) (bool, error)
	// CancelRequested reads the cancellation flag for batch-boundary polling.
	CancelRequested(ctx context.Context, id uuid.UUID) (bool, error)
}

// ImportErrorRepository defines the interface for the persisted error log
type ImportErrorRepository interface {
	RecordBatch(ctx context.Context, entries []domain.ImportError) error
	// List filters by category when category is non-empty and by row when
	// rowNumber is non-nil.
	List(ctx context.Context, jobID uuid.UUID, category domain.ErrorCategory, rowNumber *int, limit, offset int) ([]domain.ImportError, error)
}
