package domain

import (
	"time"

	"github.com/google/uuid"
)

// ErrorCategory classifies a row-level import failure
type ErrorCategory string

const (
	ErrorCategoryDuplicate  ErrorCategory = "duplicate"
	ErrorCategoryValidation ErrorCategory = "validation"
	ErrorCategoryConversion ErrorCategory = "conversion"
	ErrorCategoryStorage    ErrorCategory = "storage"
)

// ImportError captures one row-level failure during an import run. Entries
// are append-only; RowNumber is 1-based and counted against the original
// file, not the batch.
type ImportError struct {
	ID        uuid.UUID     `json:"id"`
	JobID     uuid.UUID     `json:"job_id"`
	RowNumber int           `json:"row_number"`
	Column    string        `json:"column"`
	Message   string        `json:"message"`
	RawValue  string        `json:"raw_value,omitempty"`
	Category  ErrorCategory `json:"category"`
	CreatedAt time.Time     `json:"created_at"`
}
