package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/contactkit/importer/internal/domain"

	"github.com/google/uuid"
)

// Tracker accumulates row-level import errors for one job. The log is
// append-only; the per-category summary is maintained incrementally on each
// add so a snapshot never requires a recomputation pass. Clear resets the
// log and the summary together so the two cannot drift.
type Tracker struct {
	jobID   uuid.UUID
	entries []domain.ImportError
	summary map[domain.ErrorCategory]int
	// flushed marks how many entries have already been handed out by
	// Unflushed for persistence.
	flushed int
}

// Snapshot is the serializable view persisted into the job's error log.
type Snapshot struct {
	Errors  []domain.ImportError         `json:"errors"`
	Summary map[domain.ErrorCategory]int `json:"summary"`
	Total   int                          `json:"total"`
}

// NewTracker creates an empty tracker for the given job.
func NewTracker(jobID uuid.UUID) *Tracker {
	return &Tracker{
		jobID:   jobID,
		summary: make(map[domain.ErrorCategory]int),
	}
}

// Add appends one error to the log.
func (t *Tracker) Add(category domain.ErrorCategory, rowNumber int, column, message, rawValue string) {
	if column == "" {
		column = "unknown"
	}
	t.entries = append(t.entries, domain.ImportError{
		ID:        uuid.New(),
		JobID:     t.jobID,
		RowNumber: rowNumber,
		Column:    column,
		Message:   message,
		RawValue:  rawValue,
		Category:  category,
		CreatedAt: time.Now(),
	})
	t.summary[category]++
}

// AddDuplicate records an email rejected because it was already seen in
// this job or already stored.
func (t *Tracker) AddDuplicate(rowNumber int, email string) {
	t.Add(domain.ErrorCategoryDuplicate, rowNumber, domain.FieldEmail,
		fmt.Sprintf("duplicate email: %s", email), email)
}

// AddValidation records a row rejected by the validator.
func (t *Tracker) AddValidation(rowNumber int, column, rawValue, reason string) {
	t.Add(domain.ErrorCategoryValidation, rowNumber, column, reason, rawValue)
}

// AddConversion records a cell that nulled out during type coercion. The
// row itself still proceeds; the entry is informational.
func (t *Tracker) AddConversion(rowNumber int, column, rawValue, reason string) {
	t.Add(domain.ErrorCategoryConversion, rowNumber, column, reason, rawValue)
}

// AddStorage records a store-level failure, typically once per failed batch.
func (t *Tracker) AddStorage(rowNumber int, message string) {
	t.Add(domain.ErrorCategoryStorage, rowNumber, "batch", message, "")
}

// All returns the full ordered log.
func (t *Tracker) All() []domain.ImportError {
	out := make([]domain.ImportError, len(t.entries))
	copy(out, t.entries)
	return out
}

// ByCategory returns the entries with the given category, in order.
func (t *Tracker) ByCategory(category domain.ErrorCategory) []domain.ImportError {
	var out []domain.ImportError
	for _, e := range t.entries {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out
}

// ByRow returns the entries for one original-file row number.
func (t *Tracker) ByRow(rowNumber int) []domain.ImportError {
	var out []domain.ImportError
	for _, e := range t.entries {
		if e.RowNumber == rowNumber {
			out = append(out, e)
		}
	}
	return out
}

// CountByCategory returns the incrementally maintained summary count.
func (t *Tracker) CountByCategory(category domain.ErrorCategory) int {
	return t.summary[category]
}

// Total returns the number of logged entries.
func (t *Tracker) Total() int {
	return len(t.entries)
}

// Snapshot returns the serializable log, summary, and total.
func (t *Tracker) Snapshot() Snapshot {
	summary := make(map[domain.ErrorCategory]int, len(t.summary))
	for k, v := range t.summary {
		summary[k] = v
	}
	return Snapshot{
		Errors:  t.All(),
		Summary: summary,
		Total:   len(t.entries),
	}
}

// MarshalSnapshot renders the snapshot for the job's error_log field.
func (t *Tracker) MarshalSnapshot() ([]byte, error) {
	payload, err := json.Marshal(t.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal error snapshot: %w", err)
	}
	return payload, nil
}

// Unflushed returns the entries added since the previous call, for
// incremental persistence to the error-log store.
func (t *Tracker) Unflushed() []domain.ImportError {
	if t.flushed >= len(t.entries) {
		return nil
	}
	out := make([]domain.ImportError, len(t.entries)-t.flushed)
	copy(out, t.entries[t.flushed:])
	t.flushed = len(t.entries)
	return out
}

// Clear resets the log and summary together.
func (t *Tracker) Clear() {
	t.entries = nil
	t.summary = make(map[domain.ErrorCategory]int)
	t.flushed = 0
}
