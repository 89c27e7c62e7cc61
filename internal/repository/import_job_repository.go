package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/contactkit/importer/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const importJobColumns = `id, user_id, filename, file_size, total_rows, processed_rows,
	success_count, error_count, duplicate_count, status, cancel_requested,
	started_at, completed_at, rows_per_second, estimated_completion,
	current_batch, total_batches, column_mapping, error_log, created_at, updated_at`

// importJobRepository implements ImportJobRepository on pgxpool
type importJobRepository struct {
	pool *pgxpool.Pool
}

// NewImportJobRepository creates a new import job repository
func NewImportJobRepository(pool *pgxpool.Pool) ImportJobRepository {
	return &importJobRepository{pool: pool}
}

func (r *importJobRepository) Create(ctx context.Context, job domain.ImportJob) error {
	mapping, err := json.Marshal(job.Mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal column mapping: %w", err)
	}

	errorLog := job.ErrorLog
	if len(errorLog) == 0 {
		errorLog = []byte(`{}`)
	}

	_, err = r.pool.Exec(
		ctx,
		`INSERT INTO import_jobs (`+importJobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		job.ID, job.UserID, job.Filename, job.FileSize, job.TotalRows, job.ProcessedRows,
		job.SuccessCount, job.ErrorCount, job.DuplicateCount, string(job.Status), job.CancelRequested,
		job.StartedAt, job.CompletedAt, job.RowsPerSecond, job.EstimatedCompletion,
		job.CurrentBatch, job.TotalBatches, mapping, errorLog, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create import job: %w", err)
	}
	return nil
}

func (r *importJobRepository) Update(ctx context.Context, job domain.ImportJob) error {
	errorLog := job.ErrorLog
	if len(errorLog) == 0 {
		errorLog = []byte(`{}`)
	}

	tag, err := r.pool.Exec(
		ctx,
		`UPDATE import_jobs SET
			total_rows = $2, processed_rows = $3, success_count = $4, error_count = $5,
			duplicate_count = $6, status = $7, started_at = $8, completed_at = $9,
			rows_per_second = $10, estimated_completion = $11, current_batch = $12,
			total_batches = $13, error_log = $14, updated_at = NOW()
		 WHERE id = $1`,
		job.ID, job.TotalRows, job.ProcessedRows, job.SuccessCount, job.ErrorCount,
		job.DuplicateCount, string(job.Status), job.StartedAt, job.CompletedAt,
		job.RowsPerSecond, job.EstimatedCompletion, job.CurrentBatch,
		job.TotalBatches, errorLog,
	)
	if err != nil {
		return fmt.Errorf("failed to update import job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("import job %s not found", job.ID)
	}
	return nil
}

func (r *importJobRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ImportJob, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT `+importJobColumns+` FROM import_jobs WHERE id = $1`,
		id,
	)
	return scanImportJob(row)
}

func (r *importJobRepository) ListRecent(ctx context.Context, userID string, limit int) ([]domain.ImportJob, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + importJobColumns + ` FROM import_jobs`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list import jobs: %w", err)
	}
	defer rows.Close()

	jobs := []domain.ImportJob{}
	for rows.Next() {
		job, scanErr := scanImportJob(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate import jobs: %w", err)
	}
	return jobs, nil
}

// RequestCancel flags a non-terminal job for cancellation. The flag is
// honored by the orchestrator at the next batch boundary.
func (r *importJobRepository) RequestCancel(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE import_jobs SET cancel_requested = TRUE, updated_at = NOW()
		 WHERE id = $1 AND status IN ($2, $3)`,
		id, string(domain.JobStatusPending), string(domain.JobStatusProcessing),
	)
	if err != nil {
		return false, fmt.Errorf("failed to request cancellation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *importJobRepository) CancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var requested bool
	err := r.pool.QueryRow(
		ctx,
		`SELECT cancel_requested FROM import_jobs WHERE id = $1`,
		id,
	).Scan(&requested)
	if err != nil {
		return false, fmt.Errorf("failed to read cancellation flag: %w", err)
	}
	return requested, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImportJob(row rowScanner) (domain.ImportJob, error) {
	var (
		job                 domain.ImportJob
		status              string
		startedAt           pgtype.Timestamptz
		completedAt         pgtype.Timestamptz
		estimatedCompletion pgtype.Timestamptz
		mapping             []byte
	)

	if err := row.Scan(
		&job.ID, &job.UserID, &job.Filename, &job.FileSize, &job.TotalRows, &job.ProcessedRows,
		&job.SuccessCount, &job.ErrorCount, &job.DuplicateCount, &status, &job.CancelRequested,
		&startedAt, &completedAt, &job.RowsPerSecond, &estimatedCompletion,
		&job.CurrentBatch, &job.TotalBatches, &mapping, &job.ErrorLog, &job.CreatedAt, &job.UpdatedAt,
	); err != nil {
		return domain.ImportJob{}, fmt.Errorf("failed to scan import job: %w", err)
	}

	job.Status = domain.JobStatus(status)
	job.StartedAt = timestampPtr(startedAt)
	job.CompletedAt = timestampPtr(completedAt)
	job.EstimatedCompletion = timestampPtr(estimatedCompletion)

	if len(mapping) > 0 {
		if err := json.Unmarshal(mapping, &job.Mapping); err != nil {
			return domain.ImportJob{}, fmt.Errorf("failed to unmarshal column mapping: %w", err)
		}
	}

	return job, nil
}

func timestampPtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}
