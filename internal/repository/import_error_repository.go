package repository

import (
	"context"
	"fmt"

	"github.com/contactkit/importer/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// importErrorRepository implements ImportErrorRepository on pgxpool
type importErrorRepository struct {
	pool *pgxpool.Pool
}

// NewImportErrorRepository creates a new import error repository
func NewImportErrorRepository(pool *pgxpool.Pool) ImportErrorRepository {
	return &importErrorRepository{pool: pool}
}

const insertImportErrorSQL = `INSERT INTO import_errors (id, job_id, row_number, column_name, message, raw_value, category, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

func (r *importErrorRepository) RecordBatch(ctx context.Context, entries []domain.ImportError) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, entry := range entries {
		batch.Queue(insertImportErrorSQL,
			entry.ID, entry.JobID, entry.RowNumber, entry.Column,
			entry.Message, entry.RawValue, string(entry.Category), entry.CreatedAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()
	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to record import errors: %w", err)
		}
	}
	return nil
}

func (r *importErrorRepository) List(ctx context.Context, jobID uuid.UUID, category domain.ErrorCategory, rowNumber *int, limit, offset int) ([]domain.ImportError, error) {
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, job_id, row_number, column_name, message, raw_value, category, created_at
		 FROM import_errors WHERE job_id = $1`
	args := []any{jobID}

	if category != "" {
		args = append(args, string(category))
		query += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	if rowNumber != nil {
		args = append(args, *rowNumber)
		query += fmt.Sprintf(` AND row_number = $%d`, len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY row_number ASC, created_at ASC LIMIT $%d`, len(args))
	args = append(args, offset)
	query += fmt.Sprintf(` OFFSET $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list import errors: %w", err)
	}
	defer rows.Close()

	entries := []domain.ImportError{}
	for rows.Next() {
		var (
			entry    domain.ImportError
			category string
		)
		if scanErr := rows.Scan(
			&entry.ID, &entry.JobID, &entry.RowNumber, &entry.Column,
			&entry.Message, &entry.RawValue, &category, &entry.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan import error: %w", scanErr)
		}
		entry.Category = domain.ErrorCategory(category)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate import errors: %w", err)
	}

	return entries, nil
}
