package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/contactkit/importer/internal/db"
	"github.com/contactkit/importer/internal/domain"

	"github.com/jackc/pgx/v5"
)

const contactColumns = `id, first_name, last_name, full_name, email, phone, company, job_title,
	website, linkedin, twitter, address, city, state, country, postal_code, industry,
	employees_count, revenue, is_active, notes, tags, created_at, updated_at`

const insertContactSQL = `INSERT INTO contacts (` + contactColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
	ON CONFLICT ((LOWER(email))) DO NOTHING`

// contactRepository implements ContactRepository on the shared connection
type contactRepository struct {
	conn *db.Connection
}

// NewContactRepository creates a new contact repository
func NewContactRepository(conn *db.Connection) ContactRepository {
	return &contactRepository{conn: conn}
}

// CreateBatch inserts every contact inside one transaction. Rows that lose a
// uniqueness race on LOWER(email) are skipped by the store and reported back
// as conflicts; any other failure rolls back the whole batch.
func (r *contactRepository) CreateBatch(ctx context.Context, contacts []domain.Contact) (BatchWriteResult, error) {
	result := BatchWriteResult{}
	if len(contacts) == 0 {
		return result, nil
	}

	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, c := range contacts {
			batch.Queue(insertContactSQL,
				c.ID, c.FirstName, c.LastName, c.FullName, c.NormalizedEmail(), c.Phone,
				c.Company, c.JobTitle, c.Website, c.LinkedIn, c.Twitter, c.Address,
				c.City, c.State, c.Country, c.PostalCode, c.Industry,
				c.EmployeesCount, c.Revenue, c.IsActive, c.Notes, c.Tags,
				c.CreatedAt, c.UpdatedAt,
			)
		}

		results := tx.SendBatch(ctx, batch)
		for _, c := range contacts {
			tag, execErr := results.Exec()
			if execErr != nil {
				_ = results.Close()
				return fmt.Errorf("failed to insert contact: %w", execErr)
			}
			if tag.RowsAffected() == 0 {
				result.ConflictEmails = append(result.ConflictEmails, c.NormalizedEmail())
			} else {
				result.Inserted++
			}
		}
		return results.Close()
	})
	if err != nil {
		return BatchWriteResult{}, err
	}

	return result, nil
}

// FindExistingEmails returns which of the given normalized emails already
// have a stored contact.
func (r *contactRepository) FindExistingEmails(ctx context.Context, emails []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(emails))
	if len(emails) == 0 {
		return existing, nil
	}

	normalized := make([]string, 0, len(emails))
	for _, email := range emails {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(email)))
	}

	rows, err := r.conn.Pool.Query(
		ctx,
		`SELECT LOWER(email) FROM contacts WHERE LOWER(email) = ANY($1)`,
		normalized,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to look up existing emails: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		existing[email] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate emails: %w", err)
	}

	return existing, nil
}
