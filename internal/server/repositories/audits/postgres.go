// Package audits stores audit records in PostgreSQL. Client supplied fields
// are kept verbatim in a JSONB column next to the server owned columns.
package audits

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/auditrack/internal/common"
	"github.com/dmitrijs2005/auditrack/internal/dbx"
	"github.com/dmitrijs2005/auditrack/internal/server/models"
)

const slotConstraint = "audits_auditor_sector_day_key"

const selectColumns = `SELECT id, sector, audit_date, auditor, fields, created_at, updated_at FROM audits`

// PostgresRepository implements Repository over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts audit and fills the timestamps. A second audit for the same
// (auditor, sector, day) fails with common.ErrAuditConflict.
func (r *PostgresRepository) Create(ctx context.Context, audit *models.Audit) (*models.Audit, error) {
	fields, err := encodeFields(audit.Fields)
	if err != nil {
		return nil, err
	}

	query :=
		`INSERT INTO audits (id, sector, audit_date, auditor, fields)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at
		 `

	err = r.db.QueryRowContext(ctx, query,
		audit.ID, audit.Sector, audit.Date.Time(), audit.Auditor, fields).Scan(&audit.CreatedAt, &audit.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, slotConstraint) {
			return nil, common.ErrAuditConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return audit, nil
}

// FindBySlot returns the audit auditor filed for sector on day, or
// common.ErrorNotFound.
func (r *PostgresRepository) FindBySlot(ctx context.Context, auditor, sector string, day models.Day) (*models.Audit, error) {
	query := selectColumns + `
		 WHERE auditor = $1 AND sector = $2 AND audit_date = $3
		 `
	return scanOne(r.db.QueryRowContext(ctx, query, auditor, sector, day.Time()))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Audit, error) {
	query := selectColumns + `
		 WHERE id = $1
		 `
	return scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByIDForUpdate is GetByID holding a row lock until the transaction ends.
func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Audit, error) {
	query := selectColumns + `
		 WHERE id = $1
		 FOR UPDATE
		 `
	return scanOne(r.db.QueryRowContext(ctx, query, id))
}

// List returns audits newest day first. An empty auditor lists everyone's.
func (r *PostgresRepository) List(ctx context.Context, auditor string) ([]*models.Audit, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if auditor == "" {
		query := selectColumns + `
		 ORDER BY audit_date DESC, created_at DESC
		 `
		rows, err = r.db.QueryContext(ctx, query)
	} else {
		query := selectColumns + `
		 WHERE auditor = $1
		 ORDER BY audit_date DESC, created_at DESC
		 `
		rows, err = r.db.QueryContext(ctx, query, auditor)
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Audit, 0)
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// Update writes sector and fields back and bumps updated_at. Auditor and
// date are never rewritten.
func (r *PostgresRepository) Update(ctx context.Context, audit *models.Audit) error {
	fields, err := encodeFields(audit.Fields)
	if err != nil {
		return err
	}

	query :=
		`UPDATE audits SET sector = $2, fields = $3, updated_at = now()
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, audit.ID, audit.Sector, fields)
	if err != nil {
		if dbx.IsUniqueViolation(err, slotConstraint) {
			return common.ErrAuditConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query :=
		`DELETE FROM audits
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.Audit, error) {
	var (
		a      models.Audit
		date   time.Time
		fields []byte
	)
	if err := s.Scan(&a.ID, &a.Sector, &date, &a.Auditor, &fields, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Date = models.DayOf(date, time.UTC)
	a.Fields = map[string]any{}
	if len(fields) > 0 {
		if err := models.UnmarshalFields(fields, &a.Fields); err != nil {
			return nil, fmt.Errorf("decode fields: %w", err)
		}
	}
	return &a, nil
}

func scanOne(row *sql.Row) (*models.Audit, error) {
	a, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func encodeFields(fields map[string]any) ([]byte, error) {
	if fields == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	return b, nil
}
