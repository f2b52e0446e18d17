// Package groups provides the PostgreSQL-backed repository for record groups.
package groups

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/patientvault/internal/common"
	"github.com/dmitrijs2005/patientvault/internal/dbx"
	"github.com/dmitrijs2005/patientvault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, group *models.RecordGroup) (*models.RecordGroup, error) {
	query := `
		INSERT INTO record_groups (patient_id, name)
		VALUES ($1, $2)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, group.PatientID, group.Name).Scan(&group.ID, &group.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return group, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.RecordGroup, error) {
	query := `
		SELECT id, patient_id, name, created_at
		FROM record_groups
		WHERE id = $1
	`
	g := &models.RecordGroup{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&g.ID, &g.PatientID, &g.Name, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return g, nil
}

// GetByName returns the oldest group of patientID named exactly name.
// Names are not unique; common.ErrorNotFound when none matches.
func (r *PostgresRepository) GetByName(ctx context.Context, patientID, name string) (*models.RecordGroup, error) {
	query := `
		SELECT id, patient_id, name, created_at
		FROM record_groups
		WHERE patient_id = $1 AND name = $2
		ORDER BY created_at
		LIMIT 1
	`
	g := &models.RecordGroup{}
	err := r.db.QueryRowContext(ctx, query, patientID, name).Scan(&g.ID, &g.PatientID, &g.Name, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return g, nil
}

// ListByPatient returns the patient's groups, newest first.
func (r *PostgresRepository) ListByPatient(ctx context.Context, patientID string) ([]*models.RecordGroup, error) {
	query := `
		SELECT id, patient_id, name, created_at
		FROM record_groups
		WHERE patient_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.RecordGroup
	for rows.Next() {
		var g models.RecordGroup
		if err := rows.Scan(&g.ID, &g.PatientID, &g.Name, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// Delete removes the group row. Member files must be detached first.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM record_groups WHERE id = $1`

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
