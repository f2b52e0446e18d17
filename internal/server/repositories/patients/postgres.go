// Package patients provides the PostgreSQL-backed repository for patient
// profiles, including the remember-me token hash column.
package patients

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/patientvault/internal/common"
	"github.com/dmitrijs2005/patientvault/internal/dbx"
	"github.com/dmitrijs2005/patientvault/internal/server/models"
)

const columns = `id, user_id, name, dob, contact_number, aadhaar_hash, masked_aadhaar, remember_token_hash, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanPatient(s scanner) (*models.Patient, error) {
	p := &models.Patient{}
	err := s.Scan(&p.ID, &p.UserID, &p.Name, &p.DOB, &p.ContactNumber,
		&p.AadhaarHash, &p.MaskedAadhaar, &p.RememberTokenHash, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetOrCreateForUser inserts patient for patient.UserID unless one already
// exists, in which case the existing row is returned unchanged.
func (r *PostgresRepository) GetOrCreateForUser(ctx context.Context, patient *models.Patient) (*models.Patient, error) {
	query := `
		INSERT INTO patients (user_id, name, dob, aadhaar_hash, masked_aadhaar)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING ` + columns

	return scanPatient(r.db.QueryRowContext(ctx, query,
		patient.UserID, patient.Name, patient.DOB, patient.AadhaarHash, patient.MaskedAadhaar))
}

// GetByID returns common.ErrorNotFound when no such patient exists.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Patient, error) {
	query := `SELECT ` + columns + ` FROM patients WHERE id = $1`
	return scanPatient(r.db.QueryRowContext(ctx, query, id))
}

// GetByUserID returns common.ErrorNotFound when the user has no patient profile.
func (r *PostgresRepository) GetByUserID(ctx context.Context, userID string) (*models.Patient, error) {
	query := `SELECT ` + columns + ` FROM patients WHERE user_id = $1`
	return scanPatient(r.db.QueryRowContext(ctx, query, userID))
}

// GetByRememberTokenHash returns common.ErrorNotFound when no patient holds hash.
func (r *PostgresRepository) GetByRememberTokenHash(ctx context.Context, hash string) (*models.Patient, error) {
	query := `SELECT ` + columns + ` FROM patients WHERE remember_token_hash = $1`
	return scanPatient(r.db.QueryRowContext(ctx, query, hash))
}

// BackfillDemographics fills name, dob, aadhaar_hash and masked_aadhaar only
// where they are currently empty. Present values are never overwritten.
func (r *PostgresRepository) BackfillDemographics(ctx context.Context, id string, d models.Demographics) (*models.Patient, error) {
	query := `
		UPDATE patients SET
			name = CASE WHEN name = '' THEN $2 ELSE name END,
			dob = COALESCE(dob, $3),
			aadhaar_hash = COALESCE(aadhaar_hash, NULLIF($4, '')),
			masked_aadhaar = COALESCE(masked_aadhaar, NULLIF($5, ''))
		WHERE id = $1
		RETURNING ` + columns

	return scanPatient(r.db.QueryRowContext(ctx, query, id, d.Name, d.DOB, d.AadhaarHash, d.MaskedAadhaar))
}

// SetRememberTokenHash overwrites the stored hash; nil clears it.
func (r *PostgresRepository) SetRememberTokenHash(ctx context.Context, id string, hash *string) error {
	query := `UPDATE patients SET remember_token_hash = $2 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, hash)
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
