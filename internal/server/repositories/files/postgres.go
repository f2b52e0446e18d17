// Package files provides the PostgreSQL-backed repository for file metadata.
package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/patientvault/internal/common"
	"github.com/dmitrijs2005/patientvault/internal/dbx"
	"github.com/dmitrijs2005/patientvault/internal/server/models"
)

const columns = `id, patient_id, group_id, title, description, original_name, content_type, size, storage_key, uploaded_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner, f *models.File) error {
	return s.Scan(&f.ID, &f.PatientID, &f.GroupID, &f.Title, &f.Description,
		&f.OriginalName, &f.ContentType, &f.Size, &f.StorageKey, &f.UploadedAt)
}

// PostgresRepository implements file metadata storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts file and fills its generated ID and UploadedAt.
func (r *PostgresRepository) Create(ctx context.Context, file *models.File) (*models.File, error) {
	query := `
		INSERT INTO files (patient_id, group_id, title, description, original_name, content_type, size, storage_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, uploaded_at
	`
	err := r.db.QueryRowContext(ctx, query,
		file.PatientID, file.GroupID, file.Title, file.Description,
		file.OriginalName, file.ContentType, file.Size, file.StorageKey,
	).Scan(&file.ID, &file.UploadedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return file, nil
}

// GetByID returns common.ErrorNotFound when no such file exists.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	query := `SELECT ` + columns + ` FROM files WHERE id = $1`

	f := &models.File{}
	if err := scanFile(r.db.QueryRowContext(ctx, query, id), f); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

// List returns patientID's files matching filter, newest first.
func (r *PostgresRepository) List(ctx context.Context, patientID string, filter models.FileFilter) ([]*models.File, error) {
	var b strings.Builder
	args := []any{patientID}

	b.WriteString(`SELECT ` + columns + ` FROM files WHERE patient_id = $1`)

	switch {
	case filter.GroupID != "":
		args = append(args, filter.GroupID)
		fmt.Fprintf(&b, ` AND group_id = $%d`, len(args))
	case filter.UngroupedOnly:
		b.WriteString(` AND group_id IS NULL`)
	}

	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		fmt.Fprintf(&b, ` AND title ILIKE $%d`, len(args))
	}

	b.WriteString(` ORDER BY uploaded_at DESC`)

	rows, err := r.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		var f models.File
		if err := scanFile(rows, &f); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// SetGroup moves the file into groupID; nil detaches it.
func (r *PostgresRepository) SetGroup(ctx context.Context, id string, groupID *string) error {
	query := `UPDATE files SET group_id = $2 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, groupID)
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

// ClearGroup detaches every member of groupID and returns how many were detached.
func (r *PostgresRepository) ClearGroup(ctx context.Context, groupID string) (int64, error) {
	query := `UPDATE files SET group_id = NULL WHERE group_id = $1`

	res, err := r.db.ExecContext(ctx, query, groupID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

// Delete removes the metadata row. The blob is the caller's concern.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM files WHERE id = $1`

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

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
