package patients

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/patientvault/internal/common"
	"github.com/dmitrijs2005/patientvault/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var patientCols = []string{"id", "user_id", "name", "dob", "contact_number", "aadhaar_hash", "masked_aadhaar", "remember_token_hash", "created_at"}

const selectCols = `id,\s*user_id,\s*name,\s*dob,\s*contact_number,\s*aadhaar_hash,\s*masked_aadhaar,\s*remember_token_hash,\s*created_at`

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresRepository(db), mock, db
}

func strPtr(s string) *string { return &s }

func TestGetOrCreateForUser_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	dob := time.Date(1985, 4, 12, 0, 0, 0, 0, time.UTC)
	q := `(?s)^\s*INSERT\s+INTO\s+patients\s*\(user_id,\s*name,\s*dob,\s*aadhaar_hash,\s*masked_aadhaar\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5\)\s*ON\s+CONFLICT\s*\(user_id\)\s*DO\s+UPDATE\s+SET\s+user_id\s*=\s*EXCLUDED\.user_id\s*RETURNING\s+` + selectCols + `$`

	mock.ExpectQuery(q).
		WithArgs("u-1", "Asha", dob, "h", "xxxx-xxxx-1234").
		WillReturnRows(sqlmock.NewRows(patientCols).
			AddRow("p-1", "u-1", "Asha", dob, nil, "h", "xxxx-xxxx-1234", nil, time.Now()))

	got, err := repo.GetOrCreateForUser(context.Background(), &models.Patient{
		UserID: "u-1", Name: "Asha", DOB: &dob, AadhaarHash: strPtr("h"), MaskedAadhaar: strPtr("xxxx-xxxx-1234"),
	})
	require.NoError(t, err)
	assert.Equal(t, "p-1", got.ID)
	require.NotNil(t, got.DOB)
	assert.True(t, got.DOB.Equal(dob))
	assert.Nil(t, got.ContactNumber)
	assert.Nil(t, got.RememberTokenHash)
	require.NotNil(t, got.AadhaarHash)
	assert.Equal(t, "h", *got.AadhaarHash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrCreateForUser_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+patients`).WillReturnError(errors.New("unique violation"))

	_, err := repo.GetOrCreateForUser(context.Background(), &models.Patient{UserID: "u-1", Name: "x"})
	require.Error(t, err)
	assert.Regexp(t, regexp.MustCompile(`db error: .*unique violation`), err.Error())
}

func TestGetters(t *testing.T) {
	tests := []struct {
		name  string
		where string
		arg   string
		call  func(r *PostgresRepository, arg string) (*models.Patient, error)
	}{
		{"by id", "id", "p-1", func(r *PostgresRepository, a string) (*models.Patient, error) {
			return r.GetByID(context.Background(), a)
		}},
		{"by user id", "user_id", "u-1", func(r *PostgresRepository, a string) (*models.Patient, error) {
			return r.GetByUserID(context.Background(), a)
		}},
		{"by token hash", "remember_token_hash", "abc", func(r *PostgresRepository, a string) (*models.Patient, error) {
			return r.GetByRememberTokenHash(context.Background(), a)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name+" found", func(t *testing.T) {
			repo, mock, db := newRepoWithMock(t)
			defer db.Close()

			q := `(?s)^SELECT\s+` + selectCols + `\s+FROM\s+patients\s+WHERE\s+` + tt.where + `\s*=\s*\$1$`
			mock.ExpectQuery(q).WithArgs(tt.arg).
				WillReturnRows(sqlmock.NewRows(patientCols).
					AddRow("p-1", "u-1", "Asha", nil, "555", nil, nil, "abc", time.Now()))

			got, err := tt.call(repo, tt.arg)
			require.NoError(t, err)
			assert.Equal(t, "p-1", got.ID)
			assert.Nil(t, got.DOB)
			require.NotNil(t, got.ContactNumber)
			assert.Equal(t, "555", *got.ContactNumber)
		})

		t.Run(tt.name+" not found", func(t *testing.T) {
			repo, mock, db := newRepoWithMock(t)
			defer db.Close()

			mock.ExpectQuery(`FROM\s+patients`).WithArgs(tt.arg).WillReturnError(sql.ErrNoRows)

			_, err := tt.call(repo, tt.arg)
			assert.ErrorIs(t, err, common.ErrorNotFound)
		})

		t.Run(tt.name+" db error", func(t *testing.T) {
			repo, mock, db := newRepoWithMock(t)
			defer db.Close()

			mock.ExpectQuery(`FROM\s+patients`).WithArgs(tt.arg).WillReturnError(errors.New("boom"))

			_, err := tt.call(repo, tt.arg)
			require.Error(t, err)
			assert.NotErrorIs(t, err, common.ErrorNotFound)
			assert.Contains(t, err.Error(), "db error")
		})
	}
}

func TestBackfillDemographics(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	dob := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	q := `(?s)^\s*UPDATE\s+patients\s+SET\s+name\s*=\s*CASE\s+WHEN\s+name\s*=\s*''\s+THEN\s+\$2\s+ELSE\s+name\s+END,\s*dob\s*=\s*COALESCE\(dob,\s*\$3\),\s*aadhaar_hash\s*=\s*COALESCE\(aadhaar_hash,\s*NULLIF\(\$4,\s*''\)\),\s*masked_aadhaar\s*=\s*COALESCE\(masked_aadhaar,\s*NULLIF\(\$5,\s*''\)\)\s+WHERE\s+id\s*=\s*\$1\s+RETURNING\s+` + selectCols + `$`

	mock.ExpectQuery(q).
		WithArgs("p-1", "Asha", dob, "h", "xxxx-xxxx-1234").
		WillReturnRows(sqlmock.NewRows(patientCols).
			AddRow("p-1", "u-1", "Existing Name", dob, nil, "h", "xxxx-xxxx-1234", nil, time.Now()))

	got, err := repo.BackfillDemographics(context.Background(), "p-1", models.Demographics{
		Name: "Asha", DOB: &dob, AadhaarHash: "h", MaskedAadhaar: "xxxx-xxxx-1234",
	})
	require.NoError(t, err)
	assert.Equal(t, "Existing Name", got.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetRememberTokenHash(t *testing.T) {
	q := `(?s)^UPDATE\s+patients\s+SET\s+remember_token_hash\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1$`

	t.Run("set", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectExec(q).WithArgs("p-1", "hash").WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, repo.SetRememberTokenHash(context.Background(), "p-1", strPtr("hash")))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("clear", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectExec(q).WithArgs("p-1", nil).WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, repo.SetRememberTokenHash(context.Background(), "p-1", nil))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing patient", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectExec(q).WithArgs("p-x", "hash").WillReturnResult(sqlmock.NewResult(0, 0))
		err := repo.SetRememberTokenHash(context.Background(), "p-x", strPtr("hash"))
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectExec(q).WithArgs("p-1", "hash").WillReturnError(errors.New("down"))
		err := repo.SetRememberTokenHash(context.Background(), "p-1", strPtr("hash"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db error: down")
	})
}
