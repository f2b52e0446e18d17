package admin

import (
	"context"
	"os"

	"github.com/dmitrijs2005/patientvault/internal/dbx"
	"github.com/dmitrijs2005/patientvault/internal/logging"
	"github.com/dmitrijs2005/patientvault/internal/server/models"
	"github.com/dmitrijs2005/patientvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/patientvault/internal/server/services"
)

// Accounts creates password-protected patient accounts.
type Accounts interface {
	CreatePatientAccount(ctx context.Context, in services.NewPatient) (*models.Patient, error)
}

// Backend is what the admin commands operate on.
type Backend struct {
	Migrate  func(ctx context.Context) error
	Accounts Accounts
	Close    func() error
}

// Opener connects a Backend to the database at dsn.
type Opener func(ctx context.Context, dsn string) (*Backend, error)

// OpenPostgres is the production Opener.
func OpenPostgres(ctx context.Context, dsn string) (*Backend, error) {
	db, err := repomanager.OpenPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger := logging.New(logging.FormatText, os.Stderr)
	tx := dbx.NewSQLRunner(db)
	// Sessions are never issued here, so the token secret stays empty.
	tokens := services.NewTokenService(tx, rm, "")
	accounts := services.NewAccountService(tx, rm, tokens, "", 0, logger)

	return &Backend{
		Migrate:  func(ctx context.Context) error { return rm.RunMigrations(ctx, db) },
		Accounts: accounts,
		Close:    db.Close,
	}, nil
}
