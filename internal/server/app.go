// Package server wires the patientvault server: configuration, database,
// repositories, blob storage, services and the HTTP and gRPC transports.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/patientvault/internal/dbx"
	"github.com/dmitrijs2005/patientvault/internal/logging"
	"github.com/dmitrijs2005/patientvault/internal/server/blobstore"
	"github.com/dmitrijs2005/patientvault/internal/server/config"
	"github.com/dmitrijs2005/patientvault/internal/server/httpserver"
	"github.com/dmitrijs2005/patientvault/internal/server/identity"
	"github.com/dmitrijs2005/patientvault/internal/server/metrics"
	"github.com/dmitrijs2005/patientvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/patientvault/internal/server/services"

	gs "github.com/dmitrijs2005/patientvault/internal/server/grpc"
)

// Runner is a transport started by App.Run.
type Runner interface {
	Run(ctx context.Context) error
}

type App struct {
	config *config.Config
	logger logging.Logger
	db     io.Closer
	http   Runner
	grpc   Runner
}

// openDB is a seam for tests.
var openDB = repomanager.OpenPostgres

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.New(c.LogFormat, os.Stdout)

	db, err := openDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app, err := build(ctx, c, logger, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return app, nil
}

func build(ctx context.Context, c *config.Config, logger logging.Logger, db *sql.DB) (*App, error) {
	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		return nil, fmt.Errorf("repository manager error: %w", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	blobs, err := blobstore.New(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("blob store error: %w", err)
	}

	dataset, err := identity.LoadDataset(c.IdentityDatasetPath)
	if err != nil {
		return nil, fmt.Errorf("identity dataset error: %w", err)
	}
	if dataset.Len() == 0 {
		logger.Warn(ctx, "identity dataset is empty", "path", c.IdentityDatasetPath)
	}
	if c.DebugOTP {
		logger.Warn(ctx, "debug OTP mode is enabled, codes are returned to clients")
	}

	tx := dbx.NewSQLRunner(db)
	mx := metrics.New()
	provider := identity.NewStubProvider(c.SecretKey, c.DebugOTP)

	tokens := services.NewTokenService(tx, rm, c.SecretKey)
	accounts := services.NewAccountService(tx, rm, tokens, c.SecretKey, c.SessionValidityDuration, logger)
	ident := services.NewIdentityService(tx, rm, dataset, provider, logger)
	records := services.NewRecordService(tx, rm, blobs, logger, mx)
	archives := services.NewArchiveService(tx, rm, blobs, c.MaxArchiveBytes, logger, mx)

	hs := httpserver.NewHTTPServer(httpserver.Options{
		Address:          c.EndpointAddrHTTP,
		MaxUploadBytes:   c.MaxUploadBytes,
		RememberValidity: c.RememberTokenValidityDuration,
		SessionValidity:  c.SessionValidityDuration,
		SecureCookies:    c.SecureCookies,
		DebugOTP:         c.DebugOTP,
	}, logger, mx, accounts, ident, records, archives)

	grpcServer := gs.NewGRPCServer(c.EndpointAddrGRPC, logger, db.PingContext)

	return &App{config: c, logger: logger, db: db, http: hs, grpc: grpcServer}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// start runs r until it returns; a failing transport stops the whole app.
func (app *App) start(ctx context.Context, cancelFunc context.CancelFunc, name string, r Runner) {
	if err := r.Run(ctx); err != nil {
		app.logger.Error(ctx, "transport failed", "transport", name, "error", err)
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.start(ctx, cancelFunc, "grpc", app.grpc)
	}()
	go func() {
		defer wg.Done()
		app.start(ctx, cancelFunc, "http", app.http)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close failed", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
