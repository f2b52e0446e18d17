// Package httpserver exposes the patient-facing JSON API over echo.
package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/patientvault/internal/logging"
	"github.com/dmitrijs2005/patientvault/internal/server/identity"
	"github.com/dmitrijs2005/patientvault/internal/server/metrics"
	"github.com/dmitrijs2005/patientvault/internal/server/models"
	"github.com/dmitrijs2005/patientvault/internal/server/services"
	"github.com/labstack/echo/v4"
)

const (
	readTimeout     = 60 * time.Second
	writeTimeout    = 120 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Accounts starts and ends sessions.
type Accounts interface {
	IssueSession(ctx context.Context, p *models.Patient, remember bool) (*services.LoginResult, error)
	PasswordLogin(ctx context.Context, userName string, password []byte) (*services.LoginResult, error)
	Authenticate(ctx context.Context, session, remember string) (*services.LoginResult, error)
	Logout(ctx context.Context, patientID string) error
}

// Identity verifies identifiers and resolves patients.
type Identity interface {
	RequestOTP(ctx context.Context, id string) (*identity.OTPRequest, error)
	VerifyOTP(ctx context.Context, id, txnID, code string) (*models.Patient, error)
	LoginWithQR(ctx context.Context, text string) (*models.Patient, error)
}

// Records manages a patient's groups and files.
type Records interface {
	CreateGroup(ctx context.Context, patientID, name string) (*models.RecordGroup, error)
	CreateGroupWithFiles(ctx context.Context, patientID, name string, fileIDs []string, uploads []services.Upload) (*models.RecordGroup, error)
	AddToGroup(ctx context.Context, patientID, groupID string, fileIDs []string, uploads []services.Upload) (int, error)
	UploadFile(ctx context.Context, patientID string, u services.Upload, opts services.UploadOptions) (*models.File, error)
	BatchUpload(ctx context.Context, patientID string, uploads []services.Upload, opts services.UploadOptions) ([]*models.File, error)
	MoveToGroup(ctx context.Context, patientID, fileID, groupID string) error
	RemoveFromGroup(ctx context.Context, patientID, fileID string) error
	DeleteFile(ctx context.Context, patientID, fileID string) error
	DeleteGroup(ctx context.Context, patientID, groupID string) error
	DeleteAllInGroup(ctx context.Context, patientID, groupID string) (int, error)
	DeleteAllUngrouped(ctx context.Context, patientID string) (int, error)
	ListGroups(ctx context.Context, patientID string) ([]*models.RecordGroup, error)
	ListFiles(ctx context.Context, patientID string, filter models.FileFilter) ([]*models.File, error)
	OpenFile(ctx context.Context, patientID, fileID string) (*models.File, io.ReadCloser, error)
}

// Archives builds zip exports.
type Archives interface {
	ExportGroup(ctx context.Context, patientID, groupID string) (*services.Archive, error)
	ExportUngrouped(ctx context.Context, patientID string) (*services.Archive, error)
}

// Options carries transport settings.
type Options struct {
	Address          string
	MaxUploadBytes   int64
	RememberValidity time.Duration
	SessionValidity  time.Duration
	SecureCookies    bool
	DebugOTP         bool
}

type HTTPServer struct {
	opts     Options
	accounts Accounts
	identity Identity
	records  Records
	archives Archives
	metrics  *metrics.Metrics
	logger   logging.Logger
	echo     *echo.Echo
}

func NewHTTPServer(opts Options, l logging.Logger, mx *metrics.Metrics,
	accounts Accounts, ident Identity, records Records, archives Archives) *HTTPServer {
	s := &HTTPServer{
		opts:     opts,
		accounts: accounts,
		identity: ident,
		records:  records,
		archives: archives,
		metrics:  mx,
		logger:   l.With("module", "http_server"),
	}
	s.echo = s.newEcho()
	return s
}

// Handler returns the configured router.
func (s *HTTPServer) Handler() http.Handler {
	return s.echo
}

func (s *HTTPServer) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler

	e.Use(requestID())
	e.Use(s.recovery())
	e.Use(s.requestLogger())
	e.Use(s.observe())
	e.Use(bodyLimit(s.opts.MaxUploadBytes))

	s.routes(e)
	return e
}

func (s *HTTPServer) routes(e *echo.Echo) {
	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	acc := e.Group("/accounts")
	acc.POST("/otp/request", s.handleOTPRequest)
	acc.POST("/otp/verify", s.handleOTPVerify)
	acc.POST("/qr/verify", s.handleQRVerify)
	acc.POST("/login", s.handlePasswordLogin)
	acc.POST("/logout", s.handleLogout, s.authenticate)

	api := e.Group("/api", s.authenticate)
	api.GET("/me", s.handleMe)
	api.GET("/records", s.handleListRecords)
	api.GET("/records/ungrouped", s.handleListUngrouped)

	api.POST("/files", s.handleUploadFile)
	api.POST("/files/batch", s.handleBatchUpload)
	api.GET("/files/:id/download", s.handleDownloadFile)
	api.DELETE("/files/:id", s.handleDeleteFile)
	api.POST("/files/:id/move", s.handleMoveFile)
	api.POST("/files/:id/ungroup", s.handleUngroupFile)

	api.POST("/groups", s.handleCreateGroup)
	api.POST("/groups/:id/files", s.handleAddToGroup)
	api.DELETE("/groups/:id", s.handleDeleteGroup)
	api.DELETE("/groups/:id/files", s.handleDeleteAllInGroup)
	api.GET("/groups/:id/download", s.handleDownloadGroup)

	api.GET("/ungrouped/download", s.handleDownloadUngrouped)
	api.DELETE("/ungrouped", s.handleDeleteAllUngrouped)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Address,
		Handler:      s.echo,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "http shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.opts.Address)

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		return nil
	}
	return err
}

func (s *HTTPServer) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
