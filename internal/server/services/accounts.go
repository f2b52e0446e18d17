package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/patientvault/internal/common"
	"github.com/dmitrijs2005/patientvault/internal/cryptox"
	"github.com/dmitrijs2005/patientvault/internal/dbx"
	"github.com/dmitrijs2005/patientvault/internal/logging"
	"github.com/dmitrijs2005/patientvault/internal/server/auth"
	"github.com/dmitrijs2005/patientvault/internal/server/models"
	"github.com/dmitrijs2005/patientvault/internal/server/repositories/repomanager"
)

// LoginResult carries what the transport needs to start a session.
// RememberToken is empty unless one was requested.
type LoginResult struct {
	Patient       *models.Patient
	SessionToken  string
	RememberToken string
}

// NewPatient is the input for administrative signup.
type NewPatient struct {
	UserName      string
	Password      []byte
	Name          string
	DOB           *time.Time
	ContactNumber string
}

// AccountService starts and ends patient sessions.
type AccountService struct {
	db              dbx.TxRunner
	repomanager     repomanager.RepositoryManager
	tokens          *TokenService
	jwtSecret       []byte
	sessionValidity time.Duration
	log             logging.Logger
}

func NewAccountService(db dbx.TxRunner, m repomanager.RepositoryManager, tokens *TokenService,
	secret string, sessionValidity time.Duration, log logging.Logger) *AccountService {
	return &AccountService{
		db:              db,
		repomanager:     m,
		tokens:          tokens,
		jwtSecret:       []byte(secret),
		sessionValidity: sessionValidity,
		log:             log.With("module", "accounts"),
	}
}

// IssueSession signs a session token for p and, when remember is set,
// rotates the patient's remember-me token.
func (s *AccountService) IssueSession(ctx context.Context, p *models.Patient, remember bool) (*LoginResult, error) {
	session, err := auth.GenerateToken(p.ID, s.jwtSecret, s.sessionValidity)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}

	res := &LoginResult{Patient: p, SessionToken: session}
	if remember {
		raw, err := s.tokens.Issue(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		res.RememberToken = raw
	}
	return res, nil
}

// PasswordLogin authenticates an administratively created account. It never
// issues a remember-me token.
func (s *AccountService) PasswordLogin(ctx context.Context, userName string, password []byte) (*LoginResult, error) {
	db := s.db.DB()
	user, err := s.repomanager.Users(db).GetUserByLogin(ctx, strings.TrimSpace(userName))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}
	if len(user.PasswordHash) == 0 {
		return nil, common.ErrorUnauthorized
	}

	ok, err := cryptox.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		s.log.Error(ctx, "stored password hash is unusable", "user_id", user.ID, "error", err)
		return nil, common.ErrorUnauthorized
	}
	if !ok {
		return nil, common.ErrorUnauthorized
	}

	p, err := s.repomanager.Patients(db).GetByUserID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}
	return s.IssueSession(ctx, p, false)
}

// CreatePatientAccount registers a password-protected user with its patient
// row in one transaction.
func (s *AccountService) CreatePatientAccount(ctx context.Context, in NewPatient) (*models.Patient, error) {
	userName := strings.TrimSpace(in.UserName)
	if userName == "" {
		return nil, fmt.Errorf("%w: username is required", common.ErrorValidation)
	}
	if len(in.Password) == 0 {
		return nil, fmt.Errorf("%w: password is required", common.ErrorValidation)
	}

	var patient *models.Patient
	err := s.db.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		users := s.repomanager.Users(tx)
		if _, err := users.GetUserByLogin(ctx, userName); err == nil {
			return fmt.Errorf("%w: username %q is taken", common.ErrorValidation, userName)
		} else if !errors.Is(err, common.ErrorNotFound) {
			return err
		}

		user, err := users.Create(ctx, &models.User{
			UserName:     userName,
			PasswordHash: cryptox.HashPassword(in.Password),
		})
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}

		p := &models.Patient{UserID: user.ID, Name: strings.TrimSpace(in.Name), DOB: in.DOB}
		if c := strings.TrimSpace(in.ContactNumber); c != "" {
			p.ContactNumber = &c
		}
		patient, err = s.repomanager.Patients(tx).GetOrCreateForUser(ctx, p)
		if err != nil {
			return fmt.Errorf("create patient: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "patient account created", "patient_id", patient.ID)
	return patient, nil
}

// Authenticate resolves the patient behind the presented cookies. A valid
// session wins; otherwise a valid remember-me token yields a fresh session,
// returned in LoginResult.SessionToken. Without either the result is
// common.ErrorUnauthorized.
func (s *AccountService) Authenticate(ctx context.Context, session, remember string) (*LoginResult, error) {
	if session != "" {
		id, err := auth.GetPatientIDFromToken(session, s.jwtSecret)
		if err == nil {
			p, err := s.repomanager.Patients(s.db.DB()).GetByID(ctx, id)
			if err == nil {
				return &LoginResult{Patient: p}, nil
			}
			if !errors.Is(err, common.ErrorNotFound) {
				return nil, err
			}
		}
	}

	p, ok, err := s.tokens.Resolve(ctx, remember)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrorUnauthorized
	}

	s.log.Debug(ctx, "session restored from remember token", "patient_id", p.ID)
	return s.IssueSession(ctx, p, false)
}

// Logout revokes the patient's remember-me token.
func (s *AccountService) Logout(ctx context.Context, patientID string) error {
	if err := s.tokens.Revoke(ctx, patientID); err != nil && !errors.Is(err, common.ErrorNotFound) {
		return err
	}
	return nil
}
