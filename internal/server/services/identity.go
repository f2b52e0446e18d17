package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/patientvault/internal/common"
	"github.com/dmitrijs2005/patientvault/internal/dbx"
	"github.com/dmitrijs2005/patientvault/internal/logging"
	"github.com/dmitrijs2005/patientvault/internal/server/identity"
	"github.com/dmitrijs2005/patientvault/internal/server/models"
	"github.com/dmitrijs2005/patientvault/internal/server/repositories/repomanager"
)

const (
	maxIdentifierLen = 12
	maxOTPLen        = 10
	qrFallbackName   = "QR User"
)

var fallbackDOB = time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

// IdentityService turns a verified identifier into a patient account.
type IdentityService struct {
	db          dbx.TxRunner
	repomanager repomanager.RepositoryManager
	dataset     *identity.Dataset
	provider    identity.Provider
	log         logging.Logger
}

func NewIdentityService(db dbx.TxRunner, m repomanager.RepositoryManager, dataset *identity.Dataset,
	provider identity.Provider, log logging.Logger) *IdentityService {
	return &IdentityService{
		db:          db,
		repomanager: m,
		dataset:     dataset,
		provider:    provider,
		log:         log.With("module", "identity"),
	}
}

// ResolvePatient returns the patient for id, creating the user and patient
// rows on first sight and backfilling empty profile fields afterwards.
// Repeated calls with the same id return the same patient.
func (s *IdentityService) ResolvePatient(ctx context.Context, id string, d models.Demographics) (*models.Patient, error) {
	d.AadhaarHash = identity.HashIdentifier(id)
	d.MaskedAadhaar = identity.MaskIdentifier(id)
	handle := identity.AccountHandle(id)

	var patient *models.Patient
	err := s.db.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		user, err := s.repomanager.Users(tx).GetOrCreate(ctx, handle)
		if err != nil {
			return fmt.Errorf("get or create user: %w", err)
		}

		repo := s.repomanager.Patients(tx)
		p, err := repo.GetOrCreateForUser(ctx, &models.Patient{
			UserID:        user.ID,
			Name:          d.Name,
			DOB:           d.DOB,
			AadhaarHash:   &d.AadhaarHash,
			MaskedAadhaar: &d.MaskedAadhaar,
		})
		if err != nil {
			return fmt.Errorf("get or create patient: %w", err)
		}

		if needsBackfill(p) {
			p, err = repo.BackfillDemographics(ctx, p.ID, d)
			if err != nil {
				return fmt.Errorf("backfill patient: %w", err)
			}
		}
		patient = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return patient, nil
}

func needsBackfill(p *models.Patient) bool {
	return p.Name == "" || p.DOB == nil || p.AadhaarHash == nil || p.MaskedAadhaar == nil
}

func normalizeIdentifier(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: identifier is required", common.ErrorValidation)
	}
	if len(id) > maxIdentifierLen {
		return "", fmt.Errorf("%w: identifier is too long", common.ErrorValidation)
	}
	return id, nil
}

// RequestOTP asks the provider to send a code for an identifier known to the
// reference dataset.
func (s *IdentityService) RequestOTP(ctx context.Context, id string) (*identity.OTPRequest, error) {
	id, err := normalizeIdentifier(id)
	if err != nil {
		return nil, err
	}
	if _, ok := s.dataset.Lookup(id); !ok {
		return nil, identity.ErrIdentifierUnknown
	}

	res, err := s.provider.RequestOTP(ctx, id)
	if err != nil {
		s.log.Warn(ctx, "otp request failed", "error", err)
		return nil, fmt.Errorf("%w: %v", identity.ErrProviderUnavailable, err)
	}
	if res.Status != identity.StatusOK {
		return nil, fmt.Errorf("%w: %s", identity.ErrProviderRejected, res.Message)
	}
	return res, nil
}

// VerifyOTP checks the code with the provider and resolves the patient.
func (s *IdentityService) VerifyOTP(ctx context.Context, id, txnID, code string) (*models.Patient, error) {
	id, err := normalizeIdentifier(id)
	if err != nil {
		return nil, err
	}
	txnID, code = strings.TrimSpace(txnID), strings.TrimSpace(code)
	if txnID == "" || code == "" {
		return nil, fmt.Errorf("%w: transaction id and otp are required", common.ErrorValidation)
	}
	if len(code) > maxOTPLen {
		return nil, fmt.Errorf("%w: otp is too long", common.ErrorValidation)
	}

	res, err := s.provider.VerifyOTP(ctx, id, txnID, code)
	if err != nil {
		s.log.Warn(ctx, "otp verify failed", "error", err)
		return nil, fmt.Errorf("%w: %v", identity.ErrProviderUnavailable, err)
	}
	if res.Status != identity.StatusOK {
		return nil, fmt.Errorf("%w: %s", identity.ErrOTPMismatch, res.Message)
	}

	return s.ResolvePatient(ctx, id, s.demographics(id, "user_"+identity.Last4(id)))
}

// LoginWithQR decodes the scanned payload and resolves the patient. Payloads
// without an identifier map to a shared sentinel account.
func (s *IdentityService) LoginWithQR(ctx context.Context, text string) (*models.Patient, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty QR payload", common.ErrorValidation)
	}
	id := identity.ExtractIdentifier(text)
	return s.ResolvePatient(ctx, id, s.demographics(id, qrFallbackName))
}

func (s *IdentityService) demographics(id, fallbackName string) models.Demographics {
	d := models.Demographics{Name: fallbackName}
	if rec, ok := s.dataset.Lookup(id); ok {
		if rec.Name != "" {
			d.Name = rec.Name
		}
		d.DOB = rec.BirthDate()
	}
	if d.DOB == nil {
		dob := fallbackDOB
		d.DOB = &dob
	}
	return d
}
