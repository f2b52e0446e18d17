// Package services contains server-side business logic: remember-me tokens,
// identity resolution, record management, archive export and accounts.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/patientvault/internal/common"
	"github.com/dmitrijs2005/patientvault/internal/cryptox"
	"github.com/dmitrijs2005/patientvault/internal/dbx"
	"github.com/dmitrijs2005/patientvault/internal/server/models"
	"github.com/dmitrijs2005/patientvault/internal/server/repositories/repomanager"
)

const (
	rememberTokenPurpose = "remember_token"
	rememberTokenBytes   = 32
)

// TokenService issues opaque remember-me tokens. Only a keyed hash of each
// token is stored, one per patient; issuing a new token replaces the old one.
type TokenService struct {
	db          dbx.TxRunner
	repomanager repomanager.RepositoryManager
	secret      []byte
}

func NewTokenService(db dbx.TxRunner, m repomanager.RepositoryManager, secret string) *TokenService {
	return &TokenService{db: db, repomanager: m, secret: []byte(secret)}
}

// Hash is the deterministic, non-reversible digest stored for raw.
func (s *TokenService) Hash(raw string) string {
	return cryptox.KeyedHash(s.secret, rememberTokenPurpose, raw)
}

// Issue generates a fresh token for patientID, stores its hash and returns
// the raw value. The raw token is not retrievable afterwards.
func (s *TokenService) Issue(ctx context.Context, patientID string) (string, error) {
	raw, err := common.MakeRandURLToken(rememberTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	h := s.Hash(raw)

	if err := s.repomanager.Patients(s.db.DB()).SetRememberTokenHash(ctx, patientID, &h); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return raw, nil
}

// Resolve maps a presented token to its patient. Unknown or empty tokens
// return ok=false with a nil error.
func (s *TokenService) Resolve(ctx context.Context, raw string) (*models.Patient, bool, error) {
	if raw == "" {
		return nil, false, nil
	}

	p, err := s.repomanager.Patients(s.db.DB()).GetByRememberTokenHash(ctx, s.Hash(raw))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return p, true, nil
}

// Revoke clears the stored hash so the outstanding token stops resolving.
func (s *TokenService) Revoke(ctx context.Context, patientID string) error {
	return s.repomanager.Patients(s.db.DB()).SetRememberTokenHash(ctx, patientID, nil)
}
