package patients

import (
	"context"

	"github.com/dmitrijs2005/patientvault/internal/server/models"
)

type Repository interface {
	GetOrCreateForUser(ctx context.Context, patient *models.Patient) (*models.Patient, error)
	GetByID(ctx context.Context, id string) (*models.Patient, error)
	GetByUserID(ctx context.Context, userID string) (*models.Patient, error)
	GetByRememberTokenHash(ctx context.Context, hash string) (*models.Patient, error)
	BackfillDemographics(ctx context.Context, id string, d models.Demographics) (*models.Patient, error)
	SetRememberTokenHash(ctx context.Context, id string, hash *string) error
}
