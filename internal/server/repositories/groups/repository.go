package groups

import (
	"context"

	"github.com/dmitrijs2005/patientvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, group *models.RecordGroup) (*models.RecordGroup, error)
	GetByID(ctx context.Context, id string) (*models.RecordGroup, error)
	GetByName(ctx context.Context, patientID, name string) (*models.RecordGroup, error)
	ListByPatient(ctx context.Context, patientID string) ([]*models.RecordGroup, error)
	Delete(ctx context.Context, id string) error
}
