package files

import (
	"context"

	"github.com/dmitrijs2005/patientvault/internal/server/models"
)

// Repository persists file metadata. Content lives in the blob store.
type Repository interface {
	Create(ctx context.Context, file *models.File) (*models.File, error)
	GetByID(ctx context.Context, id string) (*models.File, error)
	List(ctx context.Context, patientID string, filter models.FileFilter) ([]*models.File, error)
	SetGroup(ctx context.Context, id string, groupID *string) error
	ClearGroup(ctx context.Context, groupID string) (int64, error)
	Delete(ctx context.Context, id string) error
}
