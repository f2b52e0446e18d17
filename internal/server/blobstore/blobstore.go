// Package blobstore stores uploaded file contents under generated keys.
// Metadata lives in the database; this package only moves bytes.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/patientvault/internal/filex"
	"github.com/dmitrijs2005/patientvault/internal/server/config"
	"github.com/google/uuid"
)

// Store is a flat key/value store for file contents.
type Store interface {
	// Put stores r and returns the generated key.
	Put(ctx context.Context, patientID, name, contentType string, r io.Reader, size int64) (string, error)
	// Open returns the content for key; common.ErrorNotFound when absent.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

var now = time.Now

// NewKey builds patient_files/<patientID>/<unix ts>_<uuid>_<basename>.
func NewKey(patientID, name string) string {
	return fmt.Sprintf("patient_files/%s/%d_%s_%s", patientID, now().Unix(), uuid.NewString(), filex.BaseName(name))
}

// New builds the Store selected by cfg.BlobBackend.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.BlobBackend {
	case config.BlobBackendLocal, "":
		return NewLocalStore(cfg.BlobRoot)
	case config.BlobBackendS3:
		return NewS3Store(ctx, S3Options{
			User:         cfg.S3RootUser,
			Password:     cfg.S3RootPassword,
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
		})
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}
