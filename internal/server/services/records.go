package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/patientvault/internal/common"
	"github.com/dmitrijs2005/patientvault/internal/dbx"
	"github.com/dmitrijs2005/patientvault/internal/filex"
	"github.com/dmitrijs2005/patientvault/internal/logging"
	"github.com/dmitrijs2005/patientvault/internal/server/blobstore"
	"github.com/dmitrijs2005/patientvault/internal/server/metrics"
	"github.com/dmitrijs2005/patientvault/internal/server/models"
	"github.com/dmitrijs2005/patientvault/internal/server/repositories/files"
	"github.com/dmitrijs2005/patientvault/internal/server/repositories/groups"
	"github.com/dmitrijs2005/patientvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const defaultContentType = "application/octet-stream"

// Upload is one incoming file. Content is read exactly once.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// UploadOptions apply to every file of an upload request. NewGroupName
// takes precedence over GroupID.
type UploadOptions struct {
	Title        string
	Description  string
	GroupID      string
	NewGroupName string
}

// RecordService manages a patient's groups and files. Every operation is
// scoped to the acting patient: foreign groups and files are rejected with
// common.ErrorForbidden before anything changes.
type RecordService struct {
	db          dbx.TxRunner
	repomanager repomanager.RepositoryManager
	blobs       blobstore.Store
	log         logging.Logger
	metrics     *metrics.Metrics
}

func NewRecordService(db dbx.TxRunner, m repomanager.RepositoryManager, blobs blobstore.Store,
	log logging.Logger, mx *metrics.Metrics) *RecordService {
	return &RecordService{
		db:          db,
		repomanager: m,
		blobs:       blobs,
		log:         log.With("module", "records"),
		metrics:     mx,
	}
}

// --- ownership ---

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func ownedGroup(ctx context.Context, repo groups.Repository, patientID, groupID string) (*models.RecordGroup, error) {
	if !validID(groupID) {
		return nil, common.ErrorNotFound
	}
	g, err := repo.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.PatientID != patientID {
		return nil, common.ErrorForbidden
	}
	return g, nil
}

func ownedFile(ctx context.Context, repo files.Repository, patientID, fileID string) (*models.File, error) {
	if !validID(fileID) {
		return nil, common.ErrorNotFound
	}
	f, err := repo.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if f.PatientID != patientID {
		return nil, common.ErrorForbidden
	}
	return f, nil
}

// --- groups ---

func (s *RecordService) CreateGroup(ctx context.Context, patientID, name string) (*models.RecordGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", common.ErrorValidation)
	}
	return s.repomanager.Groups(s.db.DB()).Create(ctx, &models.RecordGroup{PatientID: patientID, Name: name})
}

// CreateGroupWithFiles creates a group holding the given existing files and
// new uploads.
func (s *RecordService) CreateGroupWithFiles(ctx context.Context, patientID, name string, fileIDs []string, uploads []Upload) (*models.RecordGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", common.ErrorValidation)
	}
	if err := s.checkFilesOwned(ctx, patientID, fileIDs); err != nil {
		return nil, err
	}

	stored, err := s.storeBlobs(ctx, patientID, uploads)
	if err != nil {
		return nil, err
	}

	var group *models.RecordGroup
	err = s.db.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		g, err := s.repomanager.Groups(tx).Create(ctx, &models.RecordGroup{PatientID: patientID, Name: name})
		if err != nil {
			return err
		}
		group = g
		return s.fillGroup(ctx, tx, patientID, g.ID, fileIDs, uploads, stored)
	})
	if err != nil {
		s.cleanupBlobs(ctx, stored)
		return nil, err
	}
	s.metrics.FilesUploaded(len(stored))
	return group, nil
}

// AddToGroup moves owned existing files into the group and stores new uploads
// directly in it. Metadata changes are applied atomically.
func (s *RecordService) AddToGroup(ctx context.Context, patientID, groupID string, fileIDs []string, uploads []Upload) (int, error) {
	if _, err := ownedGroup(ctx, s.repomanager.Groups(s.db.DB()), patientID, groupID); err != nil {
		return 0, err
	}
	if err := s.checkFilesOwned(ctx, patientID, fileIDs); err != nil {
		return 0, err
	}

	stored, err := s.storeBlobs(ctx, patientID, uploads)
	if err != nil {
		return 0, err
	}

	err = s.db.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return s.fillGroup(ctx, tx, patientID, groupID, fileIDs, uploads, stored)
	})
	if err != nil {
		s.cleanupBlobs(ctx, stored)
		return 0, err
	}
	s.metrics.FilesUploaded(len(stored))
	return len(fileIDs) + len(stored), nil
}

func (s *RecordService) checkFilesOwned(ctx context.Context, patientID string, fileIDs []string) error {
	repo := s.repomanager.Files(s.db.DB())
	for _, id := range fileIDs {
		if _, err := ownedFile(ctx, repo, patientID, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *RecordService) fillGroup(ctx context.Context, tx dbx.DBTX, patientID, groupID string, fileIDs []string, uploads []Upload, keys []string) error {
	repo := s.repomanager.Files(tx)
	gid := groupID
	for _, id := range fileIDs {
		if err := repo.SetGroup(ctx, id, &gid); err != nil {
			return fmt.Errorf("move file %s: %w", id, err)
		}
	}
	for i, u := range uploads {
		if _, err := repo.Create(ctx, newFile(patientID, &gid, u, keys[i], "", "")); err != nil {
			return fmt.Errorf("insert file: %w", err)
		}
	}
	return nil
}

// --- uploads ---

func newFile(patientID string, groupID *string, u Upload, key, title, description string) *models.File {
	name := filex.BaseName(u.Name)
	title = strings.TrimSpace(title)
	if title == "" {
		title = name
	}
	ct := u.ContentType
	if ct == "" {
		ct = defaultContentType
	}
	return &models.File{
		PatientID:    patientID,
		GroupID:      groupID,
		Title:        title,
		Description:  strings.TrimSpace(description),
		OriginalName: name,
		ContentType:  ct,
		Size:         u.Size,
		StorageKey:   key,
	}
}

func validateUpload(u Upload) error {
	if u.Content == nil {
		return fmt.Errorf("%w: file content is required", common.ErrorValidation)
	}
	if u.Size < 0 {
		return fmt.Errorf("%w: invalid file size", common.ErrorValidation)
	}
	return nil
}

// storeBlobs writes every upload or none: on failure the blobs already
// written are removed and the error is returned.
func (s *RecordService) storeBlobs(ctx context.Context, patientID string, uploads []Upload) ([]string, error) {
	for _, u := range uploads {
		if err := validateUpload(u); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(uploads))
	for _, u := range uploads {
		key, err := s.blobs.Put(ctx, patientID, u.Name, u.ContentType, u.Content, u.Size)
		if err != nil {
			s.cleanupBlobs(ctx, keys)
			return nil, fmt.Errorf("store %s: %w", filex.BaseName(u.Name), err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// cleanupBlobs removes blobs best-effort. Failures are logged and counted.
func (s *RecordService) cleanupBlobs(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.blobs.Delete(context.WithoutCancel(ctx), key); err != nil {
			s.log.Warn(ctx, "blob cleanup failed", "key", key, "error", err)
			s.metrics.BlobCleanupFailed()
		}
	}
}

// UploadFile stores one file. A blank title defaults to the file name.
// NewGroupName always creates a fresh group; GroupID must be owned.
func (s *RecordService) UploadFile(ctx context.Context, patientID string, u Upload, opts UploadOptions) (*models.File, error) {
	newGroup := strings.TrimSpace(opts.NewGroupName)
	var groupID *string
	if newGroup == "" && opts.GroupID != "" {
		g, err := ownedGroup(ctx, s.repomanager.Groups(s.db.DB()), patientID, opts.GroupID)
		if err != nil {
			return nil, err
		}
		groupID = &g.ID
	}

	keys, err := s.storeBlobs(ctx, patientID, []Upload{u})
	if err != nil {
		return nil, err
	}

	var file *models.File
	err = s.db.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		gid := groupID
		if newGroup != "" {
			g, err := s.repomanager.Groups(tx).Create(ctx, &models.RecordGroup{PatientID: patientID, Name: newGroup})
			if err != nil {
				return fmt.Errorf("create group: %w", err)
			}
			gid = &g.ID
		}
		f, err := s.repomanager.Files(tx).Create(ctx, newFile(patientID, gid, u, keys[0], opts.Title, opts.Description))
		if err != nil {
			return fmt.Errorf("insert file: %w", err)
		}
		file = f
		return nil
	})
	if err != nil {
		s.cleanupBlobs(ctx, keys)
		return nil, err
	}

	s.metrics.FilesUploaded(1)
	s.log.Info(ctx, "file uploaded", "patient_id", patientID, "file_id", file.ID, "size", file.Size)
	return file, nil
}

// BatchUpload stores several files under shared options. The target group is
// resolved once: NewGroupName reuses the patient's group of that name or
// creates it. Either every file is stored or none is.
func (s *RecordService) BatchUpload(ctx context.Context, patientID string, uploads []Upload, opts UploadOptions) ([]*models.File, error) {
	if len(uploads) == 0 {
		return nil, fmt.Errorf("%w: at least one file is required", common.ErrorValidation)
	}

	newGroup := strings.TrimSpace(opts.NewGroupName)
	var groupID *string
	if newGroup == "" && opts.GroupID != "" {
		g, err := ownedGroup(ctx, s.repomanager.Groups(s.db.DB()), patientID, opts.GroupID)
		if err != nil {
			return nil, err
		}
		groupID = &g.ID
	}

	keys, err := s.storeBlobs(ctx, patientID, uploads)
	if err != nil {
		return nil, err
	}

	result := make([]*models.File, 0, len(uploads))
	err = s.db.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		gid := groupID
		if newGroup != "" {
			g, err := getOrCreateGroup(ctx, s.repomanager.Groups(tx), patientID, newGroup)
			if err != nil {
				return err
			}
			gid = &g.ID
		}

		repo := s.repomanager.Files(tx)
		for i, u := range uploads {
			f, err := repo.Create(ctx, newFile(patientID, gid, u, keys[i], opts.Title, opts.Description))
			if err != nil {
				return fmt.Errorf("insert file: %w", err)
			}
			result = append(result, f)
		}
		return nil
	})
	if err != nil {
		s.cleanupBlobs(ctx, keys)
		return nil, err
	}

	s.metrics.FilesUploaded(len(result))
	s.log.Info(ctx, "batch uploaded", "patient_id", patientID, "count", len(result))
	return result, nil
}

func getOrCreateGroup(ctx context.Context, repo groups.Repository, patientID, name string) (*models.RecordGroup, error) {
	g, err := repo.GetByName(ctx, patientID, name)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("find group: %w", err)
	}
	g, err = repo.Create(ctx, &models.RecordGroup{PatientID: patientID, Name: name})
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	return g, nil
}

// --- membership ---

func (s *RecordService) MoveToGroup(ctx context.Context, patientID, fileID, groupID string) error {
	db := s.db.DB()
	f, err := ownedFile(ctx, s.repomanager.Files(db), patientID, fileID)
	if err != nil {
		return err
	}
	g, err := ownedGroup(ctx, s.repomanager.Groups(db), patientID, groupID)
	if err != nil {
		return err
	}
	return s.repomanager.Files(db).SetGroup(ctx, f.ID, &g.ID)
}

// RemoveFromGroup detaches the file from its group; the file is kept.
// Ungrouped files yield common.ErrorNotGrouped.
func (s *RecordService) RemoveFromGroup(ctx context.Context, patientID, fileID string) error {
	repo := s.repomanager.Files(s.db.DB())
	f, err := ownedFile(ctx, repo, patientID, fileID)
	if err != nil {
		return err
	}
	if !f.Grouped() {
		return common.ErrorNotGrouped
	}
	return repo.SetGroup(ctx, f.ID, nil)
}

// --- deletion ---

// DeleteFile removes the metadata row, then the blob. Blob removal is
// best-effort.
func (s *RecordService) DeleteFile(ctx context.Context, patientID, fileID string) error {
	f, err := ownedFile(ctx, s.repomanager.Files(s.db.DB()), patientID, fileID)
	if err != nil {
		return err
	}
	return s.deleteFile(ctx, f)
}

func (s *RecordService) deleteFile(ctx context.Context, f *models.File) error {
	if err := s.repomanager.Files(s.db.DB()).Delete(ctx, f.ID); err != nil {
		return err
	}
	s.metrics.FileDeleted()
	s.cleanupBlobs(ctx, []string{f.StorageKey})
	return nil
}

// DeleteGroup deletes the group; its files become ungrouped.
func (s *RecordService) DeleteGroup(ctx context.Context, patientID, groupID string) error {
	if _, err := ownedGroup(ctx, s.repomanager.Groups(s.db.DB()), patientID, groupID); err != nil {
		return err
	}
	return s.db.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Files(tx).ClearGroup(ctx, groupID); err != nil {
			return fmt.Errorf("detach files: %w", err)
		}
		return s.repomanager.Groups(tx).Delete(ctx, groupID)
	})
}

// DeleteAllInGroup deletes every file of the group one by one. The group
// itself is kept. Returns the number of deleted files.
func (s *RecordService) DeleteAllInGroup(ctx context.Context, patientID, groupID string) (int, error) {
	if _, err := ownedGroup(ctx, s.repomanager.Groups(s.db.DB()), patientID, groupID); err != nil {
		return 0, err
	}
	return s.deleteAll(ctx, patientID, models.FileFilter{GroupID: groupID})
}

// DeleteAllUngrouped deletes every ungrouped file of the patient.
func (s *RecordService) DeleteAllUngrouped(ctx context.Context, patientID string) (int, error) {
	return s.deleteAll(ctx, patientID, models.FileFilter{UngroupedOnly: true})
}

func (s *RecordService) deleteAll(ctx context.Context, patientID string, filter models.FileFilter) (int, error) {
	list, err := s.repomanager.Files(s.db.DB()).List(ctx, patientID, filter)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range list {
		if err := s.deleteFile(ctx, f); err != nil {
			// already removed by a concurrent request
			if errors.Is(err, common.ErrorNotFound) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

// --- reads ---

func (s *RecordService) ListGroups(ctx context.Context, patientID string) ([]*models.RecordGroup, error) {
	return s.repomanager.Groups(s.db.DB()).ListByPatient(ctx, patientID)
}

// ListFiles lists the patient's files, newest first. A GroupID filter must
// name an owned group.
func (s *RecordService) ListFiles(ctx context.Context, patientID string, filter models.FileFilter) ([]*models.File, error) {
	if filter.GroupID != "" {
		if _, err := ownedGroup(ctx, s.repomanager.Groups(s.db.DB()), patientID, filter.GroupID); err != nil {
			return nil, err
		}
	}
	return s.repomanager.Files(s.db.DB()).List(ctx, patientID, filter)
}

func (s *RecordService) GetFile(ctx context.Context, patientID, fileID string) (*models.File, error) {
	return ownedFile(ctx, s.repomanager.Files(s.db.DB()), patientID, fileID)
}

// OpenFile returns the file and its content. The caller closes the reader.
func (s *RecordService) OpenFile(ctx context.Context, patientID, fileID string) (*models.File, io.ReadCloser, error) {
	f, err := s.GetFile(ctx, patientID, fileID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, f.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("open blob: %w", err)
	}
	return f, rc, nil
}
