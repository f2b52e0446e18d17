package services

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/dmitrijs2005/patientvault/internal/dbx"
	"github.com/dmitrijs2005/patientvault/internal/filex"
	"github.com/dmitrijs2005/patientvault/internal/logging"
	"github.com/dmitrijs2005/patientvault/internal/server/blobstore"
	"github.com/dmitrijs2005/patientvault/internal/server/metrics"
	"github.com/dmitrijs2005/patientvault/internal/server/models"
	"github.com/dmitrijs2005/patientvault/internal/server/repositories/repomanager"
)

const (
	ungroupedArchiveName = "Ungrouped_Files.zip"
	archiveKindGroup     = "group"
	archiveKindUngrouped = "ungrouped"
)

// Archive is an in-memory zip with its suggested download name.
type Archive struct {
	Name    string
	Data    []byte
	Entries []string
}

// ArchiveService bundles a patient's files into zip archives.
type ArchiveService struct {
	db          dbx.TxRunner
	repomanager repomanager.RepositoryManager
	blobs       blobstore.Store
	maxBytes    int64
	log         logging.Logger
	metrics     *metrics.Metrics
}

// NewArchiveService returns an ArchiveService. maxBytes <= 0 disables the
// size limit.
func NewArchiveService(db dbx.TxRunner, m repomanager.RepositoryManager, blobs blobstore.Store,
	maxBytes int64, log logging.Logger, mx *metrics.Metrics) *ArchiveService {
	return &ArchiveService{
		db:          db,
		repomanager: m,
		blobs:       blobs,
		maxBytes:    maxBytes,
		log:         log.With("module", "archive"),
		metrics:     mx,
	}
}

// ExportGroup archives every file of an owned group.
func (s *ArchiveService) ExportGroup(ctx context.Context, patientID, groupID string) (*Archive, error) {
	db := s.db.DB()
	g, err := ownedGroup(ctx, s.repomanager.Groups(db), patientID, groupID)
	if err != nil {
		return nil, err
	}
	list, err := s.repomanager.Files(db).List(ctx, patientID, models.FileFilter{GroupID: g.ID})
	if err != nil {
		return nil, err
	}

	a, err := s.build(ctx, ArchiveName(g.Name), list)
	if err != nil {
		return nil, err
	}
	s.metrics.ArchiveExported(archiveKindGroup)
	return a, nil
}

// ExportUngrouped archives every file of the patient that has no group.
func (s *ArchiveService) ExportUngrouped(ctx context.Context, patientID string) (*Archive, error) {
	list, err := s.repomanager.Files(s.db.DB()).List(ctx, patientID, models.FileFilter{UngroupedOnly: true})
	if err != nil {
		return nil, err
	}

	a, err := s.build(ctx, ungroupedArchiveName, list)
	if err != nil {
		return nil, err
	}
	s.metrics.ArchiveExported(archiveKindUngrouped)
	return a, nil
}

func (s *ArchiveService) build(ctx context.Context, name string, list []*models.File) (*Archive, error) {
	if len(list) == 0 {
		return nil, ErrNothingToExport
	}

	var declared int64
	for _, f := range list {
		declared += f.Size
	}
	if s.maxBytes > 0 && declared > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes declared", ErrArchiveTooLarge, declared)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := newEntryNames()
	var written int64

	for _, f := range list {
		entry := names.next(filex.BaseName(f.OriginalName))
		n, err := s.writeEntry(ctx, zw, entry, f, written)
		if err != nil {
			return nil, err
		}
		written += n
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish archive: %w", err)
	}

	s.log.Info(ctx, "archive built", "name", name, "entries", len(list), "bytes", buf.Len())
	return &Archive{Name: name, Data: buf.Bytes(), Entries: names.used}, nil
}

func (s *ArchiveService) writeEntry(ctx context.Context, zw *zip.Writer, entry string, f *models.File, written int64) (int64, error) {
	rc, err := s.blobs.Open(ctx, f.StorageKey)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", f.OriginalName, err)
	}
	defer rc.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     entry,
		Method:   zip.Deflate,
		Modified: f.UploadedAt.UTC().Truncate(time.Second),
	})
	if err != nil {
		return 0, fmt.Errorf("create entry %s: %w", entry, err)
	}

	var src io.Reader = rc
	if s.maxBytes > 0 {
		src = io.LimitReader(rc, s.maxBytes-written+1)
	}
	n, err := io.Copy(w, src)
	if err != nil {
		return n, fmt.Errorf("read %s: %w", f.OriginalName, err)
	}
	if s.maxBytes > 0 && written+n > s.maxBytes {
		return n, ErrArchiveTooLarge
	}
	return n, nil
}

// ArchiveName turns a group name into a safe zip filename. Letters, digits,
// '-', '_' and '.' are kept and spaces become '_'.
func ArchiveName(group string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(group) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), ".")
	if name == "" {
		name = "group"
	}
	return name + ".zip"
}

type entryNames struct {
	seen map[string]bool
	used []string
}

func newEntryNames() *entryNames {
	return &entryNames{seen: map[string]bool{}}
}

// next returns name, or "stem (n).ext" with the smallest free n when name is
// already taken.
func (e *entryNames) next(name string) string {
	candidate := name
	if e.seen[candidate] {
		ext := path.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		for i := 1; ; i++ {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
			if !e.seen[candidate] {
				break
			}
		}
	}
	e.seen[candidate] = true
	e.used = append(e.used, candidate)
	return candidate
}
