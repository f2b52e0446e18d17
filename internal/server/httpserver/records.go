package httpserver

import (
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/patientvault/internal/common"
	"github.com/dmitrijs2005/patientvault/internal/server/models"
	"github.com/dmitrijs2005/patientvault/internal/server/services"
	"github.com/labstack/echo/v4"
)

func (s *HTTPServer) handleListRecords(c echo.Context) error {
	ctx := c.Request().Context()
	p := patientFrom(c)

	groups, err := s.records.ListGroups(ctx, p.ID)
	if err != nil {
		return err
	}
	files, err := s.records.ListFiles(ctx, p.ID, models.FileFilter{
		Query:   strings.TrimSpace(c.QueryParam("q")),
		GroupID: strings.TrimSpace(c.QueryParam("group")),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, recordsResponse{Groups: toGroups(groups), Files: toFiles(files)})
}

func (s *HTTPServer) handleListUngrouped(c echo.Context) error {
	files, err := s.records.ListFiles(c.Request().Context(), patientFrom(c).ID, models.FileFilter{UngroupedOnly: true})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, recordsResponse{Files: toFiles(files)})
}

// --- uploads ---

// multipartUploads opens every file posted under any of fields. The returned
// close function must be called once the uploads are consumed.
func multipartUploads(c echo.Context, fields ...string) ([]services.Upload, func(), error) {
	if !strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		return nil, func() {}, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, func() {}, uploadError(err)
	}

	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	var uploads []services.Upload
	for _, field := range fields {
		for _, fh := range form.File[field] {
			f, err := fh.Open()
			if err != nil {
				closeAll()
				return nil, func() {}, fmt.Errorf("open upload %s: %w", fh.Filename, err)
			}
			opened = append(opened, f)
			uploads = append(uploads, services.Upload{
				Name:        fh.Filename,
				ContentType: fh.Header.Get(echo.HeaderContentType),
				Size:        fh.Size,
				Content:     f,
			})
		}
	}
	return uploads, closeAll, nil
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return fmt.Errorf("%w: malformed multipart form: %v", common.ErrorValidation, err)
}

// formValues collects repeated form values posted as name or name[].
func formValues(c echo.Context, name string) []string {
	params, err := c.FormParams()
	if err != nil {
		return nil
	}
	var out []string
	for _, key := range []string{name, name + "[]"} {
		for _, v := range params[key] {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func uploadOptions(c echo.Context) services.UploadOptions {
	return services.UploadOptions{
		Title:        c.FormValue("title"),
		Description:  c.FormValue("description"),
		GroupID:      strings.TrimSpace(c.FormValue("group_id")),
		NewGroupName: c.FormValue("new_group_name"),
	}
}

func (s *HTTPServer) handleUploadFile(c echo.Context) error {
	uploads, closeAll, err := multipartUploads(c, "file")
	if err != nil {
		return err
	}
	defer closeAll()
	if len(uploads) == 0 {
		return fmt.Errorf("%w: file is required", common.ErrorValidation)
	}

	f, err := s.records.UploadFile(c.Request().Context(), patientFrom(c).ID, uploads[0], uploadOptions(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toFile(f))
}

func (s *HTTPServer) handleBatchUpload(c echo.Context) error {
	uploads, closeAll, err := multipartUploads(c, "files", "files[]")
	if err != nil {
		return err
	}
	defer closeAll()

	files, err := s.records.BatchUpload(c.Request().Context(), patientFrom(c).ID, uploads, uploadOptions(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, recordsResponse{Files: toFiles(files)})
}

// --- single file ---

func attachment(c echo.Context, name string) {
	c.Response().Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": name}))
}

func (s *HTTPServer) handleDownloadFile(c echo.Context) error {
	f, rc, err := s.records.OpenFile(c.Request().Context(), patientFrom(c).ID, c.Param("id"))
	if err != nil {
		return err
	}
	defer rc.Close()

	attachment(c, f.OriginalName)
	return c.Stream(http.StatusOK, f.ContentType, rc)
}

func (s *HTTPServer) handleDeleteFile(c echo.Context) error {
	if err := s.records.DeleteFile(c.Request().Context(), patientFrom(c).ID, c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statusResponse{Status: "deleted"})
}

func (s *HTTPServer) handleMoveFile(c echo.Context) error {
	var body moveBody
	if err := c.Bind(&body); err != nil {
		return bindError(err)
	}
	if strings.TrimSpace(body.GroupID) == "" {
		return fmt.Errorf("%w: group_id is required", common.ErrorValidation)
	}

	err := s.records.MoveToGroup(c.Request().Context(), patientFrom(c).ID, c.Param("id"), strings.TrimSpace(body.GroupID))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statusResponse{Status: "moved"})
}

func (s *HTTPServer) handleUngroupFile(c echo.Context) error {
	if err := s.records.RemoveFromGroup(c.Request().Context(), patientFrom(c).ID, c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statusResponse{Status: "ungrouped"})
}

// --- groups ---

func (s *HTTPServer) handleCreateGroup(c echo.Context) error {
	uploads, closeAll, err := multipartUploads(c, "new_files", "new_files[]")
	if err != nil {
		return err
	}
	defer closeAll()

	ctx := c.Request().Context()
	p := patientFrom(c)
	name := c.FormValue("name")
	existing := formValues(c, "existing_files")

	var g *models.RecordGroup
	if len(existing) == 0 && len(uploads) == 0 {
		g, err = s.records.CreateGroup(ctx, p.ID, name)
	} else {
		g, err = s.records.CreateGroupWithFiles(ctx, p.ID, name, existing, uploads)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toGroup(g))
}

func (s *HTTPServer) handleAddToGroup(c echo.Context) error {
	uploads, closeAll, err := multipartUploads(c, "new_files", "new_files[]")
	if err != nil {
		return err
	}
	defer closeAll()

	existing := formValues(c, "existing_files")
	if len(existing) == 0 && len(uploads) == 0 {
		return fmt.Errorf("%w: select files to add", common.ErrorValidation)
	}

	n, err := s.records.AddToGroup(c.Request().Context(), patientFrom(c).ID, c.Param("id"), existing, uploads)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, countResponse{Status: "added", Count: n})
}

func (s *HTTPServer) handleDeleteGroup(c echo.Context) error {
	if err := s.records.DeleteGroup(c.Request().Context(), patientFrom(c).ID, c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statusResponse{Status: "deleted"})
}

func (s *HTTPServer) handleDeleteAllInGroup(c echo.Context) error {
	n, err := s.records.DeleteAllInGroup(c.Request().Context(), patientFrom(c).ID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, countResponse{Status: "deleted", Count: n})
}

func (s *HTTPServer) handleDeleteAllUngrouped(c echo.Context) error {
	n, err := s.records.DeleteAllUngrouped(c.Request().Context(), patientFrom(c).ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, countResponse{Status: "deleted", Count: n})
}

// --- archives ---

func (s *HTTPServer) handleDownloadGroup(c echo.Context) error {
	a, err := s.archives.ExportGroup(c.Request().Context(), patientFrom(c).ID, c.Param("id"))
	if err != nil {
		return err
	}
	return sendArchive(c, a)
}

func (s *HTTPServer) handleDownloadUngrouped(c echo.Context) error {
	a, err := s.archives.ExportUngrouped(c.Request().Context(), patientFrom(c).ID)
	if err != nil {
		return err
	}
	return sendArchive(c, a)
}

func sendArchive(c echo.Context, a *services.Archive) error {
	attachment(c, a.Name)
	return c.Blob(http.StatusOK, "application/zip", a.Data)
}
