package httpserver

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/dmitrijs2005/patientvault/internal/common"
	"github.com/dmitrijs2005/patientvault/internal/server/identity"
	"github.com/dmitrijs2005/patientvault/internal/server/models"
	"github.com/dmitrijs2005/patientvault/internal/server/services"
)

var testPatient = &models.Patient{ID: "p1", Name: "Asha Rao"}

const (
	goodSession    = "good-session"
	goodRemember   = "good-remember"
	reissued       = "reissued-session"
	issuedSession  = "issued-session"
	issuedRemember = "issued-remember"
)

type fakeAccounts struct {
	mu        sync.Mutex
	loggedOut []string
	authErr   error
}

func (a *fakeAccounts) IssueSession(ctx context.Context, p *models.Patient, remember bool) (*services.LoginResult, error) {
	res := &services.LoginResult{Patient: p, SessionToken: issuedSession}
	if remember {
		res.RememberToken = issuedRemember
	}
	return res, nil
}

func (a *fakeAccounts) PasswordLogin(ctx context.Context, userName string, password []byte) (*services.LoginResult, error) {
	if userName != "admin" || string(password) != "pw" {
		return nil, common.ErrorUnauthorized
	}
	return &services.LoginResult{Patient: testPatient, SessionToken: issuedSession}, nil
}

func (a *fakeAccounts) Authenticate(ctx context.Context, session, remember string) (*services.LoginResult, error) {
	if a.authErr != nil {
		return nil, a.authErr
	}
	if session == goodSession {
		return &services.LoginResult{Patient: testPatient}, nil
	}
	if remember == goodRemember {
		return &services.LoginResult{Patient: testPatient, SessionToken: reissued}, nil
	}
	return nil, common.ErrorUnauthorized
}

func (a *fakeAccounts) Logout(ctx context.Context, patientID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loggedOut = append(a.loggedOut, patientID)
	return nil
}

type fakeIdentity struct {
	err error
}

func (i *fakeIdentity) RequestOTP(ctx context.Context, id string) (*identity.OTPRequest, error) {
	if i.err != nil {
		return nil, i.err
	}
	return &identity.OTPRequest{Status: identity.StatusOK, TxnID: "txn-1", Message: "OTP sent", DebugOTP: "123456"}, nil
}

func (i *fakeIdentity) VerifyOTP(ctx context.Context, id, txnID, code string) (*models.Patient, error) {
	if i.err != nil {
		return nil, i.err
	}
	if code != "123456" {
		return nil, identity.ErrOTPMismatch
	}
	return testPatient, nil
}

func (i *fakeIdentity) LoginWithQR(ctx context.Context, text string) (*models.Patient, error) {
	if i.err != nil {
		return nil, i.err
	}
	return testPatient, nil
}

// fakeRecords records the last call and returns err from every method.
type fakeRecords struct {
	err   error
	panic bool

	uploads  map[string]string
	opts     services.UploadOptions
	existing []string
	filter   models.FileFilter
	called   string
}

func (r *fakeRecords) take(name string, uploads []services.Upload) {
	r.called = name
	r.uploads = map[string]string{}
	for _, u := range uploads {
		b, _ := io.ReadAll(u.Content)
		r.uploads[u.Name] = string(b)
	}
}

func (r *fakeRecords) CreateGroup(ctx context.Context, patientID, name string) (*models.RecordGroup, error) {
	r.called = "CreateGroup"
	if r.err != nil {
		return nil, r.err
	}
	return &models.RecordGroup{ID: "g1", PatientID: patientID, Name: name}, nil
}

func (r *fakeRecords) CreateGroupWithFiles(ctx context.Context, patientID, name string, fileIDs []string, uploads []services.Upload) (*models.RecordGroup, error) {
	r.take("CreateGroupWithFiles", uploads)
	r.existing = fileIDs
	if r.err != nil {
		return nil, r.err
	}
	return &models.RecordGroup{ID: "g1", PatientID: patientID, Name: name}, nil
}

func (r *fakeRecords) AddToGroup(ctx context.Context, patientID, groupID string, fileIDs []string, uploads []services.Upload) (int, error) {
	r.take("AddToGroup", uploads)
	r.existing = fileIDs
	if r.err != nil {
		return 0, r.err
	}
	return len(fileIDs) + len(uploads), nil
}

func (r *fakeRecords) UploadFile(ctx context.Context, patientID string, u services.Upload, opts services.UploadOptions) (*models.File, error) {
	r.take("UploadFile", []services.Upload{u})
	r.opts = opts
	if r.err != nil {
		return nil, r.err
	}
	return &models.File{ID: "f1", PatientID: patientID, Title: opts.Title, OriginalName: u.Name, Size: u.Size}, nil
}

func (r *fakeRecords) BatchUpload(ctx context.Context, patientID string, uploads []services.Upload, opts services.UploadOptions) ([]*models.File, error) {
	r.take("BatchUpload", uploads)
	r.opts = opts
	if r.err != nil {
		return nil, r.err
	}
	out := make([]*models.File, 0, len(uploads))
	for _, u := range uploads {
		out = append(out, &models.File{ID: "f-" + u.Name, PatientID: patientID, OriginalName: u.Name})
	}
	return out, nil
}

func (r *fakeRecords) MoveToGroup(ctx context.Context, patientID, fileID, groupID string) error {
	r.called = "MoveToGroup"
	return r.err
}

func (r *fakeRecords) RemoveFromGroup(ctx context.Context, patientID, fileID string) error {
	r.called = "RemoveFromGroup"
	return r.err
}

func (r *fakeRecords) DeleteFile(ctx context.Context, patientID, fileID string) error {
	if r.panic {
		panic("boom")
	}
	r.called = "DeleteFile"
	return r.err
}

func (r *fakeRecords) DeleteGroup(ctx context.Context, patientID, groupID string) error {
	r.called = "DeleteGroup"
	return r.err
}

func (r *fakeRecords) DeleteAllInGroup(ctx context.Context, patientID, groupID string) (int, error) {
	r.called = "DeleteAllInGroup"
	return 2, r.err
}

func (r *fakeRecords) DeleteAllUngrouped(ctx context.Context, patientID string) (int, error) {
	r.called = "DeleteAllUngrouped"
	return 3, r.err
}

func (r *fakeRecords) ListGroups(ctx context.Context, patientID string) ([]*models.RecordGroup, error) {
	return []*models.RecordGroup{{ID: "g1", PatientID: patientID, Name: "Labs"}}, r.err
}

func (r *fakeRecords) ListFiles(ctx context.Context, patientID string, filter models.FileFilter) ([]*models.File, error) {
	r.filter = filter
	if r.err != nil {
		return nil, r.err
	}
	return []*models.File{{ID: "f1", PatientID: patientID, Title: "Blood", OriginalName: "a.pdf"}}, nil
}

func (r *fakeRecords) OpenFile(ctx context.Context, patientID, fileID string) (*models.File, io.ReadCloser, error) {
	if r.err != nil {
		return nil, nil, r.err
	}
	f := &models.File{ID: fileID, OriginalName: "report.pdf", ContentType: "application/pdf"}
	return f, io.NopCloser(bytes.NewReader([]byte("PDFDATA"))), nil
}

type fakeArchives struct {
	err error
}

func (a *fakeArchives) ExportGroup(ctx context.Context, patientID, groupID string) (*services.Archive, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &services.Archive{Name: "Labs.zip", Data: []byte("PK-group")}, nil
}

func (a *fakeArchives) ExportUngrouped(ctx context.Context, patientID string) (*services.Archive, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &services.Archive{Name: "Ungrouped_Files.zip", Data: []byte("PK-ungrouped")}, nil
}
