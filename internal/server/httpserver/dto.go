package httpserver

import (
	"time"

	"github.com/dmitrijs2005/patientvault/internal/server/identity"
	"github.com/dmitrijs2005/patientvault/internal/server/models"
)

type statusResponse struct {
	Status   string `json:"status"`
	Redirect string `json:"redirect,omitempty"`
}

type otpRequestBody struct {
	AadhaarNumber string `json:"aadhaar_number" form:"aadhaar_number"`
}

type otpRequestResponse struct {
	Status   string `json:"status"`
	TxnID    string `json:"txn_id"`
	Message  string `json:"message,omitempty"`
	DebugOTP string `json:"debug_otp,omitempty"`
}

type otpVerifyBody struct {
	AadhaarNumber string `json:"aadhaar_number" form:"aadhaar_number"`
	TxnID         string `json:"txn_id" form:"txn_id"`
	OTP           string `json:"otp" form:"otp"`
}

type qrVerifyBody struct {
	QR string `json:"qr" form:"qr"`
}

type passwordLoginBody struct {
	UserName string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

type loginResponse struct {
	Status   string          `json:"status"`
	Redirect string          `json:"redirect"`
	Patient  patientResponse `json:"patient"`
}

type moveBody struct {
	GroupID string `json:"group_id" form:"group_id"`
}

type countResponse struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

type patientResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	DOB           string `json:"dob,omitempty"`
	ContactNumber string `json:"contact_number,omitempty"`
	MaskedAadhaar string `json:"masked_aadhaar,omitempty"`
}

func toPatient(p *models.Patient) patientResponse {
	r := patientResponse{ID: p.ID, Name: p.Name}
	if p.DOB != nil {
		r.DOB = p.DOB.Format(identity.DateLayout)
	}
	if p.ContactNumber != nil {
		r.ContactNumber = *p.ContactNumber
	}
	if p.MaskedAadhaar != nil {
		r.MaskedAadhaar = *p.MaskedAadhaar
	}
	return r
}

type groupResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func toGroup(g *models.RecordGroup) groupResponse {
	return groupResponse{ID: g.ID, Name: g.Name, CreatedAt: g.CreatedAt}
}

func toGroups(list []*models.RecordGroup) []groupResponse {
	out := make([]groupResponse, 0, len(list))
	for _, g := range list {
		out = append(out, toGroup(g))
	}
	return out
}

type fileResponse struct {
	ID           string    `json:"id"`
	GroupID      *string   `json:"group_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	OriginalName string    `json:"original_name"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

func toFile(f *models.File) fileResponse {
	return fileResponse{
		ID:           f.ID,
		GroupID:      f.GroupID,
		Title:        f.Title,
		Description:  f.Description,
		OriginalName: f.OriginalName,
		ContentType:  f.ContentType,
		Size:         f.Size,
		UploadedAt:   f.UploadedAt,
	}
}

func toFiles(list []*models.File) []fileResponse {
	out := make([]fileResponse, 0, len(list))
	for _, f := range list {
		out = append(out, toFile(f))
	}
	return out
}

type recordsResponse struct {
	Groups []groupResponse `json:"groups,omitempty"`
	Files  []fileResponse  `json:"files"`
}
