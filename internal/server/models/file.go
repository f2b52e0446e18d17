// Package models defines server-side data models persisted in the database.
package models

import "time"

// RecordGroup is a named, patient-owned collection of files.
type RecordGroup struct {
	ID        string
	PatientID string
	Name      string
	CreatedAt time.Time
}

// File describes an uploaded document. The content itself lives in the
// blob store under StorageKey.
type File struct {
	ID        string
	PatientID string
	// GroupID is nil for ungrouped files.
	GroupID *string

	Title        string
	Description  string
	OriginalName string
	ContentType  string
	Size         int64

	// StorageKey is the blob-store key of the content.
	StorageKey string
	UploadedAt time.Time
}

// Grouped reports whether the file belongs to a group.
func (f *File) Grouped() bool {
	return f.GroupID != nil
}

// FileFilter narrows a file listing. Zero value lists everything the patient owns.
type FileFilter struct {
	// Query matches titles case-insensitively as a substring.
	Query string
	// GroupID restricts to one group.
	GroupID string
	// UngroupedOnly restricts to files without a group; ignored when GroupID is set.
	UngroupedOnly bool
}
