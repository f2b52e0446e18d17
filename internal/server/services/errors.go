package services

import "errors"

var (
	// ErrNothingToExport is returned instead of building an empty archive.
	ErrNothingToExport = errors.New("nothing to export")
	// ErrArchiveTooLarge is returned when members exceed the configured archive limit.
	ErrArchiveTooLarge = errors.New("archive exceeds size limit")
)
