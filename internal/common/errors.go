// Package common defines shared constants and sentinel errors used across
// the patientvault server, its repositories and its transports. Callers should
// use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")

	// Validation errors (missing or malformed input, no state change).
	ErrorValidation = errors.New("validation error")

	// ErrorNotGrouped is returned when a file is removed from a group it is not part of.
	ErrorNotGrouped = errors.New("file is not part of any group")

	// Auth errors (invalid, malformed or expired session token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
