package identity

import "errors"

var (
	// ErrProviderUnavailable means the provider could not be reached. Retryable.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	// ErrProviderRejected means the provider refused to issue a code.
	ErrProviderRejected = errors.New("identity provider rejected the request")
	// ErrOTPMismatch means the submitted one-time code was not accepted.
	ErrOTPMismatch = errors.New("otp verification failed")
	// ErrIdentifierUnknown means the identifier is absent from the reference dataset.
	ErrIdentifierUnknown = errors.New("identifier not found in reference dataset")
)
