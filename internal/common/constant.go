package common

// Cookie names shared by the HTTP layer and its tests.
const (
	// RememberTokenCookieName carries the raw remember-me token.
	RememberTokenCookieName = "remember_token"

	// SessionCookieName carries the signed session token.
	SessionCookieName = "session"
)
