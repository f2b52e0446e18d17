package models

import "time"

// User is the login principal. Identity-verified accounts carry a
// pseudonymous UserName and no password; administratively created accounts
// store an argon2id PasswordHash.
type User struct {
	ID           string
	UserName     string
	PasswordHash []byte
	CreatedAt    time.Time
}
