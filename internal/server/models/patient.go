package models

import "time"

// Patient is the owner of records, linked one-to-one with a User.
// Nullable columns are pointers; nil means "not set".
type Patient struct {
	ID                string
	UserID            string
	Name              string
	DOB               *time.Time
	ContactNumber     *string
	AadhaarHash       *string
	MaskedAadhaar     *string
	RememberTokenHash *string
	CreatedAt         time.Time
}

// Demographics are the profile fields obtained from identity resolution.
type Demographics struct {
	Name          string
	DOB           *time.Time
	AadhaarHash   string
	MaskedAadhaar string
}
