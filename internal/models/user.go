package models

import "time"

// User is an analyst or conservator account. Authentication is deliberately
// minimal: email + password, bearer token, no sessions or roles.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	DisplayName  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
