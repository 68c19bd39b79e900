package models

import "time"

// User is an account of the local auth provider.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}
