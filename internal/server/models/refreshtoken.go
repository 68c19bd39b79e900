package models

import "time"

// RefreshToken is an opaque refresh token issued by the local auth provider.
// Tokens are single use: a refresh deletes the row and issues a new one.
type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the token is no longer usable at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
