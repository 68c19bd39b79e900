package models

import "time"

// Session is the per-login credential state: the caller's identity plus the
// current access/refresh token pair. It is owned by exactly one browser
// session and passed explicitly through the request pipeline.
//
// Both tokens are present or both absent; anything else counts as signed out.
type Session struct {
	UserID       string     `json:"user_id"`
	Email        string     `json:"email"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Authenticated reports whether the session carries a complete token pair.
func (s *Session) Authenticated() bool {
	return s != nil && s.AccessToken != "" && s.RefreshToken != "" && s.UserID != ""
}

// Clear wipes every field. Calling it on a cleared session is a no-op.
func (s *Session) Clear() {
	if s == nil {
		return
	}
	*s = Session{}
}
