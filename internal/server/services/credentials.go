package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qfolders/qfolders/internal/common"
	"github.com/qfolders/qfolders/internal/logging"
	"github.com/qfolders/qfolders/internal/server/auth"
	"github.com/qfolders/qfolders/internal/server/authprovider"
	"github.com/qfolders/qfolders/internal/server/models"
)

// DefaultExpiryLeeway is how long before its expiry an access token is
// already treated as expired, so it does not lapse mid-request.
const DefaultExpiryLeeway = 30 * time.Second

// CredentialManager decides whether a session's access token can be used as
// is, must be refreshed, or is beyond repair.
type CredentialManager struct {
	provider authprovider.Provider
	logger   logging.Logger
	leeway   time.Duration
	now      func() time.Time
}

func NewCredentialManager(p authprovider.Provider, logger logging.Logger) *CredentialManager {
	return &CredentialManager{
		provider: p,
		logger:   logger,
		leeway:   DefaultExpiryLeeway,
		now:      time.Now,
	}
}

// Authenticate signs in and returns a populated session.
func (m *CredentialManager) Authenticate(ctx context.Context, email, password string) (*models.Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", common.ErrorValidation)
	}

	tokens, err := m.provider.SignIn(ctx, email, password)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrInvalidCredentials):
			return nil, common.ErrInvalidCredentials
		case errors.Is(err, context.Canceled):
			return nil, err
		default:
			m.logger.Warn(ctx, "sign in failed", "error", err)
			return nil, common.ErrAuthProviderUnavailable
		}
	}

	s := &models.Session{}
	m.apply(s, tokens)
	if s.Email == "" {
		s.Email = email
	}
	if !s.Authenticated() {
		m.logger.Error(ctx, "auth provider returned an incomplete session")
		return nil, common.ErrAuthProviderUnavailable
	}
	return s, nil
}

// EnsureValid returns nil without any network call while the access token is
// valid. Otherwise it refreshes exactly once and updates s in place. When the
// refresh fails, s is cleared and common.ErrSessionExpired is returned.
//
// If ctx itself is cancelled during the refresh the session is left as it
// was and the context error is returned.
func (m *CredentialManager) EnsureValid(ctx context.Context, s *models.Session) error {
	if !s.Authenticated() {
		m.Invalidate(s)
		return common.ErrSessionExpired
	}
	if m.fresh(s) {
		return nil
	}

	tokens, err := m.provider.Refresh(ctx, s.RefreshToken)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.logger.Warn(ctx, "token refresh failed", "user_id", s.UserID, "error", err)
		m.Invalidate(s)
		return common.ErrSessionExpired
	}
	if tokens.UserID != "" && tokens.UserID != s.UserID {
		m.logger.Error(ctx, "refresh returned a different identity", "user_id", s.UserID, "got", tokens.UserID)
		m.Invalidate(s)
		return common.ErrSessionExpired
	}

	m.apply(s, tokens)
	if !s.Authenticated() {
		m.Invalidate(s)
		return common.ErrSessionExpired
	}
	return nil
}

// Invalidate clears every field of s. It is safe to call repeatedly.
func (m *CredentialManager) Invalidate(s *models.Session) {
	s.Clear()
}

// SignOut revokes the session at the provider, best effort, and clears it.
func (m *CredentialManager) SignOut(ctx context.Context, s *models.Session) {
	if s.Authenticated() {
		if err := m.provider.SignOut(ctx, s.AccessToken); err != nil {
			m.logger.Warn(ctx, "sign out at provider failed", "user_id", s.UserID, "error", err)
		}
	}
	m.Invalidate(s)
}

// Register creates an account. The provider sends the confirmation mail,
// which links back to redirectURL.
func (m *CredentialManager) Register(ctx context.Context, email, password, redirectURL string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", common.ErrorValidation)
	}
	err := m.provider.SignUp(ctx, email, password, redirectURL)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrorAlreadyExists), errors.Is(err, common.ErrorValidation), errors.Is(err, context.Canceled):
		return err
	default:
		m.logger.Warn(ctx, "sign up failed", "error", err)
		return common.ErrAuthProviderUnavailable
	}
}

// ResendConfirmation asks the provider to mail the confirmation link again.
func (m *CredentialManager) ResendConfirmation(ctx context.Context, email, redirectURL string) error {
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", common.ErrorValidation)
	}
	if err := m.provider.ResendConfirmation(ctx, email, redirectURL); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, common.ErrorValidation) {
			return err
		}
		m.logger.Warn(ctx, "resend confirmation failed", "error", err)
		return common.ErrAuthProviderUnavailable
	}
	return nil
}

// fresh reports whether the access token stays valid past the leeway. An
// unknown expiry counts as expired.
func (m *CredentialManager) fresh(s *models.Session) bool {
	var exp time.Time
	if s.ExpiresAt != nil {
		exp = *s.ExpiresAt
	} else if t, ok := auth.ExpiryFromToken(s.AccessToken); ok {
		exp = t
	} else {
		return false
	}
	return m.now().Add(m.leeway).Before(exp)
}

func (m *CredentialManager) apply(s *models.Session, t *authprovider.Tokens) {
	s.AccessToken = t.AccessToken
	s.RefreshToken = t.RefreshToken
	if t.UserID != "" {
		s.UserID = t.UserID
	}
	if t.Email != "" {
		s.Email = t.Email
	}
	s.ExpiresAt = nil
	if !t.ExpiresAt.IsZero() {
		exp := t.ExpiresAt
		s.ExpiresAt = &exp
	} else if exp, ok := auth.ExpiryFromToken(t.AccessToken); ok {
		s.ExpiresAt = &exp
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
