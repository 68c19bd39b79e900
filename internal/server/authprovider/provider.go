// Package authprovider talks to the identity service that issues access and
// refresh tokens. Two implementations exist: GoTrue, a client for the hosted
// auth API, and Local, a self-hosted provider backed by the users table.
package authprovider

import (
	"context"
	"time"
)

// Tokens is the result of a successful sign-in or refresh.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UserID       string
	Email        string
}

// Provider is the contract of the remote auth collaborator.
//
// Errors are reported with the sentinels of package common:
//   - SignIn: ErrInvalidCredentials, ErrAuthProviderUnavailable
//   - Refresh: ErrInvalidToken or ErrRefreshTokenExpired when the refresh
//     token is rejected, ErrAuthProviderUnavailable otherwise
//   - SignUp: ErrorAlreadyExists, ErrorValidation, ErrAuthProviderUnavailable
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)
	SignUp(ctx context.Context, email, password, redirectURL string) error
	ResendConfirmation(ctx context.Context, email, redirectURL string) error
	SignOut(ctx context.Context, accessToken string) error
}
