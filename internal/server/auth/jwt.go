// Package auth holds the JWT helpers shared by the local auth provider
// (issuing), the data store gateway (verifying and forwarding claims) and
// the credential manager (reading expiry).
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/qfolders/qfolders/internal/common"
	"github.com/qfolders/qfolders/internal/dbx"
)

// Claims follows the access-token layout of the hosted auth provider:
// the user id in "sub", plus email and database role.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// UserID returns the subject of the token.
func (c *Claims) UserID() string { return c.Subject }

// JSON renders the claims the way row-level-security policies expect them
// in request.jwt.claims.
func (c *Claims) JSON() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// GenerateToken issues an HS256 access token for userID valid for validityDuration.
func GenerateToken(userID, email string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{dbx.AuthenticatedRole},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		Email: email,
		Role:  dbx.AuthenticatedRole,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// VerifyClaims checks the signature and expiry of tokenString.
// Expired tokens yield common.ErrTokenExpired; anything else that fails
// verification yields an error wrapping common.ErrInvalidToken.
func VerifyClaims(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

// GetUserIDFromToken verifies tokenString and returns its subject.
func GetUserIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims, err := VerifyClaims(tokenString, secretKey)
	if err != nil {
		return "", err
	}
	return claims.UserID(), nil
}

// SubjectIgnoringExpiry verifies the signature of tokenString but not its
// time-based claims, and returns the subject. It serves sign-out, where an
// expired access token still identifies the user.
func SubjectIgnoringExpiry(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", common.ErrInvalidToken
	}
	return claims.Subject, nil
}

// ExpiryFromToken reads the exp claim without verifying the signature.
// It reports false when the token is malformed or carries no expiry.
func ExpiryFromToken(tokenString string) (time.Time, bool) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
