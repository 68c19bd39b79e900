// Package refreshtokens declares and implements storage for the opaque
// refresh tokens issued by the local auth provider.
package refreshtokens

import (
	"context"
	"time"

	"github.com/qfolders/qfolders/internal/server/models"
)

// Repository issues, looks up and revokes refresh tokens.
type Repository interface {
	// Create stores token for userID, valid until expiresAt.
	Create(ctx context.Context, userID string, token string, expiresAt time.Time) error

	// Find returns the token row or common.ErrorNotFound.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete revokes one token. It returns common.ErrorNotFound when no row
	// was removed, which lets callers detect a token used twice concurrently.
	Delete(ctx context.Context, token string) error

	// DeleteForUser revokes every token of userID.
	DeleteForUser(ctx context.Context, userID string) error
}
