// Package sessions persists per-browser credential state between requests,
// keyed by an unguessable id carried in a cookie.
package sessions

import (
	"context"
	"time"

	"github.com/qfolders/qfolders/internal/common"
	"github.com/qfolders/qfolders/internal/server/models"
)

// Store loads and saves sessions. Get returns common.ErrorNotFound for an
// unknown or expired id.
type Store interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	Save(ctx context.Context, id string, s *models.Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// NewID returns a fresh random session id.
func NewID() (string, error) {
	return common.MakeRandHexString(32)
}
