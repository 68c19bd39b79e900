// Package orphans keeps track of blobs whose best-effort deletion failed so
// a later sweep can retry them.
package orphans

import (
	"context"

	"github.com/qfolders/qfolders/internal/server/models"
)

type Repository interface {
	Record(ctx context.Context, storageKey, reason string) error
	List(ctx context.Context, limit int) ([]*models.OrphanBlob, error)
	MarkAttempt(ctx context.Context, id, reason string) error
	Delete(ctx context.Context, id string) error
}
