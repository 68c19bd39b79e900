// Package folders stores folders. Visibility is enforced by the data store's
// row-level-security policies; queries never filter by owner themselves.
package folders

import (
	"context"

	"github.com/qfolders/qfolders/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, folder *models.Folder) (*models.Folder, error)
	List(ctx context.Context) ([]*models.Folder, error)
	Get(ctx context.Context, id string) (*models.Folder, error)
	Delete(ctx context.Context, id string) error
}
