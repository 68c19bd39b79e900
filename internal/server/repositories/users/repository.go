package users

import (
	"context"

	"github.com/qfolders/qfolders/internal/server/models"
)

// Repository stores accounts of the local auth provider.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}
