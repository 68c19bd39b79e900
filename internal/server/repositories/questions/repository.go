// Package questions stores questions and their attachment metadata.
package questions

import (
	"context"

	"github.com/qfolders/qfolders/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, q *models.Question) (*models.Question, error)
	Get(ctx context.Context, id string) (*models.Question, error)
	ListByFolder(ctx context.Context, folderID string) ([]*models.Question, error)
	Update(ctx context.Context, q *models.Question) error
	Delete(ctx context.Context, id string) error
	AttachmentsInFolder(ctx context.Context, folderID string) ([]*models.Attachment, error)
}
