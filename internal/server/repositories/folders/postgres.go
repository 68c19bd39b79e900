package folders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/qfolders/qfolders/internal/common"
	"github.com/qfolders/qfolders/internal/dbx"
	"github.com/qfolders/qfolders/internal/server/models"
)

// PostgresRepository implements folder storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts folder and fills in its generated id and timestamp.
func (r *PostgresRepository) Create(ctx context.Context, folder *models.Folder) (*models.Folder, error) {
	query := `
		INSERT INTO folders (user_id, name)
		VALUES ($1, $2)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowContext(ctx, query, folder.UserID, folder.Name).Scan(&folder.ID, &folder.CreatedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return folder, nil
}

// List returns the visible folders, newest first.
func (r *PostgresRepository) List(ctx context.Context) ([]*models.Folder, error) {
	query := `
		SELECT id, user_id, name, created_at FROM folders
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select folders: %w", err)
	}
	defer rows.Close()

	var result []*models.Folder
	for rows.Next() {
		var item models.Folder
		if err := rows.Scan(&item.ID, &item.UserID, &item.Name, &item.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Get returns one folder or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Folder, error) {
	query := `
		SELECT id, user_id, name, created_at FROM folders
		WHERE id = $1
	`
	folder := &models.Folder{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&folder.ID, &folder.UserID, &folder.Name, &folder.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return folder, nil
}

// Delete removes the folder; its questions cascade in the store.
// Deleting an invisible or missing folder yields common.ErrorNotFound.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM folders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
