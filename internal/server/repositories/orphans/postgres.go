package orphans

import (
	"context"
	"fmt"

	"github.com/qfolders/qfolders/internal/dbx"
	"github.com/qfolders/qfolders/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Record stores storageKey for a later retry. Recording the same key twice
// keeps one row and refreshes its reason.
func (r *PostgresRepository) Record(ctx context.Context, storageKey, reason string) error {
	query := `
		INSERT INTO orphan_blobs (storage_key, reason)
		VALUES ($1, $2)
		ON CONFLICT (storage_key) DO UPDATE SET reason = EXCLUDED.reason
	`
	if _, err := r.db.ExecContext(ctx, query, storageKey, reason); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// List returns up to limit orphans, least attempted and oldest first.
func (r *PostgresRepository) List(ctx context.Context, limit int) ([]*models.OrphanBlob, error) {
	query := `
		SELECT id, storage_key, reason, attempts, created_at FROM orphan_blobs
		ORDER BY attempts ASC, created_at ASC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select orphan blobs: %w", err)
	}
	defer rows.Close()

	var result []*models.OrphanBlob
	for rows.Next() {
		var item models.OrphanBlob
		if err := rows.Scan(&item.ID, &item.StorageKey, &item.Reason, &item.Attempts, &item.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) MarkAttempt(ctx context.Context, id, reason string) error {
	query := `
		UPDATE orphan_blobs SET attempts = attempts + 1, reason = $2
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, reason); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM orphan_blobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
