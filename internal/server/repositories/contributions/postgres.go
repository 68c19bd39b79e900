package contributions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/qfolders/qfolders/internal/common"
	"github.com/qfolders/qfolders/internal/dbx"
	"github.com/qfolders/qfolders/internal/server/models"
)

// PostgresRepository implements Repository and Upserter over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Find(ctx context.Context, userID string, day time.Time) (*models.ContributionRecord, error) {
	query := `
		SELECT user_id, day, count FROM contributions
		WHERE user_id = $1 AND day = $2
	`
	rec := &models.ContributionRecord{}
	if err := r.db.QueryRowContext(ctx, query, userID, day).Scan(&rec.UserID, &rec.Date, &rec.Count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

// Insert runs under a savepoint so a lost race on the primary key leaves the
// caller's transaction usable for the follow-up Increment.
func (r *PostgresRepository) Insert(ctx context.Context, userID string, day time.Time) error {
	query := `
		INSERT INTO contributions (user_id, day, count)
		VALUES ($1, $2, 1)
	`
	err := dbx.Savepoint(ctx, r.db, "contribution_insert", func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, query, userID, day)
		return err
	})
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Increment(ctx context.Context, userID string, day time.Time) error {
	query := `
		UPDATE contributions SET count = count + 1
		WHERE user_id = $1 AND day = $2
	`
	res, err := r.db.ExecContext(ctx, query, userID, day)
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

// Upsert increments the counter, creating it at 1 when absent, and returns
// the new count.
func (r *PostgresRepository) Upsert(ctx context.Context, userID string, day time.Time) (int, error) {
	query := `
		INSERT INTO contributions (user_id, day, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (user_id, day)
		DO UPDATE SET count = contributions.count + 1
		RETURNING count
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, day).Scan(&count); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) SelectRange(ctx context.Context, userID string, from, to time.Time) ([]*models.ContributionRecord, error) {
	query := `
		SELECT user_id, day, count FROM contributions
		WHERE user_id = $1 AND day BETWEEN $2 AND $3
		ORDER BY day ASC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to select contributions: %w", err)
	}
	defer rows.Close()

	var result []*models.ContributionRecord
	for rows.Next() {
		var item models.ContributionRecord
		if err := rows.Scan(&item.UserID, &item.Date, &item.Count); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
