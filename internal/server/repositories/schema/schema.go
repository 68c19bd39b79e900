// Package schema inspects the deployed database schema so optional columns
// can be detected once at startup.
package schema

import (
	"context"
	"fmt"

	"github.com/qfolders/qfolders/internal/dbx"
)

type Inspector interface {
	HasColumn(ctx context.Context, table, column string) (bool, error)
}

type PostgresInspector struct {
	db dbx.DBTX
}

func NewPostgresInspector(db dbx.DBTX) *PostgresInspector {
	return &PostgresInspector{db: db}
}

// HasColumn reports whether table.column exists in the current schema search path.
func (i *PostgresInspector) HasColumn(ctx context.Context, table, column string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2
		)
	`
	var ok bool
	if err := i.db.QueryRowContext(ctx, query, table, column).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}
