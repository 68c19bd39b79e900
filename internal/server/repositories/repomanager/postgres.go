// Package repomanager provides a concrete RepositoryManager for PostgreSQL.
// Schema migrations are managed outside the application; at startup the
// manager only probes for optional columns.
package repomanager

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/qfolders/qfolders/internal/dbx"
	"github.com/qfolders/qfolders/internal/server/repositories/contributions"
	"github.com/qfolders/qfolders/internal/server/repositories/folders"
	"github.com/qfolders/qfolders/internal/server/repositories/orphans"
	"github.com/qfolders/qfolders/internal/server/repositories/questions"
	"github.com/qfolders/qfolders/internal/server/repositories/refreshtokens"
	"github.com/qfolders/qfolders/internal/server/repositories/schema"
	"github.com/qfolders/qfolders/internal/server/repositories/users"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations.
type PostgresRepositoryManager struct {
	terminalOutput atomic.Bool
}

// newInspector is a seam for tests.
var newInspector = func(db dbx.DBTX) schema.Inspector {
	return schema.NewPostgresInspector(db)
}

// DetectCapabilities probes the schema once for optional columns.
func (m *PostgresRepositoryManager) DetectCapabilities(ctx context.Context, db dbx.DBTX) error {
	ok, err := newInspector(db).HasColumn(ctx, "questions", "terminal_output")
	if err != nil {
		return fmt.Errorf("detect terminal_output column: %w", err)
	}
	m.terminalOutput.Store(ok)
	return nil
}

func (m *PostgresRepositoryManager) Capabilities() Capabilities {
	return Capabilities{TerminalOutput: m.terminalOutput.Load()}
}

// Users returns a users.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

// RefreshTokens returns a refreshtokens.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return refreshtokens.NewPostgresRepository(db)
}

// Folders returns a folders.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Folders(db dbx.DBTX) folders.Repository {
	return folders.NewPostgresRepository(db)
}

// Questions returns a questions.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Questions(db dbx.DBTX) questions.Repository {
	return questions.NewPostgresRepository(db, m.terminalOutput.Load())
}

// Contributions returns a contributions.Repository bound to the provided DBTX.
// The concrete value also implements contributions.Upserter.
func (m *PostgresRepositoryManager) Contributions(db dbx.DBTX) contributions.Repository {
	return contributions.NewPostgresRepository(db)
}

// Orphans returns an orphans.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Orphans(db dbx.DBTX) orphans.Repository {
	return orphans.NewPostgresRepository(db)
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}
