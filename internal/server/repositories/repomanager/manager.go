package repomanager

import (
	"context"

	"github.com/qfolders/qfolders/internal/dbx"
	"github.com/qfolders/qfolders/internal/server/repositories/contributions"
	"github.com/qfolders/qfolders/internal/server/repositories/folders"
	"github.com/qfolders/qfolders/internal/server/repositories/orphans"
	"github.com/qfolders/qfolders/internal/server/repositories/questions"
	"github.com/qfolders/qfolders/internal/server/repositories/refreshtokens"
	"github.com/qfolders/qfolders/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so the same code
// path works on a plain connection and inside a (claims-scoped) transaction.
type RepositoryManager interface {
	DetectCapabilities(ctx context.Context, db dbx.DBTX) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Folders(db dbx.DBTX) folders.Repository
	Questions(db dbx.DBTX) questions.Repository
	Contributions(db dbx.DBTX) contributions.Repository
	Orphans(db dbx.DBTX) orphans.Repository
	Capabilities() Capabilities
}

// Capabilities lists optional schema features discovered at startup.
type Capabilities struct {
	TerminalOutput bool
}
