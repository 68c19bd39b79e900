package dbx

import (
	"context"
	"database/sql"
	"fmt"
)

// AuthenticatedRole is the Postgres role row-level-security policies are
// written against.
const AuthenticatedRole = "authenticated"

// WithClaims runs fn inside a transaction whose local settings carry the
// caller's JWT claims and role, so that policies reading
// current_setting('request.jwt.claims') (auth.uid()) see the caller.
// The settings are transaction-local and vanish on commit or rollback.
func WithClaims(ctx context.Context, db *sql.DB, claimsJSON string, role string, fn TxFunc) error {
	return WithTx(ctx, db, nil, func(ctx context.Context, tx DBTX) error {
		query := `SELECT set_config('request.jwt.claims', $1, true), set_config('role', $2, true)`
		if _, err := tx.ExecContext(ctx, query, claimsJSON, role); err != nil {
			return fmt.Errorf("set request claims: %w", err)
		}
		return fn(ctx, tx)
	})
}
