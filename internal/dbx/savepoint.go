package dbx

import (
	"context"
	"errors"
	"fmt"
)

// Savepoint runs fn under a savepoint of the enclosing transaction. If fn
// fails, the transaction is rolled back to the savepoint and stays usable,
// which Postgres otherwise refuses after any statement error (25P02).
// db must be a transaction; name must be a plain SQL identifier.
func Savepoint(ctx context.Context, db DBTX, name string, fn func(ctx context.Context) error) error {
	if _, err := db.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint %s: %w", name, err)
	}

	if err := fn(ctx); err != nil {
		if _, rerr := db.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rerr != nil {
			return errors.Join(err, fmt.Errorf("rollback to savepoint %s: %w", name, rerr))
		}
		return err
	}

	if _, err := db.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint %s: %w", name, err)
	}
	return nil
}
