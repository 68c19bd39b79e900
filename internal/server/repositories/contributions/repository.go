// Package contributions stores the per-user daily activity counters.
package contributions

import (
	"context"
	"time"

	"github.com/qfolders/qfolders/internal/server/models"
)

// Repository is the minimal table access the ledger needs: a lookup, a
// create and an increment. Dates are calendar days (see timex.Day).
type Repository interface {
	// Find returns the counter for (userID, day) or common.ErrorNotFound.
	Find(ctx context.Context, userID string, day time.Time) (*models.ContributionRecord, error)

	// Insert creates the counter with count 1. A concurrent insert of the
	// same key yields common.ErrorAlreadyExists, and the enclosing
	// transaction must remain usable afterwards.
	Insert(ctx context.Context, userID string, day time.Time) error

	// Increment adds one to an existing counter.
	Increment(ctx context.Context, userID string, day time.Time) error

	// SelectRange returns stored counters with from <= day <= to, ascending.
	SelectRange(ctx context.Context, userID string, from, to time.Time) ([]*models.ContributionRecord, error)
}

// Upserter is implemented by stores that can increment-or-create in a
// single statement.
type Upserter interface {
	Upsert(ctx context.Context, userID string, day time.Time) (int, error)
}
