// Package datastore is the single entry point to the relational store.
// Every user-facing call runs inside a transaction carrying the caller's
// verified JWT claims, so the store's row-level-security policies decide
// what the caller may see or change. A privileged variant without claims
// exists for blob bookkeeping.
package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/qfolders/qfolders/internal/common"
	"github.com/qfolders/qfolders/internal/dbx"
	"github.com/qfolders/qfolders/internal/server/auth"
)

// TxFunc is the unit of work run by the gateway.
type TxFunc = dbx.TxFunc

// Gateway runs units of work against *sql.DB.
type Gateway struct {
	db     *sql.DB
	secret []byte
}

// NewGateway returns a Gateway that verifies access tokens with secret.
func NewGateway(db *sql.DB, secret []byte) *Gateway {
	return &Gateway{db: db, secret: secret}
}

// Scoped runs fn as the owner of accessToken. A token that does not verify
// and a store-side permission failure both yield common.ErrorUnauthorized.
func (g *Gateway) Scoped(ctx context.Context, accessToken string, fn TxFunc) error {
	claims, err := auth.VerifyClaims(accessToken, g.secret)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrorUnauthorized, err)
	}
	claimsJSON, err := claims.JSON()
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	role := claims.Role
	if role == "" {
		role = dbx.AuthenticatedRole
	}

	return classify(dbx.WithClaims(ctx, g.db, claimsJSON, role, fn))
}

// Privileged runs fn with the connection's own role.
func (g *Gateway) Privileged(ctx context.Context, fn TxFunc) error {
	return classify(dbx.WithTx(ctx, g.db, nil, fn))
}

// Ping checks connectivity.
func (g *Gateway) Ping(ctx context.Context) error {
	return classify(g.db.PingContext(ctx))
}

// classify maps driver errors onto the common error taxonomy. Errors that
// already belong to it pass through unchanged.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, common.ErrorNotFound),
		errors.Is(err, common.ErrorAlreadyExists),
		errors.Is(err, common.ErrorValidation),
		errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrorInternal):
		return err
	case dbx.IsInsufficientPrivilege(err):
		return fmt.Errorf("%w: %v", common.ErrorUnauthorized, err)
	case dbx.IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", common.ErrorAlreadyExists, err)
	case dbx.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: %v", common.ErrorNotFound, err)
	default:
		return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
}
