// Package services contains server-side business logic: the credential
// lifecycle, attachment storage, the contribution ledger and the record
// service that composes them for folder and question operations.
//
// Every service reports failures with the sentinels of package common; no
// driver, SDK or HTTP error reaches the caller unwrapped.
package services

import (
	"context"

	"github.com/qfolders/qfolders/internal/server/datastore"
)

// DataStore runs units of work against the relational store, either scoped
// to the owner of an access token or with the service's own privileges.
// *datastore.Gateway implements it.
type DataStore interface {
	Scoped(ctx context.Context, accessToken string, fn datastore.TxFunc) error
	Privileged(ctx context.Context, fn datastore.TxFunc) error
}
