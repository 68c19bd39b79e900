package models

import "time"

// OrphanBlob is a stored blob whose best-effort deletion failed and that
// no record references anymore.
type OrphanBlob struct {
	ID         string
	StorageKey string
	Reason     string
	Attempts   int
	CreatedAt  time.Time
}
