// Package blobstore keeps attachment content in an object store bucket.
package blobstore

import (
	"context"
	"io"
	"time"
)

// Object is a blob opened for reading. The caller closes Body.
type Object struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

// Store puts, reads and deletes blobs in a single fixed bucket.
// Get returns common.ErrorNotFound for a missing key; Delete of a missing key
// succeeds. Transport failures wrap common.ErrStoreUnavailable.
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
}

// Presigner is implemented by stores that can hand out time-limited
// download URLs, so content does not have to pass through the server.
type Presigner interface {
	PresignGet(ctx context.Context, key, downloadName string, ttl time.Duration) (string, error)
}
