package blob

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("blob not found")

// PutOptions carries optional object attributes.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info describes a stored object.
type Info struct {
	Key         string
	Locator     string
	Size        int64
	ContentType string
	StoredAt    time.Time
}

// Store persists generated documents. Put overwrites an existing key.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// PresignURL returns a time-limited download URL.
	PresignURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}
