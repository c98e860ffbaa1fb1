package storage

import (
	"context"
	"io"
)

type PutResult struct {
	Key      string
	Location string
	ETag     string
}

// ObjectStore keeps allocation roster reports.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (*PutResult, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}
