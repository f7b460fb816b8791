package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

// ErrObjectTooLarge is returned by ReadAll when an object exceeds the caller's limit.
var ErrObjectTooLarge = errors.New("object too large")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
}

// ObjectStore is the slice of an S3-compatible bucket that artifact loading
// and publishing need.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
}

// ReadAll fetches a whole object. A limit of zero or less means no limit.
func ReadAll(ctx context.Context, store ObjectStore, key string, limit int64) ([]byte, error) {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var src io.Reader = reader
	if limit > 0 {
		src = io.LimitReader(reader, limit+1)
	}
	body, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read object %q: %w", key, err)
	}
	if limit > 0 && int64(len(body)) > limit {
		return nil, fmt.Errorf("read object %q: %w (limit %d bytes)", key, ErrObjectTooLarge, limit)
	}
	return body, nil
}
