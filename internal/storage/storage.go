package storage

import "context"

// ObjectStore persists a generated image under a key and returns the
// durable public URL it can be served from.
type ObjectStore interface {
	Store(ctx context.Context, key string, data []byte) (string, error)
}
