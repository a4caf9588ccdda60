package objects

import (
	"context"
	"time"
)

// Store is the object-storage collaborator port. Any fault it reports is
// treated as transient by the workflow retry policy.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, metadata map[string]string) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)

	// PresignGet issues a time-limited download URL for an object, with the
	// expiry the URL was issued under.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error)
}
