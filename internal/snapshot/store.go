package snapshot

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no blob is stored under a key.
	ErrNotFound = errors.New("no snapshot for key")
)

// Logical keys used by the orchestrator.
const (
	KeyWeather   = "weather:latest"
	KeyFavorites = "favorites:latest"
	KeyIdentity  = "identity:device"
)

// Store is a generic durable key/value blob store. No transactions, no
// expiry; callers tolerate decode failure on stale formats by treating it as
// a cache miss.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}
