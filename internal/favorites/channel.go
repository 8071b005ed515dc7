package favorites

import (
	"context"
	"errors"
)

var (
	// ErrNotAuthenticated rejects writes and subscriptions issued before a
	// successful sign-in. Such calls are never queued.
	ErrNotAuthenticated = errors.New("favorites: not authenticated")
)

// Favorite is a user-created, owner-scoped record referencing a place with a
// free-text note. ID and CreatedAt are assigned by the remote store at
// creation (server clock) and are immutable afterwards; only Note is
// user-editable.
type Favorite struct {
	ID        string `json:"id"`
	CityName  string `json:"cityName"`
	Note      string `json:"note"`
	CreatedAt int64  `json:"createdAt"` // epoch millis, server clock
	Owner     string `json:"createdBy"`
}

// Channel bridges an authenticated identity and its remote favorites
// collection. The channel starts unauthenticated; a successful SignIn is
// required before any write or subscription. Authentication failure leaves
// the channel unauthenticated indefinitely with no automatic retry.
type Channel interface {
	// SignIn performs an anonymous sign-in and returns the owner identity.
	SignIn(ctx context.Context) (string, error)

	// Add creates a record; the remote store assigns id and createdAt.
	Add(ctx context.Context, cityName, note string) (Favorite, error)

	// UpdateNote patches the note field only. Unknown ids are a no-op.
	UpdateNote(ctx context.Context, id, note string) error

	// Delete removes a record. Idempotent; unknown ids are a no-op.
	Delete(ctx context.Context, id string) error

	// Observe returns a non-terminating feed of full-collection snapshots,
	// one per remote mutation by any writer. Re-observing cancels the
	// previous feed first. The feed is closed on ctx cancellation or Close.
	Observe(ctx context.Context) (<-chan []Favorite, error)

	// Close tears down the live subscription and any remote connections.
	Close()
}
