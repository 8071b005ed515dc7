package weather

import (
	"context"
)

// Client abstracts the remote weather source. Both calls are single-attempt
// from the caller's point of view: any transport, status, or decode problem
// comes back as one opaque error, and retry policy (there is none) belongs to
// the orchestrator.
type Client interface {
	FetchCurrent(ctx context.Context, place string, unit Unit) (Snapshot, error)
	FetchForecast(ctx context.Context, place string, unit Unit) ([]ForecastEntry, error)
}
