package crawler

import (
	"context"
	"time"
)

// Fetcher fetches a URL and returns the body plus the post-redirect URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// PostingStore persists postings keyed by URL.
type PostingStore interface {
	// EnsureSchema creates the jobs table if it is missing.
	EnsureSchema(ctx context.Context) error
	// InsertNew inserts each posting unless its URL is already stored and
	// returns only the postings that were inserted. On error the returned
	// slice holds exactly the postings that stayed committed, if any.
	InsertNew(ctx context.Context, postings []Posting) ([]Posting, error)
	// Query returns rows matching the filter ordered by posted_at descending.
	Query(ctx context.Context, filter Filter) ([]JobRow, error)
	Close() error
}

// Deliverer sends a rendered report somewhere.
type Deliverer interface {
	Deliver(ctx context.Context, text string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
