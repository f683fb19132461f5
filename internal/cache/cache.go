package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Cache stores graded results so an identical submission does not hit the model twice.
type Cache interface {
	// GetResult retrieves a cached result by key.
	// Returns nil if not found.
	GetResult(ctx context.Context, key string) (*Entry, error)

	// SetResult stores a result with TTL.
	SetResult(ctx context.Context, key string, entry *Entry, ttl time.Duration) error

	// Close closes the cache connection.
	Close() error
}

// Entry is a cached grading. Result is kept as raw JSON so the cache does not
// depend on the grading package.
type Entry struct {
	Model    string          `json:"model"`
	Result   json.RawMessage `json:"result"`
	StoredAt time.Time       `json:"stored_at"`
}
