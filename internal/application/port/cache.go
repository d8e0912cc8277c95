package port

import "context"

// Cache stores the latest decisions for cheap dashboard reads.
type Cache interface {
	// Get retrieves a value from cache.
	Get(ctx context.Context, key string, dest interface{}) error

	// Set stores a value in cache.
	Set(ctx context.Context, key string, value interface{}) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// Close closes the cache connection.
	Close() error
}

// Cache keys for the latest control-plane outputs.
const (
	CacheKeySamplingDecision = "ops:sampling:latest"
	CacheKeyGateResult       = "ops:gate:latest"
)
