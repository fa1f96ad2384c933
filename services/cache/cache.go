package cache

import "time"

// CacheService defines the interface for the fetch-block cache.
// The crawler uses it to remember sites that answered with a
// rate-limit or block status so the next cycle leaves them alone.
type CacheService interface {
	// Get retrieves a value from the cache
	Get(key string) ([]byte, error)

	// Set stores a value in the cache with an expiration time
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache
	Delete(key string) error
}
