package cache

import "context"

// Cache is a bounded, named key/value store with LRU eviction and a
// per-instance TTL. All methods are safe for concurrent use; every operation
// on one instance is serialized by that instance's own lock.
type Cache[K comparable, V any] interface {
	// Get returns the value for k and whether it was a hit.
	// Expired or invalid entries are removed and reported as a miss.
	// A hit promotes the entry to most recently used.
	Get(k K) (V, bool)

	// Set inserts or overwrites k→v. When k is new and the instance is full,
	// the least recently used entry is evicted before k is admitted.
	Set(k K, v V)

	// Add inserts k→v only if k is not resident. Returns false otherwise.
	Add(k K, v V) bool

	// Delete removes k and reports whether it was resident.
	Delete(k K) bool

	// Clear drops every entry. Counters are kept.
	Clear()

	// Len returns the number of live entries after purging expired ones.
	Len() int

	// Stats returns a consistent snapshot of size and counters.
	Stats() Stats

	// GetOrLoad returns the value for k, loading it via Options.Loader on a
	// miss. Concurrent loads of the same key are coalesced.
	GetOrLoad(ctx context.Context, k K) (V, error)

	// Close marks the instance closed; later reads miss and writes are
	// dropped. The instance stays in its registry.
	Close() error
}
