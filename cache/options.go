package cache

import (
	"context"
	"time"

	"github.com/IvanBrykalov/shardgate/policy"
)

// EvictReason explains why an entry left the cache without a Delete.
type EvictReason int

const (
	// EvictCapacity: dropped to make room for a new key in a full instance.
	EvictCapacity EvictReason = iota
	// EvictTTL: dropped because it reached its TTL.
	EvictTTL
	// EvictInvalid: dropped because Options.Validate rejected it on read.
	EvictInvalid
)

// String returns a stable label for the reason.
func (r EvictReason) String() string {
	switch r {
	case EvictTTL:
		return "ttl"
	case EvictInvalid:
		return "invalid"
	default:
		return "capacity"
	}
}

// Metrics receives per-operation observability signals.
// Calls are made under the instance lock; implementations must be cheap.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries, max int)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Options configures a cache instance. Only MaxSize is required.
//   - nil Policy   => LRU
//   - nil Metrics  => NoopMetrics
//   - nil Registry => DefaultRegistry
//   - TTL <= 0     => entries never expire
type Options[K comparable, V any] struct {
	// Name identifies the resource type in logs and metrics.
	Name string

	// MaxSize is the hard entry count limit. Must be > 0.
	MaxSize int

	// TTL is the maximum residency of an entry, counted from its last write.
	TTL time.Duration

	// Policy chooses eviction victims; nil => LRU.
	Policy policy.Policy[K, V]

	// Loader fetches a value on miss. Used by GetOrLoad.
	Loader func(ctx context.Context, k K) (V, error)

	// Validate reports whether a stored value is still usable.
	// A false result drops the entry and turns the read into a miss.
	Validate func(v V) bool

	// OnEvict is called under the instance lock for every eviction.
	OnEvict func(k K, v V, reason EvictReason)
	Metrics Metrics

	// Registry receives the instance at construction; nil => DefaultRegistry.
	Registry *Registry
	// DisableRegistration keeps the instance out of any registry.
	DisableRegistration bool

	// Clock overrides the time source (tests). Nil => time.Now().
	Clock Clock
}
