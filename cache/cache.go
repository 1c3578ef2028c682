package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/IvanBrykalov/shardgate/policy"
	"github.com/IvanBrykalov/shardgate/policy/lru"
)

var (
	// ErrNoLoader is returned by GetOrLoad when no Loader was configured.
	ErrNoLoader = errors.New("cache: no Loader provided")
	// ErrClosed is returned by GetOrLoad on a closed instance.
	ErrClosed = errors.New("cache: closed")
)

// cache is a single bounded instance. Every field below mu is guarded by it.
type cache[K comparable, V any] struct {
	opt    Options[K, V]
	closed atomic.Bool

	// singleflight group for coalescing concurrent loads in GetOrLoad.
	sf singleflight.Group

	mu     sync.Mutex
	m      map[K]*node[K, V]
	recent recency[K, V]
	age    ageList[K, V]
	pol    policy.Instance[K, V]

	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64
	invalid     uint64
}

// New constructs a cache instance and registers it.
// Defaults:
//   - nil Metrics  -> NoopMetrics
//   - nil Policy   -> LRU
//   - nil Registry -> DefaultRegistry (unless DisableRegistration)
func New[K comparable, V any](opt Options[K, V]) Cache[K, V] {
	if opt.MaxSize <= 0 {
		panic(fmt.Sprintf("cache %q: MaxSize must be > 0", opt.Name))
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Policy == nil {
		opt.Policy = lru.New[K, V]()
	}

	c := &cache[K, V]{
		opt: opt,
		m:   make(map[K]*node[K, V], opt.MaxSize),
	}
	c.pol = opt.Policy.New(&c.recent)

	if !opt.DisableRegistration {
		reg := opt.Registry
		if reg == nil {
			reg = DefaultRegistry
		}
		reg.Register(c)
	}
	return c
}

// ---- Cache[K,V] implementation ----

// Get returns the value for k and a presence flag.
func (c *cache[K, V]) Get(k K) (V, bool) {
	var zero V
	if c.closed.Load() {
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.m[k]
	if !ok {
		c.missLocked()
		return zero, false
	}
	now := c.now()
	if c.expiredLocked(n, now) {
		c.evictLocked(n, EvictTTL)
		c.missLocked()
		return zero, false
	}
	if c.opt.Validate != nil && !c.opt.Validate(n.val) {
		c.evictLocked(n, EvictInvalid)
		c.missLocked()
		return zero, false
	}

	n.accessed = now
	c.pol.OnGet(n)
	c.hits++
	c.opt.Metrics.Hit()
	return n.val, true
}

// Set inserts or updates k→v.
func (c *cache[K, V]) Set(k K, v V) {
	if c.closed.Load() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(k, v, true)
}

// Add inserts k→v only if k is absent (an expired k counts as absent).
func (c *cache[K, V]) Add(k K, v V) bool {
	if c.closed.Load() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.putLocked(k, v, false)
}

// Delete removes k if present. Explicit deletes are not evictions.
func (c *cache[K, V]) Delete(k K) bool {
	if c.closed.Load() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.m[k]
	if !ok {
		return false
	}
	c.unlinkLocked(n)
	c.opt.Metrics.Size(len(c.m), c.opt.MaxSize)
	return true
}

// Clear drops every entry without counting evictions.
func (c *cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for n := c.age.oldest; n != nil; {
		next := n.newer
		c.unlinkLocked(n)
		n = next
	}
	c.opt.Metrics.Size(0, c.opt.MaxSize)
}

// Len returns the number of live entries.
func (c *cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeExpiredLocked(c.now())
	return len(c.m)
}

// Stats returns a snapshot taken under the instance lock.
func (c *cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeExpiredLocked(c.now())
	return Stats{
		Name:        c.opt.Name,
		Size:        len(c.m),
		MaxSize:     c.opt.MaxSize,
		TTL:         c.opt.TTL,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		Invalid:     c.invalid,
	}
}

// Close marks the cache as closed. The instance keeps its registry slot.
func (c *cache[K, V]) Close() error {
	c.closed.Store(true)
	return nil
}

// GetOrLoad returns the value for k; on miss it loads via Options.Loader,
// coalescing concurrent loads for the same key.
// Cancelling ctx unblocks only this caller; the shared load keeps running
// with the context of the caller that started it.
func (c *cache[K, V]) GetOrLoad(ctx context.Context, k K) (V, error) {
	var zero V
	if c.closed.Load() {
		return zero, ErrClosed
	}
	if v, ok := c.Get(k); ok {
		return v, nil
	}
	if c.opt.Loader == nil {
		return zero, ErrNoLoader
	}

	ch := c.sf.DoChan(flightKey(k), func() (any, error) {
		// double-check after joining the flight
		if v, ok := c.Get(k); ok {
			return v, nil
		}
		v, err := c.opt.Loader(ctx, k)
		if err != nil {
			return zero, err
		}
		c.Set(k, v)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V) // a nil interface V comes back as an untyped nil
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// -------------------- internals (mu held) --------------------

// putLocked writes k→v. With overwrite=false an existing live key is left
// untouched and false is returned.
func (c *cache[K, V]) putLocked(k K, v V, overwrite bool) bool {
	now := c.now()
	c.purgeExpiredLocked(now)

	if n, ok := c.m[k]; ok {
		if !overwrite {
			return false
		}
		n.val = v
		n.written = now
		n.accessed = now
		c.age.touch(n)
		c.pol.OnUpdate(n)
		return true
	}

	// Make room first: the new key is never linked into a full instance.
	for len(c.m) >= c.opt.MaxSize {
		victim := c.victimLocked()
		if victim == nil {
			break
		}
		c.evictLocked(victim, EvictCapacity)
	}

	n := &node[K, V]{key: k, val: v, written: now, accessed: now}
	c.m[k] = n
	c.age.pushNewest(n)
	c.pol.OnAdd(n)
	c.opt.Metrics.Size(len(c.m), c.opt.MaxSize)
	return true
}

// victimLocked asks the policy for a victim and falls back to the LRU tail.
func (c *cache[K, V]) victimLocked() *node[K, V] {
	if e := c.pol.Victim(); e != nil {
		return e.(*node[K, V])
	}
	return c.recent.tail
}

// purgeExpiredLocked drops expired entries starting from the oldest write.
func (c *cache[K, V]) purgeExpiredLocked(now int64) {
	if c.opt.TTL <= 0 {
		return
	}
	for n := c.age.oldest; n != nil && c.expiredLocked(n, now); n = c.age.oldest {
		c.evictLocked(n, EvictTTL)
	}
}

func (c *cache[K, V]) expiredLocked(n *node[K, V], now int64) bool {
	if c.opt.TTL <= 0 {
		return false
	}
	return now-n.written >= int64(c.opt.TTL)
}

// evictLocked removes n, bumps the matching counter and fires OnEvict.
func (c *cache[K, V]) evictLocked(n *node[K, V], reason EvictReason) {
	c.unlinkLocked(n)
	switch reason {
	case EvictTTL:
		c.expirations++
	case EvictInvalid:
		c.invalid++
	default:
		c.evictions++
	}
	c.opt.Metrics.Evict(reason)
	c.opt.Metrics.Size(len(c.m), c.opt.MaxSize)
	if cb := c.opt.OnEvict; cb != nil {
		cb(n.key, n.val, reason)
	}
}

func (c *cache[K, V]) unlinkLocked(n *node[K, V]) {
	c.recent.Remove(n)
	c.age.remove(n)
	c.pol.OnRemove(n)
	delete(c.m, n.key)
}

func (c *cache[K, V]) missLocked() {
	c.misses++
	c.opt.Metrics.Miss()
}

func (c *cache[K, V]) now() int64 {
	if c.opt.Clock != nil {
		return c.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

// flightKey renders k for the singleflight group, which is keyed by string.
// %#v keeps distinct comparable values distinct (quoted strings, typed
// struct fields).
func flightKey[K comparable](k K) string {
	return fmt.Sprintf("%#v", k)
}
