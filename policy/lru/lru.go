// Package lru implements the least-recently-used eviction policy.
package lru

import "github.com/IvanBrykalov/shardgate/policy"

// lru keeps the recency list in strict access order: every read or write
// moves the entry to the front, and the victim is always the tail.
type lru[K comparable, V any] struct {
	l policy.List[K, V]
}

type lruPolicy[K comparable, V any] struct{}

// New returns a Policy factory that builds LRU instances.
func New[K comparable, V any]() policy.Policy[K, V] { return lruPolicy[K, V]{} }

// New implements policy.Policy.
func (lruPolicy[K, V]) New(l policy.List[K, V]) policy.Instance[K, V] {
	return &lru[K, V]{l: l}
}

// Victim returns the least recently accessed entry.
func (p *lru[K, V]) Victim() policy.Entry[K, V] { return p.l.Back() }

// OnAdd links the new entry as most recently used.
func (p *lru[K, V]) OnAdd(e policy.Entry[K, V]) { p.l.PushFront(e) }

// OnGet promotes the entry.
func (p *lru[K, V]) OnGet(e policy.Entry[K, V]) { p.l.MoveToFront(e) }

// OnUpdate promotes the entry; an overwrite counts as a use.
func (p *lru[K, V]) OnUpdate(e policy.Entry[K, V]) { p.l.MoveToFront(e) }

// OnRemove has nothing to clean up for plain LRU.
func (p *lru[K, V]) OnRemove(policy.Entry[K, V]) {}
