// Package policy defines the contract between a cache instance and its
// eviction policy.
package policy

// Entry is the minimal view of a resident cache entry a policy works with.
type Entry[K comparable, V any] interface {
	Key() K
	Value() *V
}

// List exposes the O(1) recency-list operations a policy may use.
// Implementations are provided by the cache instance.
//
// Concurrency: all calls happen under the instance lock.
// The list only orders entries; the instance owns the key->entry map.
type List[K comparable, V any] interface {
	// MoveToFront marks the entry as most recently used.
	MoveToFront(Entry[K, V])
	// PushFront links a newly admitted entry at the most recent end.
	PushFront(Entry[K, V])
	// Remove unlinks the entry.
	Remove(Entry[K, V])
	// Back returns the least recently used entry, or nil when empty.
	Back() Entry[K, V]
	// Len returns the number of linked entries.
	Len() int
}

// Instance is an eviction policy bound to one cache instance's list.
// All methods are invoked under the instance lock.
//
// Semantics:
//   - Victim is asked for an entry to drop before a new key is admitted into
//     a full instance. Returning nil refuses to evict, and the instance then
//     falls back to the list tail so the size bound always holds.
//   - OnAdd links a new entry; OnGet/OnUpdate record a use.
//   - OnRemove notifies the policy after the instance unlinked an entry for
//     any reason (delete, eviction, expiry).
type Instance[K comparable, V any] interface {
	Victim() Entry[K, V]
	OnAdd(Entry[K, V])
	OnGet(Entry[K, V])
	OnUpdate(Entry[K, V])
	OnRemove(Entry[K, V])
}

// Policy is a factory producing an Instance bound to a List.
type Policy[K comparable, V any] interface {
	New(List[K, V]) Instance[K, V]
}
