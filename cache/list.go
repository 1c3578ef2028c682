package cache

import "github.com/IvanBrykalov/shardgate/policy"

// node is one resident entry. It is linked on two intrusive lists owned by
// the instance: the recency list (head=MRU, tail=LRU), ordered by the
// policy, and the age list (oldest→newest write), used for TTL purges.
type node[K comparable, V any] struct {
	key K
	val V

	// Recency list links.
	prev *node[K, V]
	next *node[K, V]

	// Age list links.
	older *node[K, V]
	newer *node[K, V]

	// UnixNano of the last write and the last read or write.
	written  int64
	accessed int64
}

// Key implements policy.Entry.
func (n *node[K, V]) Key() K { return n.key }

// Value implements policy.Entry.
// Only dereference while holding the instance lock.
func (n *node[K, V]) Value() *V { return &n.val }

// -------------------- recency list (mu held) --------------------

// recency implements policy.List over the instance's MRU↔LRU list.
type recency[K comparable, V any] struct {
	head *node[K, V]
	tail *node[K, V]
	len  int
}

func (l *recency[K, V]) PushFront(e policy.Entry[K, V]) {
	n := e.(*node[K, V])
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
	l.len++
}

func (l *recency[K, V]) MoveToFront(e policy.Entry[K, V]) {
	n := e.(*node[K, V])
	if n == l.head {
		return
	}
	l.detach(n)
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
}

func (l *recency[K, V]) Remove(e policy.Entry[K, V]) {
	l.detach(e.(*node[K, V]))
	l.len--
}

// Back returns an untyped nil on an empty list so policies can compare
// the result against nil.
func (l *recency[K, V]) Back() policy.Entry[K, V] {
	if l.tail == nil {
		return nil
	}
	return l.tail
}

func (l *recency[K, V]) Len() int { return l.len }

func (l *recency[K, V]) detach(n *node[K, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if l.head == n {
		l.head = n.next
	}
	if l.tail == n {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

// -------------------- age list (mu held) --------------------

// ageList orders nodes by write time. With a uniform TTL the oldest node is
// always the first to expire.
type ageList[K comparable, V any] struct {
	oldest *node[K, V]
	newest *node[K, V]
}

func (a *ageList[K, V]) pushNewest(n *node[K, V]) {
	n.newer = nil
	n.older = a.newest
	if a.newest != nil {
		a.newest.newer = n
	}
	a.newest = n
	if a.oldest == nil {
		a.oldest = n
	}
}

func (a *ageList[K, V]) remove(n *node[K, V]) {
	if n.older != nil {
		n.older.newer = n.newer
	}
	if n.newer != nil {
		n.newer.older = n.older
	}
	if a.oldest == n {
		a.oldest = n.newer
	}
	if a.newest == n {
		a.newest = n.older
	}
	n.older, n.newer = nil, nil
}

// touch moves n to the newest end after an overwrite.
func (a *ageList[K, V]) touch(n *node[K, V]) {
	if a.newest == n {
		return
	}
	a.remove(n)
	a.pushNewest(n)
}
