package cache

import "sync"

// Reporter is anything that can report cache stats. Every Cache is one.
type Reporter interface {
	Stats() Stats
}

// Registry is an append-only list of live cache instances.
// Instances live for the process lifetime, so nothing is ever removed.
type Registry struct {
	mu     sync.RWMutex
	caches []Reporter
}

// DefaultRegistry receives every instance built without Options.Registry.
var DefaultRegistry = NewRegistry()

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Register appends r.
func (r *Registry) Register(c Reporter) {
	r.mu.Lock()
	r.caches = append(r.caches, c)
	r.mu.Unlock()
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.caches)
}

// Snapshot collects stats from every registered instance in registration
// order. The registry lock is released before instances are queried so a
// slow instance never blocks registration.
func (r *Registry) Snapshot() []Stats {
	r.mu.RLock()
	caches := make([]Reporter, len(r.caches))
	copy(caches, r.caches)
	r.mu.RUnlock()

	out := make([]Stats, 0, len(caches))
	for _, c := range caches {
		out = append(out, c.Stats())
	}
	return out
}
