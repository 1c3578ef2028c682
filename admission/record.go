package admission

import (
	"sync"
	"time"
)

// State is the lifecycle stage of a Record.
type State int

const (
	// Provisional: opened by a stream before its durable identity is known.
	Provisional State = iota
	// Migrated: re-keyed to the durable identity.
	Migrated
	// Fallback: created lazily by TryAdmit for an identity with no record.
	Fallback
	// Reaped: removed from the controller by disconnect, sweep or merge.
	Reaped
)

func (s State) String() string {
	switch s {
	case Provisional:
		return "provisional"
	case Migrated:
		return "migrated"
	case Fallback:
		return "fallback"
	case Reaped:
		return "reaped"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON and logs.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Record is the admission state of one logical session. The controller map
// points at it by identity; migration moves the pointer, never the data.
type Record struct {
	mu sync.Mutex

	identity     string
	migratedFrom string
	state        State

	limit   int
	permits int

	createdAt   time.Time
	lastTouched time.Time

	// mergedInto is set when a migration folded this record into another
	// one. Permits still held against this record are returned there.
	mergedInto *Record
}

func newRecord(identity string, limit int, state State, now time.Time) *Record {
	return &Record{
		identity:    identity,
		state:       state,
		limit:       limit,
		permits:     limit,
		createdAt:   now,
		lastTouched: now,
	}
}

// Snapshot is a copy of a Record's fields taken under its lock.
type Snapshot struct {
	Identity     string
	MigratedFrom string
	State        State
	Limit        int
	Permits      int
	InFlight     int
	CreatedAt    time.Time
	LastTouched  time.Time
}

func (r *Record) currentState() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Snapshot copies the record.
func (r *Record) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Identity:     r.identity,
		MigratedFrom: r.migratedFrom,
		State:        r.state,
		Limit:        r.limit,
		Permits:      r.permits,
		InFlight:     r.limit - r.permits,
		CreatedAt:    r.createdAt,
		LastTouched:  r.lastTouched,
	}
}

// tryAcquire takes one permit if available.
func (r *Record) tryAcquire(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastTouched = now
	if r.permits <= 0 {
		return false
	}
	r.permits--
	return true
}

// release returns one permit, following merges. permits never exceeds limit.
func (r *Record) release(now time.Time) {
	r.mu.Lock()
	if next := r.mergedInto; next != nil {
		r.mu.Unlock()
		next.release(now)
		return
	}
	if r.permits < r.limit {
		r.permits++
	}
	r.lastTouched = now
	r.mu.Unlock()
}

// idleFor reports how long the record has gone untouched.
func (r *Record) idleFor(now time.Time) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return now.Sub(r.lastTouched)
}

func (r *Record) markReaped() {
	r.mu.Lock()
	r.state = Reaped
	r.mu.Unlock()
}

// Permit is one admitted slot. Release it on every exit path.
type Permit struct {
	rec   *Record
	clock func() time.Time
	once  sync.Once
}

// Release returns the slot to the record it was taken from, even if that
// record has since been migrated or removed. Extra calls are no-ops.
func (p *Permit) Release() {
	p.once.Do(func() { p.rec.release(p.clock()) })
}

// Identity returns the identity the permit's record carries now.
func (p *Permit) Identity() string {
	p.rec.mu.Lock()
	defer p.rec.mu.Unlock()
	return p.rec.identity
}
