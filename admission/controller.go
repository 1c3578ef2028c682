package admission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	logutil "github.com/IvanBrykalov/shardgate/internal/logging"
)

const (
	// DefaultLimit is the per-session concurrency limit.
	DefaultLimit = 2
	// DefaultRetryAfter is the backoff hint carried by rejections.
	DefaultRetryAfter = 5 * time.Second
)

// Options configures a Controller. Zero values get defaults in NewController.
type Options struct {
	// Limit is the number of concurrent admissions per session.
	Limit int
	// RetryAfter is the hint returned with every rejection.
	RetryAfter time.Duration
	// Clock overrides time.Now (tests).
	Clock   func() time.Time
	Metrics Metrics
	Logger  logr.Logger
}

// Controller owns the identity→record map. The map has its own RWMutex;
// each record has its own mutex, so traffic on unrelated sessions only
// meets on brief map lookups.
type Controller struct {
	opt Options
	log logr.Logger

	mu      sync.RWMutex
	records map[string]*Record
}

// NewController returns a Controller with defaults applied:
//   - Limit <= 0      -> DefaultLimit
//   - RetryAfter <= 0 -> DefaultRetryAfter
//   - nil Clock       -> time.Now
//   - nil Metrics     -> NoopMetrics
func NewController(opt Options) *Controller {
	if opt.Limit <= 0 {
		opt.Limit = DefaultLimit
	}
	if opt.RetryAfter <= 0 {
		opt.RetryAfter = DefaultRetryAfter
	}
	if opt.Clock == nil {
		opt.Clock = time.Now
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	log := opt.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Controller{
		opt:     opt,
		log:     log.WithName("admission"),
		records: make(map[string]*Record),
	}
}

// Limit returns the configured per-session limit.
func (c *Controller) Limit() int { return c.opt.Limit }

// RetryAfter returns the configured rejection hint.
func (c *Controller) RetryAfter() time.Duration { return c.opt.RetryAfter }

// Open registers a provisional record for identity. If a record already
// exists it is returned unchanged.
func (c *Controller) Open(identity string) *Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, ok := c.records[identity]; ok {
		return rec
	}
	rec := newRecord(identity, c.opt.Limit, Provisional, c.opt.Clock())
	c.records[identity] = rec
	c.opt.Metrics.Sessions(len(c.records))
	c.log.V(logutil.DEBUG).Info("Opened provisional session", "identity", identity)
	return rec
}

// OpenProvisional opens a record under a freshly generated identity.
func (c *Controller) OpenProvisional() (string, *Record) {
	id := "provisional-" + uuid.NewString()
	return id, c.Open(id)
}

// TryAdmit takes one permit for identity without blocking.
//
// An identity with no record gets a Fallback record with the default limit:
// the request may have raced ahead of the stream's migration. The reaper
// cleans it up if no stream ever claims it.
func (c *Controller) TryAdmit(ctx context.Context, identity string) (*Permit, error) {
	if identity == "" {
		return nil, ErrUnknownSession
	}
	rec := c.lookupOrFallback(identity)

	if !rec.tryAcquire(c.opt.Clock()) {
		c.opt.Metrics.Rejected()
		logr.FromContextOrDiscard(ctx).V(logutil.VERBOSE).Info("Admission rejected",
			"identity", identity, "limit", c.opt.Limit)
		return nil, &RejectedError{Identity: identity, Limit: c.opt.Limit, RetryAfter: c.opt.RetryAfter}
	}
	c.opt.Metrics.Admitted()
	logr.FromContextOrDiscard(ctx).V(logutil.TRACE).Info("Admitted", "identity", identity)
	return &Permit{rec: rec, clock: c.opt.Clock}, nil
}

// Release returns one permit to the live record for identity. Prefer
// Permit.Release, which is bound to the exact record and idempotent.
func (c *Controller) Release(identity string) {
	c.mu.RLock()
	rec, ok := c.records[identity]
	c.mu.RUnlock()
	if ok {
		rec.release(c.opt.Clock())
	}
}

// Migrate re-keys the record stored under provisional to durable.
//
// It returns true when the map changed. Repeating a completed migration is
// a no-op returning false. Only a Provisional record can migrate
// (ErrNotProvisional otherwise). If durable already has a Fallback record,
// created by a request that beat the migration, the stream's record takes
// its place and inherits its in-flight permits, so the session stays at one
// record and one limit. A durable identity held by any other live record
// is refused with ErrSessionInUse.
func (c *Controller) Migrate(provisional, durable string) (bool, error) {
	if durable == "" {
		return false, fmt.Errorf("migrate %q: %w", provisional, ErrUnknownSession)
	}
	if provisional == durable {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[provisional]
	existing, durableOK := c.records[durable]
	if !ok {
		if durableOK {
			return false, nil
		}
		return false, fmt.Errorf("migrate %q to %q: %w", provisional, durable, ErrSessionNotFound)
	}

	if st := rec.currentState(); st != Provisional {
		return false, fmt.Errorf("migrate %q (%s) to %q: %w", provisional, st, durable, ErrNotProvisional)
	}
	if durableOK && existing != rec {
		if st := existing.currentState(); st != Fallback {
			return false, fmt.Errorf("migrate %q to %q (%s): %w", provisional, durable, st, ErrSessionInUse)
		}
		c.absorbLocked(rec, existing)
	}

	now := c.opt.Clock()

	delete(c.records, provisional)
	c.records[durable] = rec

	rec.mu.Lock()
	rec.identity = durable
	rec.migratedFrom = provisional
	rec.state = Migrated
	rec.lastTouched = now
	rec.mu.Unlock()

	c.opt.Metrics.Migrated()
	c.opt.Metrics.Sessions(len(c.records))
	c.log.V(logutil.DEBUG).Info("Migrated session", "from", provisional, "to", durable)
	return true, nil
}

// absorbLocked folds old into rec: old's in-flight permits are charged to
// rec and future releases against old are forwarded to rec.
func (c *Controller) absorbLocked(rec, old *Record) {
	old.mu.Lock()
	inFlight := old.limit - old.permits
	old.mergedInto = rec
	old.state = Reaped
	old.mu.Unlock()

	rec.mu.Lock()
	rec.permits -= inFlight
	if rec.permits < 0 {
		rec.permits = 0
	}
	rec.mu.Unlock()

	c.log.V(logutil.DEBUG).Info("Merged fallback session into migrated stream",
		"identity", old.identity, "inFlight", inFlight)
}

// Close removes the record for identity (clean disconnect). Permits still
// held are released into the detached record and go nowhere.
func (c *Controller) Close(identity string) bool {
	c.mu.Lock()
	rec, ok := c.records[identity]
	if ok {
		delete(c.records, identity)
		c.opt.Metrics.Sessions(len(c.records))
	}
	c.mu.Unlock()

	if ok {
		rec.markReaped()
		c.log.V(logutil.DEBUG).Info("Closed session", "identity", identity)
	}
	return ok
}

// Lookup returns a snapshot of the live record for identity.
func (c *Controller) Lookup(identity string) (Snapshot, bool) {
	c.mu.RLock()
	rec, ok := c.records[identity]
	c.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	return rec.Snapshot(), true
}

// Len returns the number of live records.
func (c *Controller) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Snapshots returns a copy of every live record.
func (c *Controller) Snapshots() []Snapshot {
	recs := c.list()
	out := make([]Snapshot, 0, len(recs))
	for _, e := range recs {
		out = append(out, e.rec.Snapshot())
	}
	return out
}

// Sweep removes every record untouched for longer than maxAge and returns
// how many were removed. It holds the map lock only per removal, so
// admissions on other sessions proceed during a sweep.
func (c *Controller) Sweep(maxAge time.Duration) int {
	now := c.opt.Clock()

	var stale []entry
	for _, e := range c.list() {
		if e.rec.idleFor(now) > maxAge {
			stale = append(stale, e)
		}
	}

	removed := 0
	for _, e := range stale {
		c.mu.Lock()
		// The record may have been migrated, closed or touched since the scan.
		cur, ok := c.records[e.id]
		drop := ok && cur == e.rec && e.rec.idleFor(now) > maxAge
		if drop {
			delete(c.records, e.id)
		}
		c.mu.Unlock()

		if drop {
			e.rec.markReaped()
			removed++
		}
	}

	if removed > 0 {
		c.opt.Metrics.Reaped(removed)
		c.opt.Metrics.Sessions(c.Len())
	}
	return removed
}

// lookupOrFallback returns the record for identity, creating a Fallback
// record if there is none.
func (c *Controller) lookupOrFallback(identity string) *Record {
	c.mu.RLock()
	rec, ok := c.records[identity]
	c.mu.RUnlock()
	if ok {
		return rec
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Double-check: another goroutine may have created it meanwhile.
	if rec, ok = c.records[identity]; ok {
		return rec
	}
	rec = newRecord(identity, c.opt.Limit, Fallback, c.opt.Clock())
	c.records[identity] = rec
	c.opt.Metrics.Sessions(len(c.records))
	c.log.V(logutil.DEBUG).Info("Created fallback session record", "identity", identity)
	return rec
}

type entry struct {
	id  string
	rec *Record
}

func (c *Controller) list() []entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]entry, 0, len(c.records))
	for id, rec := range c.records {
		out = append(out, entry{id: id, rec: rec})
	}
	return out
}
