// Package monitor periodically reports the health of every registered cache
// instance and warns about instances that stay full.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/IvanBrykalov/shardgate/cache"
	logutil "github.com/IvanBrykalov/shardgate/internal/logging"
)

const (
	// DefaultInterval is the time between checks.
	DefaultInterval = 5 * time.Minute
	// DefaultFullThreshold is how many consecutive full checks make a warning.
	DefaultFullThreshold = 3
)

// ErrCapacitySaturated is logged when an instance stayed full for
// FullThreshold consecutive checks: its MaxSize is likely too small.
var ErrCapacitySaturated = errors.New("cache capacity saturated")

// Options configures a Monitor.
type Options struct {
	Interval      time.Duration
	FullThreshold int
	Logger        logr.Logger
}

// Report is the outcome of one check for one instance.
type Report struct {
	cache.Stats
	// FullStreak counts consecutive checks that found the instance full.
	FullStreak int
	// Saturated is set once FullStreak reaches the threshold.
	Saturated bool
}

// Monitor reports on a cache.Registry.
type Monitor struct {
	reg *cache.Registry
	opt Options
	log logr.Logger

	mu      sync.Mutex
	streaks []int // by registration index
}

// New returns a Monitor for reg (nil => cache.DefaultRegistry).
func New(reg *cache.Registry, opt Options) *Monitor {
	if reg == nil {
		reg = cache.DefaultRegistry
	}
	if opt.Interval <= 0 {
		opt.Interval = DefaultInterval
	}
	if opt.FullThreshold <= 0 {
		opt.FullThreshold = DefaultFullThreshold
	}
	log := opt.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Monitor{reg: reg, opt: opt, log: log.WithName("cache-monitor")}
}

// Run checks every Interval until ctx is done and returns nil on
// cancellation. A check that panics is logged and does not stop the loop.
func (m *Monitor) Run(ctx context.Context) error {
	t := time.NewTicker(m.opt.Interval)
	defer t.Stop()

	m.log.Info("Starting cache monitor", "interval", m.opt.Interval, "fullThreshold", m.opt.FullThreshold)
	for {
		select {
		case <-ctx.Done():
			m.log.V(logutil.VERBOSE).Info("Stopping cache monitor")
			return nil
		case <-t.C:
			m.safeCheck()
		}
	}
}

func (m *Monitor) safeCheck() {
	defer func() {
		if p := recover(); p != nil {
			m.log.Error(fmt.Errorf("cache check panicked: %v", p), "Cache check failed")
		}
	}()
	m.Check()
}

// Check takes one snapshot of the registry, logs a line per instance and
// returns the reports.
func (m *Monitor) Check() []Report {
	stats := m.reg.Snapshot()

	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.streaks) < len(stats) {
		m.streaks = append(m.streaks, 0)
	}

	out := make([]Report, 0, len(stats))
	for i, s := range stats {
		if s.Full() {
			m.streaks[i]++
		} else {
			m.streaks[i] = 0
		}
		r := Report{Stats: s, FullStreak: m.streaks[i], Saturated: m.streaks[i] >= m.opt.FullThreshold}
		out = append(out, r)

		kv := []any{
			"name", s.Name,
			"size", s.Size,
			"maxSize", s.MaxSize,
			"hitRatio", s.HitRatio(),
			"evictions", s.Evictions,
			"expirations", s.Expirations,
		}
		m.log.Info("Cache stats", kv...)
		if r.Saturated {
			m.log.Error(ErrCapacitySaturated, "Cache has been full for consecutive checks; consider raising its MaxSize",
				append(kv, "consecutiveChecks", r.FullStreak)...)
		}
	}
	return out
}
