package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	logutil "github.com/IvanBrykalov/shardgate/internal/logging"
)

const (
	// DefaultReapInterval is how often the reaper sweeps.
	DefaultReapInterval = 10 * time.Minute
	// DefaultMaxIdleAge is how long a record may go untouched.
	DefaultMaxIdleAge = time.Hour
)

// ReaperOptions configures a Reaper.
type ReaperOptions struct {
	Interval time.Duration
	MaxAge   time.Duration
	Logger   logr.Logger
}

// Reaper periodically drops records whose connection went away without a
// clean disconnect (crash, network drop, forced kill).
type Reaper struct {
	ctrl *Controller
	opt  ReaperOptions
	log  logr.Logger
}

// NewReaper returns a Reaper for ctrl. Non-positive durations get defaults.
func NewReaper(ctrl *Controller, opt ReaperOptions) *Reaper {
	if opt.Interval <= 0 {
		opt.Interval = DefaultReapInterval
	}
	if opt.MaxAge <= 0 {
		opt.MaxAge = DefaultMaxIdleAge
	}
	log := opt.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Reaper{ctrl: ctrl, opt: opt, log: log.WithName("reaper")}
}

// Run sweeps every Interval until ctx is done. It returns nil on
// cancellation; a failed sweep is logged and the loop keeps going.
func (r *Reaper) Run(ctx context.Context) error {
	t := time.NewTicker(r.opt.Interval)
	defer t.Stop()

	r.log.Info("Starting session reaper", "interval", r.opt.Interval, "maxAge", r.opt.MaxAge)
	for {
		select {
		case <-ctx.Done():
			r.log.V(logutil.VERBOSE).Info("Stopping session reaper")
			return nil
		case <-t.C:
			_, _ = r.SweepOnce()
		}
	}
}

// SweepOnce runs a single sweep and returns the number of removed records.
func (r *Reaper) SweepOnce() (removed int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("session sweep panicked: %v", p)
			r.log.Error(err, "Session sweep failed")
		}
	}()

	removed = r.ctrl.Sweep(r.opt.MaxAge)
	if removed > 0 {
		r.log.Info("Reaped stale sessions", "removed", removed, "live", r.ctrl.Len())
	} else {
		r.log.V(logutil.DEBUG).Info("No stale sessions", "live", r.ctrl.Len())
	}
	return removed, nil
}
