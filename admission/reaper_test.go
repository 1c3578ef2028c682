package admission

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/require"
)

func TestReaper_Defaults(t *testing.T) {
	t.Parallel()

	r := NewReaper(NewController(Options{}), ReaperOptions{})
	require.Equal(t, DefaultReapInterval, r.opt.Interval)
	require.Equal(t, DefaultMaxIdleAge, r.opt.MaxAge)
}

func TestReaper_SweepOnce(t *testing.T) {
	t.Parallel()

	c, clk := newTestController(t, 2)
	for i := 0; i < 3; i++ {
		c.OpenProvisional()
	}
	clk.Advance(90 * time.Minute)
	c.Open("fresh")

	r := NewReaper(c, ReaperOptions{MaxAge: time.Hour, Logger: testr.New(t)})
	removed, err := r.SweepOnce()
	require.NoError(t, err)
	require.Equal(t, 3, removed)
	require.Equal(t, 1, c.Len())
}

type panickingMetrics struct{ NoopMetrics }

func (panickingMetrics) Reaped(int) { panic("metrics backend down") }

// A failing sweep is reported and the next one still runs.
func TestReaper_SweepPanicIsRecovered(t *testing.T) {
	t.Parallel()

	clk := newTestClock()
	c := NewController(Options{Clock: clk.Now, Metrics: panickingMetrics{}})
	c.OpenProvisional()
	clk.Advance(2 * time.Hour)

	r := NewReaper(c, ReaperOptions{MaxAge: time.Hour, Logger: testr.New(t)})
	_, err := r.SweepOnce()
	require.ErrorContains(t, err, "metrics backend down")

	// The record was removed before the metrics call blew up.
	require.Zero(t, c.Len())
	removed, err := r.SweepOnce()
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestReaper_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	c, clk := newTestController(t, 2)
	c.OpenProvisional()
	clk.Advance(2 * time.Hour)

	r := NewReaper(c, ReaperOptions{Interval: 5 * time.Millisecond, MaxAge: time.Hour, Logger: testr.New(t)})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}
