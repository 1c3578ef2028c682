package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

type fakeClock struct{ t atomic.Int64 }

func (f *fakeClock) NowUnixNano() int64  { return f.t.Load() }
func (f *fakeClock) add(d time.Duration) { f.t.Add(int64(d)) }

func newTestCache[V any](t testing.TB, opt Options[string, V]) Cache[string, V] {
	t.Helper()
	opt.DisableRegistration = true
	c := New[string, V](opt)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func keys(c Cache[string, int], n int) []string {
	var out []string
	for i := 1; i <= n; i++ {
		k := "k" + strconv.Itoa(i)
		if _, ok := c.(*cache[string, int]).peek(k); ok {
			out = append(out, k)
		}
	}
	return out
}

// peek looks a key up without touching recency or counters (tests only).
func (c *cache[K, V]) peek(k K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.m[k]
	if !ok || c.expiredLocked(n, c.now()) {
		var zero V
		return zero, false
	}
	return n.val, true
}

// Basic Add/Set/Get/Delete semantics.
func TestCache_BasicAddSetGetDelete(t *testing.T) {
	t.Parallel()

	c := newTestCache[int](t, Options[string, int]{Name: "basic", MaxSize: 8})

	if !c.Add("a", 1) {
		t.Fatal("Add a=1 must be true")
	}
	if c.Add("a", 2) {
		t.Fatal("Add duplicate must be false")
	}

	c.Set("a", 11)
	if v, ok := c.Get("a"); !ok || v != 11 {
		t.Fatalf("Get a want 11, got %v ok=%v", v, ok)
	}

	if !c.Delete("a") {
		t.Fatal("Delete a must be true")
	}
	if c.Delete("a") {
		t.Fatal("second Delete a must be false")
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("a must be absent after Delete")
	}
}

// Read promotes "a"; inserting "c" into a full cache evicts "b".
func TestCache_EvictionLRU(t *testing.T) {
	t.Parallel()

	c := newTestCache[int](t, Options[string, int]{MaxSize: 2})

	c.Set("a", 1)
	c.Set("b", 2)

	if _, ok := c.Get("a"); !ok {
		t.Fatal("expect hit for a")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("b must be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a must survive (promoted)")
	}
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Fatal("c must be present")
	}
	if st := c.Stats(); st.Evictions != 1 {
		t.Fatalf("evictions = %d, want 1", st.Evictions)
	}
}

// The size bound holds at every step, and the victim is always the entry
// touched longest ago. OnEvict observes the resident count before the new
// key is linked.
func TestCache_NeverExceedsMaxSize(t *testing.T) {
	t.Parallel()

	const max = 5
	var c Cache[string, int]
	var evicted []string
	c = newTestCache[int](t, Options[string, int]{
		MaxSize: max,
		OnEvict: func(k string, _ int, r EvictReason) {
			if r != EvictCapacity {
				t.Errorf("unexpected reason %v", r)
			}
			evicted = append(evicted, k)
			if n := len(c.(*cache[string, int]).m); n >= max {
				t.Errorf("resident count %d during eviction, want < %d", n, max)
			}
		},
	})

	for i := 1; i <= 50; i++ {
		c.Set("k"+strconv.Itoa(i), i)
		if n := c.Len(); n > max {
			t.Fatalf("after k%d: Len=%d > %d", i, n, max)
		}
	}
	for i, k := range evicted {
		if want := "k" + strconv.Itoa(i+1); k != want {
			t.Fatalf("eviction #%d = %s, want %s", i, k, want)
		}
	}
}

// max_size=3, k1..k100 inserted in order with one read of k1 right after
// k50. k1 was already evicted at k4, so that read misses and LRU leaves the
// three newest keys. Reading k1 after every insert keeps it hot instead.
func TestCache_SequentialInsertScenario(t *testing.T) {
	t.Parallel()

	t.Run("single read after k50", func(t *testing.T) {
		t.Parallel()
		c := newTestCache[int](t, Options[string, int]{MaxSize: 3})
		for i := 1; i <= 100; i++ {
			c.Set("k"+strconv.Itoa(i), i)
			if i == 50 {
				if _, ok := c.Get("k1"); ok {
					t.Fatal("k1 must have been evicted long before k50")
				}
			}
		}
		got := keys(c, 100)
		if fmt.Sprint(got) != "[k98 k99 k100]" {
			t.Fatalf("resident = %v", got)
		}
	})

	t.Run("k1 kept hot", func(t *testing.T) {
		t.Parallel()
		c := newTestCache[int](t, Options[string, int]{MaxSize: 3})
		c.Set("k1", 1)
		for i := 2; i <= 100; i++ {
			c.Set("k"+strconv.Itoa(i), i)
			if _, ok := c.Get("k1"); !ok {
				t.Fatalf("k1 evicted after k%d", i)
			}
		}
		got := keys(c, 100)
		if fmt.Sprint(got) != "[k1 k99 k100]" {
			t.Fatalf("resident = %v", got)
		}
	})
}

// An entry written at t0 with TTL T misses at exactly t0+T.
func TestCache_TTL_FakeClock(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	c := newTestCache[string](t, Options[string, string]{MaxSize: 4, TTL: 100 * time.Millisecond, Clock: clk})

	c.Set("x", "v")
	clk.add(99 * time.Millisecond)
	if _, ok := c.Get("x"); !ok {
		t.Fatal("fresh miss")
	}
	clk.add(time.Millisecond)
	if _, ok := c.Get("x"); ok {
		t.Fatal("hit at t0+TTL")
	}
	if st := c.Stats(); st.Expirations != 1 || st.Evictions != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

// Reads do not extend the TTL; overwrites do.
func TestCache_TTL_CountsFromLastWrite(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	c := newTestCache[int](t, Options[string, int]{MaxSize: 4, TTL: time.Minute, Clock: clk})

	c.Set("read", 1)
	c.Set("write", 1)
	for i := 0; i < 5; i++ {
		clk.add(10 * time.Second)
		c.Get("read")
		c.Set("write", i)
	}
	clk.add(15 * time.Second) // read: 65s old, write: 15s old
	if _, ok := c.Get("read"); ok {
		t.Fatal("reads must not extend TTL")
	}
	if _, ok := c.Get("write"); !ok {
		t.Fatal("overwrite must reset TTL")
	}
}

// Expired entries are purged by later writes, not only by reads of them.
func TestCache_TTL_ProactivePurge(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	var reasons []EvictReason
	c := newTestCache[int](t, Options[string, int]{
		MaxSize: 10,
		TTL:     time.Second,
		Clock:   clk,
		OnEvict: func(_ string, _ int, r EvictReason) { reasons = append(reasons, r) },
	})

	for i := 0; i < 5; i++ {
		c.Set("old"+strconv.Itoa(i), i)
	}
	clk.add(2 * time.Second)
	c.Set("new", 1)

	if n := len(c.(*cache[string, int]).m); n != 1 {
		t.Fatalf("resident = %d, want 1 after purge", n)
	}
	if len(reasons) != 5 {
		t.Fatalf("evictions = %v", reasons)
	}
	for _, r := range reasons {
		if r != EvictTTL {
			t.Fatalf("reason = %v, want ttl", r)
		}
	}
}

// TTL misses happen regardless of eviction pressure: a full cache with
// expired entries purges them instead of evicting live ones.
func TestCache_TTL_IndependentOfPressure(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	c := newTestCache[int](t, Options[string, int]{MaxSize: 2, TTL: time.Second, Clock: clk})

	c.Set("a", 1)
	clk.add(500 * time.Millisecond)
	c.Set("b", 2)
	clk.add(600 * time.Millisecond) // a expired, b live
	c.Set("c", 3)

	if _, ok := c.Get("b"); !ok {
		t.Fatal("b is live and must not be evicted while an expired entry exists")
	}
	st := c.Stats()
	if st.Evictions != 0 || st.Expirations != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

// A value rejected by Validate is dropped and counted as a miss.
func TestCache_ValidateTreatsBadValueAsMiss(t *testing.T) {
	t.Parallel()

	c := newTestCache[[]byte](t, Options[string, []byte]{
		MaxSize:  4,
		Validate: func(v []byte) bool { return len(v) > 0 },
	})

	c.Set("good", []byte("ok"))
	c.Set("bad", nil)

	if _, ok := c.Get("bad"); ok {
		t.Fatal("invalid value must miss")
	}
	if _, ok := c.Get("good"); !ok {
		t.Fatal("valid value must hit")
	}
	st := c.Stats()
	if st.Size != 1 || st.Invalid != 1 || st.Misses != 1 || st.Hits != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestCache_ClearKeepsCounters(t *testing.T) {
	t.Parallel()

	c := newTestCache[int](t, Options[string, int]{Name: "clr", MaxSize: 4, TTL: time.Hour})
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Get("zz")
	c.Clear()

	st := c.Stats()
	want := Stats{Name: "clr", Size: 0, MaxSize: 4, TTL: time.Hour, Hits: 1, Misses: 1}
	if st != want {
		t.Fatalf("stats = %+v, want %+v", st, want)
	}
	if got := st.HitRatio(); got != 0.5 {
		t.Fatalf("hit ratio = %v", got)
	}
	c.Set("c", 3)
	if c.Len() != 1 {
		t.Fatal("cache must be usable after Clear")
	}
}

func TestCache_Closed(t *testing.T) {
	t.Parallel()

	c := newTestCache[int](t, Options[string, int]{MaxSize: 4})
	c.Set("a", 1)
	_ = c.Close()

	if _, ok := c.Get("a"); ok {
		t.Fatal("closed cache must miss")
	}
	c.Set("b", 2)
	if _, err := c.GetOrLoad(context.Background(), "a"); !errors.Is(err, ErrClosed) {
		t.Fatalf("GetOrLoad on closed = %v", err)
	}
}

func TestCache_RegistersItself(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	a := New[string, int](Options[string, int]{Name: "a", MaxSize: 1, Registry: reg})
	New[int, string](Options[int, string]{Name: "b", MaxSize: 2, Registry: reg})
	New[int, string](Options[int, string]{Name: "hidden", MaxSize: 2, Registry: reg, DisableRegistration: true})

	a.Set("x", 1)
	snap := reg.Snapshot()
	if len(snap) != 2 || reg.Len() != 2 {
		t.Fatalf("registry = %+v", snap)
	}
	if snap[0].Name != "a" || snap[0].Size != 1 || !snap[0].Full() {
		t.Fatalf("first = %+v", snap[0])
	}
	if snap[1].Name != "b" || snap[1].MaxSize != 2 {
		t.Fatalf("second = %+v", snap[1])
	}
}

func TestCache_NewPanicsOnZeroMaxSize(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	New[string, int](Options[string, int]{Name: "bad", DisableRegistration: true})
}

// Concurrent GetOrLoad calls for one key run the Loader at most once.
func TestCache_GetOrLoad_Singleflight(t *testing.T) {
	var calls int64

	c := newTestCache[string](t, Options[string, string]{
		MaxSize: 64,
		Loader: func(_ context.Context, k string) (string, error) {
			atomic.AddInt64(&calls, 1)
			time.Sleep(5 * time.Millisecond) // simulate I/O
			return "v:" + k, nil
		},
	})

	const N = 64
	var g errgroup.Group
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < N; i++ {
		g.Go(func() error {
			v, err := c.GetOrLoad(ctx, "k")
			if err != nil {
				return err
			}
			if v != "v:k" {
				return fmt.Errorf("got %q", v)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("loader must run exactly once, got %d", got)
	}
	if v, err := c.GetOrLoad(context.Background(), "k"); err != nil || v != "v:k" {
		t.Fatalf("second GetOrLoad failed: v=%q err=%v", v, err)
	}
}

func TestCache_GetOrLoad_Errors(t *testing.T) {
	t.Parallel()

	plain := newTestCache[int](t, Options[string, int]{MaxSize: 1})
	if _, err := plain.GetOrLoad(context.Background(), "x"); !errors.Is(err, ErrNoLoader) {
		t.Fatalf("err = %v, want ErrNoLoader", err)
	}

	boom := errors.New("boom")
	failing := newTestCache[int](t, Options[string, int]{
		MaxSize: 1,
		Loader:  func(context.Context, string) (int, error) { return 0, boom },
	})
	if _, err := failing.GetOrLoad(context.Background(), "x"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if failing.Len() != 0 {
		t.Fatal("failed loads must not be cached")
	}
}
