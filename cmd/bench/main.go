// Command bench runs a synthetic workload against the cache or the session
// admission controller and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/shardgate/admission"
	"github.com/IvanBrykalov/shardgate/cache"
	logutil "github.com/IvanBrykalov/shardgate/internal/logging"
	pmet "github.com/IvanBrykalov/shardgate/metrics/prom"
)

type flags struct {
	mode string

	capacity int
	ttl      time.Duration

	sessions int
	limit    int
	hold     time.Duration

	workers  int
	duration time.Duration
	readPct  int

	keys    int
	zipfS   float64
	zipfV   float64
	seed    int64
	preload int
}

func main() {
	// ---- Flags ----
	var f flags
	flag.StringVar(&f.mode, "mode", "cache", "workload: cache | admission")
	flag.IntVar(&f.capacity, "cap", 100_000, "cache MaxSize (entries)")
	flag.DurationVar(&f.ttl, "ttl", time.Hour, "cache TTL")
	flag.IntVar(&f.sessions, "sessions", 100, "admission: number of sessions")
	flag.IntVar(&f.limit, "limit", admission.DefaultLimit, "admission: per-session limit")
	flag.DurationVar(&f.hold, "hold", time.Millisecond, "admission: how long a permit is held")
	flag.IntVar(&f.workers, "workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
	flag.DurationVar(&f.duration, "duration", 10*time.Second, "benchmark duration")
	flag.IntVar(&f.readPct, "reads", 80, "cache: read percentage [0..100]")
	flag.IntVar(&f.keys, "keys", 1_000_000, "keyspace size (cache keys or sessions)")
	flag.Float64Var(&f.zipfS, "zipf_s", 1.1, "Zipf s > 1 (skew)")
	flag.Float64Var(&f.zipfV, "zipf_v", 1.0, "Zipf v")
	flag.Int64Var(&f.seed, "seed", time.Now().UnixNano(), "random seed")
	flag.IntVar(&f.preload, "preload", 0, "cache: preload entries (0 = cap/2)")
	pprofAddr := flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
	metricsAddr := flag.String("http", ":8080", "serve Prometheus metrics at addr")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger, flush, err := logutil.New(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = flush() }()

	// ---- pprof + metrics servers (on DefaultServeMux) ----
	http.Handle("/metrics", promhttp.Handler())
	serve := func(name, addr string) {
		logger.Info("Serving", "endpoint", name, "addr", addr)
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Error(err, "Server failed", "endpoint", name)
		}
	}
	if *pprofAddr != "" {
		go serve("pprof", *pprofAddr)
	}
	go serve("metrics", *metricsAddr)

	f.normalize()
	ctx, cancel := context.WithTimeout(context.Background(), f.duration)
	defer cancel()

	switch f.mode {
	case "cache":
		runCache(ctx, f, prometheus.DefaultRegisterer)
	case "admission":
		runAdmission(ctx, f, prometheus.DefaultRegisterer, logger)
	default:
		logutil.Fatal(logger, fmt.Errorf("unknown mode %q", f.mode), "Use -mode=cache or -mode=admission")
	}
}

// normalize clamps flags the workloads cannot run with.
func (f *flags) normalize() {
	if f.workers <= 0 {
		f.workers = 1
	}
	if f.capacity <= 0 {
		f.capacity = 1
	}
	if f.keys <= 0 {
		f.keys = 1
	}
	if f.sessions <= 0 {
		f.sessions = 1
	}
	// Same default the controller applies.
	if f.limit <= 0 {
		f.limit = admission.DefaultLimit
	}
	f.readPct = max(0, min(100, f.readPct))
}

// zipfKeys returns a per-worker key generator. rand.Rand is NOT goroutine-safe.
func zipfKeys(f flags, id int, n int) (*rand.Rand, func() uint64) {
	r := rand.New(rand.NewSource(f.seed + int64(id)*9973))
	z := rand.NewZipf(r, f.zipfS, f.zipfV, uint64(n-1))
	return r, z.Uint64
}

func runCache(ctx context.Context, f flags, reg prometheus.Registerer) {
	c := cache.New(cache.Options[string, string]{
		Name:    "bench",
		MaxSize: f.capacity,
		TTL:     f.ttl,
		Metrics: pmet.NewCacheAdapter(reg, "shardgate", "bench"),
	})
	defer func() { _ = c.Close() }()

	// ---- Preload half capacity to get a realistic hit-rate ----
	pl := f.preload
	if pl == 0 {
		pl = f.capacity / 2
	}
	for i := 0; i < pl; i++ {
		c.Set("k:"+strconv.Itoa(i), "v"+strconv.Itoa(i))
	}

	var reads, writes, hits, total atomic.Uint64
	start := time.Now()
	var g errgroup.Group
	for w := 0; w < f.workers; w++ {
		g.Go(func() error {
			r, next := zipfKeys(f, w, f.keys)
			key := func() string { return "k:" + strconv.FormatUint(next(), 10) }
			for ctx.Err() == nil {
				total.Add(1)
				if int(r.Int31n(100)) < f.readPct {
					reads.Add(1)
					if _, ok := c.Get(key()); ok {
						hits.Add(1)
					}
				} else {
					writes.Add(1)
					c.Set(key(), "v"+strconv.Itoa(r.Int()))
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	ops, readsN, hitsN := total.Load(), reads.Load(), hits.Load()
	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hitsN) / float64(readsN) * 100
	}
	st := c.Stats()
	fmt.Printf("mode=cache cap=%d ttl=%v workers=%d keys=%d dur=%v seed=%d\n",
		f.capacity, f.ttl, f.workers, f.keys, elapsed, f.seed)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, writes.Load())
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", hitsN, readsN-hitsN, hitRate)
	fmt.Printf("Len()=%d  evictions=%d  expirations=%d\n", c.Len(), st.Evictions, st.Expirations)
}

// runAdmission hammers a fixed set of sessions: each worker picks a session
// by Zipf, takes a permit, holds it for f.hold and releases it.
func runAdmission(ctx context.Context, f flags, reg prometheus.Registerer, logger logr.Logger) {
	ctrl := admission.NewController(admission.Options{
		Limit:   f.limit,
		Metrics: pmet.NewAdmissionAdapter(reg, "shardgate"),
		Logger:  logger,
	})
	for i := 0; i < f.sessions; i++ {
		ctrl.Open("s" + strconv.Itoa(i))
	}

	var admitted, rejected, overLimit atomic.Uint64
	inFlight := make([]atomic.Int64, f.sessions)

	start := time.Now()
	var g errgroup.Group
	for w := 0; w < f.workers; w++ {
		g.Go(func() error {
			_, next := zipfKeys(f, w, f.sessions)
			for ctx.Err() == nil {
				i := next()
				p, err := ctrl.TryAdmit(ctx, "s"+strconv.FormatUint(i, 10))
				if err != nil {
					rejected.Add(1)
					continue
				}
				admitted.Add(1)
				if inFlight[i].Add(1) > int64(ctrl.Limit()) {
					overLimit.Add(1)
				}
				time.Sleep(f.hold)
				inFlight[i].Add(-1)
				p.Release()
			}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	fmt.Printf("mode=admission sessions=%d limit=%d hold=%v workers=%d dur=%v seed=%d\n",
		f.sessions, f.limit, f.hold, f.workers, elapsed, f.seed)
	fmt.Printf("admitted=%d (%.0f/s)  rejected=%d  over-limit=%d\n",
		admitted.Load(), float64(admitted.Load())/elapsed.Seconds(), rejected.Load(), overLimit.Load())
	fmt.Printf("sessions=%d\n", ctrl.Len())
}
