package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/shardgate/cache"
)

// CacheAdapter implements cache.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type CacheAdapter struct {
	hits    prometheus.Counter
	misses  prometheus.Counter
	evicts  *prometheus.CounterVec
	size    prometheus.Gauge
	maxSize prometheus.Gauge
}

// NewCacheAdapter constructs a Prometheus metrics adapter for one cache.
//   - reg:     registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub: Prometheus namespace and subsystem
func NewCacheAdapter(reg prometheus.Registerer, ns, sub string) *CacheAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &CacheAdapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "hits_total",
			Help:      "Cache hits",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "misses_total",
			Help:      "Cache misses",
		}),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: sub,
				Name:      "evictions_total",
				Help:      "Cache evictions by reason",
			},
			[]string{"reason"},
		),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "size_entries",
			Help:      "Number of resident entries",
		}),
		maxSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "max_entries",
			Help:      "Configured entry limit",
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.size, a.maxSize)
	return a
}

// Hit increments the hit counter.
func (a *CacheAdapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *CacheAdapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *CacheAdapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// Size updates the entry gauges.
func (a *CacheAdapter) Size(entries, max int) {
	a.size.Set(float64(entries))
	a.maxSize.Set(float64(max))
}

var _ cache.Metrics = (*CacheAdapter)(nil)
