package prom

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/shardgate/cache"
)

// RegistryCollector reports every instance of a cache.Registry, labelled
// by cache name, each time Prometheus scrapes.
type RegistryCollector struct {
	reg *cache.Registry

	size      *prometheus.Desc
	maxSize   *prometheus.Desc
	hits      *prometheus.Desc
	misses    *prometheus.Desc
	evictions *prometheus.Desc
	hitRatio  *prometheus.Desc
	ttl       *prometheus.Desc
}

// NewRegistryCollector returns a collector for reg (nil => cache.DefaultRegistry).
// Register it with prometheus.Registerer.MustRegister.
func NewRegistryCollector(reg *cache.Registry, ns string) *RegistryCollector {
	if reg == nil {
		reg = cache.DefaultRegistry
	}
	name := func(n string) string { return prometheus.BuildFQName(ns, "cache", n) }
	labels := []string{"cache"}
	return &RegistryCollector{
		reg:       reg,
		size:      prometheus.NewDesc(name("entries"), "Resident entries per cache", labels, nil),
		maxSize:   prometheus.NewDesc(name("max_entries"), "Configured entry limit per cache", labels, nil),
		hits:      prometheus.NewDesc(name("lookups_hit_total"), "Cache hits per cache", labels, nil),
		misses:    prometheus.NewDesc(name("lookups_miss_total"), "Cache misses per cache", labels, nil),
		hitRatio:  prometheus.NewDesc(name("hit_ratio"), "Hits over lookups per cache", labels, nil),
		evictions: prometheus.NewDesc(name("dropped_total"), "Entries dropped per cache by reason", []string{"cache", "reason"}, nil),
		ttl:       prometheus.NewDesc(name("ttl_seconds"), "Entry lifetime per cache", labels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *RegistryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.size
	ch <- c.maxSize
	ch <- c.hits
	ch <- c.misses
	ch <- c.hitRatio
	ch <- c.evictions
	ch <- c.ttl
}

// Collect implements prometheus.Collector.
func (c *RegistryCollector) Collect(ch chan<- prometheus.Metric) {
	seen := make(map[string]int)
	for i, s := range c.reg.Snapshot() {
		name := s.Name
		if name == "" {
			name = "cache-" + strconv.Itoa(i)
		}
		// Label sets must be unique within a scrape.
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name += "#" + strconv.Itoa(n+1)
		} else {
			seen[name] = 1
		}

		ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(s.Size), name)
		ch <- prometheus.MustNewConstMetric(c.maxSize, prometheus.GaugeValue, float64(s.MaxSize), name)
		ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits), name)
		ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses), name)
		ch <- prometheus.MustNewConstMetric(c.hitRatio, prometheus.GaugeValue, s.HitRatio(), name)
		ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions), name, cache.EvictCapacity.String())
		ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Expirations), name, cache.EvictTTL.String())
		ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Invalid), name, cache.EvictInvalid.String())
		ch <- prometheus.MustNewConstMetric(c.ttl, prometheus.GaugeValue, s.TTL.Seconds(), name)
	}
}

var _ prometheus.Collector = (*RegistryCollector)(nil)
