// Package prom exports cache and admission signals to Prometheus.
//
// CacheAdapter implements cache.Metrics for one instance, AdmissionAdapter
// implements admission.Metrics, and RegistryCollector reports every
// instance in a cache.Registry at scrape time.
package prom
