package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/shardgate/admission"
)

// AdmissionAdapter implements admission.Metrics.
type AdmissionAdapter struct {
	decisions *prometheus.CounterVec
	migrated  prometheus.Counter
	reaped    prometheus.Counter
	sessions  prometheus.Gauge
}

// NewAdmissionAdapter registers the admission metrics with reg
// (nil => prometheus.DefaultRegisterer) under namespace ns.
func NewAdmissionAdapter(reg prometheus.Registerer, ns string) *AdmissionAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &AdmissionAdapter{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "admission",
				Name:      "decisions_total",
				Help:      "Admission decisions by outcome",
			},
			[]string{"outcome"},
		),
		migrated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "admission",
			Name:      "migrations_total",
			Help:      "Provisional sessions re-keyed to their durable identity",
		}),
		reaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "admission",
			Name:      "reaped_total",
			Help:      "Stale sessions removed by the reaper",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "admission",
			Name:      "sessions",
			Help:      "Live session records",
		}),
	}
	reg.MustRegister(a.decisions, a.migrated, a.reaped, a.sessions)
	return a
}

func (a *AdmissionAdapter) Admitted()      { a.decisions.WithLabelValues("admitted").Inc() }
func (a *AdmissionAdapter) Rejected()      { a.decisions.WithLabelValues("rejected").Inc() }
func (a *AdmissionAdapter) Migrated()      { a.migrated.Inc() }
func (a *AdmissionAdapter) Reaped(n int)   { a.reaped.Add(float64(n)) }
func (a *AdmissionAdapter) Sessions(n int) { a.sessions.Set(float64(n)) }

var _ admission.Metrics = (*AdmissionAdapter)(nil)
