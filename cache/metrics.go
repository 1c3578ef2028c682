package cache

// NoopMetrics is the default Metrics implementation. It does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Hit()                  {}
func (NoopMetrics) Miss()                 {}
func (NoopMetrics) Evict(EvictReason)     {}
func (NoopMetrics) Size(entries, max int) {}

var _ Metrics = NoopMetrics{}
