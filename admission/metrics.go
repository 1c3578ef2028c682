package admission

// Metrics receives admission signals. Implementations must be safe for
// concurrent use.
type Metrics interface {
	Admitted()
	Rejected()
	Migrated()
	Reaped(n int)
	Sessions(n int)
}

// NoopMetrics is the default Metrics implementation. It does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Admitted()    {}
func (NoopMetrics) Rejected()    {}
func (NoopMetrics) Migrated()    {}
func (NoopMetrics) Reaped(int)   {}
func (NoopMetrics) Sessions(int) {}

var _ Metrics = NoopMetrics{}
