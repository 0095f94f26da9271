package sim

// Metrics is a lightweight set of run counters, not a statistics engine:
// it answers "how many packets were delivered/dropped" for a smoke test
// or a CLI summary, nothing more (a full statistical reporting layer is
// out of scope here).
type Metrics struct {
	Delivered int
	Dropped   int
	Probes    int
	BytesIn   int64
}

// NewMetrics returns a zeroed Metrics.
func NewMetrics() *Metrics { return &Metrics{} }

// RecordDelivery increments Delivered and BytesIn by sz.
func (m *Metrics) RecordDelivery(sz int) {
	m.Delivered++
	m.BytesIn += int64(sz)
}

// RecordDrop increments Dropped.
func (m *Metrics) RecordDrop() { m.Dropped++ }

// RecordProbe increments Probes.
func (m *Metrics) RecordProbe() { m.Probes++ }
