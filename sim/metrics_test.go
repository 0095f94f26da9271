package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_RecordsDeliveriesDropsAndProbes(t *testing.T) {
	// GIVEN a fresh Metrics
	m := NewMetrics()

	// WHEN deliveries, drops and probes are recorded
	m.RecordDelivery(100)
	m.RecordDelivery(50)
	m.RecordDrop()
	m.RecordProbe()

	// THEN each counter reflects what was recorded
	assert.Equal(t, 2, m.Delivered)
	assert.Equal(t, int64(150), m.BytesIn)
	assert.Equal(t, 1, m.Dropped)
	assert.Equal(t, 1, m.Probes)
}
