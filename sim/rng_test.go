package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionedRNG_SameSeedAndKeyProducesSameSequence(t *testing.T) {
	// GIVEN two independently constructed RNGs from the same seed
	a := NewPartitionedRNG(42)
	b := NewPartitionedRNG(42)

	// WHEN each draws from the same-named stream
	keyA := a.Stream(SimulationKey{Subsystem: "workload"})
	keyB := b.Stream(SimulationKey{Subsystem: "workload"})

	// THEN the sequences they produce are identical
	for i := 0; i < 10; i++ {
		assert.Equal(t, keyA.Float64(), keyB.Float64())
	}
}

func TestPartitionedRNG_DistinctKeysGetDistinctSequences(t *testing.T) {
	// GIVEN one RNG
	p := NewPartitionedRNG(42)

	// WHEN two different subsystem streams are drawn from
	workload := p.Stream(SimulationKey{Subsystem: "workload"})
	topology := p.Stream(SimulationKey{Subsystem: "topology"})

	// THEN their draws diverge
	assert.NotEqual(t, workload.Float64(), topology.Float64())
}

func TestPartitionedRNG_StreamIsStableAcrossRepeatedLookup(t *testing.T) {
	// GIVEN an RNG that has already drawn from a stream
	p := NewPartitionedRNG(7)
	first := p.Stream(SimulationKey{Subsystem: "x", Index: 1})
	want := first.Float64()

	// WHEN the same key is looked up again and a fresh RNG replays it
	replay := NewPartitionedRNG(7).Stream(SimulationKey{Subsystem: "x", Index: 1})

	// THEN the lookup on p returns the same stream, and the replay's first
	// draw matches the original's first draw
	assert.Same(t, first, p.Stream(SimulationKey{Subsystem: "x", Index: 1}))
	assert.Equal(t, want, replay.Float64())
}
