package sim

import (
	"hash/fnv"
	"math/rand"
)

// SimulationKey names one independent random stream within a run: a
// subsystem tag (e.g. "workload", "topology.jitter") plus an index for
// when a subsystem needs more than one stream (one per link, say).
// Two runs built from the same seed and the same set of keys draw
// bit-for-bit identical sequences from each key's stream regardless of
// what order other subsystems happen to consume their own streams in —
// that's what makes a multi-subsystem simulation reproducible.
type SimulationKey struct {
	Subsystem string
	Index     int
}

// PartitionedRNG hands out a *rand.Rand per SimulationKey, each seeded
// deterministically from a single root seed so the whole simulation is
// reproducible from that one number while no two subsystems' draws can
// perturb each other's sequences.
type PartitionedRNG struct {
	rootSeed int64
	streams  map[SimulationKey]*rand.Rand
}

// NewPartitionedRNG returns a PartitionedRNG rooted at seed.
func NewPartitionedRNG(seed int64) *PartitionedRNG {
	return &PartitionedRNG{rootSeed: seed, streams: make(map[SimulationKey]*rand.Rand)}
}

// Stream returns the *rand.Rand for key, creating it on first use.
func (p *PartitionedRNG) Stream(key SimulationKey) *rand.Rand {
	if r, ok := p.streams[key]; ok {
		return r
	}
	r := rand.New(rand.NewSource(p.deriveSeed(key)))
	p.streams[key] = r
	return r
}

// deriveSeed folds the root seed and key into a single int64 via FNV-1a,
// so distinct keys get uncorrelated seeds without needing a registry of
// disjoint seed ranges maintained by hand.
func (p *PartitionedRNG) deriveSeed(key SimulationKey) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key.Subsystem))
	var idxBuf [8]byte
	for i := range idxBuf {
		idxBuf[i] = byte(key.Index >> (8 * i))
	}
	_, _ = h.Write(idxBuf[:])
	var seedBuf [8]byte
	for i := range seedBuf {
		seedBuf[i] = byte(p.rootSeed >> (8 * i))
	}
	_, _ = h.Write(seedBuf[:])
	return int64(h.Sum64())
}
