package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// SimulationKey is the master seed of a run. Equal keys with equal Parameters
// replay the same event sequence and counters.
type SimulationKey int64

// NewSimulationKey wraps seed as a SimulationKey.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// Stream names. Each stream draws from its own generator.
const (
	// SubsystemDisorder seeds site energies and blend shuffles from the master seed itself,
	// so a lattice can be rebuilt from the seed alone.
	SubsystemDisorder = "disorder"
	// SubsystemKinetics draws waiting times and picks pathways.
	SubsystemKinetics = "kinetics"
	// SubsystemPlacement draws creation coordinates.
	SubsystemPlacement = "placement"
)

// SubsystemRun names the stream whose seed becomes ensemble replica id's master seed.
func SubsystemRun(id int) string {
	return fmt.Sprintf("run_%d", id)
}

// PartitionedRNG hands out one *rand.Rand per named stream, seeded with
// key XOR fnv1a64(name) (the disorder stream takes the key unchanged).
// Draws on one stream never shift another, so enabling e.g. random ToF
// placement leaves the kinetic sequence of existing particles intact.
// Not safe for concurrent use; a Simulator owns exactly one.
type PartitionedRNG struct {
	key     SimulationKey
	streams map[string]*rand.Rand
}

// NewPartitionedRNG returns an empty set of streams under key.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{key: key, streams: make(map[string]*rand.Rand)}
}

// ForSubsystem returns the stream called name, creating it on first use.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	r, ok := p.streams[name]
	if !ok {
		r = rand.New(rand.NewSource(p.DeriveSeed(name)))
		p.streams[name] = r
	}
	return r
}

// Key returns the master seed.
func (p *PartitionedRNG) Key() SimulationKey { return p.key }

// DeriveSeed returns the seed of stream name without creating it. It reads
// only the key and is safe to call from several goroutines.
func (p *PartitionedRNG) DeriveSeed(name string) int64 {
	if name == SubsystemDisorder {
		return int64(p.key)
	}
	return int64(p.key) ^ fnv1a64(name)
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}
