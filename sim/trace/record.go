// Package trace provides executed-event recording for simulation runs.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// EventRecord captures a single executed event.
type EventRecord struct {
	Seq          int64 // execution order, starting at 0
	Time         float64
	Kind         string
	Particle     int64
	ParticleKind string // empty for exciton creation
	Target       int64  // partner for recombination and annihilation, else 0
	From         [3]int
	To           [3]int
}

// CycleRecord captures the end of one transient cycle.
type CycleRecord struct {
	Cycle   int
	Time    float64
	Expired int // particles still alive when the cycle was cleared
}
