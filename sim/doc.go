// Package sim provides the kinetic Monte Carlo engine for charge and exciton
// transport in disordered organic semiconductor films.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - particle.go: Particle kinds, spin and the per-particle lifecycle
//   - event.go: Event kinds and the generation stamp used for lazy invalidation
//   - simulator.go: Run setup, particle creation and the event loop
//   - execute.go: What each event kind does to the lattice and the counters
//
// # Architecture
//
// A Simulator owns one Lattice, one EventQueue and one particle population.
// Nothing is shared between Simulators, so independent runs can execute on
// separate goroutines (see sim/ensemble).
//
// Each live particle has at most one pending event. When a particle's
// surroundings change, its generation stamp is bumped and a fresh event is
// drawn; the old event stays in the heap and is dropped when popped.
// Only particles within the interaction radius of an executed event are
// recalculated.
//
// Sub-packages:
//   - sim/trace/: executed-event recording and summaries
//   - sim/ensemble/: bounded parallel runs with derived seeds
//   - sim/observe/: Prometheus collectors over progress snapshots
//   - sim/report/: text, CSV and SQLite output of aggregated results
//
// # Units
//
// Time is in seconds, energies in eV, lengths in nm and lattice coordinates
// in units of Lattice.UnitSize.
package sim
