package sim

import "testing"

// smallParameters returns a fast manual-mode configuration: a periodic 10³
// lattice without disorder, field or Coulomb interactions.
func smallParameters() Parameters {
	p := DefaultParameters()
	p.Lattice.Length, p.Lattice.Width, p.Lattice.Height = 10, 10, 10
	p.Energetics.DOS = DOSNone
	p.Coulomb.Cutoff = 0
	p.Test.Mode = ModeManual
	p.ProgressInterval = 100
	return p
}

func mustSimulator(t *testing.T, p Parameters) *Simulator {
	t.Helper()
	s, err := NewSimulator(p)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	return s
}

// runToCompletion executes events until CheckFinished, checking conservation at every step.
func runToCompletion(t *testing.T, s *Simulator, maxEvents int) {
	t.Helper()
	for i := 0; i < maxEvents && !s.CheckFinished(); i++ {
		s.ExecuteNextEvent()
		if err := s.CheckConservation(); err != nil {
			t.Fatalf("after event %d: %v", s.EventsExecuted(), err)
		}
	}
	if !s.CheckFinished() {
		t.Fatalf("run not finished after %d events", maxEvents)
	}
}
