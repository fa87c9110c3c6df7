package sim

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// dosCoulombSamples is the number of random empty sites probed per DOS-with-Coulomb sample.
const dosCoulombSamples = 100

// steadyState accumulates the steady transport measurement. Holes fill the
// lowest-energy sites, equilibrate for n_equilibration_events and are then
// measured for n_tests events.
type steadyState struct {
	carriers    int
	measuring   bool
	startTime   float64
	startEvents int64

	orient           int64 // +1 when the field pushes holes toward +z
	drift            int64 // net planes moved along the field-driven direction
	transportSum     float64
	transportWeights float64

	dos, dosCoulomb, doos, doosCoulomb []float64
}

func (s *Simulator) seedSteadyTransport() error {
	n := int(math.Round(s.params.Test.SteadyCarrierDensity * s.params.Volume()))
	idx := make([]int, 0, s.lattice.NumSites())
	for i := 0; i < s.lattice.NumSites(); i++ {
		if s.phaseAllowed(KindHole, s.lattice.CoordsAt(i)) {
			idx = append(idx, i)
		}
	}
	if len(idx) < n {
		return fmt.Errorf("%w: %d steady carriers exceed %d available sites", ErrInvalidParameters, n, len(idx))
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return s.holeSiteEnergy(s.lattice.CoordsAt(idx[i])) < s.holeSiteEnergy(s.lattice.CoordsAt(idx[j]))
	})
	for _, i := range idx[:n] {
		s.spawn(KindHole, SpinNone, s.lattice.CoordsAt(i), 0)
	}
	for _, p := range s.live {
		s.scheduleParticle(p)
	}
	s.steady = &steadyState{carriers: n, orient: 1}
	if s.InternalField() < 0 {
		s.steady.orient = -1
	}
	logrus.Infof("Steady transport: %d holes placed in the lowest-energy sites", n)
	return nil
}

func (s *Simulator) steadyRecordHop(p *Particle, src Coords, offset Coords) {
	st := s.steady
	if !st.measuring {
		return
	}
	dz := st.orient * int64(p.Charge()) * int64(offset.Z)
	st.drift += dz
	st.transportSum += s.polaronSiteEnergy(p.Kind, src) * float64(dz)
	st.transportWeights += float64(dz)
}

func (s *Simulator) steadyAfterEvent() {
	st := s.steady
	t := s.params.Test
	if !st.measuring {
		if s.executed < t.NEquilibrationEvents {
			return
		}
		st.measuring = true
		st.startTime = s.clock
		st.startEvents = s.executed
		for i := 0; i < s.lattice.NumSites(); i++ {
			c := s.lattice.CoordsAt(i)
			if s.phaseAllowed(KindHole, c) {
				st.dos = append(st.dos, s.holeSiteEnergy(c))
			}
		}
		logrus.Infof("[t=%.3e s] Steady transport equilibrated after %d events", s.clock, s.executed)
		return
	}
	k := s.executed - st.startEvents
	if k%t.SteadyHopsPerDOOS == 0 {
		for _, p := range s.live {
			e := s.holeSiteEnergy(p.Coords)
			st.doos = append(st.doos, e)
			st.doosCoulomb = append(st.doosCoulomb, e+s.probeCoulomb(p.Coords, p.ID))
		}
	}
	if k%t.SteadyHopsPerDOS == 0 {
		for i := 0; i < dosCoulombSamples; i++ {
			c := s.lattice.RandomCoords(s.placement)
			if s.lattice.IsOccupied(c) || !s.phaseAllowed(KindHole, c) {
				continue
			}
			st.dosCoulomb = append(st.dosCoulomb, s.holeSiteEnergy(c)+s.probeCoulomb(c, 0))
		}
	}
}

// probeCoulomb is the Coulomb energy a hole would have at c.
func (s *Simulator) probeCoulomb(c Coords, self int64) float64 {
	if s.coulomb == nil {
		return 0
	}
	return s.coulombEnergy(1, c, s.nearby(c, s.coulomb.maxDist2, self, isPolaron))
}

// SteadyResults holds the steady transport observables.
type SteadyResults struct {
	Carriers            int
	MeasurementTime     float64 // s
	Mobility            float64 // cm²/Vs
	CurrentDensity      float64 // mA/cm²
	EquilibrationEnergy float64 // mean occupied hole energy, eV
	TransportEnergy     float64 // drift-weighted mean hop origin energy, eV
	DOS                 []Point
	DOSCoulomb          []Point
	DOOS                []Point
	DOOSCoulomb         []Point
}

// SteadyResults returns the steady transport measurement; zero outside that mode
// or before equilibration finishes.
func (s *Simulator) SteadyResults() SteadyResults {
	st := s.steady
	if st == nil || !st.measuring {
		return SteadyResults{}
	}
	bin := s.params.Test.SteadyDOSBinSize
	r := SteadyResults{
		Carriers:        st.carriers,
		MeasurementTime: s.clock - st.startTime,
		DOS:             densityHistogram(st.dos, bin),
		DOSCoulomb:      densityHistogram(st.dosCoulomb, bin),
		DOOS:            densityHistogram(st.doos, bin),
		DOOSCoulomb:     densityHistogram(st.doosCoulomb, bin),
	}
	if len(st.doos) > 0 {
		r.EquilibrationEnergy = stat.Mean(st.doos, nil)
	}
	if st.transportWeights != 0 {
		r.TransportEnergy = st.transportSum / st.transportWeights
	}
	field := math.Abs(s.InternalField())
	if r.MeasurementTime > 0 && st.carriers > 0 && field > 0 {
		v := float64(st.drift) * s.lattice.UnitSize * 1e-7 / (float64(st.carriers) * r.MeasurementTime) // cm/s
		r.Mobility = v / field
		density := float64(st.carriers) / (s.params.Volume() * 1e-21) // cm^-3
		r.CurrentDensity = ElementaryCharge * density * v * 1e3
	}
	return r
}

// densityHistogram bins values into a probability density with the given bin width.
func densityHistogram(values []float64, bin float64) []Point {
	if len(values) == 0 || bin <= 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	lo := math.Floor(sorted[0]/bin) * bin
	if lo > sorted[0] {
		lo -= bin
	}
	dividers := []float64{lo}
	for dividers[len(dividers)-1] <= sorted[len(sorted)-1] {
		dividers = append(dividers, lo+float64(len(dividers))*bin)
	}
	n := len(dividers) - 1
	counts := stat.Histogram(nil, dividers, sorted, nil)
	out := make([]Point, n)
	total := float64(len(sorted))
	for i := range out {
		out[i] = Point{X: lo + (float64(i)+0.5)*bin, Y: counts[i] / (total * bin)}
	}
	return out
}
