package sim

import (
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// transientLog samples cohort observables at log-spaced times after each cycle start:
// t_i = 10^(log10(start) + i/perDecade).
type transientLog struct {
	start, end float64
	perDecade  int
	times      []float64
	next       int // next sample index in the current cycle
	kinds      []ParticleKind

	counts     map[ParticleKind][]float64
	energies   map[ParticleKind][]float64
	msd        map[ParticleKind][]float64
	velocities map[ParticleKind][]float64
	cycles     int // cycles that seeded a cohort
}

func newTransientLog(start, end float64, perDecade int, kinds []ParticleKind) *transientLog {
	n := int(math.Floor(math.Log10(end/start)*float64(perDecade)+1e-9)) + 1
	tl := &transientLog{
		start:      start,
		end:        end,
		perDecade:  perDecade,
		times:      make([]float64, n),
		kinds:      kinds,
		counts:     make(map[ParticleKind][]float64, len(kinds)),
		energies:   make(map[ParticleKind][]float64, len(kinds)),
		msd:        make(map[ParticleKind][]float64, len(kinds)),
		velocities: make(map[ParticleKind][]float64, len(kinds)),
	}
	for i := range tl.times {
		tl.times[i] = math.Pow(10, math.Log10(start)+float64(i)/float64(perDecade))
	}
	for _, k := range kinds {
		tl.counts[k] = make([]float64, n)
		tl.energies[k] = make([]float64, n)
		tl.msd[k] = make([]float64, n)
		tl.velocities[k] = make([]float64, n)
	}
	return tl
}

func (tl *transientLog) tracks(k ParticleKind) bool {
	_, ok := tl.counts[k]
	return ok
}

// sampleTransient records every sample time in (previous sample, until] using
// the current state, which holds until the next event executes.
func (s *Simulator) sampleTransient(until float64) {
	tl := s.transient
	a := s.lattice.UnitSize
	for tl.next < len(tl.times) && s.cycleStart+tl.times[tl.next] <= until {
		i := tl.next
		dt := tl.times[i]
		if i > 0 {
			dt -= tl.times[i-1]
		}
		for _, p := range s.live {
			if p.Cohort != s.cycle || !tl.tracks(p.Kind) {
				continue
			}
			tl.counts[p.Kind][i]++
			tl.energies[p.Kind][i] += s.particleEnergy(p)
			tl.msd[p.Kind][i] += float64(p.DisplacementSquared()) * a * a
			dz := float64(p.Displacement.Z - p.sampleDisplacement.Z)
			tl.velocities[p.Kind][i] += s.driftSign(p.Kind) * dz * a * 1e-7 / dt
			p.sampleDisplacement = p.Displacement
		}
		tl.next++
	}
}

// driftSign orients z so that motion toward the collecting electrode is positive.
func (s *Simulator) driftSign(k ParticleKind) float64 {
	switch k {
	case KindElectron:
		return -1
	case KindHole:
		return 1
	default:
		return 0
	}
}

func (s *Simulator) particleEnergy(p *Particle) float64 {
	if p.Kind == KindExciton {
		return s.excitonSiteEnergy(p.Spin, p.Coords)
	}
	return s.polaronSiteEnergy(p.Kind, p.Coords)
}

func (s *Simulator) tofKind() ParticleKind {
	if s.params.Test.ToFHoles {
		return KindHole
	}
	return KindElectron
}

// seedingComplete reports whether the transient mode has created all n_tests particles.
func (s *Simulator) seedingComplete() bool {
	n := int64(s.params.Test.NTests)
	if s.params.Test.Mode == ModeToF {
		return s.stats.counters[s.tofKind()].Created >= n
	}
	return s.stats.counters[KindExciton].Created >= n
}

// beginCycle seeds a new transient cohort at the current time.
func (s *Simulator) beginCycle() {
	s.cycle = s.cycles
	s.cycleStart = s.clock
	s.transient.next = 0
	if s.params.Test.Mode == ModeToF {
		s.seedToFCohort()
	} else {
		s.seedDynamicsPulse()
	}
	if len(s.live) == 0 {
		logrus.Warnf("[t=%.3e s] Transient cycle %d could not place any particle; stopping", s.clock, s.cycle)
		s.exhausted = true
		return
	}
	s.transient.cycles++
	logrus.Debugf("[t=%.3e s] Transient cycle %d started with %d particles", s.clock, s.cycle, len(s.live))
}

// endCycle closes the current cycle at time at: survivors expire, energies are
// reassigned and the next cohort is seeded unless n_tests is reached.
func (s *Simulator) endCycle(at float64) {
	s.sampleTransient(at)
	s.clock = math.Max(s.clock, at)
	expired := len(s.live)
	for len(s.live) > 0 {
		s.remove(s.live[len(s.live)-1], StateExpired)
	}
	s.queue.Clear()
	s.cycles++
	if s.trace != nil {
		s.trace.RecordCycle(s.cycles, s.clock, expired)
	}
	if s.cycles%10 == 0 {
		logrus.Infof("[t=%.3e s] Completed %d transient cycles", s.clock, s.cycles)
	} else {
		logrus.Debugf("[t=%.3e s] Transient cycle %d ended, %d expired", s.clock, s.cycles, expired)
	}
	if s.seedingComplete() {
		return
	}
	if err := s.ReassignSiteEnergies(); err != nil {
		// Validation already accepted these energetics, so a failure here is a defect.
		panic(err)
	}
	s.beginCycle()
}

func (s *Simulator) seedToFCohort() {
	t := s.params.Test
	kind := s.tofKind()
	z := s.lattice.Height - 1
	if kind == KindHole {
		z = 0
	}
	n := t.ToFInitialCount
	if remaining := int64(t.NTests) - s.stats.counters[kind].Created; remaining < int64(n) {
		n = int(remaining)
	}

	var sites []Coords
	if t.ToFEnergyPlace {
		sites = s.planeSitesNearEnergy(kind, z, t.ToFPlacementEnerg)
	} else {
		sites = s.planeSites(z)
		s.placement.Shuffle(len(sites), func(i, j int) { sites[i], sites[j] = sites[j], sites[i] })
	}
	placed := 0
	for _, c := range sites {
		if placed == n {
			break
		}
		if s.lattice.IsOccupied(c) || !s.phaseAllowed(kind, c) {
			continue
		}
		s.spawn(kind, SpinNone, c, 0)
		placed++
	}
	for _, p := range s.live {
		s.scheduleParticle(p)
	}
}

func (s *Simulator) planeSites(z int) []Coords {
	out := make([]Coords, 0, s.lattice.Length*s.lattice.Width)
	for x := 0; x < s.lattice.Length; x++ {
		for y := 0; y < s.lattice.Width; y++ {
			out = append(out, Coords{x, y, z})
		}
	}
	return out
}

// planeSitesNearEnergy orders the plane's sites by distance from a target carrier energy,
// measured relative to the site's transport level.
func (s *Simulator) planeSitesNearEnergy(kind ParticleKind, z int, target float64) []Coords {
	sites := s.planeSites(z)
	offset := func(c Coords) float64 {
		if kind == KindElectron {
			return s.electronSiteEnergy(c) + s.lumo(s.lattice.SiteType(c))
		}
		return s.holeSiteEnergy(c) - s.homo(s.lattice.SiteType(c))
	}
	sort.SliceStable(sites, func(i, j int) bool {
		return math.Abs(offset(sites[i])-target) < math.Abs(offset(sites[j])-target)
	})
	return sites
}

func (s *Simulator) seedDynamicsPulse() {
	t := s.params.Test
	n := int(math.Round(t.DynamicsExcitonConc * s.params.Volume()))
	n = max(n, 1)
	if remaining := int64(t.NTests) - s.stats.counters[KindExciton].Created; remaining < int64(n) {
		n = int(remaining)
	}
	weight := s.generationWeight()
	for i := 0; i < n; i++ {
		c, ok := s.randomFreeSite(weight)
		if !ok {
			logrus.Warnf("Dynamics pulse placed %d of %d excitons: lattice too crowded", i, n)
			break
		}
		s.spawn(KindExciton, SpinSinglet, c, 0)
	}
	for _, p := range s.live {
		s.scheduleParticle(p)
	}
}

// TransientSeries holds per-kind transient curves averaged over cycles.
// Counts are mean particles per cycle; the other series are per-particle means.
type TransientSeries struct {
	Times      []float64 // s after cohort creation
	Counts     map[ParticleKind][]float64
	Energies   map[ParticleKind][]float64 // eV
	MSD        map[ParticleKind][]float64 // nm²
	Velocities map[ParticleKind][]float64 // cm/s toward the collecting electrode
}

func (s *Simulator) transientSeries() TransientSeries {
	tl := s.transient
	out := TransientSeries{
		Counts:     make(map[ParticleKind][]float64),
		Energies:   make(map[ParticleKind][]float64),
		MSD:        make(map[ParticleKind][]float64),
		Velocities: make(map[ParticleKind][]float64),
	}
	if tl == nil {
		return out
	}
	out.Times = append([]float64(nil), tl.times...)
	for _, k := range tl.kinds {
		n := len(tl.times)
		counts, energies, msd, vel := make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n)
		for i := 0; i < n; i++ {
			c := tl.counts[k][i]
			if tl.cycles > 0 {
				counts[i] = c / float64(tl.cycles)
			}
			if c > 0 {
				energies[i] = tl.energies[k][i] / c
				msd[i] = tl.msd[k][i] / c
				vel[i] = tl.velocities[k][i] / c
			}
		}
		out.Counts[k], out.Energies[k], out.MSD[k], out.Velocities[k] = counts, energies, msd, vel
	}
	return out
}

// ToFTransient returns the time-of-flight cohort curves; empty outside ToF mode.
func (s *Simulator) ToFTransient() TransientSeries {
	if s.params.Test.Mode != ModeToF {
		return s.emptyTransientSeries()
	}
	return s.transientSeries()
}

// DynamicsTransient returns the dynamics pulse curves; empty outside dynamics mode.
func (s *Simulator) DynamicsTransient() TransientSeries {
	if s.params.Test.Mode != ModeDynamics {
		return s.emptyTransientSeries()
	}
	return s.transientSeries()
}

func (s *Simulator) emptyTransientSeries() TransientSeries {
	return TransientSeries{
		Counts:     map[ParticleKind][]float64{},
		Energies:   map[ParticleKind][]float64{},
		MSD:        map[ParticleKind][]float64{},
		Velocities: map[ParticleKind][]float64{},
	}
}

// TransitTimes returns the extraction times of ToF carriers relative to their creation.
func (s *Simulator) TransitTimes() []float64 {
	return append([]float64(nil), s.stats.transitTimes...)
}

// TransitTimeHistogram bins transit times on the transient sample grid, each
// bin spanning half a log step either side, normalized by the number of transits.
func (s *Simulator) TransitTimeHistogram() []Point {
	tl := s.transient
	if tl == nil || s.params.Test.Mode != ModeToF || len(s.stats.transitTimes) == 0 {
		return nil
	}
	half := 0.5 / float64(tl.perDecade)
	logStart := math.Log10(tl.start)
	dividers := make([]float64, len(tl.times)+1)
	for i := range dividers {
		dividers[i] = math.Pow(10, logStart+float64(i)/float64(tl.perDecade)-half)
	}
	var in []float64
	for _, t := range s.stats.transitTimes {
		if t >= dividers[0] && t < dividers[len(dividers)-1] {
			in = append(in, t)
		}
	}
	sort.Float64s(in)
	counts := make([]float64, len(tl.times))
	if len(in) > 0 {
		stat.Histogram(counts, dividers, in, nil)
	}
	total := float64(len(s.stats.transitTimes))
	out := make([]Point, len(tl.times))
	for i, t := range tl.times {
		out[i] = Point{X: t, Y: counts[i] / total}
	}
	return out
}

// MobilityData returns one mobility (cm²/Vs) per transit: μ = (d/(|V|·t))·d with d the film thickness.
func (s *Simulator) MobilityData() []float64 {
	v := math.Abs(s.params.Lattice.InternalPotential)
	if v == 0 {
		return nil
	}
	d := s.lattice.UnitSize * float64(s.lattice.Height) * 1e-7 // cm
	out := make([]float64, len(s.stats.transitTimes))
	for i, t := range s.stats.transitTimes {
		out[i] = d / (v * t) * d
	}
	return out
}
