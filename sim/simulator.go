package sim

import (
	"container/heap"
	"context"
	"fmt"
	"maps"
	"math"
	"math/rand"
	"sort"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/oscsim/oscsim/sim/trace"
)

// compactionSlack keeps small queues from compacting on every event.
const compactionSlack = 16

// ctxCheckInterval is the number of loop iterations between context checks.
const ctxCheckInterval = 1024

type stepResult int

const (
	stepExecuted stepResult = iota
	stepLimit
	stepExhausted
)

// Simulator owns the lattice, event queue and particle population of one run.
// It is not safe for concurrent use, except Snapshot.
type Simulator struct {
	params  Parameters
	lattice *Lattice
	rates   RateModel
	coulomb *coulombTable
	queue   *EventQueue

	rng         *PartitionedRNG
	disorderRNG *rand.Rand
	kinetics    *rand.Rand
	placement   *rand.Rand

	clock    float64
	executed int64
	previous EventKind
	nextID   int64
	nextTag  int64

	particles map[int64]*Particle
	live      []*Particle // creation order, swap-removed
	liveIndex map[int64]int

	recalcD2    int // squared lattice radius of rate dependence
	creationGen uint64
	genRate     float64 // total exciton generation rate, s^-1

	stats          *statistics
	transient      *transientLog
	steady         *steadyState
	dosCorrelation []Point

	cycle      int // current transient cycle, -1 outside transient modes
	cycleStart float64
	cycles     int // completed transient cycles

	exhausted bool
	timeLimit bool

	trace    *trace.SimulationTrace
	snapshot atomic.Pointer[Snapshot]
}

// NewSimulator validates params, builds the lattice and its energies, and
// seeds the initial particles of the configured test mode.
func NewSimulator(params Parameters) (*Simulator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	lat, err := NewLattice(params.Lattice)
	if err != nil {
		return nil, err
	}

	rng := NewPartitionedRNG(NewSimulationKey(params.Seed))
	s := &Simulator{
		params:      params,
		lattice:     lat,
		rates:       NewRateModel(params.Lattice.Temperature, params.Polarons.HopModel),
		coulomb:     newCoulombTable(&params),
		queue:       NewEventQueue(),
		rng:         rng,
		disorderRNG: rng.ForSubsystem(SubsystemDisorder),
		kinetics:    rng.ForSubsystem(SubsystemKinetics),
		placement:   rng.ForSubsystem(SubsystemPlacement),
		particles:   make(map[int64]*Particle),
		liveIndex:   make(map[int64]int),
		stats:       newStatistics(params.Lattice.Length, params.Lattice.Width),
		cycle:       -1,
	}

	lat.assignMorphology(params.Morphology, s.disorderRNG)
	if err := GenerateSiteEnergies(lat, params.Energetics, s.disorderRNG); err != nil {
		return nil, err
	}
	s.recalcD2 = toLatticeD2(s.interactionRadius(), lat.UnitSize)

	if params.RecordTrace {
		s.trace = trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelEvents})
	}

	t := params.Test
	switch t.Mode {
	case ModeToF:
		s.transient = newTransientLog(t.ToFStart, t.ToFEnd, t.ToFPointsPerDec, []ParticleKind{s.tofKind()})
		s.beginCycle()
	case ModeDynamics:
		s.transient = newTransientLog(t.DynamicsStart, t.DynamicsEnd, t.DynamicsPointsPerDe, AllParticleKinds)
		s.beginCycle()
	case ModeExcitonDiffusion, ModeIQE:
		s.genRate = s.excitonGenerationRate()
		s.scheduleExcitonCreation()
	case ModeSteadyTransport:
		if err := s.seedSteadyTransport(); err != nil {
			return nil, err
		}
	}

	s.publishSnapshot()
	logrus.Infof("Simulator ready: %dx%dx%d lattice, mode %s, seed %d",
		lat.Length, lat.Width, lat.Height, t.Mode, params.Seed)
	return s, nil
}

// interactionRadius is the farthest distance (nm) at which a change at one site
// can alter another particle's rates.
func (s *Simulator) interactionRadius() float64 {
	p := s.params
	r := max(p.Polarons.HoppingCutoff, p.Excitons.FRETCutoff, p.Excitons.DissociationCutoff, p.Polarons.CaptureRadius)
	if s.coulomb != nil {
		r = max(r, p.Coulomb.Cutoff+p.Polarons.HoppingCutoff)
	}
	return r
}

// Params returns the run parameters.
func (s *Simulator) Params() Parameters { return s.params }

// Lattice returns the run's lattice. Callers must not mutate it.
func (s *Simulator) Lattice() *Lattice { return s.lattice }

// Time returns the simulation clock (s).
func (s *Simulator) Time() float64 { return s.clock }

// EventsExecuted returns the number of executed (non-stale) events.
func (s *Simulator) EventsExecuted() int64 { return s.executed }

// PreviousEventKind returns the kind of the last executed event.
func (s *Simulator) PreviousEventKind() EventKind { return s.previous }

// TransientCycles returns the number of transient cycles that seeded a cohort,
// including the one in progress. It is 0 outside the ToF and dynamics modes.
func (s *Simulator) TransientCycles() int {
	if s.transient == nil {
		return 0
	}
	return s.transient.cycles
}

// Trace returns the executed-event trace, or nil when tracing is off.
func (s *Simulator) Trace() *trace.SimulationTrace { return s.trace }

// QueueLength returns the number of queued events, stale ones included.
func (s *Simulator) QueueLength() int { return s.queue.Len() }

// Particles returns copies of the live particles ordered by ID.
func (s *Simulator) Particles() []Particle {
	out := make([]Particle, 0, len(s.live))
	for _, p := range s.live {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Particle returns a copy of live particle id.
func (s *Simulator) Particle(id int64) (Particle, bool) {
	p, ok := s.particles[id]
	if !ok {
		return Particle{}, false
	}
	return *p, true
}

// SiteOccupiedBy reports whether a particle of kind k sits on c.
func (s *Simulator) SiteOccupiedBy(c Coords, k ParticleKind) bool {
	if !s.lattice.InBounds(c) {
		return false
	}
	id, ok := s.lattice.Occupant(c)
	return ok && s.particles[id].Kind == k
}

// Immobilized returns the number of live particles without any candidate event.
func (s *Simulator) Immobilized() int {
	n := 0
	for _, p := range s.live {
		if p.State == StateImmobilized {
			n++
		}
	}
	return n
}

// MeanSquaredDisplacement returns the mean squared displacement (nm²) of live
// particles of kind k since their creation.
func (s *Simulator) MeanSquaredDisplacement(k ParticleKind) float64 {
	sum, n := 0.0, 0
	a2 := s.lattice.UnitSize * s.lattice.UnitSize
	for _, p := range s.live {
		if p.Kind == k {
			sum += float64(p.DisplacementSquared()) * a2
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// === Particle creation ===

// CreateElectron places an electron on c at the current time.
func (s *Simulator) CreateElectron(c Coords) (int64, error) {
	return s.create(KindElectron, SpinNone, c)
}

// CreateHole places a hole on c at the current time.
func (s *Simulator) CreateHole(c Coords) (int64, error) {
	return s.create(KindHole, SpinNone, c)
}

// CreateExciton places an exciton on c at the current time. An empty spin means singlet.
func (s *Simulator) CreateExciton(c Coords, spin Spin) (int64, error) {
	if spin == SpinNone {
		spin = SpinSinglet
	}
	return s.create(KindExciton, spin, c)
}

// CreatePolaronPair places an electron and a hole that count as one geminate pair.
func (s *Simulator) CreatePolaronPair(electron, hole Coords) (int64, int64, error) {
	if electron == hole {
		return 0, 0, fmt.Errorf("%w: electron and hole both at %s", ErrSiteOccupied, electron)
	}
	if err := s.checkPlacement(KindElectron, electron); err != nil {
		return 0, 0, err
	}
	if err := s.checkPlacement(KindHole, hole); err != nil {
		return 0, 0, err
	}
	s.nextTag++
	e := s.spawn(KindElectron, SpinNone, electron, s.nextTag)
	h := s.spawn(KindHole, SpinNone, hole, s.nextTag)
	s.recalculateAround(electron, hole)
	s.exhausted = false
	return e.ID, h.ID, nil
}

func (s *Simulator) checkPlacement(kind ParticleKind, c Coords) error {
	if !s.lattice.InBounds(c) {
		return fmt.Errorf("%w: %s", ErrInvalidCoords, c)
	}
	if s.lattice.IsOccupied(c) {
		return fmt.Errorf("%w: %s", ErrSiteOccupied, c)
	}
	if kind != KindExciton && !s.phaseAllowed(kind, c) {
		return fmt.Errorf("%w: %s on %s site %s", ErrPhaseRestricted, kind, s.lattice.SiteType(c), c)
	}
	return nil
}

func (s *Simulator) create(kind ParticleKind, spin Spin, c Coords) (int64, error) {
	if err := s.checkPlacement(kind, c); err != nil {
		return 0, err
	}
	p := s.spawn(kind, spin, c, 0)
	s.recalculateAround(c, c)
	// A drained run resumes with the new particle; the next empty pop sets the flag again.
	s.exhausted = false
	return p.ID, nil
}

// spawn registers a particle without scheduling anything.
func (s *Simulator) spawn(kind ParticleKind, spin Spin, c Coords, tag int64) *Particle {
	s.nextID++
	p := &Particle{
		ID:           s.nextID,
		Kind:         kind,
		Spin:         spin,
		Coords:       c,
		CreationTime: s.clock,
		State:        StateMobile,
		PairTag:      tag,
		Cohort:       s.cycle,
	}
	s.lattice.occupy(c, p.ID)
	s.particles[p.ID] = p
	s.liveIndex[p.ID] = len(s.live)
	s.live = append(s.live, p)
	s.stats.created(kind)
	return p
}

// remove destroys p with a terminal state and invalidates its pending event.
func (s *Simulator) remove(p *Particle, state ParticleState) {
	s.lattice.vacate(p.Coords)
	i := s.liveIndex[p.ID]
	last := len(s.live) - 1
	s.live[i] = s.live[last]
	s.liveIndex[s.live[i].ID] = i
	s.live[last] = nil
	s.live = s.live[:last]
	delete(s.liveIndex, p.ID)
	delete(s.particles, p.ID)
	p.State = state
	p.Generation++
	s.stats.terminated(p.Kind, state)
}

// recalculateAround reschedules every live particle within the interaction
// radius of a or b.
func (s *Simulator) recalculateAround(a, b Coords) {
	for _, p := range s.live {
		if s.lattice.DistanceSquared(p.Coords, a) <= s.recalcD2 ||
			(b != a && s.lattice.DistanceSquared(p.Coords, b) <= s.recalcD2) {
			s.scheduleParticle(p)
		}
	}
}

// === Event loop ===

func (s *Simulator) isLive(e Event) bool {
	if e.Kind == EventExcitonCreation {
		return e.Generation == s.creationGen
	}
	p, ok := s.particles[e.Particle]
	return ok && p.Generation == e.Generation
}

// ExecuteNextEvent executes the earliest live event, dropping stale ones.
// It returns false when nothing was executed: the queue is drained or the next
// event lies beyond test.max_time (the clock then stops at max_time).
func (s *Simulator) ExecuteNextEvent() bool {
	switch s.step(s.params.Test.MaxTime) {
	case stepExecuted:
		return true
	case stepLimit:
		s.timeLimit = true
	}
	return false
}

// RunUntil executes events up to absolute time t (s) or until CheckFinished,
// leaving the clock at t when the next event lies beyond it.
func (s *Simulator) RunUntil(ctx context.Context, t float64) error {
	limit := t
	if m := s.params.Test.MaxTime; m > 0 && m < limit {
		limit = m
	}
	for i := 0; !s.CheckFinished(); i++ {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		res := s.step(limit)
		if res == stepExecuted {
			continue
		}
		if res == stepLimit && limit == s.params.Test.MaxTime {
			s.timeLimit = true
		}
		break
	}
	s.publishSnapshot()
	return nil
}

// Run executes events until CheckFinished or ctx is cancelled between events.
func (s *Simulator) Run(ctx context.Context) error {
	logrus.Infof("Starting %s run", s.params.Test.Mode)
	for i := 0; !s.CheckFinished(); i++ {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				s.publishSnapshot()
				return err
			}
		}
		s.ExecuteNextEvent()
	}
	s.publishSnapshot()
	logrus.Infof("Run finished at t=%.4e s after %d events (%d transient cycles)", s.clock, s.executed, s.TransientCycles())
	return nil
}

// step advances by one event or one transient-cycle boundary. limit <= 0 means no time cap.
func (s *Simulator) step(limit float64) stepResult {
	for {
		ev, ok := s.queue.PopNext()
		if !ok {
			return s.queueDrained(limit)
		}
		if !s.isLive(ev) {
			continue
		}
		if s.transient != nil {
			if deadline := s.cycleStart + s.transient.end; ev.Time > deadline {
				if limit > 0 && deadline > limit {
					s.requeue(ev)
					s.clock = math.Max(s.clock, limit)
					return stepLimit
				}
				s.endCycle(deadline)
				return stepExecuted
			}
		}
		if limit > 0 && ev.Time > limit {
			s.requeue(ev)
			s.clock = math.Max(s.clock, limit)
			return stepLimit
		}
		if ev.Time < s.clock {
			panic(fmt.Sprintf("simulator: clock went backwards: event at %.6e < clock %.6e", ev.Time, s.clock))
		}
		s.executeEvent(ev)
		return stepExecuted
	}
}

func (s *Simulator) requeue(e Event) {
	heap.Push(s.queue, e)
}

func (s *Simulator) queueDrained(limit float64) stepResult {
	if s.transient == nil || (s.seedingComplete() && s.stats.aliveTotal() == 0) {
		s.exhausted = true
		return stepExhausted
	}
	deadline := s.cycleStart + s.transient.end
	if limit > 0 && deadline > limit {
		s.clock = math.Max(s.clock, limit)
		return stepLimit
	}
	s.endCycle(deadline)
	return stepExecuted
}

func (s *Simulator) executeEvent(ev Event) {
	if s.transient != nil {
		s.sampleTransient(ev.Time)
	}
	s.clock = ev.Time
	logrus.Debugf("[t=%.3e s] Executing %s for particle %d", ev.Time, ev.Kind, ev.Particle)

	var rec trace.EventRecord
	if s.trace != nil {
		rec = trace.EventRecord{Seq: s.executed, Time: ev.Time, Kind: string(ev.Kind), Particle: ev.Particle, Target: ev.Target}
		if p, ok := s.particles[ev.Particle]; ok {
			rec.ParticleKind = string(p.Kind)
			rec.From = [3]int{p.Coords.X, p.Coords.Y, p.Coords.Z}
		}
		rec.To = [3]int{ev.Dest.X, ev.Dest.Y, ev.Dest.Z}
	}

	s.execute(ev)

	s.executed++
	s.previous = ev.Kind
	s.stats.events[ev.Kind]++
	if s.trace != nil {
		s.trace.RecordEvent(rec)
	}
	if s.steady != nil {
		s.steadyAfterEvent()
	}
	if s.queue.Len() > 4*(len(s.live)+compactionSlack) {
		s.queue.Compact(s.isLive)
	}
	if n := s.params.ProgressInterval; n > 0 && s.executed%n == 0 {
		s.publishSnapshot()
	}
}

// CheckFinished applies the stopping rule of the configured test mode.
func (s *Simulator) CheckFinished() bool {
	if s.timeLimit || s.exhausted {
		return true
	}
	t := s.params.Test
	n := int64(t.NTests)
	switch t.Mode {
	case ModeExcitonDiffusion:
		return s.stats.counters[KindExciton].Decayed >= n
	case ModeToF:
		k := s.tofKind()
		return s.stats.counters[k].Created >= n && s.stats.alive[k] == 0
	case ModeIQE:
		if s.clock > t.IQETimeCutoff {
			return true
		}
		return s.stats.counters[KindExciton].Created >= n && s.stats.aliveTotal() == 0
	case ModeDynamics:
		return s.stats.counters[KindExciton].Created >= n && s.stats.aliveTotal() == 0
	case ModeSteadyTransport:
		return s.executed >= t.NEquilibrationEvents+n
	}
	return false
}

// === Exciton generation ===

func (s *Simulator) excitonGenerationRate() float64 {
	x := s.params.Excitons
	a := s.lattice.UnitSize
	siteVolume := a * a * a * 1e-21 // cm³
	nd := float64(s.lattice.CountSites(SiteDonor))
	na := float64(s.lattice.CountSites(SiteAcceptor))
	return (x.GenerationRateDonor*nd + x.GenerationRateAcceptor*na) * siteVolume
}

func (s *Simulator) scheduleExcitonCreation() {
	s.creationGen++
	if s.genRate <= 0 {
		return
	}
	if s.params.Test.Mode == ModeIQE && s.stats.counters[KindExciton].Created >= int64(s.params.Test.NTests) {
		return
	}
	dt := -math.Log(1-s.kinetics.Float64()) / s.genRate
	s.queue.Schedule(Event{Time: s.clock + dt, Kind: EventExcitonCreation, Generation: s.creationGen})
}

// placementAttempts bounds the random search for a free site.
const placementAttempts = 1000

// randomFreeSite draws an unoccupied site, weighting site types by accept(t) in [0, 1].
func (s *Simulator) randomFreeSite(accept func(SiteType) float64) (Coords, bool) {
	for i := 0; i < placementAttempts; i++ {
		c := s.lattice.RandomCoords(s.placement)
		if s.lattice.IsOccupied(c) {
			continue
		}
		if w := accept(s.lattice.SiteType(c)); w < 1 && s.placement.Float64() >= w {
			continue
		}
		return c, true
	}
	return Coords{}, false
}

func (s *Simulator) generationWeight() func(SiteType) float64 {
	x := s.params.Excitons
	top := math.Max(x.GenerationRateDonor, x.GenerationRateAcceptor)
	return func(t SiteType) float64 {
		if top == 0 {
			return 1
		}
		return byType(t, x.GenerationRateDonor, x.GenerationRateAcceptor) / top
	}
}

// === Progress ===

// Snapshot is a point-in-time copy of run progress.
type Snapshot struct {
	Time            float64
	Events          int64
	Alive           map[ParticleKind]int
	Counters        map[ParticleKind]Counters
	Channels        map[Channel]int64
	Immobilized     int
	TransientCycles int
	QueueLength     int
	Finished        bool
}

func (s *Simulator) publishSnapshot() {
	snap := &Snapshot{
		Time:            s.clock,
		Events:          s.executed,
		Alive:           make(map[ParticleKind]int, len(AllParticleKinds)),
		Counters:        make(map[ParticleKind]Counters, len(AllParticleKinds)),
		Channels:        make(map[Channel]int64, len(Channels)),
		Immobilized:     s.Immobilized(),
		TransientCycles: s.TransientCycles(),
		QueueLength:     s.queue.Len(),
		Finished:        s.CheckFinished(),
	}
	for _, k := range AllParticleKinds {
		snap.Alive[k] = s.stats.alive[k]
		snap.Counters[k] = *s.stats.counters[k]
	}
	for _, ch := range Channels {
		snap.Channels[ch] = s.stats.channels[ch]
	}
	s.snapshot.Store(snap)
}

// Snapshot returns the most recently published progress. It is safe to call
// from any goroutine while the run is in progress; the returned maps are copies.
func (s *Simulator) Snapshot() Snapshot {
	snap := *s.snapshot.Load()
	snap.Alive = maps.Clone(snap.Alive)
	snap.Counters = maps.Clone(snap.Counters)
	snap.Channels = maps.Clone(snap.Channels)
	return snap
}
