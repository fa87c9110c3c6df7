package sim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// tripletFusionSingletThreshold: triplet-triplet annihilation leaves the
// surviving exciton a singlet with probability 1/4.
const tripletFusionSingletThreshold = 0.75

// execute applies ev to the lattice, population and statistics. The owner is live.
func (s *Simulator) execute(ev Event) {
	if ev.Kind == EventExcitonCreation {
		s.executeExcitonCreation()
		return
	}
	p := s.particles[ev.Particle]
	switch ev.Kind {
	case EventPolaronHop:
		src := p.Coords
		s.moveParticle(p, ev.Dest, ev.Offset)
		if s.steady != nil {
			s.steadyRecordHop(p, src, ev.Offset)
		}
		s.recalculateAround(src, ev.Dest)
	case EventPolaronExtraction:
		s.executeExtraction(p)
	case EventRecombination:
		s.executeRecombination(p, s.mustParticle(ev.Target, ev))
	case EventExcitonHop:
		src := p.Coords
		s.moveParticle(p, ev.Dest, ev.Offset)
		o := ev.Offset
		s.stats.diffusion.HopLengths = append(s.stats.diffusion.HopLengths,
			s.lattice.UnitSize*math.Sqrt(float64(o.X*o.X+o.Y*o.Y+o.Z*o.Z)))
		s.recalculateAround(src, ev.Dest)
	case EventExcitonDecay:
		s.executeExcitonDecay(p)
	case EventExcitonDissociation:
		s.executeDissociation(p, ev)
	case EventIntersystemCrossing:
		p.Spin = SpinTriplet
		s.recalculateAround(p.Coords, p.Coords)
	case EventReverseISC:
		p.Spin = SpinSinglet
		s.recalculateAround(p.Coords, p.Coords)
	case EventExcitonAnnihilation:
		s.executeExcitonAnnihilation(p, s.mustParticle(ev.Target, ev))
	case EventPolaronAnnihilation:
		s.executePolaronAnnihilation(p, s.mustParticle(ev.Target, ev))
	default:
		panic(fmt.Sprintf("simulator: unknown event kind %q", ev.Kind))
	}
}

// mustParticle returns a live event partner. A stale partner means a
// recalculation was missed, which is a defect.
func (s *Simulator) mustParticle(id int64, ev Event) *Particle {
	q, ok := s.particles[id]
	if !ok {
		panic(fmt.Sprintf("simulator: %s by particle %d targets missing particle %d", ev.Kind, ev.Particle, id))
	}
	return q
}

func (s *Simulator) moveParticle(p *Particle, dest, offset Coords) {
	s.lattice.vacate(p.Coords)
	s.lattice.occupy(dest, p.ID)
	p.move(dest, offset)
}

func (s *Simulator) executeExtraction(p *Particle) {
	c := p.Coords
	s.stats.extracted(p.Kind, c)
	if s.params.Test.Mode == ModeToF && p.Kind == s.tofKind() {
		s.stats.transitTimes = append(s.stats.transitTimes, s.clock-p.CreationTime)
	}
	s.remove(p, StateExtracted)
	s.recalculateAround(c, c)
}

func (s *Simulator) executeRecombination(electron, hole *Particle) {
	ec, hc := electron.Coords, hole.Coords
	if electron.PairTag != 0 && electron.PairTag == hole.PairTag {
		s.stats.channels[ChannelGeminate]++
	} else {
		s.stats.channels[ChannelBimolecular]++
	}
	s.remove(electron, StateRecombined)
	s.remove(hole, StateRecombined)
	s.recalculateAround(ec, hc)
}

func (s *Simulator) executeExcitonDecay(p *Particle) {
	c := p.Coords
	d := &s.stats.diffusion
	d.Distances = append(d.Distances, s.lattice.UnitSize*math.Sqrt(float64(p.DisplacementSquared())))
	d.Lifetimes = append(d.Lifetimes, s.clock-p.CreationTime)
	if p.Spin == SpinTriplet {
		s.stats.tripletDecays++
	} else {
		s.stats.singletDecays++
	}
	s.stats.channels[ChannelExcitonDecay]++
	s.remove(p, StateDecayed)
	s.recalculateAround(c, c)
}

// executeDissociation splits the exciton into a tagged pair: the electron on
// the acceptor side and the hole on the donor side.
func (s *Simulator) executeDissociation(p *Particle, ev Event) {
	src := p.Coords
	eSite, hSite := ev.Dest, src
	if s.lattice.SiteType(src) == SiteAcceptor {
		eSite, hSite = src, ev.Dest
	}
	s.remove(p, StateDissociated)
	s.nextTag++
	s.spawn(KindElectron, SpinNone, eSite, s.nextTag)
	s.spawn(KindHole, SpinNone, hSite, s.nextTag)
	s.recalculateAround(src, ev.Dest)
}

// executeExcitonAnnihilation destroys the initiating exciton. After
// triplet-triplet annihilation the surviving exciton may become a singlet.
func (s *Simulator) executeExcitonAnnihilation(p, target *Particle) {
	c, tc := p.Coords, target.Coords
	switch {
	case p.Spin == SpinSinglet && target.Spin == SpinSinglet:
		s.stats.channels[ChannelSingletSinglet]++
	case p.Spin == SpinTriplet && target.Spin == SpinTriplet:
		s.stats.channels[ChannelTripletTriplet]++
		if s.kinetics.Float64() > tripletFusionSingletThreshold {
			target.Spin = SpinSinglet
		}
	default:
		s.stats.channels[ChannelSingletTriplet]++
	}
	s.remove(p, StateRecombined)
	s.recalculateAround(c, tc)
}

func (s *Simulator) executePolaronAnnihilation(p, target *Particle) {
	c := p.Coords
	if p.Spin == SpinTriplet {
		s.stats.channels[ChannelTripletPolaron]++
	} else {
		s.stats.channels[ChannelSingletPolaron]++
	}
	s.remove(p, StateRecombined)
	s.recalculateAround(c, target.Coords)
}

func (s *Simulator) executeExcitonCreation() {
	c, ok := s.randomFreeSite(s.generationWeight())
	if ok {
		s.spawn(KindExciton, SpinSinglet, c, 0)
		s.recalculateAround(c, c)
	} else {
		logrus.Debugf("[t=%.3e s] No free site for exciton creation", s.clock)
	}
	s.scheduleExcitonCreation()
}
