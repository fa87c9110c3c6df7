package sim

import (
	"math"

	"github.com/sirupsen/logrus"
)

// byType picks the donor or acceptor value of a parameter pair.
func byType(t SiteType, donor, acceptor float64) float64 {
	if t == SiteAcceptor {
		return acceptor
	}
	return donor
}

func toLatticeD2(cutoff, unit float64) int {
	r := cutoff / unit
	return int(math.Floor(r*r + 1e-9))
}

// phaseAllowed applies the phase restriction: electrons on acceptor, holes on donor.
func (s *Simulator) phaseAllowed(kind ParticleKind, c Coords) bool {
	if !s.params.Polarons.PhaseRestriction || s.params.Morphology.Type == MorphologyNeat {
		return true
	}
	t := s.lattice.SiteType(c)
	if kind == KindElectron {
		return t == SiteAcceptor
	}
	return t == SiteDonor
}

func (s *Simulator) extractionAllowed() bool {
	if s.params.Lattice.PeriodicZ {
		return false
	}
	if s.params.Test.Mode == ModeDynamics {
		return s.params.Test.DynamicsExtraction
	}
	return true
}

// calculatePolaronEvents lists hop, extraction and (for electrons) recombination candidates.
func (s *Simulator) calculatePolaronEvents(p *Particle) []candidate {
	pol := s.params.Polarons
	lat := s.lattice
	a := lat.UnitSize
	src := p.Coords
	srcType := lat.SiteType(src)
	prefactor := byType(srcType, pol.HoppingDonor, pol.HoppingAcceptor)
	gamma := byType(srcType, pol.LocalizationDonor, pol.LocalizationAcceptor)
	reorg := byType(srcType, pol.ReorganizationDonor, pol.ReorganizationAccept)

	var partners []*Particle
	if s.coulomb != nil {
		reach := toLatticeD2(s.params.Coulomb.Cutoff+pol.HoppingCutoff, a)
		partners = s.nearby(src, reach, p.ID, isPolaron)
	}
	q := p.Charge()
	eSrc := s.polaronSiteEnergy(p.Kind, src)
	cSrc := s.coulombEnergy(q, src, partners)

	offsets := lat.NeighborOffsets(pol.HoppingCutoff)
	cands := make([]candidate, 0, len(offsets)+2)
	for _, off := range offsets {
		dest, ok := lat.DestinationCoords(src, off)
		if !ok || lat.IsOccupied(dest) || !s.phaseAllowed(p.Kind, dest) {
			continue
		}
		dE := s.polaronSiteEnergy(p.Kind, dest) - eSrc + s.fieldEnergy(p.Kind, off.Z)
		if s.coulomb != nil {
			dE += s.coulombEnergy(q, dest, partners) - cSrc
		}
		dist := a * math.Sqrt(float64(off.X*off.X+off.Y*off.Y+off.Z*off.Z))
		cands = append(cands, candidate{
			kind:   EventPolaronHop,
			rate:   s.rates.PolaronHop(prefactor, gamma, dist, dE, reorg),
			dest:   dest,
			offset: off,
		})
	}

	if s.extractionAllowed() {
		planes := src.Z + 1
		if p.Kind == KindHole {
			planes = lat.Height - src.Z
		}
		if d := float64(planes) * a; d <= pol.HoppingCutoff+1e-9 {
			cands = append(cands, candidate{
				kind: EventPolaronExtraction,
				rate: s.rates.Tunneling(prefactor, gamma, d),
				dest: src,
			})
		}
	}

	if p.Kind == KindElectron && pol.CaptureRadius > 0 {
		capture := toLatticeD2(pol.CaptureRadius, a)
		holes := s.nearby(src, capture, p.ID, func(o *Particle) bool { return o.Kind == KindHole })
		for _, h := range holes {
			dist := lat.Distance(src, h.Coords)
			var rate float64
			if pol.Recombination == RecombinationLangevin {
				eps := (s.params.Coulomb.DielectricDonor + s.params.Coulomb.DielectricAcceptor) / 2
				rate = s.rates.LangevinRecombination(pol.MobilityElectron, pol.MobilityHole, eps, a, gamma, dist)
			} else {
				rate = s.rates.Tunneling(pol.RecombinationRate, gamma, dist)
			}
			cands = append(cands, candidate{kind: EventRecombination, rate: rate, dest: h.Coords, target: h.ID})
		}
	}
	return cands
}

// calculateExcitonEvents lists hop, decay, spin conversion, dissociation and annihilation candidates.
func (s *Simulator) calculateExcitonEvents(p *Particle) []candidate {
	x := s.params.Excitons
	pol := s.params.Polarons
	lat := s.lattice
	a := lat.UnitSize
	src := p.Coords
	t := lat.SiteType(src)
	singlet := p.Spin == SpinSinglet
	eSrc := s.excitonSiteEnergy(p.Spin, src)

	var cands []candidate

	hopPrefactor := byType(t, x.TripletHoppingDonor, x.TripletHoppingAcceptor)
	tripletGamma := byType(t, x.TripletLocalizationDon, x.TripletLocalizationAcc)
	if singlet {
		hopPrefactor = byType(t, x.SingletHoppingDonor, x.SingletHoppingAcceptor)
	}
	for _, off := range lat.NeighborOffsets(x.FRETCutoff) {
		dest, ok := lat.DestinationCoords(src, off)
		if !ok || lat.IsOccupied(dest) {
			continue
		}
		dE := s.excitonSiteEnergy(p.Spin, dest) - eSrc
		dist := a * math.Sqrt(float64(off.X*off.X+off.Y*off.Y+off.Z*off.Z))
		var rate float64
		if singlet {
			rate = s.rates.FRET(hopPrefactor, dist, dE)
		} else {
			rate = s.rates.Dexter(hopPrefactor, tripletGamma, dist, dE)
		}
		cands = append(cands, candidate{kind: EventExcitonHop, rate: rate, dest: dest, offset: off})
	}

	if singlet {
		cands = append(cands,
			candidate{kind: EventExcitonDecay, rate: s.rates.Decay(byType(t, x.SingletLifetimeDonor, x.SingletLifetimeAcceptor)), dest: src},
			candidate{kind: EventIntersystemCrossing, rate: byType(t, x.ISCDonor, x.ISCAcceptor), dest: src},
		)
	} else {
		cands = append(cands,
			candidate{kind: EventExcitonDecay, rate: s.rates.Decay(byType(t, x.TripletLifetimeDonor, x.TripletLifetimeAcceptor)), dest: src},
			candidate{kind: EventReverseISC, rate: s.rates.ReverseISC(byType(t, x.RISCDonor, x.RISCAcceptor), byType(t, x.SingletTripletDonor, x.SingletTripletAccept)), dest: src},
		)
	}

	// Dissociation needs a donor/acceptor interface: the electron goes to the acceptor side.
	dissPrefactor := byType(t, x.DissociationDonor, x.DissociationAcceptor)
	polGamma := byType(t, pol.LocalizationDonor, pol.LocalizationAcceptor)
	if dissPrefactor > 0 && s.params.Morphology.Type != MorphologyNeat {
		for _, off := range lat.NeighborOffsets(x.DissociationCutoff) {
			dest, ok := lat.DestinationCoords(src, off)
			if !ok || lat.IsOccupied(dest) || lat.SiteType(dest) == t {
				continue
			}
			eSite, hSite := dest, src
			mover := KindElectron
			if t == SiteAcceptor {
				eSite, hSite = src, dest
				mover = KindHole
			}
			d2 := off.X*off.X + off.Y*off.Y + off.Z*off.Z
			ePair := s.electronSiteEnergy(eSite) + s.holeSiteEnergy(hSite) + s.fieldEnergy(mover, off.Z)
			if s.coulomb != nil {
				ePair -= s.coulomb.pair(d2)
			}
			dist := a * math.Sqrt(float64(d2))
			cands = append(cands, candidate{
				kind:   EventExcitonDissociation,
				rate:   dissPrefactor * math.Exp(-2*polGamma*dist) * s.rates.Boltzmann(ePair-eSrc),
				dest:   dest,
				offset: off,
			})
		}
	}

	reach := toLatticeD2(x.FRETCutoff, a)
	for _, o := range s.nearby(src, reach, p.ID, func(*Particle) bool { return true }) {
		dist := lat.Distance(src, o.Coords)
		if o.Kind == KindExciton {
			if !singlet && o.Spin == SpinSinglet {
				continue
			}
			r := byType(t, x.ExcitonAnnihilationDonor, x.ExcitonAnnihilationAcceptor)
			cands = append(cands, candidate{kind: EventExcitonAnnihilation, rate: s.annihilationRate(singlet, r, tripletGamma, dist), dest: o.Coords, target: o.ID})
			continue
		}
		r := byType(t, x.PolaronAnnihilationDonor, x.PolaronAnnihilationAcceptor)
		cands = append(cands, candidate{kind: EventPolaronAnnihilation, rate: s.annihilationRate(singlet, r, tripletGamma, dist), dest: o.Coords, target: o.ID})
	}
	return cands
}

// annihilationRate uses FRET for singlets and Dexter for triplets unless FRET
// triplet annihilation is enabled.
func (s *Simulator) annihilationRate(singlet bool, prefactor, tripletGamma, dist float64) float64 {
	if singlet || s.params.Excitons.FRETTripletAnnihilation {
		return s.rates.FRET(prefactor, dist, 0)
	}
	return s.rates.Dexter(prefactor, tripletGamma, dist, 0)
}

// scheduleParticle supersedes p's pending event and draws a new one by
// per-particle Gillespie selection: dt ~ Exp(Σr), event i with probability r_i/Σr.
// A particle with no positive-rate candidate becomes immobilized.
func (s *Simulator) scheduleParticle(p *Particle) {
	p.Generation++
	var cands []candidate
	if p.Kind == KindExciton {
		cands = s.calculateExcitonEvents(p)
	} else {
		cands = s.calculatePolaronEvents(p)
	}

	total := 0.0
	for _, c := range cands {
		if c.rate > 0 && !math.IsInf(c.rate, 0) {
			total += c.rate
		}
	}
	if total == 0 {
		if p.State != StateImmobilized {
			logrus.Debugf("[t=%.3e s] %s %d immobilized at %s", s.clock, p.Kind, p.ID, p.Coords)
		}
		p.State = StateImmobilized
		return
	}
	p.State = StateMobile

	u := s.kinetics.Float64()
	dt := -math.Log(1-u) / total
	pick := s.kinetics.Float64() * total
	chosen := -1
	acc := 0.0
	for i, c := range cands {
		if !(c.rate > 0) || math.IsInf(c.rate, 0) {
			continue
		}
		chosen = i
		acc += c.rate
		if pick < acc {
			break
		}
	}
	c := cands[chosen]
	s.queue.Schedule(Event{
		Time:       s.clock + dt,
		Kind:       c.kind,
		Particle:   p.ID,
		Target:     c.target,
		Dest:       c.dest,
		Offset:     c.offset,
		Generation: p.Generation,
	})
}
