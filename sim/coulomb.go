package sim

import "math"

// coulombTable caches the pair interaction energy (eV) between unit charges,
// indexed by squared lattice distance up to the cutoff.
type coulombTable struct {
	energies  []float64
	maxDist2  int
	imagePref float64 // eV·nm, 0 when image charges are off
	height    int
	unit      float64
}

func newCoulombTable(p *Parameters) *coulombTable {
	cut := p.Coulomb.Cutoff
	if cut <= 0 {
		return nil
	}
	a := p.Lattice.UnitSize
	eps := (p.Coulomb.DielectricDonor + p.Coulomb.DielectricAcceptor) / 2
	maxD2 := int(math.Floor((cut / a) * (cut / a)))
	t := &coulombTable{
		energies: make([]float64, maxD2+1),
		maxDist2: maxD2,
		height:   p.Lattice.Height,
		unit:     a,
	}
	for i := 1; i <= maxD2; i++ {
		r := a * math.Sqrt(float64(i))
		e := CoulombConstant * ElementaryCharge / eps / (1e-9 * r)
		if p.Polarons.GaussianDelocalization {
			e *= math.Erf(r / (2 * p.Polarons.DelocalizationLength))
		}
		t.energies[i] = e
	}
	if !p.Lattice.PeriodicZ && p.Test.Mode != ModeToF {
		t.imagePref = ElementaryCharge / (16 * math.Pi * eps * VacuumPermittivity) * 1e9
	}
	return t
}

// pair returns the interaction magnitude at squared lattice distance d2, 0 beyond cutoff.
func (t *coulombTable) pair(d2 int) float64 {
	if d2 <= 0 || d2 > t.maxDist2 {
		return 0
	}
	return t.energies[d2]
}

// image returns the attraction of a charge at plane z to both electrodes (eV).
func (t *coulombTable) image(z int) float64 {
	if t.imagePref == 0 {
		return 0
	}
	bottom := float64(z+1) * t.unit
	top := float64(t.height-z) * t.unit
	return -t.imagePref * (1/bottom + 1/top)
}

// imageGradient is d(image)/dz at plane z in eV/nm.
func (t *coulombTable) imageGradient(z int) float64 {
	if t.imagePref == 0 {
		return 0
	}
	bottom := float64(z+1) * t.unit
	top := float64(t.height-z) * t.unit
	return t.imagePref * (1/(bottom*bottom) - 1/(top*top))
}

// nearby returns live particles within d2max squared lattice units of c, skipping skip.
func (s *Simulator) nearby(c Coords, d2max int, skip int64, keep func(*Particle) bool) []*Particle {
	var out []*Particle
	for _, q := range s.live {
		if q.ID == skip || !keep(q) {
			continue
		}
		if s.lattice.DistanceSquared(c, q.Coords) <= d2max {
			out = append(out, q)
		}
	}
	return out
}

func isPolaron(p *Particle) bool { return p.IsPolaron() }

// coulombEnergy is the electrostatic energy of a charge of sign q at c from the
// given partners plus its image interaction.
func (s *Simulator) coulombEnergy(q int, c Coords, partners []*Particle) float64 {
	if s.coulomb == nil {
		return 0
	}
	e := s.coulomb.image(c.Z)
	for _, o := range partners {
		e += float64(q*o.Charge()) * s.coulomb.pair(s.lattice.DistanceSquared(c, o.Coords))
	}
	return e
}

// FieldAt returns the z component of the electric field at c in V/cm: the
// applied field plus the image-charge field of both electrodes and the Coulomb
// field of charges within the cutoff.
func (s *Simulator) FieldAt(c Coords) float64 {
	field := s.InternalField()
	if s.coulomb == nil {
		return field
	}
	field += s.coulomb.imageGradient(c.Z) * 1e7
	eps := (s.params.Coulomb.DielectricDonor + s.params.Coulomb.DielectricAcceptor) / 2
	a := s.lattice.UnitSize
	for _, o := range s.nearby(c, s.coulomb.maxDist2, 0, isPolaron) {
		if o.Coords == c {
			continue
		}
		d := s.lattice.Displacement(o.Coords, c)
		r := a * math.Sqrt(float64(d.X*d.X+d.Y*d.Y+d.Z*d.Z)) * 1e-9 // m
		dz := float64(d.Z) * a * 1e-9
		field += CoulombConstant * float64(o.Charge()) * ElementaryCharge / eps * dz / (r * r * r) * 1e-2
	}
	return field
}
