package sim

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// gaussianKernelReach is the kernel radius in correlation lengths; exp(-2·2.2²) < 1e-4.
const gaussianKernelReach = 2.2

// powerKernelReach caps the power-law kernel radius in correlation lengths.
const powerKernelReach = 4.0

// GenerateSiteEnergies fills the lattice with site disorder energies (eV).
// The result depends only on the lattice, the energetics and the rng stream.
//
// Correlated disorder convolves a white Gaussian field with a real-space kernel
// (periodic in all three directions) and rescales each site to its phase's stdev.
// The Gaussian kernel exp(-2r²/λ²) yields a field correlation of exp(-r²/λ²).
func GenerateSiteEnergies(l *Lattice, e EnergeticsConfig, rng *rand.Rand) error {
	switch e.DOS {
	case DOSNone:
		clear(l.energies)
		return nil
	case DOSExponential:
		for i := range l.energies {
			l.energies[i] = -rng.ExpFloat64() * urbachFor(e, l.types[i])
		}
		return nil
	case DOSGaussian:
	default:
		return fmt.Errorf("%w: unknown DOS model %q", ErrLatticeConstruction, e.DOS)
	}

	if !e.Correlated {
		for i := range l.energies {
			l.energies[i] = rng.NormFloat64() * stdevFor(e, l.types[i])
		}
		return nil
	}

	if e.CorrelationLength >= l.MinExtent()/2 {
		return fmt.Errorf("%w: %w", ErrLatticeConstruction, paramErr("energetics.correlation_length",
			"%g nm must be below half the smallest lattice extent (%g nm)", e.CorrelationLength, l.MinExtent()/2))
	}

	white := make([]float64, l.NumSites())
	for i := range white {
		white[i] = rng.NormFloat64()
	}
	kernel := correlationKernel(l, e)
	for i := range l.energies {
		c := l.CoordsAt(i)
		sum := 0.0
		for _, k := range kernel {
			x := mod(c.X+k.offset.X, l.Length)
			y := mod(c.Y+k.offset.Y, l.Width)
			z := mod(c.Z+k.offset.Z, l.Height)
			sum += k.weight * white[x*l.Width*l.Height+y*l.Height+z]
		}
		l.energies[i] = sum
	}

	mean, std := stat.MeanStdDev(l.energies, nil)
	if std == 0 || math.IsNaN(std) {
		return fmt.Errorf("%w: correlated field has zero variance", ErrLatticeConstruction)
	}
	floats.AddConst(-mean, l.energies)
	floats.Scale(1/std, l.energies)
	for i := range l.energies {
		l.energies[i] *= stdevFor(e, l.types[i])
	}
	return nil
}

type kernelTap struct {
	offset Coords
	weight float64
}

// correlationKernel returns the smoothing taps. The reach along each axis is
// capped at (extent-1)/2 so no periodic image of a site is tapped twice.
func correlationKernel(l *Lattice, e EnergeticsConfig) []kernelTap {
	unit := l.UnitSize
	lambda := e.CorrelationLength
	reach := gaussianKernelReach * lambda
	if e.Kernel == KernelPower {
		reach = powerKernelReach * lambda
	}
	r := int(math.Ceil(reach / unit))
	rx, ry, rz := min(r, (l.Length-1)/2), min(r, (l.Width-1)/2), min(r, (l.Height-1)/2)
	var taps []kernelTap
	for dx := -rx; dx <= rx; dx++ {
		for dy := -ry; dy <= ry; dy++ {
			for dz := -rz; dz <= rz; dz++ {
				d := unit * math.Sqrt(float64(dx*dx+dy*dy+dz*dz))
				if d > reach {
					continue
				}
				var w float64
				if e.Kernel == KernelPower {
					w = math.Pow(1+d/lambda, float64(e.PowerKernelExponent))
				} else {
					w = math.Exp(-2 * d * d / (lambda * lambda))
				}
				taps = append(taps, kernelTap{offset: Coords{dx, dy, dz}, weight: w})
			}
		}
	}
	return taps
}

func mod(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

func stdevFor(e EnergeticsConfig, t SiteType) float64 {
	if t == SiteAcceptor {
		return e.EnergyStdevAcceptor
	}
	return e.EnergyStdevDonor
}

func urbachFor(e EnergeticsConfig, t SiteType) float64 {
	if t == SiteAcceptor {
		return e.EnergyUrbachAcceptor
	}
	return e.EnergyUrbachDonor
}

// Site energy terms. Disorder ε shifts both frontier orbitals of a site, so an
// electron sits at -LUMO+ε and a hole at HOMO-ε.

func (s *Simulator) homo(t SiteType) float64 {
	if t == SiteAcceptor {
		return s.params.Energetics.HomoAcceptor
	}
	return s.params.Energetics.HomoDonor
}

func (s *Simulator) lumo(t SiteType) float64 {
	if t == SiteAcceptor {
		return s.params.Energetics.LumoAcceptor
	}
	return s.params.Energetics.LumoDonor
}

func (s *Simulator) electronSiteEnergy(c Coords) float64 {
	return -s.lumo(s.lattice.SiteType(c)) + s.lattice.SiteEnergy(c)
}

func (s *Simulator) holeSiteEnergy(c Coords) float64 {
	return s.homo(s.lattice.SiteType(c)) - s.lattice.SiteEnergy(c)
}

func (s *Simulator) polaronSiteEnergy(kind ParticleKind, c Coords) float64 {
	if kind == KindElectron {
		return s.electronSiteEnergy(c)
	}
	return s.holeSiteEnergy(c)
}

// excitonSiteEnergy is the optical gap less the binding energy, shifted by disorder.
func (s *Simulator) excitonSiteEnergy(spin Spin, c Coords) float64 {
	t := s.lattice.SiteType(c)
	x := s.params.Excitons
	binding, est := x.BindingDonor, x.SingletTripletDonor
	if t == SiteAcceptor {
		binding, est = x.BindingAcceptor, x.SingletTripletAccept
	}
	e := s.homo(t) - s.lumo(t) - binding + s.lattice.SiteEnergy(c)
	if spin == SpinTriplet {
		e -= est
	}
	return e
}

// potentialStep is the electron potential energy change per +z plane (eV).
// Non-periodic films drop the bias over Height+1 gaps between the electrodes.
func (s *Simulator) potentialStep() float64 {
	l := s.params.Lattice
	if l.PeriodicZ {
		return -l.InternalPotential / float64(l.Height)
	}
	return -l.InternalPotential / float64(l.Height+1)
}

// fieldEnergy is the potential energy change of a charge moving dz planes.
func (s *Simulator) fieldEnergy(kind ParticleKind, dz int) float64 {
	switch kind {
	case KindElectron:
		return s.potentialStep() * float64(dz)
	case KindHole:
		return -s.potentialStep() * float64(dz)
	default:
		return 0
	}
}

// InternalField returns the applied field along z in V/cm.
func (s *Simulator) InternalField() float64 {
	return s.potentialStep() / s.lattice.UnitSize * 1e7
}

// ReassignSiteEnergies regenerates the disorder from the continuing disorder
// stream and reschedules every live particle, since all cached rates are stale.
func (s *Simulator) ReassignSiteEnergies() error {
	if err := GenerateSiteEnergies(s.lattice, s.params.Energetics, s.disorderRNG); err != nil {
		return err
	}
	s.dosCorrelation = nil
	for _, p := range s.live {
		s.scheduleParticle(p)
	}
	return nil
}

// SiteEnergy returns the disorder energy of c (eV).
func (s *Simulator) SiteEnergy(c Coords) float64 {
	return s.lattice.SiteEnergy(c)
}

// SiteEnergies returns the disorder energies of every site of type t, in index order.
func (s *Simulator) SiteEnergies(t SiteType) []float64 {
	out := make([]float64, 0, s.lattice.CountSites(t))
	for i, st := range s.lattice.types {
		if st == t {
			out = append(out, s.lattice.energies[i])
		}
	}
	return out
}
