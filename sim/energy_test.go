package sim

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func cubicLattice(t *testing.T, n int) *Lattice {
	t.Helper()
	l, err := NewLattice(LatticeConfig{Length: n, Width: n, Height: n, UnitSize: 1, PeriodicX: true, PeriodicY: true, PeriodicZ: true})
	require.NoError(t, err)
	return l
}

func gaussianEnergetics() EnergeticsConfig {
	e := DefaultParameters().Energetics
	e.DOS = DOSGaussian
	e.EnergyStdevDonor, e.EnergyStdevAcceptor = 0.075, 0.075
	return e
}

func TestGenerateSiteEnergies_NoneIsFlat(t *testing.T) {
	l := cubicLattice(t, 5)
	e := gaussianEnergetics()
	e.DOS = DOSNone
	require.NoError(t, GenerateSiteEnergies(l, e, rand.New(rand.NewSource(1))))
	for _, v := range l.energies {
		assert.Equal(t, 0.0, v)
	}
}

func TestGenerateSiteEnergies_GaussianMatchesStdev(t *testing.T) {
	l := cubicLattice(t, 20)
	require.NoError(t, GenerateSiteEnergies(l, gaussianEnergetics(), rand.New(rand.NewSource(7))))

	mean, std := stat.MeanStdDev(l.energies, nil)
	assert.InDelta(t, 0, mean, 0.005)
	assert.InDelta(t, 0.075, std, 0.005)
}

func TestGenerateSiteEnergies_ExponentialIsBelowZero(t *testing.T) {
	l := cubicLattice(t, 20)
	e := gaussianEnergetics()
	e.DOS = DOSExponential
	e.EnergyUrbachDonor = 0.03
	require.NoError(t, GenerateSiteEnergies(l, e, rand.New(rand.NewSource(7))))

	for _, v := range l.energies {
		require.LessOrEqual(t, v, 0.0)
	}
	assert.InDelta(t, -0.03, stat.Mean(l.energies, nil), 0.003)
}

func TestGenerateSiteEnergies_Deterministic(t *testing.T) {
	a, b := cubicLattice(t, 8), cubicLattice(t, 8)
	e := gaussianEnergetics()
	e.Correlated, e.CorrelationLength = true, 1.5
	require.NoError(t, GenerateSiteEnergies(a, e, rand.New(rand.NewSource(11))))
	require.NoError(t, GenerateSiteEnergies(b, e, rand.New(rand.NewSource(11))))
	assert.Equal(t, a.energies, b.energies)
}

func TestGenerateSiteEnergies_CorrelatedKeepsStdev(t *testing.T) {
	for _, kernel := range []CorrelationKernel{KernelGaussian, KernelPower} {
		t.Run(string(kernel), func(t *testing.T) {
			l := cubicLattice(t, 12)
			e := gaussianEnergetics()
			e.Correlated, e.CorrelationLength, e.Kernel, e.PowerKernelExponent = true, 1.5, kernel, -2
			require.NoError(t, GenerateSiteEnergies(l, e, rand.New(rand.NewSource(3))))

			mean, std := stat.MeanStdDev(l.energies, nil)
			assert.InDelta(t, 0, mean, 1e-9)
			assert.InDelta(t, 0.075, std, 1e-9)
		})
	}
}

func TestGenerateSiteEnergies_RejectsLongCorrelation(t *testing.T) {
	l := cubicLattice(t, 6)
	e := gaussianEnergetics()
	e.Correlated, e.CorrelationLength = true, 3
	err := GenerateSiteEnergies(l, e, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrLatticeConstruction)
}

func TestCalculateDOSCorrelation_GaussianKernel(t *testing.T) {
	// GIVEN a 24³ lattice with Gaussian-correlated disorder of length 2 nm
	p := smallParameters()
	p.Lattice.Length, p.Lattice.Width, p.Lattice.Height = 24, 24, 24
	p.Energetics = gaussianEnergetics()
	p.Energetics.Correlated, p.Energetics.CorrelationLength = true, 2
	s := mustSimulator(t, p)

	// WHEN the correlation function is measured
	corr := s.CalculateDOSCorrelation()

	// THEN it starts at one and falls to about 1/e at one correlation length
	require.NotEmpty(t, corr)
	assert.Equal(t, 0.0, corr[0].X)
	assert.InDelta(t, 1.0, corr[0].Y, 0.15)
	var atLambda *Point
	for i := range corr {
		if corr[i].X == 2 {
			atLambda = &corr[i]
		}
	}
	require.NotNil(t, atLambda)
	assert.InDelta(t, math.Exp(-1), atLambda.Y, 0.15)
	assert.Equal(t, corr, s.DOSCorrelationData())
}

func TestCorrelationKernel_ReachCappedByExtent(t *testing.T) {
	l, err := NewLattice(LatticeConfig{Length: 8, Width: 10, Height: 7, UnitSize: 1, PeriodicX: true, PeriodicY: true, PeriodicZ: true})
	require.NoError(t, err)
	for _, kernel := range []CorrelationKernel{KernelGaussian, KernelPower} {
		t.Run(string(kernel), func(t *testing.T) {
			// GIVEN a correlation length just under half the smallest extent
			e := gaussianEnergetics()
			e.Correlated, e.CorrelationLength, e.Kernel = true, 3.4, kernel

			// WHEN the kernel is built
			taps := correlationKernel(l, e)

			// THEN every tap wraps onto a distinct site
			require.NotEmpty(t, taps)
			seen := map[Coords]bool{}
			for _, k := range taps {
				assert.LessOrEqual(t, k.offset.X*k.offset.X, 9)
				assert.LessOrEqual(t, k.offset.Y*k.offset.Y, 16)
				assert.LessOrEqual(t, k.offset.Z*k.offset.Z, 9)
				c := Coords{mod(k.offset.X, l.Length), mod(k.offset.Y, l.Width), mod(k.offset.Z, l.Height)}
				assert.False(t, seen[c], "site %s tapped twice", c)
				seen[c] = true
			}
		})
	}
}

func TestCalculateDOSCorrelation_Uncorrelated(t *testing.T) {
	p := smallParameters()
	p.Lattice.Length, p.Lattice.Width, p.Lattice.Height = 20, 20, 20
	p.Energetics = gaussianEnergetics()
	s := mustSimulator(t, p)

	corr := s.CalculateDOSCorrelation()
	require.Greater(t, len(corr), 1)
	assert.Equal(t, 1.0, corr[1].X, "half-unit bins without pairs are omitted")
	assert.InDelta(t, 0, corr[1].Y, 0.05)
}

func TestSiteEnergyTerms(t *testing.T) {
	p := smallParameters()
	p.Lattice.PeriodicZ = false
	p.Lattice.InternalPotential = 1
	s := mustSimulator(t, p)
	c := Coords{1, 1, 1}

	assert.InDelta(t, -3.5, s.electronSiteEnergy(c), 1e-12)
	assert.InDelta(t, 5.5, s.holeSiteEnergy(c), 1e-12)
	assert.InDelta(t, 1.5, s.excitonSiteEnergy(SpinSinglet, c), 1e-12)
	assert.InDelta(t, 0.8, s.excitonSiteEnergy(SpinTriplet, c), 1e-12)

	step := -1.0 / 11
	assert.InDelta(t, step, s.potentialStep(), 1e-12)
	assert.InDelta(t, step, s.fieldEnergy(KindElectron, 1), 1e-12)
	assert.InDelta(t, -step, s.fieldEnergy(KindHole, 1), 1e-12)
	assert.Equal(t, 0.0, s.fieldEnergy(KindExciton, 1))
	assert.InDelta(t, step*1e7, s.InternalField(), 1e-3)
}

func TestReassignSiteEnergies_DrawsNewDisorder(t *testing.T) {
	p := smallParameters()
	p.Energetics = gaussianEnergetics()
	s := mustSimulator(t, p)
	before := append([]float64(nil), s.SiteEnergies(SiteDonor)...)

	require.NoError(t, s.ReassignSiteEnergies())
	assert.NotEqual(t, before, s.SiteEnergies(SiteDonor))
	assert.Len(t, s.SiteEnergies(SiteDonor), 1000)
	assert.Empty(t, s.SiteEnergies(SiteAcceptor))
}
