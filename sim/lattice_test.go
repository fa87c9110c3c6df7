package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLattice(t *testing.T, periodicZ bool) *Lattice {
	t.Helper()
	l, err := NewLattice(LatticeConfig{
		Length: 4, Width: 5, Height: 6, UnitSize: 1,
		PeriodicX: true, PeriodicY: true, PeriodicZ: periodicZ,
	})
	require.NoError(t, err)
	return l
}

func TestNewLattice_RejectsEmptyGeometry(t *testing.T) {
	_, err := NewLattice(LatticeConfig{Length: 0, Width: 1, Height: 1, UnitSize: 1})
	assert.ErrorIs(t, err, ErrLatticeConstruction)
}

func TestLattice_IndexRoundTrip(t *testing.T) {
	l := newTestLattice(t, true)
	for i := 0; i < l.NumSites(); i++ {
		assert.Equal(t, i, l.Index(l.CoordsAt(i)))
	}
}

func TestLattice_NeighborOffsets(t *testing.T) {
	l := newTestLattice(t, true)
	tests := []struct {
		cutoff float64
		want   int
	}{
		{1.0, 6},
		{1.5, 18},
		{1.8, 26},
		{0.5, 0},
	}
	for _, tt := range tests {
		assert.Len(t, l.NeighborOffsets(tt.cutoff), tt.want, "cutoff %g", tt.cutoff)
	}
}

func TestLattice_Neighbors_RespectsBoundaries(t *testing.T) {
	// GIVEN a lattice periodic in x/y and closed in z
	l := newTestLattice(t, false)

	// WHEN the neighbours of a corner site on the bottom plane are listed
	n := l.Neighbors(Coords{0, 0, 0}, 1)

	// THEN the lateral images wrap and the electrode side is absent
	assert.Len(t, n, 5)
	assert.Contains(t, n, Coords{3, 0, 0})
	assert.Contains(t, n, Coords{0, 4, 0})
	assert.NotContains(t, n, Coords{0, 0, -1})
}

func TestLattice_DestinationCoords(t *testing.T) {
	l := newTestLattice(t, false)

	d, ok := l.DestinationCoords(Coords{3, 4, 2}, Coords{1, 1, 0})
	assert.True(t, ok)
	assert.Equal(t, Coords{0, 0, 2}, d)

	assert.False(t, l.CheckMoveValidity(Coords{1, 1, 5}, Coords{0, 0, 1}), "top face is not periodic")
	assert.False(t, l.CheckMoveValidity(Coords{1, 1, 0}, Coords{0, 0, -1}), "bottom face is not periodic")
}

func TestLattice_DistanceUsesMinimumImage(t *testing.T) {
	l := newTestLattice(t, true)
	assert.Equal(t, 1, l.DistanceSquared(Coords{0, 0, 0}, Coords{3, 0, 0}))
	assert.Equal(t, -1, l.DZ(Coords{0, 0, 0}, Coords{0, 0, 5}))
	assert.InDelta(t, 1.0, l.Distance(Coords{0, 0, 0}, Coords{0, 0, 5}), 1e-12)

	closed := newTestLattice(t, false)
	assert.Equal(t, 25, closed.DistanceSquared(Coords{0, 0, 0}, Coords{0, 0, 5}))
}

func TestLattice_Occupancy(t *testing.T) {
	l := newTestLattice(t, true)
	c := Coords{1, 2, 3}
	assert.False(t, l.IsOccupied(c))

	l.occupy(c, 9)
	id, ok := l.Occupant(c)
	assert.True(t, ok)
	assert.Equal(t, int64(9), id)
	assert.Panics(t, func() { l.occupy(c, 10) }, "double occupancy is a defect")

	l.vacate(c)
	assert.False(t, l.IsOccupied(c))
}

func TestLattice_AssignMorphology(t *testing.T) {
	l, err := NewLattice(LatticeConfig{Length: 10, Width: 10, Height: 10, UnitSize: 1})
	require.NoError(t, err)

	l.assignMorphology(MorphologyConfig{Type: MorphologyBilayer, ThicknessAcceptor: 3}, rand.New(rand.NewSource(1)))
	assert.Equal(t, 300, l.CountSites(SiteAcceptor))
	assert.Equal(t, SiteAcceptor, l.SiteType(Coords{5, 5, 2}))
	assert.Equal(t, SiteDonor, l.SiteType(Coords{5, 5, 3}))

	l.assignMorphology(MorphologyConfig{Type: MorphologyRandomBlend, AcceptorConc: 0.25}, rand.New(rand.NewSource(1)))
	assert.Equal(t, 250, l.CountSites(SiteAcceptor))

	l.assignMorphology(MorphologyConfig{Type: MorphologyNeat}, rand.New(rand.NewSource(1)))
	assert.Equal(t, 0, l.CountSites(SiteAcceptor))
}
