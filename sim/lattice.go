package sim

import (
	"fmt"
	"math"
	"math/rand"
)

// Coords addresses a lattice site. Z is the electrode normal.
type Coords struct {
	X, Y, Z int
}

func (c Coords) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}

// SiteType distinguishes donor from acceptor material.
type SiteType string

const (
	SiteDonor    SiteType = "donor"
	SiteAcceptor SiteType = "acceptor"
)

const noOccupant int64 = 0

// Lattice is the cubic site grid with per-site energy, material type and occupancy.
// At most one particle occupies a site.
type Lattice struct {
	Length, Width, Height int
	UnitSize              float64
	PeriodicX             bool
	PeriodicY             bool
	PeriodicZ             bool

	energies  []float64
	types     []SiteType
	occupants []int64

	offsets map[float64][]Coords // neighbour offsets cached per cutoff
}

// NewLattice allocates an all-donor lattice with zero site energies.
func NewLattice(cfg LatticeConfig) (*Lattice, error) {
	if cfg.Length <= 0 || cfg.Width <= 0 || cfg.Height <= 0 || cfg.UnitSize <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%dx%d, unit size %g",
			ErrLatticeConstruction, cfg.Length, cfg.Width, cfg.Height, cfg.UnitSize)
	}
	n := cfg.Length * cfg.Width * cfg.Height
	l := &Lattice{
		Length:    cfg.Length,
		Width:     cfg.Width,
		Height:    cfg.Height,
		UnitSize:  cfg.UnitSize,
		PeriodicX: cfg.PeriodicX,
		PeriodicY: cfg.PeriodicY,
		PeriodicZ: cfg.PeriodicZ,
		energies:  make([]float64, n),
		types:     make([]SiteType, n),
		occupants: make([]int64, n),
		offsets:   make(map[float64][]Coords),
	}
	for i := range l.types {
		l.types[i] = SiteDonor
	}
	return l, nil
}

// NumSites returns Length*Width*Height.
func (l *Lattice) NumSites() int {
	return len(l.energies)
}

// Index maps coordinates to the flat site index. Coordinates must be in bounds.
func (l *Lattice) Index(c Coords) int {
	return c.X*l.Width*l.Height + c.Y*l.Height + c.Z
}

// CoordsAt is the inverse of Index.
func (l *Lattice) CoordsAt(index int) Coords {
	return Coords{
		X: index / (l.Width * l.Height),
		Y: (index / l.Height) % l.Width,
		Z: index % l.Height,
	}
}

// InBounds reports whether c addresses a site.
func (l *Lattice) InBounds(c Coords) bool {
	return c.X >= 0 && c.X < l.Length && c.Y >= 0 && c.Y < l.Width && c.Z >= 0 && c.Z < l.Height
}

func (l *Lattice) SiteEnergy(c Coords) float64 {
	return l.energies[l.Index(c)]
}

func (l *Lattice) SiteType(c Coords) SiteType {
	return l.types[l.Index(c)]
}

// IsOccupied reports whether any particle sits on c.
func (l *Lattice) IsOccupied(c Coords) bool {
	return l.occupants[l.Index(c)] != noOccupant
}

// Occupant returns the particle on c, if any.
func (l *Lattice) Occupant(c Coords) (int64, bool) {
	id := l.occupants[l.Index(c)]
	return id, id != noOccupant
}

func (l *Lattice) occupy(c Coords, id int64) {
	idx := l.Index(c)
	if l.occupants[idx] != noOccupant {
		panic(fmt.Sprintf("lattice: site %s already holds particle %d, cannot place %d", c, l.occupants[idx], id))
	}
	l.occupants[idx] = id
}

func (l *Lattice) vacate(c Coords) {
	l.occupants[l.Index(c)] = noOccupant
}

// RandomCoords draws a uniformly distributed site.
func (l *Lattice) RandomCoords(rng *rand.Rand) Coords {
	return l.CoordsAt(rng.Intn(l.NumSites()))
}

// NeighborOffsets returns every non-zero offset whose length is within cutoff (nm),
// ordered by x, then y, then z. The slice is shared; callers must not modify it.
func (l *Lattice) NeighborOffsets(cutoff float64) []Coords {
	if offs, ok := l.offsets[cutoff]; ok {
		return offs
	}
	r := int(math.Floor(cutoff / l.UnitSize))
	limit := (cutoff / l.UnitSize) * (cutoff / l.UnitSize)
	var offs []Coords
	for dx := -r; dx <= r; dx++ {
		for dy := -r; dy <= r; dy++ {
			for dz := -r; dz <= r; dz++ {
				d2 := dx*dx + dy*dy + dz*dz
				if d2 == 0 || float64(d2) > limit+1e-9 {
					continue
				}
				offs = append(offs, Coords{dx, dy, dz})
			}
		}
	}
	l.offsets[cutoff] = offs
	return offs
}

// CheckMoveValidity reports whether c+offset lands on a site once periodic
// boundaries are applied. Moves through a non-periodic face are invalid.
func (l *Lattice) CheckMoveValidity(c, offset Coords) bool {
	_, ok := l.DestinationCoords(c, offset)
	return ok
}

// DestinationCoords applies offset to c, wrapping periodic dimensions.
func (l *Lattice) DestinationCoords(c, offset Coords) (Coords, bool) {
	d := Coords{c.X + offset.X, c.Y + offset.Y, c.Z + offset.Z}
	var ok bool
	if d.X, ok = wrap(d.X, l.Length, l.PeriodicX); !ok {
		return d, false
	}
	if d.Y, ok = wrap(d.Y, l.Width, l.PeriodicY); !ok {
		return d, false
	}
	if d.Z, ok = wrap(d.Z, l.Height, l.PeriodicZ); !ok {
		return d, false
	}
	return d, true
}

func wrap(v, n int, periodic bool) (int, bool) {
	if v >= 0 && v < n {
		return v, true
	}
	if !periodic {
		return v, false
	}
	v %= n
	if v < 0 {
		v += n
	}
	return v, true
}

// Neighbors returns the sites within cutoff (nm) of c. This is neighborsOf(site);
// electrode planes are not sites and never appear.
func (l *Lattice) Neighbors(c Coords, cutoff float64) []Coords {
	offs := l.NeighborOffsets(cutoff)
	out := make([]Coords, 0, len(offs))
	for _, off := range offs {
		if d, ok := l.DestinationCoords(c, off); ok {
			out = append(out, d)
		}
	}
	return out
}

// Displacement returns the shortest signed offset from a to b under periodic boundaries.
func (l *Lattice) Displacement(a, b Coords) Coords {
	return Coords{
		X: minImage(b.X-a.X, l.Length, l.PeriodicX),
		Y: minImage(b.Y-a.Y, l.Width, l.PeriodicY),
		Z: minImage(b.Z-a.Z, l.Height, l.PeriodicZ),
	}
}

func minImage(d, n int, periodic bool) int {
	if !periodic {
		return d
	}
	if d > n/2 {
		d -= n
	} else if d < -n/2 {
		d += n
	}
	return d
}

// DZ returns the signed z component of the shortest move from a to b.
func (l *Lattice) DZ(a, b Coords) int {
	return minImage(b.Z-a.Z, l.Height, l.PeriodicZ)
}

// DistanceSquared returns the squared shortest distance in lattice units.
func (l *Lattice) DistanceSquared(a, b Coords) int {
	d := l.Displacement(a, b)
	return d.X*d.X + d.Y*d.Y + d.Z*d.Z
}

// Distance returns the shortest distance in nm.
func (l *Lattice) Distance(a, b Coords) float64 {
	return l.UnitSize * math.Sqrt(float64(l.DistanceSquared(a, b)))
}

// MinExtent returns the smallest lattice edge in nm.
func (l *Lattice) MinExtent() float64 {
	return float64(min(l.Length, l.Width, l.Height)) * l.UnitSize
}

// CountSites returns the number of sites of type t.
func (l *Lattice) CountSites(t SiteType) int {
	n := 0
	for _, st := range l.types {
		if st == t {
			n++
		}
	}
	return n
}

// assignMorphology sets donor/acceptor types for the configured architecture.
// Random blends shuffle a fixed acceptor count so the composition is exact.
func (l *Lattice) assignMorphology(cfg MorphologyConfig, rng *rand.Rand) {
	switch cfg.Type {
	case MorphologyBilayer:
		for i := range l.types {
			if l.CoordsAt(i).Z < cfg.ThicknessAcceptor {
				l.types[i] = SiteAcceptor
			} else {
				l.types[i] = SiteDonor
			}
		}
	case MorphologyRandomBlend:
		nAcceptor := int(math.Round(cfg.AcceptorConc * float64(l.NumSites())))
		for i := range l.types {
			if i < nAcceptor {
				l.types[i] = SiteAcceptor
			} else {
				l.types[i] = SiteDonor
			}
		}
		rng.Shuffle(len(l.types), func(i, j int) {
			l.types[i], l.types[j] = l.types[j], l.types[i]
		})
	default:
		for i := range l.types {
			l.types[i] = SiteDonor
		}
	}
}
