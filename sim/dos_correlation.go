package sim

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// maxCorrelationOrigins bounds the number of origin sites sampled by CalculateDOSCorrelation.
const maxCorrelationOrigins = 4000

// CalculateDOSCorrelation measures the spatial autocorrelation of the site
// energies. Separations are binned at half-unit resolution; pairs are taken
// with periodic wrapping, matching how the correlated field is generated.
// The result is kept for DOSCorrelationData.
func (s *Simulator) CalculateDOSCorrelation() []Point {
	l := s.lattice
	e := s.params.Energetics
	a := l.UnitSize

	maxR := min(l.Length, l.Width, l.Height) / 2
	r := 2
	if e.Correlated {
		r = max(r, int(math.Ceil(4*e.CorrelationLength/a)))
	}
	r = min(r, maxR)

	mean, std := stat.MeanStdDev(l.energies, nil)
	variance := std * std
	nBins := int(math.Round(2*math.Sqrt(float64(3*r*r)))) + 1
	sums := make([]float64, nBins)
	counts := make([]int64, nBins)

	stride := max(1, l.NumSites()/maxCorrelationOrigins)
	for i := 0; i < l.NumSites(); i += stride {
		c := l.CoordsAt(i)
		ei := l.energies[i] - mean
		for dx := -r; dx <= r; dx++ {
			for dy := -r; dy <= r; dy++ {
				for dz := -r; dz <= r; dz++ {
					d2 := dx*dx + dy*dy + dz*dz
					if d2 > r*r {
						continue
					}
					x := mod(c.X+dx, l.Length)
					y := mod(c.Y+dy, l.Width)
					z := mod(c.Z+dz, l.Height)
					b := int(math.Round(2 * math.Sqrt(float64(d2))))
					sums[b] += ei * (l.energies[x*l.Width*l.Height+y*l.Height+z] - mean)
					counts[b]++
				}
			}
		}
	}

	var out []Point
	for b := range sums {
		if counts[b] == 0 {
			continue
		}
		corr := 0.0
		if variance > 0 {
			corr = sums[b] / (float64(counts[b]) * variance)
		}
		out = append(out, Point{X: float64(b) / 2 * a, Y: corr})
	}
	s.dosCorrelation = out
	return out
}

// DOSCorrelationData returns the last CalculateDOSCorrelation result, computing it if needed.
func (s *Simulator) DOSCorrelationData() []Point {
	if s.dosCorrelation == nil {
		s.CalculateDOSCorrelation()
	}
	return append([]Point(nil), s.dosCorrelation...)
}
