package sim

import "math"

// Physical constants in SI units unless noted.
const (
	BoltzmannConstant  = 8.61733e-5   // eV/K
	ElementaryCharge   = 1.602176e-19 // C
	CoulombConstant    = 8.987551e9   // N·m²/C²
	VacuumPermittivity = 8.854188e-12 // F/m
)

// RateModel evaluates transition rate expressions at a fixed temperature.
// Distances are in nm, energies in eV, localization in nm^-1 and rates in s^-1.
type RateModel struct {
	kT  float64
	hop HopModel
}

// NewRateModel creates a RateModel for temperature (K) and hop model.
func NewRateModel(temperature float64, hop HopModel) RateModel {
	return RateModel{kT: BoltzmannConstant * temperature, hop: hop}
}

// Boltzmann returns exp(-ΔE/kT) for uphill moves and 1 otherwise.
func (m RateModel) Boltzmann(dE float64) float64 {
	if dE > 0 {
		return math.Exp(-dE / m.kT)
	}
	return 1
}

// PolaronHop returns the Miller-Abrahams or Marcus hopping rate.
func (m RateModel) PolaronHop(prefactor, localization, distance, dE, reorganization float64) float64 {
	tunnel := math.Exp(-2 * localization * distance)
	if m.hop == HopMarcus {
		d := dE + reorganization
		return prefactor / math.Sqrt(4*math.Pi*reorganization*m.kT) * tunnel *
			math.Exp(-d*d/(4*reorganization*m.kT))
	}
	return prefactor * tunnel * m.Boltzmann(dE)
}

// FRET returns the Förster transfer rate R·(1/r)^6 with detailed balance.
func (m RateModel) FRET(prefactor, distance, dE float64) float64 {
	inv := 1 / distance
	return prefactor * inv * inv * inv * inv * inv * inv * m.Boltzmann(dE)
}

// Dexter returns the exchange transfer rate R·exp(-2γr) with detailed balance.
func (m RateModel) Dexter(prefactor, localization, distance, dE float64) float64 {
	return prefactor * math.Exp(-2*localization*distance) * m.Boltzmann(dE)
}

// Tunneling returns R·exp(-2γr); used for recombination and extraction.
func (m RateModel) Tunneling(prefactor, localization, distance float64) float64 {
	return prefactor * math.Exp(-2*localization*distance)
}

// Decay returns 1/τ.
func (m RateModel) Decay(lifetime float64) float64 {
	return 1 / lifetime
}

// ReverseISC returns R·exp(-E_ST/kT).
func (m RateModel) ReverseISC(prefactor, singletTripletSplit float64) float64 {
	return prefactor * math.Exp(-singletTripletSplit/m.kT)
}

// LangevinRecombination returns the Langevin capture rate for a pair at distance
// (nm): q(μe+μh)/(ε0·εr) spread over one site volume, decaying with separation
// beyond nearest neighbours. Mobilities are in cm²/Vs.
func (m RateModel) LangevinRecombination(muE, muH, dielectric, unit, localization, distance float64) float64 {
	gamma := ElementaryCharge * (muE + muH) * 1e-4 / (VacuumPermittivity * dielectric) // m³/s
	siteVolume := unit * unit * unit * 1e-27                                          // m³
	return gamma / siteVolume * math.Exp(-2*localization*math.Max(0, distance-unit))
}
