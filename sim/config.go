package sim

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// HopModel selects the polaron hopping rate expression.
type HopModel string

const (
	HopMillerAbrahams HopModel = "miller-abrahams"
	HopMarcus         HopModel = "marcus"
)

// RecombinationModel selects the electron-hole recombination rate expression.
type RecombinationModel string

const (
	// RecombinationTunneling uses R·exp(-2γr) between the pair.
	RecombinationTunneling RecombinationModel = "tunneling"
	// RecombinationLangevin uses q(μe+μh)/(ε0εr) spread over the capture volume, decaying with separation.
	RecombinationLangevin RecombinationModel = "langevin"
)

// MorphologyType selects how donor and acceptor sites are laid out.
type MorphologyType string

const (
	MorphologyNeat        MorphologyType = "neat"
	MorphologyBilayer     MorphologyType = "bilayer"
	MorphologyRandomBlend MorphologyType = "random_blend"
)

// DOSModel selects the site energy distribution.
type DOSModel string

const (
	DOSNone        DOSModel = "none"
	DOSGaussian    DOSModel = "gaussian"
	DOSExponential DOSModel = "exponential"
)

// CorrelationKernel selects the smoothing kernel used for correlated disorder.
type CorrelationKernel string

const (
	KernelGaussian CorrelationKernel = "gaussian"
	KernelPower    CorrelationKernel = "power"
)

// TestMode selects how particles are seeded and which stopping rule CheckFinished applies.
type TestMode string

const (
	// ModeManual: the caller seeds particles; the run ends when no events remain or max_time passes.
	ModeManual TestMode = "manual"
	// ModeExcitonDiffusion: continuous exciton generation until n_tests excitons have decayed.
	ModeExcitonDiffusion TestMode = "exciton_diffusion"
	// ModeToF: repeated time-of-flight cycles until n_tests carriers were created and none remain.
	ModeToF TestMode = "tof"
	// ModeIQE: exciton generation until n_tests created, then drain or time cutoff.
	ModeIQE TestMode = "iqe"
	// ModeDynamics: repeated exciton pulses until n_tests excitons were created and the lattice is empty.
	ModeDynamics TestMode = "dynamics"
	// ModeSteadyTransport: fixed hole density; stop after equilibration plus n_tests events.
	ModeSteadyTransport TestMode = "steady_transport"
)

// ValidTestModes is the set of recognized test modes.
var ValidTestModes = map[TestMode]bool{
	ModeManual: true, ModeExcitonDiffusion: true, ModeToF: true,
	ModeIQE: true, ModeDynamics: true, ModeSteadyTransport: true,
}

// LatticeConfig groups lattice geometry and boundary parameters.
type LatticeConfig struct {
	Length    int     `yaml:"length"`    // sites along x
	Width     int     `yaml:"width"`     // sites along y
	Height    int     `yaml:"height"`    // sites along z (electrode normal)
	UnitSize  float64 `yaml:"unit_size"` // nm
	PeriodicX bool    `yaml:"periodic_x"`
	PeriodicY bool    `yaml:"periodic_y"`
	PeriodicZ bool    `yaml:"periodic_z"`

	Temperature       float64 `yaml:"temperature"`        // K
	InternalPotential float64 `yaml:"internal_potential"` // V across the film
}

// MorphologyConfig groups film architecture parameters.
type MorphologyConfig struct {
	Type              MorphologyType `yaml:"type"`
	ThicknessAcceptor int            `yaml:"thickness_acceptor"` // bilayer acceptor planes from z=0
	AcceptorConc      float64        `yaml:"acceptor_conc"`      // random blend acceptor fraction
}

// EnergeticsConfig groups disorder and frontier orbital parameters.
type EnergeticsConfig struct {
	HomoDonor    float64 `yaml:"homo_donor"`
	LumoDonor    float64 `yaml:"lumo_donor"`
	HomoAcceptor float64 `yaml:"homo_acceptor"`
	LumoAcceptor float64 `yaml:"lumo_acceptor"`

	DOS                  DOSModel `yaml:"dos"`
	EnergyStdevDonor     float64  `yaml:"energy_stdev_donor"`
	EnergyStdevAcceptor  float64  `yaml:"energy_stdev_acceptor"`
	EnergyUrbachDonor    float64  `yaml:"energy_urbach_donor"`
	EnergyUrbachAcceptor float64  `yaml:"energy_urbach_acceptor"`

	Correlated          bool              `yaml:"correlated"`
	CorrelationLength   float64           `yaml:"correlation_length"` // nm
	Kernel              CorrelationKernel `yaml:"kernel"`
	PowerKernelExponent int               `yaml:"power_kernel_exponent"` // -1 or -2
}

// ExcitonConfig groups exciton generation, transport and loss parameters.
type ExcitonConfig struct {
	GenerationRateDonor    float64 `yaml:"generation_rate_donor"`    // cm^-3 s^-1
	GenerationRateAcceptor float64 `yaml:"generation_rate_acceptor"` // cm^-3 s^-1

	SingletLifetimeDonor    float64 `yaml:"singlet_lifetime_donor"` // s
	SingletLifetimeAcceptor float64 `yaml:"singlet_lifetime_acceptor"`
	TripletLifetimeDonor    float64 `yaml:"triplet_lifetime_donor"`
	TripletLifetimeAcceptor float64 `yaml:"triplet_lifetime_acceptor"`

	SingletHoppingDonor    float64 `yaml:"r_singlet_hopping_donor"` // s^-1
	SingletHoppingAcceptor float64 `yaml:"r_singlet_hopping_acceptor"`
	SingletLocalizationDon float64 `yaml:"singlet_localization_donor"` // nm^-1
	SingletLocalizationAcc float64 `yaml:"singlet_localization_acceptor"`
	TripletHoppingDonor    float64 `yaml:"r_triplet_hopping_donor"`
	TripletHoppingAcceptor float64 `yaml:"r_triplet_hopping_acceptor"`
	TripletLocalizationDon float64 `yaml:"triplet_localization_donor"`
	TripletLocalizationAcc float64 `yaml:"triplet_localization_acceptor"`

	FRETTripletAnnihilation     bool    `yaml:"fret_triplet_annihilation"`
	ExcitonAnnihilationDonor    float64 `yaml:"r_exciton_exciton_annihilation_donor"`
	ExcitonAnnihilationAcceptor float64 `yaml:"r_exciton_exciton_annihilation_acceptor"`
	PolaronAnnihilationDonor    float64 `yaml:"r_exciton_polaron_annihilation_donor"`
	PolaronAnnihilationAcceptor float64 `yaml:"r_exciton_polaron_annihilation_acceptor"`
	FRETCutoff                  float64 `yaml:"fret_cutoff"` // nm

	BindingDonor         float64 `yaml:"e_binding_donor"` // eV
	BindingAcceptor      float64 `yaml:"e_binding_acceptor"`
	DissociationDonor    float64 `yaml:"r_dissociation_donor"`
	DissociationAcceptor float64 `yaml:"r_dissociation_acceptor"`
	DissociationCutoff   float64 `yaml:"dissociation_cutoff"` // nm
	ISCDonor             float64 `yaml:"r_isc_donor"`
	ISCAcceptor          float64 `yaml:"r_isc_acceptor"`
	RISCDonor            float64 `yaml:"r_risc_donor"`
	RISCAcceptor         float64 `yaml:"r_risc_acceptor"`
	SingletTripletDonor  float64 `yaml:"e_st_donor"` // eV
	SingletTripletAccept float64 `yaml:"e_st_acceptor"`
}

// PolaronConfig groups charge transport and recombination parameters.
type PolaronConfig struct {
	PhaseRestriction bool     `yaml:"phase_restriction"`
	HopModel         HopModel `yaml:"hop_model"`

	HoppingDonor         float64 `yaml:"r_polaron_hopping_donor"` // s^-1
	HoppingAcceptor      float64 `yaml:"r_polaron_hopping_acceptor"`
	LocalizationDonor    float64 `yaml:"localization_donor"` // nm^-1
	LocalizationAcceptor float64 `yaml:"localization_acceptor"`
	ReorganizationDonor  float64 `yaml:"reorganization_donor"` // eV
	ReorganizationAccept float64 `yaml:"reorganization_acceptor"`
	HoppingCutoff        float64 `yaml:"hopping_cutoff"` // nm

	Recombination     RecombinationModel `yaml:"recombination_model"`
	RecombinationRate float64            `yaml:"r_recombination"`
	CaptureRadius     float64            `yaml:"capture_radius"`    // nm; recombination candidates only within it
	MobilityElectron  float64            `yaml:"mobility_electron"` // cm^2/Vs, Langevin only
	MobilityHole      float64            `yaml:"mobility_hole"`

	GaussianDelocalization bool    `yaml:"gaussian_delocalization"`
	DelocalizationLength   float64 `yaml:"delocalization_length"` // nm
}

// CoulombConfig groups electrostatic parameters. A zero cutoff disables Coulomb terms.
type CoulombConfig struct {
	DielectricDonor    float64 `yaml:"dielectric_donor"`
	DielectricAcceptor float64 `yaml:"dielectric_acceptor"`
	Cutoff             float64 `yaml:"cutoff"` // nm
}

// TestConfig groups the stopping rule and per-mode seeding parameters.
type TestConfig struct {
	Mode    TestMode `yaml:"mode"`
	NTests  int      `yaml:"n_tests"`
	MaxTime float64  `yaml:"max_time"` // s; 0 disables the global cap

	IQETimeCutoff float64 `yaml:"iqe_time_cutoff"`

	ToFHoles          bool    `yaml:"tof_holes"` // false: electrons
	ToFInitialCount   int     `yaml:"tof_initial_polarons"`
	ToFRandomPlace    bool    `yaml:"tof_random_placement"`
	ToFEnergyPlace    bool    `yaml:"tof_energy_placement"`
	ToFPlacementEnerg float64 `yaml:"tof_placement_energy"`
	ToFStart          float64 `yaml:"tof_transient_start"`
	ToFEnd            float64 `yaml:"tof_transient_end"`
	ToFPointsPerDec   int     `yaml:"tof_points_per_decade"`

	DynamicsExcitonConc float64 `yaml:"dynamics_initial_exciton_conc"` // nm^-3
	DynamicsStart       float64 `yaml:"dynamics_transient_start"`
	DynamicsEnd         float64 `yaml:"dynamics_transient_end"`
	DynamicsPointsPerDe int     `yaml:"dynamics_points_per_decade"`
	DynamicsExtraction  bool    `yaml:"dynamics_extraction"`

	SteadyCarrierDensity float64 `yaml:"steady_carrier_density"` // nm^-3
	NEquilibrationEvents int64   `yaml:"n_equilibration_events"`
	SteadyHopsPerDOOS    int64   `yaml:"steady_hops_per_doos_sample"`
	SteadyHopsPerDOS     int64   `yaml:"steady_hops_per_dos_sample"`
	SteadyDOSBinSize     float64 `yaml:"steady_dos_bin_size"` // eV
}

// Parameters holds every input of a single simulation run.
type Parameters struct {
	Seed       int64            `yaml:"seed"`
	Lattice    LatticeConfig    `yaml:"lattice"`
	Morphology MorphologyConfig `yaml:"morphology"`
	Energetics EnergeticsConfig `yaml:"energetics"`
	Excitons   ExcitonConfig    `yaml:"excitons"`
	Polarons   PolaronConfig    `yaml:"polarons"`
	Coulomb    CoulombConfig    `yaml:"coulomb"`
	Test       TestConfig       `yaml:"test"`

	// ProgressInterval is the number of executed events between Snapshot publications.
	ProgressInterval int64 `yaml:"progress_interval"`
	// RecordTrace enables the executed-event trace.
	RecordTrace bool `yaml:"record_trace"`
}

// DefaultParameters returns a runnable neat-film baseline in manual mode.
func DefaultParameters() Parameters {
	return Parameters{
		Seed: 42,
		Lattice: LatticeConfig{
			Length: 50, Width: 50, Height: 50, UnitSize: 1.0,
			PeriodicX: true, PeriodicY: true, PeriodicZ: true,
			Temperature: 300,
		},
		Morphology: MorphologyConfig{Type: MorphologyNeat, AcceptorConc: 0.5},
		Energetics: EnergeticsConfig{
			HomoDonor: 5.5, LumoDonor: 3.5, HomoAcceptor: 6.0, LumoAcceptor: 4.0,
			DOS: DOSGaussian, EnergyStdevDonor: 0.075, EnergyStdevAcceptor: 0.075,
			EnergyUrbachDonor: 0.03, EnergyUrbachAcceptor: 0.03,
			CorrelationLength: 1.0, Kernel: KernelGaussian, PowerKernelExponent: -1,
		},
		Excitons: ExcitonConfig{
			GenerationRateDonor: 1e18, GenerationRateAcceptor: 1e18,
			SingletLifetimeDonor: 500e-12, SingletLifetimeAcceptor: 500e-12,
			TripletLifetimeDonor: 1e-6, TripletLifetimeAcceptor: 1e-6,
			SingletHoppingDonor: 1e12, SingletHoppingAcceptor: 1e12,
			SingletLocalizationDon: 1.0, SingletLocalizationAcc: 1.0,
			TripletHoppingDonor: 1e12, TripletHoppingAcceptor: 1e12,
			TripletLocalizationDon: 2.0, TripletLocalizationAcc: 2.0,
			ExcitonAnnihilationDonor: 1e12, ExcitonAnnihilationAcceptor: 1e12,
			PolaronAnnihilationDonor: 1e12, PolaronAnnihilationAcceptor: 1e12,
			FRETCutoff:   3.0,
			BindingDonor: 0.5, BindingAcceptor: 0.5,
			DissociationDonor: 1e14, DissociationAcceptor: 1e14,
			DissociationCutoff: 3.0,
			ISCDonor: 1e7, ISCAcceptor: 1e7, RISCDonor: 1e7, RISCAcceptor: 1e7,
			SingletTripletDonor: 0.7, SingletTripletAccept: 0.7,
		},
		Polarons: PolaronConfig{
			HopModel:     HopMillerAbrahams,
			HoppingDonor: 1e12, HoppingAcceptor: 1e12,
			LocalizationDonor: 2.0, LocalizationAcceptor: 2.0,
			ReorganizationDonor: 0.2, ReorganizationAccept: 0.2,
			HoppingCutoff:     1.0,
			Recombination:     RecombinationTunneling,
			RecombinationRate: 1e12,
			CaptureRadius:     1.0,
			MobilityElectron:  1e-3, MobilityHole: 1e-3,
			DelocalizationLength: 1.0,
		},
		Coulomb: CoulombConfig{DielectricDonor: 3.5, DielectricAcceptor: 3.5, Cutoff: 0},
		Test: TestConfig{
			Mode: ModeManual, NTests: 100,
			IQETimeCutoff:   1e-4,
			ToFInitialCount: 10, ToFRandomPlace: true,
			ToFStart: 1e-10, ToFEnd: 1e-4, ToFPointsPerDec: 10,
			DynamicsExcitonConc: 1e-4,
			DynamicsStart:       1e-13, DynamicsEnd: 1e-5, DynamicsPointsPerDe: 10,
			SteadyCarrierDensity: 1e-4, NEquilibrationEvents: 1000,
			SteadyHopsPerDOOS: 100, SteadyHopsPerDOS: 1000, SteadyDOSBinSize: 0.01,
		},
		ProgressInterval: 10000,
	}
}

// LoadParameters reads a YAML parameter file layered over DefaultParameters.
// Unknown keys are rejected so typos surface as errors.
func LoadParameters(path string) (Parameters, error) {
	params := DefaultParameters()
	data, err := os.ReadFile(path)
	if err != nil {
		return params, fmt.Errorf("reading parameter file: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&params); err != nil {
		return params, fmt.Errorf("parsing parameter file: %w", err)
	}
	return params, nil
}

// NumSites returns the number of lattice sites.
func (p *Parameters) NumSites() int {
	return p.Lattice.Length * p.Lattice.Width * p.Lattice.Height
}

// Volume returns the film volume in nm^3.
func (p *Parameters) Volume() float64 {
	a := p.Lattice.UnitSize
	return float64(p.NumSites()) * a * a * a
}

// Validate checks parameter ranges and combinations (checkParameters).
// Every violated rule is reported; the joined error matches ErrInvalidParameters.
func (p *Parameters) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	l := p.Lattice
	if l.Length <= 0 || l.Width <= 0 || l.Height <= 0 {
		add(paramErr("lattice", "dimensions must be positive, got %dx%dx%d", l.Length, l.Width, l.Height))
	}
	if l.UnitSize <= 0 {
		add(paramErr("lattice.unit_size", "must be positive, got %g", l.UnitSize))
	}
	if l.Temperature <= 0 {
		add(paramErr("lattice.temperature", "must be positive, got %g", l.Temperature))
	}

	switch p.Morphology.Type {
	case MorphologyNeat:
	case MorphologyBilayer:
		if p.Morphology.ThicknessAcceptor <= 0 || p.Morphology.ThicknessAcceptor >= l.Height {
			add(paramErr("morphology.thickness_acceptor", "must be within (0, height), got %d", p.Morphology.ThicknessAcceptor))
		}
		if l.PeriodicZ {
			add(paramErr("morphology.type", "bilayer requires a non-periodic z boundary"))
		}
	case MorphologyRandomBlend:
		if p.Morphology.AcceptorConc <= 0 || p.Morphology.AcceptorConc >= 1 {
			add(paramErr("morphology.acceptor_conc", "must be within (0, 1), got %g", p.Morphology.AcceptorConc))
		}
	default:
		add(paramErr("morphology.type", "unknown morphology %q", p.Morphology.Type))
	}

	e := p.Energetics
	switch e.DOS {
	case DOSNone:
	case DOSGaussian:
		if e.EnergyStdevDonor < 0 || e.EnergyStdevAcceptor < 0 {
			add(paramErr("energetics.energy_stdev", "must be non-negative"))
		}
	case DOSExponential:
		if e.EnergyUrbachDonor <= 0 || e.EnergyUrbachAcceptor <= 0 {
			add(paramErr("energetics.energy_urbach", "must be positive"))
		}
		if e.Correlated {
			add(paramErr("energetics.correlated", "correlated disorder requires the gaussian DOS"))
		}
	default:
		add(paramErr("energetics.dos", "unknown DOS model %q", e.DOS))
	}
	if e.Correlated {
		if e.CorrelationLength <= 0 {
			add(paramErr("energetics.correlation_length", "must be positive, got %g", e.CorrelationLength))
		}
		if e.Kernel != KernelGaussian && e.Kernel != KernelPower {
			add(paramErr("energetics.kernel", "unknown kernel %q", e.Kernel))
		}
		if e.Kernel == KernelPower && e.PowerKernelExponent != -1 && e.PowerKernelExponent != -2 {
			add(paramErr("energetics.power_kernel_exponent", "must be -1 or -2, got %d", e.PowerKernelExponent))
		}
	}

	x := p.Excitons
	for name, v := range map[string]float64{
		"singlet_lifetime_donor": x.SingletLifetimeDonor, "singlet_lifetime_acceptor": x.SingletLifetimeAcceptor,
		"triplet_lifetime_donor": x.TripletLifetimeDonor, "triplet_lifetime_acceptor": x.TripletLifetimeAcceptor,
	} {
		if v <= 0 {
			add(paramErr("excitons."+name, "must be positive, got %g", v))
		}
	}
	for name, v := range map[string]float64{
		"generation_rate_donor": x.GenerationRateDonor, "generation_rate_acceptor": x.GenerationRateAcceptor,
		"r_singlet_hopping_donor": x.SingletHoppingDonor, "r_singlet_hopping_acceptor": x.SingletHoppingAcceptor,
		"r_triplet_hopping_donor": x.TripletHoppingDonor, "r_triplet_hopping_acceptor": x.TripletHoppingAcceptor,
		"r_exciton_exciton_annihilation_donor": x.ExcitonAnnihilationDonor, "r_exciton_exciton_annihilation_acceptor": x.ExcitonAnnihilationAcceptor,
		"r_exciton_polaron_annihilation_donor": x.PolaronAnnihilationDonor, "r_exciton_polaron_annihilation_acceptor": x.PolaronAnnihilationAcceptor,
		"r_dissociation_donor": x.DissociationDonor, "r_dissociation_acceptor": x.DissociationAcceptor,
		"r_isc_donor": x.ISCDonor, "r_isc_acceptor": x.ISCAcceptor, "r_risc_donor": x.RISCDonor, "r_risc_acceptor": x.RISCAcceptor,
		"fret_cutoff": x.FRETCutoff, "dissociation_cutoff": x.DissociationCutoff,
		"singlet_localization_donor": x.SingletLocalizationDon, "singlet_localization_acceptor": x.SingletLocalizationAcc,
		"triplet_localization_donor": x.TripletLocalizationDon, "triplet_localization_acceptor": x.TripletLocalizationAcc,
	} {
		if v < 0 {
			add(paramErr("excitons."+name, "must be non-negative, got %g", v))
		}
	}

	pol := p.Polarons
	if pol.HopModel != HopMillerAbrahams && pol.HopModel != HopMarcus {
		add(paramErr("polarons.hop_model", "unknown hop model %q", pol.HopModel))
	}
	if pol.HopModel == HopMarcus && (pol.ReorganizationDonor <= 0 || pol.ReorganizationAccept <= 0) {
		add(paramErr("polarons.reorganization", "must be positive for marcus hopping"))
	}
	if pol.Recombination != RecombinationTunneling && pol.Recombination != RecombinationLangevin {
		add(paramErr("polarons.recombination_model", "unknown recombination model %q", pol.Recombination))
	}
	if pol.Recombination == RecombinationLangevin && (pol.MobilityElectron <= 0 || pol.MobilityHole <= 0) {
		add(paramErr("polarons.mobility", "langevin recombination requires positive mobilities"))
	}
	for name, v := range map[string]float64{
		"r_polaron_hopping_donor": pol.HoppingDonor, "r_polaron_hopping_acceptor": pol.HoppingAcceptor,
		"localization_donor": pol.LocalizationDonor, "localization_acceptor": pol.LocalizationAcceptor,
		"r_recombination": pol.RecombinationRate, "capture_radius": pol.CaptureRadius,
	} {
		if v < 0 {
			add(paramErr("polarons."+name, "must be non-negative, got %g", v))
		}
	}
	if pol.HoppingCutoff < l.UnitSize {
		add(paramErr("polarons.hopping_cutoff", "must reach the nearest neighbour (>= unit_size), got %g", pol.HoppingCutoff))
	}
	if pol.GaussianDelocalization && pol.DelocalizationLength <= 0 {
		add(paramErr("polarons.delocalization_length", "must be positive, got %g", pol.DelocalizationLength))
	}

	c := p.Coulomb
	if c.Cutoff < 0 {
		add(paramErr("coulomb.cutoff", "must be non-negative, got %g", c.Cutoff))
	}
	if c.Cutoff > 0 && (c.DielectricDonor <= 0 || c.DielectricAcceptor <= 0) {
		add(paramErr("coulomb.dielectric", "must be positive when Coulomb interactions are enabled"))
	}

	t := p.Test
	if !ValidTestModes[t.Mode] {
		add(paramErr("test.mode", "unknown test mode %q", t.Mode))
	}
	if t.MaxTime < 0 {
		add(paramErr("test.max_time", "must be non-negative, got %g", t.MaxTime))
	}
	if t.Mode != ModeManual && t.NTests <= 0 {
		add(paramErr("test.n_tests", "must be positive, got %d", t.NTests))
	}
	switch t.Mode {
	case ModeToF:
		if l.PeriodicZ {
			add(paramErr("lattice.periodic_z", "time-of-flight requires a non-periodic z boundary"))
		}
		if t.ToFInitialCount <= 0 || t.ToFInitialCount > l.Length*l.Width {
			add(paramErr("test.tof_initial_polarons", "must be within (0, length*width], got %d", t.ToFInitialCount))
		}
		if t.ToFRandomPlace == t.ToFEnergyPlace {
			add(paramErr("test.tof_placement", "exactly one of random or energy placement must be set"))
		}
		add(checkTransientWindow("test.tof", t.ToFStart, t.ToFEnd, t.ToFPointsPerDec))
		if l.InternalPotential == 0 {
			add(paramErr("lattice.internal_potential", "time-of-flight requires a non-zero internal potential"))
		}
	case ModeDynamics:
		if t.DynamicsExcitonConc <= 0 {
			add(paramErr("test.dynamics_initial_exciton_conc", "must be positive, got %g", t.DynamicsExcitonConc))
		}
		add(checkTransientWindow("test.dynamics", t.DynamicsStart, t.DynamicsEnd, t.DynamicsPointsPerDe))
	case ModeIQE:
		if l.PeriodicZ {
			add(paramErr("lattice.periodic_z", "IQE requires a non-periodic z boundary"))
		}
		if t.IQETimeCutoff <= 0 {
			add(paramErr("test.iqe_time_cutoff", "must be positive, got %g", t.IQETimeCutoff))
		}
	case ModeSteadyTransport:
		if !l.PeriodicZ {
			add(paramErr("lattice.periodic_z", "steady transport requires a periodic z boundary"))
		}
		if l.InternalPotential == 0 {
			add(paramErr("lattice.internal_potential", "steady transport requires a non-zero internal potential"))
		}
		if t.SteadyCarrierDensity <= 0 || t.NEquilibrationEvents < 0 || t.SteadyHopsPerDOOS <= 0 || t.SteadyHopsPerDOS <= 0 || t.SteadyDOSBinSize <= 0 {
			add(paramErr("test.steady", "density, sampling intervals and bin size must be positive"))
		}
		if n := int(math.Round(t.SteadyCarrierDensity * p.Volume())); n <= 0 || n >= p.NumSites() {
			add(paramErr("test.steady_carrier_density", "yields %d carriers for %d sites", n, p.NumSites()))
		}
	}
	if p.ProgressInterval < 0 {
		add(paramErr("progress_interval", "must be non-negative, got %d", p.ProgressInterval))
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

func checkTransientWindow(field string, start, end float64, perDecade int) error {
	if start <= 0 || end <= start {
		return paramErr(field+"_transient", "window must satisfy 0 < start < end, got [%g, %g]", start, end)
	}
	if perDecade <= 0 {
		return paramErr(field+"_points_per_decade", "must be positive, got %d", perDecade)
	}
	return nil
}
