package sim

// ParticleKind discriminates the three particle variants.
type ParticleKind string

const (
	KindElectron ParticleKind = "electron"
	KindHole     ParticleKind = "hole"
	KindExciton  ParticleKind = "exciton"
)

// AllParticleKinds lists the kinds in reporting order.
var AllParticleKinds = []ParticleKind{KindElectron, KindHole, KindExciton}

// Spin is the exciton spin state. Polarons carry SpinNone.
type Spin string

const (
	SpinNone    Spin = ""
	SpinSinglet Spin = "singlet"
	SpinTriplet Spin = "triplet"
)

// ParticleState tracks the lifecycle:
// Created → {Mobile ⇄ Immobilized} → {Recombined | Dissociated | Extracted | Decayed | Expired}.
type ParticleState string

const (
	StateMobile      ParticleState = "mobile"
	StateImmobilized ParticleState = "immobilized"
	StateRecombined  ParticleState = "recombined"
	StateDissociated ParticleState = "dissociated"
	StateExtracted   ParticleState = "extracted"
	StateDecayed     ParticleState = "decayed"
	StateExpired     ParticleState = "expired"
)

// IsAlive reports whether the state is non-terminal.
func (s ParticleState) IsAlive() bool {
	return s == StateMobile || s == StateImmobilized
}

// Particle is a single electron, hole or exciton.
type Particle struct {
	ID           int64
	Kind         ParticleKind
	Spin         Spin
	Coords       Coords
	CreationTime float64
	State        ParticleState

	// Generation is bumped whenever the particle's pending event is superseded.
	Generation uint64

	// PairTag links an electron and hole born from the same exciton; 0 means untagged.
	PairTag int64

	// Displacement is the cumulative unwrapped displacement in lattice units.
	Displacement Coords

	// Hops counts executed hops.
	Hops int

	// Cohort is the transient cycle that created the particle, or -1 outside transient modes.
	Cohort int

	// sampleDisplacement is Displacement at the previous transient sample.
	sampleDisplacement Coords
}

// IsPolaron reports whether the particle carries charge.
func (p *Particle) IsPolaron() bool {
	return p.Kind == KindElectron || p.Kind == KindHole
}

// Charge returns -1 for electrons, +1 for holes and 0 for excitons.
func (p *Particle) Charge() int {
	switch p.Kind {
	case KindElectron:
		return -1
	case KindHole:
		return 1
	default:
		return 0
	}
}

// DisplacementSquared returns the squared cumulative displacement in lattice units.
func (p *Particle) DisplacementSquared() int {
	d := p.Displacement
	return d.X*d.X + d.Y*d.Y + d.Z*d.Z
}

func (p *Particle) move(dest Coords, offset Coords) {
	p.Coords = dest
	p.Displacement.X += offset.X
	p.Displacement.Y += offset.Y
	p.Displacement.Z += offset.Z
	p.Hops++
}
