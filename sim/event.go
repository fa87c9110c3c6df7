package sim

// EventKind names what an event does when executed.
type EventKind string

const (
	EventPolaronHop          EventKind = "polaron_hop"
	EventPolaronExtraction   EventKind = "polaron_extraction"
	EventRecombination       EventKind = "polaron_recombination"
	EventExcitonCreation     EventKind = "exciton_creation"
	EventExcitonHop          EventKind = "exciton_hop"
	EventExcitonDecay        EventKind = "exciton_decay"
	EventExcitonDissociation EventKind = "exciton_dissociation"
	EventIntersystemCrossing EventKind = "exciton_isc"
	EventReverseISC          EventKind = "exciton_risc"
	EventExcitonAnnihilation EventKind = "exciton_exciton_annihilation"
	EventPolaronAnnihilation EventKind = "exciton_polaron_annihilation"
)

// EventKinds lists every kind in reporting order.
var EventKinds = []EventKind{
	EventExcitonCreation, EventExcitonHop, EventExcitonDecay, EventExcitonDissociation,
	EventIntersystemCrossing, EventReverseISC, EventExcitonAnnihilation, EventPolaronAnnihilation,
	EventPolaronHop, EventRecombination, EventPolaronExtraction,
}

// Event is one scheduled transition. Events are values: superseding one means
// bumping the owner's generation, not removing it from the queue.
type Event struct {
	Time     float64 // absolute scheduled time, s
	Kind     EventKind
	Particle int64 // owner; 0 for exciton creation
	Target   int64 // partner particle for recombination and annihilation
	Dest     Coords
	Offset   Coords // move offset for hops and dissociation

	// Generation is the owner's stamp at scheduling time.
	Generation uint64

	seq uint64 // insertion order, breaks ties in Time
}

// candidate is one possible transition of a particle with its rate.
type candidate struct {
	kind   EventKind
	rate   float64 // s^-1
	dest   Coords
	offset Coords
	target int64
}
