package sim

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Channel names a recombination or annihilation pathway.
type Channel string

const (
	ChannelGeminate       Channel = "geminate"
	ChannelBimolecular    Channel = "bimolecular"
	ChannelSingletPolaron Channel = "singlet_polaron"
	ChannelTripletPolaron Channel = "triplet_polaron"
	ChannelSingletSinglet Channel = "singlet_singlet"
	ChannelSingletTriplet Channel = "singlet_triplet"
	ChannelTripletTriplet Channel = "triplet_triplet"
	ChannelExcitonDecay   Channel = "exciton_decay"
)

// Channels lists every channel in reporting order.
var Channels = []Channel{
	ChannelGeminate, ChannelBimolecular, ChannelSingletPolaron, ChannelTripletPolaron,
	ChannelSingletSinglet, ChannelSingletTriplet, ChannelTripletTriplet, ChannelExcitonDecay,
}

// Counters are the lifecycle totals of one particle kind. Annihilated excitons
// count as Recombined; Expired particles were cleared at the end of a transient cycle.
type Counters struct {
	Created     int64 `json:"created"`
	Collected   int64 `json:"collected"`
	Recombined  int64 `json:"recombined"`
	Decayed     int64 `json:"decayed"`
	Dissociated int64 `json:"dissociated"`
	Expired     int64 `json:"expired"`
}

// Terminated is the number of particles that reached a terminal state.
func (c Counters) Terminated() int64 {
	return c.Collected + c.Recombined + c.Decayed + c.Dissociated + c.Expired
}

// Point is one (x, y) sample of a distribution.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ExcitonDiffusionData holds per-exciton diffusion observables.
type ExcitonDiffusionData struct {
	Distances  []float64 // creation-to-decay distance, nm
	Lifetimes  []float64 // s
	HopLengths []float64 // nm
}

// DiffusionLength returns the mean creation-to-decay distance (nm), 0 without data.
func (d ExcitonDiffusionData) DiffusionLength() float64 {
	if len(d.Distances) == 0 {
		return 0
	}
	return stat.Mean(d.Distances, nil)
}

// RMSDistance returns sqrt(<r²>) over decayed excitons (nm).
func (d ExcitonDiffusionData) RMSDistance() float64 {
	if len(d.Distances) == 0 {
		return 0
	}
	sq := make([]float64, len(d.Distances))
	for i, v := range d.Distances {
		sq[i] = v * v
	}
	return math.Sqrt(stat.Mean(sq, nil))
}

// statistics accumulates counters and distributions in event execution order.
// All updates are appends or increments.
type statistics struct {
	counters      map[ParticleKind]*Counters
	alive         map[ParticleKind]int
	channels      map[Channel]int64
	events        map[EventKind]int64
	singletDecays int64
	tripletDecays int64
	diffusion     ExcitonDiffusionData
	transitTimes  []float64
	extraction    map[ParticleKind][]int64 // index Width*x + y
	width         int
	length        int
}

func newStatistics(length, width int) *statistics {
	st := &statistics{
		counters:   make(map[ParticleKind]*Counters, len(AllParticleKinds)),
		alive:      make(map[ParticleKind]int, len(AllParticleKinds)),
		channels:   make(map[Channel]int64, len(Channels)),
		events:     make(map[EventKind]int64, len(EventKinds)),
		extraction: make(map[ParticleKind][]int64, 2),
		width:      width,
		length:     length,
	}
	for _, k := range AllParticleKinds {
		st.counters[k] = &Counters{}
	}
	st.extraction[KindElectron] = make([]int64, length*width)
	st.extraction[KindHole] = make([]int64, length*width)
	return st
}

func (st *statistics) created(k ParticleKind) {
	st.counters[k].Created++
	st.alive[k]++
}

func (st *statistics) terminated(k ParticleKind, state ParticleState) {
	c := st.counters[k]
	switch state {
	case StateExtracted:
		c.Collected++
	case StateRecombined:
		c.Recombined++
	case StateDecayed:
		c.Decayed++
	case StateDissociated:
		c.Dissociated++
	case StateExpired:
		c.Expired++
	}
	st.alive[k]--
}

func (st *statistics) extracted(k ParticleKind, c Coords) {
	st.extraction[k][st.width*c.X+c.Y]++
}

func (st *statistics) aliveTotal() int {
	n := 0
	for _, v := range st.alive {
		n += v
	}
	return n
}

// Counters returns the lifecycle totals of kind k.
func (s *Simulator) Counters(k ParticleKind) Counters {
	if c, ok := s.stats.counters[k]; ok {
		return *c
	}
	return Counters{}
}

// Alive returns the number of live particles of kind k.
func (s *Simulator) Alive(k ParticleKind) int {
	return s.stats.alive[k]
}

// ChannelCount returns the number of recombination events on channel ch.
func (s *Simulator) ChannelCount(ch Channel) int64 {
	return s.stats.channels[ch]
}

// EventCount returns how many events of kind k were executed.
func (s *Simulator) EventCount(k EventKind) int64 {
	return s.stats.events[k]
}

// SingletDecays returns the number of singlet excitons that decayed.
func (s *Simulator) SingletDecays() int64 { return s.stats.singletDecays }

// TripletDecays returns the number of triplet excitons that decayed.
func (s *Simulator) TripletDecays() int64 { return s.stats.tripletDecays }

// ExcitonDiffusionData returns a copy of the exciton diffusion observables.
func (s *Simulator) ExcitonDiffusionData() ExcitonDiffusionData {
	d := s.stats.diffusion
	return ExcitonDiffusionData{
		Distances:  append([]float64(nil), d.Distances...),
		Lifetimes:  append([]float64(nil), d.Lifetimes...),
		HopLengths: append([]float64(nil), d.HopLengths...),
	}
}

// ChargeExtractionMap returns extraction counts per electrode cell as [x][y].
func (s *Simulator) ChargeExtractionMap(k ParticleKind) [][]int64 {
	flat, ok := s.stats.extraction[k]
	out := make([][]int64, s.stats.length)
	for x := range out {
		out[x] = make([]int64, s.stats.width)
		if ok {
			copy(out[x], flat[x*s.stats.width:(x+1)*s.stats.width])
		}
	}
	return out
}

// ChargeExtractionProbabilities returns the extraction map normalized to total extractions.
func (s *Simulator) ChargeExtractionProbabilities(k ParticleKind) [][]float64 {
	counts := s.ChargeExtractionMap(k)
	var total int64
	for _, row := range counts {
		for _, v := range row {
			total += v
		}
	}
	out := make([][]float64, len(counts))
	for x, row := range counts {
		out[x] = make([]float64, len(row))
		if total == 0 {
			continue
		}
		for y, v := range row {
			out[x][y] = float64(v) / float64(total)
		}
	}
	return out
}

// IQE returns collected charge pairs per created exciton.
func (s *Simulator) IQE() float64 {
	created := s.stats.counters[KindExciton].Created
	if created == 0 {
		return 0
	}
	e := s.stats.counters[KindElectron].Collected
	h := s.stats.counters[KindHole].Collected
	return float64(min(e, h)) / float64(created)
}

// CheckConservation verifies created == alive + terminated for every kind.
func (s *Simulator) CheckConservation() error {
	for _, k := range AllParticleKinds {
		c := s.stats.counters[k]
		if c.Created != int64(s.stats.alive[k])+c.Terminated() {
			return &ConservationError{Kind: k, Counters: *c, Alive: s.stats.alive[k]}
		}
	}
	return nil
}
