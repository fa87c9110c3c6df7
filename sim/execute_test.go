package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_ExcitonAnnihilationChannels(t *testing.T) {
	tests := []struct {
		name        string
		initiator   Spin
		target      Spin
		wantChannel Channel
	}{
		{"singlet-singlet", SpinSinglet, SpinSinglet, ChannelSingletSinglet},
		{"singlet-triplet", SpinSinglet, SpinTriplet, ChannelSingletTriplet},
		{"triplet-triplet", SpinTriplet, SpinTriplet, ChannelTripletTriplet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustSimulator(t, smallParameters())
			a, err := s.CreateExciton(Coords{4, 4, 4}, tt.initiator)
			require.NoError(t, err)
			b, err := s.CreateExciton(Coords{4, 4, 5}, tt.target)
			require.NoError(t, err)

			s.execute(Event{Kind: EventExcitonAnnihilation, Particle: a, Target: b})

			assert.Equal(t, int64(1), s.ChannelCount(tt.wantChannel))
			_, alive := s.Particle(a)
			assert.False(t, alive, "the initiator is destroyed")
			_, alive = s.Particle(b)
			assert.True(t, alive, "the target survives")
			assert.Equal(t, int64(1), s.Counters(KindExciton).Recombined)
			assert.NoError(t, s.CheckConservation())
		})
	}
}

func TestExecute_TripletTripletSometimesYieldsSinglet(t *testing.T) {
	singlets := 0
	const trials = 400
	for seed := int64(0); seed < trials; seed++ {
		p := smallParameters()
		p.Seed = seed
		s := mustSimulator(t, p)
		a, _ := s.CreateExciton(Coords{4, 4, 4}, SpinTriplet)
		b, _ := s.CreateExciton(Coords{4, 4, 5}, SpinTriplet)
		s.execute(Event{Kind: EventExcitonAnnihilation, Particle: a, Target: b})
		if q, _ := s.Particle(b); q.Spin == SpinSinglet {
			singlets++
		}
	}
	assert.InDelta(t, 0.25, float64(singlets)/trials, 0.08)
}

func TestExecute_PolaronAnnihilation(t *testing.T) {
	s := mustSimulator(t, smallParameters())
	x, err := s.CreateExciton(Coords{4, 4, 4}, SpinSinglet)
	require.NoError(t, err)
	h, err := s.CreateHole(Coords{4, 4, 5})
	require.NoError(t, err)

	s.execute(Event{Kind: EventPolaronAnnihilation, Particle: x, Target: h})

	assert.Equal(t, int64(1), s.ChannelCount(ChannelSingletPolaron))
	assert.Equal(t, 1, s.Alive(KindHole))
	assert.Zero(t, s.Alive(KindExciton))
}

func TestExecute_DissociationPlacesElectronOnAcceptor(t *testing.T) {
	// GIVEN a donor exciton above a bilayer interface
	p := filmParameters()
	p.Morphology = MorphologyConfig{Type: MorphologyBilayer, ThicknessAcceptor: 5}
	s := mustSimulator(t, p)
	x, err := s.CreateExciton(Coords{4, 4, 5}, SpinSinglet)
	require.NoError(t, err)

	// WHEN it dissociates toward the acceptor site below
	s.execute(Event{Kind: EventExcitonDissociation, Particle: x, Dest: Coords{4, 4, 4}, Offset: Coords{0, 0, -1}})

	// THEN a tagged pair straddles the interface
	require.True(t, s.SiteOccupiedBy(Coords{4, 4, 4}, KindElectron))
	require.True(t, s.SiteOccupiedBy(Coords{4, 4, 5}, KindHole))
	ps := s.Particles()
	require.Len(t, ps, 2)
	assert.NotZero(t, ps[0].PairTag)
	assert.Equal(t, ps[0].PairTag, ps[1].PairTag)
	assert.Equal(t, int64(1), s.Counters(KindExciton).Dissociated)
	assert.NoError(t, s.CheckConservation())
}

func TestCalculateExcitonEvents_TripletSkipsSingletTargets(t *testing.T) {
	s := mustSimulator(t, smallParameters())
	_, err := s.CreateExciton(Coords{4, 4, 5}, SpinSinglet)
	require.NoError(t, err)

	triplet := &Particle{Kind: KindExciton, Spin: SpinTriplet, Coords: Coords{4, 4, 4}}
	assert.False(t, hasCandidate(s.calculateExcitonEvents(triplet), EventExcitonAnnihilation))
	singlet := &Particle{Kind: KindExciton, Spin: SpinSinglet, Coords: Coords{4, 4, 4}}
	assert.True(t, hasCandidate(s.calculateExcitonEvents(singlet), EventExcitonAnnihilation))
	assert.False(t, hasCandidate(s.calculateExcitonEvents(singlet), EventExcitonDissociation), "neat films have no interface")
}

func TestExecute_MissingTargetPanics(t *testing.T) {
	s := mustSimulator(t, smallParameters())
	x, err := s.CreateExciton(Coords{4, 4, 4}, SpinSinglet)
	require.NoError(t, err)
	assert.Panics(t, func() {
		s.execute(Event{Kind: EventExcitonAnnihilation, Particle: x, Target: 999})
	})
}
