package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounters_Terminated(t *testing.T) {
	c := Counters{Created: 10, Collected: 1, Recombined: 2, Decayed: 3, Dissociated: 1, Expired: 2}
	assert.Equal(t, int64(9), c.Terminated())
}

func TestExcitonDiffusionData_Empty(t *testing.T) {
	var d ExcitonDiffusionData
	assert.Zero(t, d.DiffusionLength())
	assert.Zero(t, d.RMSDistance())
}

func TestExcitonDiffusionData_Means(t *testing.T) {
	d := ExcitonDiffusionData{Distances: []float64{3, 4}}
	assert.InDelta(t, 3.5, d.DiffusionLength(), 1e-12)
	assert.InDelta(t, 3.5355339, d.RMSDistance(), 1e-6)
}

func TestSimulator_ObservablesEmptyOutsideTheirModes(t *testing.T) {
	s := mustSimulator(t, smallParameters())
	assert.Nil(t, s.TransitTimeHistogram())
	assert.Empty(t, s.TransitTimes())
	assert.Nil(t, s.MobilityData())
	assert.Zero(t, s.IQE())
	assert.Zero(t, s.TransientCycles())
	assert.Empty(t, s.ToFTransient().Times)
	m := s.ChargeExtractionMap(KindHole)
	assert.Len(t, m, 10)
	assert.Len(t, m[0], 10)
	assert.Len(t, s.ChargeExtractionMap(KindExciton), 10)
}

func TestSimulator_ConservationErrorReportsKind(t *testing.T) {
	s := mustSimulator(t, smallParameters())
	s.stats.counters[KindHole].Created++
	err := s.CheckConservation()
	var ce *ConservationError
	if assert.ErrorAs(t, err, &ce) {
		assert.Equal(t, KindHole, ce.Kind)
	}
}

func TestDensityHistogram_Normalized(t *testing.T) {
	values := []float64{-0.1, -0.05, 0, 0, 0.02, 0.3}
	hist := densityHistogram(values, 0.01)
	area := 0.0
	for _, pt := range hist {
		area += pt.Y * 0.01
	}
	assert.InDelta(t, 1.0, area, 1e-12)
	assert.Nil(t, densityHistogram(nil, 0.01))
}
