package ensemble

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oscsim/oscsim/sim"
	"github.com/oscsim/oscsim/sim/observe"
)

func diffusionParameters() sim.Parameters {
	p := sim.DefaultParameters()
	p.Lattice.Length, p.Lattice.Width, p.Lattice.Height = 10, 10, 10
	p.Energetics.DOS = sim.DOSNone
	p.Test.Mode = sim.ModeExcitonDiffusion
	p.Test.NTests = 5
	return p
}

func TestRun_ResultsIndependentOfWorkerCount(t *testing.T) {
	// GIVEN the same base parameters
	p := diffusionParameters()

	// WHEN the ensemble runs serially and in parallel
	serial, err := Run(context.Background(), p, Options{Runs: 4, Workers: 1})
	require.NoError(t, err)
	parallel, err := Run(context.Background(), p, Options{Runs: 4, Workers: 4})
	require.NoError(t, err)

	// THEN each replica has a distinct derived seed and identical results
	require.Len(t, serial, 4)
	seen := map[int64]bool{}
	for i := range serial {
		assert.Equal(t, i, serial[i].Run)
		assert.Equal(t, sim.SubsystemRun(i), serial[i].ID)
		assert.False(t, seen[serial[i].Seed], "seed reused")
		seen[serial[i].Seed] = true
		assert.Equal(t, serial[i].Seed, parallel[i].Seed)
		assert.Equal(t, serial[i].Summary.Events, parallel[i].Summary.Events)
		assert.Equal(t, serial[i].Diffusion.Distances, parallel[i].Diffusion.Distances)
	}
}

func TestRun_OnCompleteAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := observe.NewCollector(reg)
	require.NoError(t, err)

	var ids []string
	results, err := Run(context.Background(), diffusionParameters(), Options{
		Runs: 3, Workers: 2, Collector: c, PollInterval: time.Millisecond,
		OnComplete: func(r Result) { ids = append(ids, r.ID) },
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"run_0", "run_1", "run_2"}, ids)
	assert.Equal(t, 3.0, testutil.ToFloat64(c.RunsFinished.WithLabelValues("exciton_diffusion", "ok")))
	for _, r := range results {
		assert.Equal(t, float64(r.Summary.Events), testutil.ToFloat64(c.Events.WithLabelValues(r.ID)))
	}
}

func TestRun_RejectsZeroRuns(t *testing.T) {
	_, err := Run(context.Background(), diffusionParameters(), Options{})
	assert.ErrorIs(t, err, sim.ErrInvalidParameters)
}

func TestRun_InvalidParametersFailTheEnsemble(t *testing.T) {
	p := diffusionParameters()
	p.Lattice.Length = 0
	_, err := Run(context.Background(), p, Options{Runs: 2})
	assert.ErrorIs(t, err, sim.ErrInvalidParameters)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := diffusionParameters()
	p.Test.NTests = 100000
	_, err := Run(ctx, p, Options{Runs: 2})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestMerge_SumsAndConcatenates(t *testing.T) {
	results, err := Run(context.Background(), diffusionParameters(), Options{Runs: 3, Workers: 3})
	require.NoError(t, err)

	agg := Merge(results)

	assert.Equal(t, 3, agg.Runs)
	var created int64
	var distances int
	for _, r := range results {
		created += r.Summary.Counters[sim.KindExciton].Created
		distances += len(r.Diffusion.Distances)
	}
	assert.Equal(t, created, agg.Counters[sim.KindExciton].Created)
	assert.Len(t, agg.Distances, distances)
	assert.Equal(t, int64(15), agg.Counters[sim.KindExciton].Decayed)
	assert.Greater(t, agg.DiffusionLength, 0.0)
	assert.Len(t, Summaries(results), 3)
}
