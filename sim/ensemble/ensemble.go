// Package ensemble runs independent replicas of one parameter set in parallel
// and merges their observables.
package ensemble

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/oscsim/oscsim/sim"
	"github.com/oscsim/oscsim/sim/observe"
	"github.com/oscsim/oscsim/sim/report"
)

// Options controls an ensemble. Zero Workers uses GOMAXPROCS.
type Options struct {
	Runs         int
	Workers      int
	Collector    *observe.Collector
	PollInterval time.Duration
	// OnComplete is called once per finished run, serialized.
	OnComplete func(Result)
}

// Result is the outcome of one replica.
type Result struct {
	Run          int
	ID           string
	Seed         int64
	Summary      report.Summary
	TransitTimes []float64
	Mobilities   []float64
	Diffusion    sim.ExcitonDiffusionData
	Elapsed      time.Duration
}

// Aggregate merges replica results. Counters and channels are summed;
// distributions are concatenated in run order.
type Aggregate struct {
	Runs            int
	Counters        map[sim.ParticleKind]sim.Counters
	Channels        map[sim.Channel]int64
	TransitTimes    []float64
	Mobilities      []float64
	Distances       []float64
	MeanIQE         float64
	IQEStdDev       float64
	MeanTransitTime float64
	MeanMobility    float64
	DiffusionLength float64
}

// Run executes opts.Runs replicas of params. Replica i uses a seed derived from
// params.Seed under the "run_i" subsystem, so results do not depend on worker
// count or scheduling. The first failing replica cancels the rest.
func Run(ctx context.Context, params sim.Parameters, opts Options) ([]Result, error) {
	if opts.Runs <= 0 {
		return nil, fmt.Errorf("%w: runs must be > 0, got %d", sim.ErrInvalidParameters, opts.Runs)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	seeds := sim.NewPartitionedRNG(sim.NewSimulationKey(params.Seed))

	results := make([]Result, opts.Runs)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < opts.Runs; i++ {
		i := i
		g.Go(func() error {
			p := params
			p.Seed = seeds.DeriveSeed(sim.SubsystemRun(i))
			res, err := runOne(gctx, i, p, opts.Collector, interval)
			if err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
			results[i] = res
			if opts.OnComplete != nil {
				mu.Lock()
				opts.OnComplete(res)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func runOne(ctx context.Context, i int, p sim.Parameters, c *observe.Collector, interval time.Duration) (Result, error) {
	id := sim.SubsystemRun(i)
	log := logrus.WithFields(logrus.Fields{"run": i, "seed": p.Seed})
	start := time.Now()

	s, err := sim.NewSimulator(p)
	if err != nil {
		return Result{}, err
	}
	pollCtx, stopPoll := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if c != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Poll(pollCtx, id, interval, s.Snapshot)
		}()
	}
	err = s.Run(ctx)
	stopPoll()
	wg.Wait()
	elapsed := time.Since(start)
	c.RunFinished(p.Test.Mode, elapsed, err)
	if err != nil {
		return Result{}, err
	}
	if err := s.CheckConservation(); err != nil {
		return Result{}, err
	}

	log.Debugf("finished after %d events in %s", s.EventsExecuted(), elapsed)
	return Result{
		Run:          i,
		ID:           id,
		Seed:         p.Seed,
		Summary:      report.Summarize(s),
		TransitTimes: s.TransitTimes(),
		Mobilities:   s.MobilityData(),
		Diffusion:    s.ExcitonDiffusionData(),
		Elapsed:      elapsed,
	}, nil
}

// Merge combines results into ensemble totals.
func Merge(results []Result) Aggregate {
	agg := Aggregate{
		Runs:     len(results),
		Counters: make(map[sim.ParticleKind]sim.Counters, len(sim.AllParticleKinds)),
		Channels: make(map[sim.Channel]int64, len(sim.Channels)),
	}
	iqe := make([]float64, 0, len(results))
	for _, r := range results {
		for k, c := range r.Summary.Counters {
			a := agg.Counters[k]
			a.Created += c.Created
			a.Collected += c.Collected
			a.Recombined += c.Recombined
			a.Decayed += c.Decayed
			a.Dissociated += c.Dissociated
			a.Expired += c.Expired
			agg.Counters[k] = a
		}
		for ch, n := range r.Summary.Channels {
			agg.Channels[ch] += n
		}
		agg.TransitTimes = append(agg.TransitTimes, r.TransitTimes...)
		agg.Mobilities = append(agg.Mobilities, r.Mobilities...)
		agg.Distances = append(agg.Distances, r.Diffusion.Distances...)
		iqe = append(iqe, r.Summary.IQE)
	}
	if len(iqe) > 0 {
		agg.MeanIQE = stat.Mean(iqe, nil)
	}
	if len(iqe) > 1 {
		agg.IQEStdDev = stat.StdDev(iqe, nil)
	}
	if len(agg.TransitTimes) > 0 {
		agg.MeanTransitTime = stat.Mean(agg.TransitTimes, nil)
	}
	if len(agg.Mobilities) > 0 {
		agg.MeanMobility = stat.Mean(agg.Mobilities, nil)
	}
	if len(agg.Distances) > 0 {
		agg.DiffusionLength = stat.Mean(agg.Distances, nil)
	}
	return agg
}

// Summaries keys each result's summary by run id, ready for report.Store.Save.
func Summaries(results []Result) map[string]report.Summary {
	out := make(map[string]report.Summary, len(results))
	for _, r := range results {
		out[r.ID] = r.Summary
	}
	return out
}
