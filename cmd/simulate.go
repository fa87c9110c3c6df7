package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/oscsim/oscsim/sim"
	"github.com/oscsim/oscsim/sim/ensemble"
	"github.com/oscsim/oscsim/sim/observe"
	"github.com/oscsim/oscsim/sim/report"
)

// singleRunID labels the metrics and stored summary of a `run` invocation.
const singleRunID = "single"

type runOptions struct {
	TracePath    string
	OutputDir    string
	ResultsDB    string
	MetricsAddr  string
	PollInterval time.Duration
	Runs         int
	Workers      int
}

// runSingle executes one simulation and writes its summary to out.
func runSingle(ctx context.Context, params sim.Parameters, opts runOptions, out io.Writer) error {
	collector, shutdown, err := startMetrics(opts.MetricsAddr)
	if err != nil {
		return err
	}
	defer shutdown()

	start := time.Now()
	s, err := sim.NewSimulator(params)
	if err != nil {
		return err
	}
	pollCtx, stopPoll := context.WithCancel(ctx)
	polled := make(chan struct{})
	go func() {
		defer close(polled)
		collector.Poll(pollCtx, singleRunID, opts.PollInterval, s.Snapshot)
	}()
	runErr := s.Run(ctx)
	stopPoll()
	<-polled
	collector.RunFinished(params.Test.Mode, time.Since(start), runErr)
	if runErr != nil {
		return fmt.Errorf("simulation interrupted at t=%.4e s: %w", s.Time(), runErr)
	}
	if err := s.CheckConservation(); err != nil {
		return err
	}

	sum := report.Summarize(s)
	if err := report.WriteText(out, sum); err != nil {
		return err
	}
	if opts.TracePath != "" {
		if err := writeTrace(opts.TracePath, s); err != nil {
			return err
		}
	}
	if opts.OutputDir != "" {
		if err := writeObservables(opts.OutputDir, s); err != nil {
			return err
		}
	}
	if opts.ResultsDB != "" {
		if err := saveSummaries(ctx, opts.ResultsDB, map[string]report.Summary{singleRunID: sum}); err != nil {
			return err
		}
	}
	return nil
}

// runEnsemble executes opts.Runs replicas and prints per-run and merged results.
func runEnsemble(ctx context.Context, params sim.Parameters, opts runOptions, out io.Writer) error {
	collector, shutdown, err := startMetrics(opts.MetricsAddr)
	if err != nil {
		return err
	}
	defer shutdown()

	results, err := ensemble.Run(ctx, params, ensemble.Options{
		Runs:         opts.Runs,
		Workers:      opts.Workers,
		Collector:    collector,
		PollInterval: opts.PollInterval,
		OnComplete: func(r ensemble.Result) {
			logrus.Infof("%s (seed %d) finished: %d events in %s", r.ID, r.Seed, r.Summary.Events, r.Elapsed.Round(time.Millisecond))
		},
	})
	if err != nil {
		return err
	}
	if err := writeEnsemble(out, params.Test.Mode, results); err != nil {
		return err
	}
	if opts.ResultsDB != "" {
		return saveSummaries(ctx, opts.ResultsDB, ensemble.Summaries(results))
	}
	return nil
}

func writeEnsemble(out io.Writer, mode sim.TestMode, results []ensemble.Result) error {
	agg := ensemble.Merge(results)
	if _, err := fmt.Fprintf(out, "=== Ensemble Summary ===\nMode   : %s\nRuns   : %d\n", mode, agg.Runs); err != nil {
		return err
	}
	for _, k := range sim.AllParticleKinds {
		c := agg.Counters[k]
		if c.Created == 0 {
			continue
		}
		if _, err := fmt.Fprintf(out, "%-9s created=%d collected=%d recombined=%d decayed=%d dissociated=%d expired=%d\n",
			k, c.Created, c.Collected, c.Recombined, c.Decayed, c.Dissociated, c.Expired); err != nil {
			return err
		}
	}
	var err error
	switch mode {
	case sim.ModeIQE:
		_, err = fmt.Fprintf(out, "IQE    : %.4f ± %.4f\n", agg.MeanIQE, agg.IQEStdDev)
	case sim.ModeExcitonDiffusion:
		_, err = fmt.Fprintf(out, "Diffusion length : %.4f nm over %d excitons\n", agg.DiffusionLength, len(agg.Distances))
	case sim.ModeToF:
		_, err = fmt.Fprintf(out, "Mean transit time: %.4e s\nMean mobility    : %.4e cm^2/Vs\n", agg.MeanTransitTime, agg.MeanMobility)
	}
	return err
}

// startMetrics serves a fresh registry on addr. With an empty addr it returns
// a nil collector, which ignores all updates.
func startMetrics(addr string) (*observe.Collector, func(), error) {
	if addr == "" {
		return nil, func() {}, nil
	}
	collector, err := observe.NewCollector(prometheus.NewRegistry())
	if err != nil {
		return nil, nil, err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Warnf("metrics server stopped: %v", err)
		}
	}()
	logrus.Infof("Serving metrics on http://%s/metrics", ln.Addr())
	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return collector, shutdown, nil
}

func saveSummaries(ctx context.Context, path string, sums map[string]report.Summary) error {
	store, err := report.OpenStore(path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	if err := store.Save(ctx, sums); err != nil {
		return err
	}
	logrus.Infof("Saved %d run summaries to %s", len(sums), path)
	return nil
}

func writeTrace(path string, s *sim.Simulator) error {
	tr := s.Trace()
	if tr == nil {
		return fmt.Errorf("trace requested but not recorded")
	}
	return writeFile(path, tr.WriteCSV)
}

// writeObservables writes the CSV tables that apply to the run's mode.
func writeObservables(dir string, s *sim.Simulator) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	p := s.Params()
	files := map[string]func(io.Writer) error{}
	points := func(name, x, y string, pts []sim.Point) {
		files[name] = func(w io.Writer) error { return report.WritePointsCSV(w, x, y, pts) }
	}
	extraction := func(k sim.ParticleKind) {
		files[string(k)+"_extraction_map.csv"] = func(w io.Writer) error { return report.WriteExtractionMapCSV(w, s, k) }
	}

	if p.Energetics.DOS != sim.DOSNone && p.Energetics.Correlated {
		points("dos_correlation.csv", "distance_nm", "correlation", s.CalculateDOSCorrelation())
	}
	switch p.Test.Mode {
	case sim.ModeToF:
		ts := s.ToFTransient()
		files["tof_transient.csv"] = func(w io.Writer) error { return report.WriteTransientCSV(w, ts) }
		points("transit_time_hist.csv", "time_s", "probability", s.TransitTimeHistogram())
		if p.Test.ToFHoles {
			extraction(sim.KindHole)
		} else {
			extraction(sim.KindElectron)
		}
	case sim.ModeDynamics:
		ts := s.DynamicsTransient()
		files["dynamics_transient.csv"] = func(w io.Writer) error { return report.WriteTransientCSV(w, ts) }
	case sim.ModeIQE:
		extraction(sim.KindElectron)
		extraction(sim.KindHole)
	case sim.ModeSteadyTransport:
		r := s.SteadyResults()
		points("steady_dos.csv", "energy_ev", "density", r.DOS)
		points("steady_dos_coulomb.csv", "energy_ev", "density", r.DOSCoulomb)
		points("steady_doos.csv", "energy_ev", "density", r.DOOS)
		points("steady_doos_coulomb.csv", "energy_ev", "density", r.DOOSCoulomb)
	}
	for name, write := range files {
		if err := writeFile(filepath.Join(dir, name), write); err != nil {
			return err
		}
	}
	logrus.Infof("Wrote %d observable tables to %s", len(files), dir)
	return nil
}

func writeFile(path string, write func(io.Writer) error) (retErr error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("close %s: %w", path, err)
		}
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
