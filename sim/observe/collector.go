// Package observe exports simulation progress as Prometheus metrics.
package observe

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oscsim/oscsim/sim"
)

// Collector bundles the progress gauges of one or more concurrent runs,
// labeled by run id.
type Collector struct {
	gatherer prometheus.Gatherer

	Events       *prometheus.GaugeVec
	SimTime      *prometheus.GaugeVec
	Alive        *prometheus.GaugeVec
	Outcomes     *prometheus.GaugeVec
	Channels     *prometheus.GaugeVec
	Immobilized  *prometheus.GaugeVec
	Cycles       *prometheus.GaugeVec
	QueueLength  *prometheus.GaugeVec
	RunsFinished *prometheus.CounterVec
	RunDurations *prometheus.HistogramVec
}

// NewCollector registers the simulation metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	gauge := func(name, help string, labels ...string) (*prometheus.GaugeVec, error) {
		vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
		return registerGaugeVec(reg, vec, name)
	}
	c := &Collector{gatherer: gatherer}
	var err error
	if c.Events, err = gauge("oscsim_events_executed", "Events executed so far.", "run"); err != nil {
		return nil, err
	}
	if c.SimTime, err = gauge("oscsim_simulation_time_seconds", "Simulated clock.", "run"); err != nil {
		return nil, err
	}
	if c.Alive, err = gauge("oscsim_particles_alive", "Live particles by kind.", "run", "kind"); err != nil {
		return nil, err
	}
	if c.Outcomes, err = gauge("oscsim_particles", "Particle lifecycle totals by kind and outcome.", "run", "kind", "outcome"); err != nil {
		return nil, err
	}
	if c.Channels, err = gauge("oscsim_channel_events", "Recombination and annihilation events by channel.", "run", "channel"); err != nil {
		return nil, err
	}
	if c.Immobilized, err = gauge("oscsim_particles_immobilized", "Live particles with no available event.", "run"); err != nil {
		return nil, err
	}
	if c.Cycles, err = gauge("oscsim_transient_cycles", "Transient cycles seeded.", "run"); err != nil {
		return nil, err
	}
	if c.QueueLength, err = gauge("oscsim_event_queue_length", "Scheduled events including stale entries.", "run"); err != nil {
		return nil, err
	}

	finished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oscsim_runs_finished_total",
		Help: "Finished runs by test mode and result.",
	}, []string{"mode", "result"})
	if c.RunsFinished, err = registerCounterVec(reg, finished, "oscsim_runs_finished_total"); err != nil {
		return nil, err
	}
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oscsim_run_duration_seconds",
		Help:    "Wall-clock run duration in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"mode"})
	if c.RunDurations, err = registerHistogramVec(reg, durations, "oscsim_run_duration_seconds"); err != nil {
		return nil, err
	}
	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveRun sets the gauges of run from snap.
func (c *Collector) ObserveRun(run string, snap sim.Snapshot) {
	if c == nil {
		return
	}
	c.Events.WithLabelValues(run).Set(float64(snap.Events))
	c.SimTime.WithLabelValues(run).Set(snap.Time)
	c.Immobilized.WithLabelValues(run).Set(float64(snap.Immobilized))
	c.Cycles.WithLabelValues(run).Set(float64(snap.TransientCycles))
	c.QueueLength.WithLabelValues(run).Set(float64(snap.QueueLength))
	for k, n := range snap.Alive {
		c.Alive.WithLabelValues(run, string(k)).Set(float64(n))
	}
	for k, ct := range snap.Counters {
		kind := string(k)
		c.Outcomes.WithLabelValues(run, kind, "created").Set(float64(ct.Created))
		c.Outcomes.WithLabelValues(run, kind, "collected").Set(float64(ct.Collected))
		c.Outcomes.WithLabelValues(run, kind, "recombined").Set(float64(ct.Recombined))
		c.Outcomes.WithLabelValues(run, kind, "decayed").Set(float64(ct.Decayed))
		c.Outcomes.WithLabelValues(run, kind, "dissociated").Set(float64(ct.Dissociated))
		c.Outcomes.WithLabelValues(run, kind, "expired").Set(float64(ct.Expired))
	}
	for ch, n := range snap.Channels {
		c.Channels.WithLabelValues(run, string(ch)).Set(float64(n))
	}
}

// RunFinished counts a completed run and records its wall-clock duration.
func (c *Collector) RunFinished(mode sim.TestMode, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.RunsFinished.WithLabelValues(string(mode), result).Inc()
	c.RunDurations.WithLabelValues(string(mode)).Observe(elapsed.Seconds())
}

// Poll publishes snapshot() under run every interval until ctx is done, then
// publishes once more so the final state is visible.
func (c *Collector) Poll(ctx context.Context, run string, interval time.Duration, snapshot func() sim.Snapshot) {
	if c == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.ObserveRun(run, snapshot())
			return
		case <-ticker.C:
			c.ObserveRun(run, snapshot())
		}
	}
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
