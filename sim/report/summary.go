// Package report turns finished simulations into summaries, CSV tables and
// persisted rows. The simulator itself performs no I/O.
package report

import (
	"fmt"
	"io"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/oscsim/oscsim/sim"
)

// Summary is the condensed outcome of one run.
type Summary struct {
	Mode            sim.TestMode                      `json:"mode"`
	Seed            int64                             `json:"seed"`
	Time            float64                           `json:"time_s"`
	Events          int64                             `json:"events"`
	TransientCycles int                               `json:"transient_cycles"`
	Immobilized     int                               `json:"immobilized"`
	Counters        map[sim.ParticleKind]sim.Counters `json:"counters"`
	Channels        map[sim.Channel]int64             `json:"channels"`

	IQE                 float64 `json:"iqe,omitempty"`
	DiffusionLength     float64 `json:"diffusion_length_nm,omitempty"`
	MeanTransitTime     float64 `json:"mean_transit_time_s,omitempty"`
	TransitTimeP50      float64 `json:"transit_time_p50_s,omitempty"`
	TransitTimeP90      float64 `json:"transit_time_p90_s,omitempty"`
	MeanMobility        float64 `json:"mean_mobility_cm2_per_vs,omitempty"`
	SteadyMobility      float64 `json:"steady_mobility_cm2_per_vs,omitempty"`
	SteadyCurrent       float64 `json:"steady_current_ma_per_cm2,omitempty"`
	TransportEnergy     float64 `json:"transport_energy_ev,omitempty"`
	EquilibrationEnergy float64 `json:"equilibration_energy_ev,omitempty"`
}

// Summarize collects the run-level observables of s.
func Summarize(s *sim.Simulator) Summary {
	p := s.Params()
	sum := Summary{
		Mode:            p.Test.Mode,
		Seed:            p.Seed,
		Time:            s.Time(),
		Events:          s.EventsExecuted(),
		TransientCycles: s.TransientCycles(),
		Immobilized:     s.Immobilized(),
		Counters:        make(map[sim.ParticleKind]sim.Counters, len(sim.AllParticleKinds)),
		Channels:        make(map[sim.Channel]int64, len(sim.Channels)),
		IQE:             finite(s.IQE()),
		DiffusionLength: s.ExcitonDiffusionData().DiffusionLength(),
	}
	for _, k := range sim.AllParticleKinds {
		sum.Counters[k] = s.Counters(k)
	}
	for _, ch := range sim.Channels {
		sum.Channels[ch] = s.ChannelCount(ch)
	}
	if tt := s.TransitTimes(); len(tt) > 0 {
		sum.MeanTransitTime = stat.Mean(tt, nil)
		sort.Float64s(tt)
		sum.TransitTimeP50 = stat.Quantile(0.5, stat.LinInterp, tt, nil)
		sum.TransitTimeP90 = stat.Quantile(0.9, stat.LinInterp, tt, nil)
	}
	if mu := s.MobilityData(); len(mu) > 0 {
		sum.MeanMobility = stat.Mean(mu, nil)
	}
	if p.Test.Mode == sim.ModeSteadyTransport {
		r := s.SteadyResults()
		sum.SteadyMobility = finite(r.Mobility)
		sum.SteadyCurrent = finite(r.CurrentDensity)
		sum.TransportEnergy = finite(r.TransportEnergy)
		sum.EquilibrationEnergy = finite(r.EquilibrationEnergy)
	}
	return sum
}

// WriteText prints a human-readable summary.
func WriteText(w io.Writer, sum Summary) error {
	ew := &errWriter{w: w}
	ew.printf("=== Simulation Summary ===\n")
	ew.printf("Mode             : %s\n", sum.Mode)
	ew.printf("Seed             : %d\n", sum.Seed)
	ew.printf("Simulated time   : %.4e s\n", sum.Time)
	ew.printf("Events executed  : %d\n", sum.Events)
	if sum.TransientCycles > 0 {
		ew.printf("Transient cycles : %d\n", sum.TransientCycles)
	}
	if sum.Immobilized > 0 {
		ew.printf("Immobilized      : %d\n", sum.Immobilized)
	}
	ew.printf("%-9s %9s %9s %10s %8s %11s %8s\n", "kind", "created", "collected", "recombined", "decayed", "dissociated", "expired")
	for _, k := range sim.AllParticleKinds {
		c := sum.Counters[k]
		ew.printf("%-9s %9d %9d %10d %8d %11d %8d\n", k, c.Created, c.Collected, c.Recombined, c.Decayed, c.Dissociated, c.Expired)
	}
	for _, ch := range sim.Channels {
		if n := sum.Channels[ch]; n > 0 {
			ew.printf("Channel %-16s: %d\n", ch, n)
		}
	}
	switch sum.Mode {
	case sim.ModeIQE:
		ew.printf("IQE              : %.4f\n", sum.IQE)
	case sim.ModeExcitonDiffusion:
		ew.printf("Diffusion length : %.4f nm\n", sum.DiffusionLength)
	case sim.ModeToF:
		ew.printf("Mean transit time: %.4e s\n", sum.MeanTransitTime)
		ew.printf("Transit time p50 : %.4e s\n", sum.TransitTimeP50)
		ew.printf("Transit time p90 : %.4e s\n", sum.TransitTimeP90)
		ew.printf("Mean mobility    : %.4e cm^2/Vs\n", sum.MeanMobility)
	case sim.ModeSteadyTransport:
		ew.printf("Steady mobility  : %.4e cm^2/Vs\n", sum.SteadyMobility)
		ew.printf("Current density  : %.4e mA/cm^2\n", sum.SteadyCurrent)
		ew.printf("Transport energy : %.4f eV\n", sum.TransportEnergy)
		ew.printf("Equilibration E  : %.4f eV\n", sum.EquilibrationEnergy)
	}
	return ew.err
}

// errWriter keeps the first write error so callers check once.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

// finite replaces NaN and infinities, which JSON cannot carry, with zero.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
