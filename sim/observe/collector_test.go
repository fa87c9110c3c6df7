package observe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/oscsim/oscsim/sim"
)

func sampleSnapshot() sim.Snapshot {
	return sim.Snapshot{
		Time:            2.5e-9,
		Events:          1234,
		Alive:           map[sim.ParticleKind]int{sim.KindElectron: 3, sim.KindHole: 2},
		Counters:        map[sim.ParticleKind]sim.Counters{sim.KindElectron: {Created: 10, Collected: 7}},
		Channels:        map[sim.Channel]int64{sim.ChannelBimolecular: 4},
		Immobilized:     1,
		TransientCycles: 2,
		QueueLength:     9,
	}
}

func TestObserveRunSetsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	c.ObserveRun("run_0", sampleSnapshot())

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"events", testutil.ToFloat64(c.Events.WithLabelValues("run_0")), 1234},
		{"time", testutil.ToFloat64(c.SimTime.WithLabelValues("run_0")), 2.5e-9},
		{"alive electrons", testutil.ToFloat64(c.Alive.WithLabelValues("run_0", "electron")), 3},
		{"collected electrons", testutil.ToFloat64(c.Outcomes.WithLabelValues("run_0", "electron", "collected")), 7},
		{"bimolecular", testutil.ToFloat64(c.Channels.WithLabelValues("run_0", "bimolecular")), 4},
		{"immobilized", testutil.ToFloat64(c.Immobilized.WithLabelValues("run_0")), 1},
		{"cycles", testutil.ToFloat64(c.Cycles.WithLabelValues("run_0")), 2},
		{"queue", testutil.ToFloat64(c.QueueLength.WithLabelValues("run_0")), 9},
	}
	for _, tc := range checks {
		if tc.got != tc.want {
			t.Errorf("%s = %v, want %v", tc.name, tc.got, tc.want)
		}
	}
}

func TestNewCollectorReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}
	if first.Events != second.Events {
		t.Fatal("second collector should reuse the registered gauge vector")
	}
}

func TestRunFinishedCountsResults(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	c.RunFinished(sim.ModeToF, 50*time.Millisecond, nil)
	c.RunFinished(sim.ModeToF, 10*time.Millisecond, context.Canceled)

	if got := testutil.ToFloat64(c.RunsFinished.WithLabelValues("tof", "ok")); got != 1 {
		t.Errorf("ok runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.RunsFinished.WithLabelValues("tof", "error")); got != 1 {
		t.Errorf("failed runs = %v, want 1", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.ObserveRun("run_0", sampleSnapshot())
	c.RunFinished(sim.ModeManual, time.Second, nil)
	c.Poll(context.Background(), "run_0", time.Millisecond, sampleSnapshot)
}

func TestPollPublishesFinalSnapshot(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Poll(ctx, "run_3", time.Hour, sampleSnapshot)
		close(done)
	}()
	cancel()
	<-done

	if got := testutil.ToFloat64(c.Events.WithLabelValues("run_3")); got != 1234 {
		t.Fatalf("events after cancel = %v, want 1234", got)
	}
}

func TestHandlerExposesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	c.ObserveRun("run_0", sampleSnapshot())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	for _, want := range []string{
		`oscsim_events_executed{run="run_0"} 1234`,
		`oscsim_particles_alive{kind="hole",run="run_0"} 2`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
