package trace

import "testing"

func TestSummarize_EmptyTrace_ZeroValues(t *testing.T) {
	// GIVEN an empty trace
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelEvents})

	// WHEN summarized
	summary := Summarize(st)

	// THEN all counts are zero and the empty clock counts as monotonic
	if summary.TotalEvents != 0 {
		t.Errorf("expected 0 events, got %d", summary.TotalEvents)
	}
	if summary.Cycles != 0 || summary.ExpiredTotal != 0 {
		t.Error("expected no cycles")
	}
	if !summary.MonotonicClock {
		t.Error("expected empty trace to be monotonic")
	}
	if len(summary.KindCounts) != 0 {
		t.Error("expected empty kind distribution")
	}
}

func TestSummarize_NilTrace_ZeroValues(t *testing.T) {
	summary := Summarize(nil)
	if summary.TotalEvents != 0 || summary.KindCounts == nil {
		t.Errorf("unexpected summary for nil trace: %+v", summary)
	}
}

func TestSummarize_PopulatedTrace_CorrectCounts(t *testing.T) {
	// GIVEN a trace with mixed events and a cycle boundary
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelEvents})
	st.RecordEvent(EventRecord{Seq: 0, Time: 1, Kind: "polaron_hop", Particle: 1, ParticleKind: "electron"})
	st.RecordEvent(EventRecord{Seq: 1, Time: 2, Kind: "polaron_hop", Particle: 2, ParticleKind: "electron"})
	st.RecordEvent(EventRecord{Seq: 2, Time: 3, Kind: "polaron_extraction", Particle: 1, ParticleKind: "electron"})
	st.RecordCycle(1, 4, 1)

	// WHEN summarized
	summary := Summarize(st)

	// THEN counts match
	if summary.TotalEvents != 3 {
		t.Errorf("expected 3 events, got %d", summary.TotalEvents)
	}
	if summary.KindCounts["polaron_hop"] != 2 || summary.KindCounts["polaron_extraction"] != 1 {
		t.Errorf("unexpected kind counts: %v", summary.KindCounts)
	}
	if summary.ParticleCounts["electron"] != 3 {
		t.Errorf("expected 3 electron events, got %d", summary.ParticleCounts["electron"])
	}
	if summary.UniqueParticle != 2 {
		t.Errorf("expected 2 unique particles, got %d", summary.UniqueParticle)
	}
	if summary.FirstTime != 1 || summary.LastTime != 3 {
		t.Errorf("expected time span [1, 3], got [%g, %g]", summary.FirstTime, summary.LastTime)
	}
	if summary.Cycles != 1 || summary.ExpiredTotal != 1 {
		t.Errorf("expected 1 cycle with 1 expired, got %d/%d", summary.Cycles, summary.ExpiredTotal)
	}
}

func TestSummarize_BackwardsTime_NotMonotonic(t *testing.T) {
	// GIVEN records whose times decrease
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelEvents})
	st.RecordEvent(EventRecord{Seq: 0, Time: 2, Kind: "exciton_hop", Particle: 1})
	st.RecordEvent(EventRecord{Seq: 1, Time: 1, Kind: "exciton_hop", Particle: 1})

	// WHEN summarized
	summary := Summarize(st)

	// THEN the clock is flagged
	if summary.MonotonicClock {
		t.Error("expected MonotonicClock=false")
	}
}
