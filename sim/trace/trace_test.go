package trace

import (
	"bytes"
	"encoding/csv"
	"testing"
)

func TestSimulationTrace_RecordEvent_AppendsRecord(t *testing.T) {
	// GIVEN a trace configured for events
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelEvents})

	// WHEN an event record is recorded
	st.RecordEvent(EventRecord{
		Seq:          0,
		Time:         1e-9,
		Kind:         "polaron_hop",
		Particle:     7,
		ParticleKind: "electron",
		From:         [3]int{1, 2, 3},
		To:           [3]int{1, 2, 4},
	})

	// THEN the trace contains one event record with correct data
	if len(st.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(st.Events))
	}
	if st.Events[0].Particle != 7 {
		t.Errorf("expected particle 7, got %d", st.Events[0].Particle)
	}
	if st.Events[0].To != [3]int{1, 2, 4} {
		t.Errorf("expected destination (1,2,4), got %v", st.Events[0].To)
	}
}

func TestSimulationTrace_RecordCycle_AppendsRecord(t *testing.T) {
	// GIVEN a trace
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelEvents})

	// WHEN two cycle boundaries are recorded
	st.RecordCycle(1, 1e-6, 3)
	st.RecordCycle(2, 2e-6, 0)

	// THEN both are kept in order
	if len(st.Cycles) != 2 {
		t.Fatalf("expected 2 cycles, got %d", len(st.Cycles))
	}
	if st.Cycles[0].Expired != 3 || st.Cycles[1].Cycle != 2 {
		t.Errorf("unexpected cycle records: %+v", st.Cycles)
	}
}

func TestSimulationTrace_MultipleRecords_PreservesOrder(t *testing.T) {
	// GIVEN a trace
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelEvents})

	// WHEN multiple records are added
	st.RecordEvent(EventRecord{Seq: 0, Time: 1, Kind: "exciton_creation"})
	st.RecordEvent(EventRecord{Seq: 1, Time: 2, Kind: "exciton_hop", Particle: 1})
	st.RecordEvent(EventRecord{Seq: 2, Time: 3, Kind: "exciton_decay", Particle: 1})

	// THEN order is preserved
	for i, e := range st.Events {
		if e.Seq != int64(i) {
			t.Errorf("record %d has seq %d", i, e.Seq)
		}
	}
}

func TestSimulationTrace_WriteCSV_HeaderAndRows(t *testing.T) {
	// GIVEN a trace with two events
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelEvents})
	st.RecordEvent(EventRecord{Seq: 0, Time: 1e-12, Kind: "polaron_hop", Particle: 1, ParticleKind: "hole", To: [3]int{0, 0, 1}})
	st.RecordEvent(EventRecord{Seq: 1, Time: 2e-12, Kind: "polaron_extraction", Particle: 1, ParticleKind: "hole"})

	// WHEN written as CSV
	var buf bytes.Buffer
	if err := st.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	// THEN a header plus one row per event is produced
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading CSV back: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "seq" || rows[2][2] != "polaron_extraction" {
		t.Errorf("unexpected CSV content: %v", rows)
	}
	if rows[1][11] != "1" {
		t.Errorf("expected to_z 1, got %s", rows[1][11])
	}
}

func TestIsValidTraceLevel_ValidLevels(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"none", true},
		{"events", true},
		{"", true}, // empty defaults to none
		{"decisions", false},
		{"foobar", false},
		{"NONE", false}, // case-sensitive
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if got := IsValidTraceLevel(tt.level); got != tt.valid {
				t.Errorf("IsValidTraceLevel(%q) = %v, want %v", tt.level, got, tt.valid)
			}
		})
	}
}
