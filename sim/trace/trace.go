package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// TraceLevel controls the verbosity of event tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelEvents captures every executed event and cycle boundary.
	TraceLevelEvents TraceLevel = "events"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:   true,
	TraceLevelEvents: true,
	"":               true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects executed-event records during a run.
type SimulationTrace struct {
	Config TraceConfig
	Events []EventRecord
	Cycles []CycleRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config: config,
		Events: make([]EventRecord, 0),
		Cycles: make([]CycleRecord, 0),
	}
}

// RecordEvent appends an executed-event record.
func (st *SimulationTrace) RecordEvent(record EventRecord) {
	st.Events = append(st.Events, record)
}

// RecordCycle appends a transient cycle boundary.
func (st *SimulationTrace) RecordCycle(cycle int, time float64, expired int) {
	st.Cycles = append(st.Cycles, CycleRecord{Cycle: cycle, Time: time, Expired: expired})
}

var csvHeader = []string{"seq", "time_s", "kind", "particle", "particle_kind", "target",
	"from_x", "from_y", "from_z", "to_x", "to_y", "to_z"}

// WriteCSV writes the event records with a header row.
func (st *SimulationTrace) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing trace header: %w", err)
	}
	for _, e := range st.Events {
		row := []string{
			strconv.FormatInt(e.Seq, 10),
			strconv.FormatFloat(e.Time, 'e', 9, 64),
			e.Kind,
			strconv.FormatInt(e.Particle, 10),
			e.ParticleKind,
			strconv.FormatInt(e.Target, 10),
			strconv.Itoa(e.From[0]), strconv.Itoa(e.From[1]), strconv.Itoa(e.From[2]),
			strconv.Itoa(e.To[0]), strconv.Itoa(e.To[1]), strconv.Itoa(e.To[2]),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing trace record %d: %w", e.Seq, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
