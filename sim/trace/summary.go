package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalEvents    int
	FirstTime      float64
	LastTime       float64
	MonotonicClock bool
	Cycles         int
	ExpiredTotal   int
	KindCounts     map[string]int // event kind → count
	ParticleCounts map[string]int // particle kind → events it initiated
	UniqueParticle int
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields, MonotonicClock true).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		MonotonicClock: true,
		KindCounts:     make(map[string]int),
		ParticleCounts: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalEvents = len(st.Events)
	seen := make(map[int64]bool)
	for i, e := range st.Events {
		if i == 0 {
			summary.FirstTime = e.Time
		} else if e.Time < st.Events[i-1].Time {
			summary.MonotonicClock = false
		}
		summary.LastTime = e.Time
		summary.KindCounts[e.Kind]++
		if e.ParticleKind != "" {
			summary.ParticleCounts[e.ParticleKind]++
		}
		if e.Particle != 0 {
			seen[e.Particle] = true
		}
	}
	summary.UniqueParticle = len(seen)

	summary.Cycles = len(st.Cycles)
	for _, c := range st.Cycles {
		summary.ExpiredTotal += c.Expired
	}

	return summary
}
