package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/oscsim/oscsim/sim"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 8, 64)
}

// WriteTransientCSV writes one row per sample time with count, energy, MSD and
// velocity columns for every kind present in ts.
func WriteTransientCSV(w io.Writer, ts sim.TransientSeries) error {
	var kinds []sim.ParticleKind
	for _, k := range sim.AllParticleKinds {
		if _, ok := ts.Counts[k]; ok {
			kinds = append(kinds, k)
		}
	}
	cw := csv.NewWriter(w)
	header := []string{"time_s"}
	for _, k := range kinds {
		header = append(header,
			string(k)+"_count", string(k)+"_energy_ev", string(k)+"_msd_nm2", string(k)+"_velocity_cm_s")
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, t := range ts.Times {
		row := []string{formatFloat(t)}
		for _, k := range kinds {
			row = append(row,
				formatFloat(ts.Counts[k][i]), formatFloat(ts.Energies[k][i]),
				formatFloat(ts.MSD[k][i]), formatFloat(ts.Velocities[k][i]))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePointsCSV writes a two-column distribution under the given column names.
func WritePointsCSV(w io.Writer, xName, yName string, pts []sim.Point) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{xName, yName}); err != nil {
		return err
	}
	for _, p := range pts {
		if err := cw.Write([]string{formatFloat(p.X), formatFloat(p.Y)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteExtractionMapCSV writes the per-(x, y) extraction counts of kind k.
func WriteExtractionMapCSV(w io.Writer, s *sim.Simulator, k sim.ParticleKind) error {
	if k != sim.KindElectron && k != sim.KindHole {
		return fmt.Errorf("extraction map: %s is not a charge carrier", k)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"x", "y", "count"}); err != nil {
		return err
	}
	for x, row := range s.ChargeExtractionMap(k) {
		for y, n := range row {
			if err := cw.Write([]string{strconv.Itoa(x), strconv.Itoa(y), strconv.FormatInt(n, 10)}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
