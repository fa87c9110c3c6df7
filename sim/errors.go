package sim

import (
	"errors"
	"fmt"
)

// Errors returned before or during run setup. Runtime immobilisation is not an error.
var (
	// ErrInvalidParameters indicates a parameter combination rejected by Validate.
	ErrInvalidParameters = errors.New("oscsim: invalid parameters")

	// ErrLatticeConstruction indicates the lattice or its energy field could not be built.
	ErrLatticeConstruction = errors.New("oscsim: lattice construction failed")

	// ErrInvalidCoords indicates coordinates outside the lattice.
	ErrInvalidCoords = errors.New("oscsim: coordinates outside lattice")

	// ErrSiteOccupied indicates a creation request on an occupied site.
	ErrSiteOccupied = errors.New("oscsim: site already occupied")

	// ErrPhaseRestricted indicates a carrier placed on a phase it may not occupy.
	ErrPhaseRestricted = errors.New("oscsim: site type forbidden for carrier")
)

// ParameterError describes one rejected parameter.
type ParameterError struct {
	Field  string
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ParameterError) Unwrap() error {
	return ErrInvalidParameters
}

func paramErr(field, format string, args ...any) error {
	return &ParameterError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ConservationError reports a particle kind whose counters do not balance.
type ConservationError struct {
	Kind     ParticleKind
	Counters Counters
	Alive    int
}

func (e *ConservationError) Error() string {
	return fmt.Sprintf("conservation violated for %s: created %d != alive %d + terminated %d",
		e.Kind, e.Counters.Created, e.Alive, e.Counters.Terminated())
}
