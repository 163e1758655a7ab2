package mapping

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidObstacle is returned for observations with non-finite or
	// out-of-frame coordinates. The observation is discarded.
	ErrInvalidObstacle = errors.New("invalid obstacle")

	// ErrDegenerateSpline is returned for curves with no segments or zero
	// length. The observation is discarded and the manager is unaffected.
	ErrDegenerateSpline = errors.New("degenerate spline")

	// ErrLinesDiverge is returned by MergeSplines when too little of the
	// observed line runs alongside the known line, as when the two cross.
	// The observation is a different line.
	ErrLinesDiverge = errors.New("lines diverge")

	// ErrInvalidConfig is the sentinel wrapped by every ConfigError
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrGridTooLarge is returned when an auto-sized grid exceeds MaxGridCells
	ErrGridTooLarge = errors.New("occupancy grid too large")
)

// ConfigError reports a single rejected configuration field
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// Unwrap lets callers match with errors.Is(err, ErrInvalidConfig)
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}
