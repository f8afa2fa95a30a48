package layer

import (
	"errors"
	"fmt"
)

// ErrTooFewStops is returned when a gradient would end up with fewer than
// two color stops
var ErrTooFewStops = errors.New("gradient requires at least two colors")

// ErrUnknownPreset is returned for gradient preset names that do not exist
var ErrUnknownPreset = errors.New("unknown gradient preset")

// MissingContextError is returned when a technique annotation is
// deserialized without the technique id or tactic that form its key
type MissingContextError struct {
	TechniqueID string
	Tactic      string
}

func (e *MissingContextError) Error() string {
	switch {
	case e.TechniqueID == "" && e.Tactic == "":
		return "technique annotation requires a technique id and tactic"
	case e.TechniqueID == "":
		return fmt.Sprintf("technique annotation for tactic %q requires a technique id", e.Tactic)
	default:
		return fmt.Sprintf("technique annotation for %s requires a tactic", e.TechniqueID)
	}
}
