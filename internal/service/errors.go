package service

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownDomain is returned for domain version ids that are neither
	// configured nor loaded
	ErrUnknownDomain = errors.New("unknown domain version")
	// ErrUnknownTechnique is returned for union ids the domain cannot resolve
	ErrUnknownTechnique = errors.New("unknown technique")
)

// ValidationError reports unusable input
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
