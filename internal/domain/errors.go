package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrNotFound             = errors.New("not found")
	ErrNoCompatibleResource = errors.New("no compatible resource")
	ErrConcurrencyConflict  = errors.New("allocation conflict")
)

// NoCapacityError is returned when every compatible resource is busy for the
// requested window. Alternatives holds the nearest start times at which at
// least one resource is free.
type NoCapacityError struct {
	Requested    time.Time
	Alternatives []time.Time
}

func (e *NoCapacityError) Error() string {
	return fmt.Sprintf("no capacity available at %s (%d alternative slots)", e.Requested.Format(time.RFC3339), len(e.Alternatives))
}
