package booking

import (
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

// Kinds callers classify with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("appointment not found")
	ErrForbidden         = errors.New("not allowed")
	ErrPrecondition      = errors.New("precondition failed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("time slot already booked")
)

// Signals a Store returns.
var (
	// ErrSlotTaken means the live-slot unique index rejected the write.
	ErrSlotTaken = errors.New("live slot unique violation")
	// ErrStale means the row no longer had the status the update expected.
	ErrStale = errors.New("appointment modified concurrently")
)

type ConflictSource string

const (
	SourcePrecheck   ConflictSource = "precheck"
	SourceConstraint ConflictSource = "constraint"
)

// ConflictError carries the live appointment holding the slot, when it could
// be read back.
type ConflictError struct {
	Source      ConflictSource
	Conflicting *model.Appointment
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s (%s)", ErrConflict, e.Source)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func invalidTransition(from, to model.Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
