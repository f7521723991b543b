package booking

import (
	"context"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

// Store is the persistence the service needs. Implementations return
// ErrNotFound for missing rows, ErrSlotTaken when the live-slot index rejects
// a write and ErrStale when a conditional update matched nothing.
type Store interface {
	// FindLiveAt returns the appointment holding (doctor, date, time), if any.
	FindLiveAt(ctx context.Context, doctorID, date, clock string) (model.Appointment, error)
	Insert(ctx context.Context, a model.Appointment, evt *Event) error
	Get(ctx context.Context, id string) (model.Appointment, error)
	// Update writes a only if the stored status still equals expected.
	Update(ctx context.Context, a model.Appointment, expected model.Status, evt *Event) error
	List(ctx context.Context, f ListFilter) ([]model.Appointment, error)
	// BookedTimes returns the slot labels held by live appointments.
	BookedTimes(ctx context.Context, doctorID, date string) ([]string, error)
}

type ListFilter struct {
	PatientID string
	DoctorID  string
	Date      string
	Status    model.Status
	Limit     int
}
