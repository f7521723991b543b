package booking

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

const (
	EventBooked        = "booking.appointment.booked.v1"
	EventStatusChanged = "booking.appointment.status_changed.v1"
	EventRescheduled   = "booking.appointment.rescheduled.v1"
	EventCancelled     = "booking.appointment.cancelled.v1"
)

// Event is written to the outbox in the same transaction as the row change.
type Event struct {
	Type        string
	AggregateID string
	Payload     []byte
}

type appointmentPayload struct {
	AppointmentID  string    `json:"appointment_id"`
	PatientID      string    `json:"patient_id"`
	DoctorID       string    `json:"doctor_id"`
	Date           string    `json:"date"`
	Time           string    `json:"time"`
	StartsAt       time.Time `json:"starts_at"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
}

func newEvent(eventType string, a model.Appointment, previous model.Status) (*Event, error) {
	payload, err := json.Marshal(appointmentPayload{
		AppointmentID:  a.ID,
		PatientID:      a.PatientID,
		DoctorID:       a.DoctorID,
		Date:           a.Date,
		Time:           a.Time,
		StartsAt:       a.StartsAt.UTC(),
		Status:         string(a.Status),
		PreviousStatus: string(previous),
	})
	if err != nil {
		return nil, err
	}
	return &Event{Type: eventType, AggregateID: a.ID, Payload: payload}, nil
}
