package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const maxDuration = 480

type Service struct {
	store  Store
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time

	created     metric.Int64Counter
	conflicts   metric.Int64Counter
	transitions metric.Int64Counter
}

func NewService(store Store, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	m := otelx.Meter("booking-service")
	return &Service{
		store:       store,
		loc:         loc,
		logger:      logger,
		now:         time.Now,
		created:     otelx.MustCounter(m, "booking_appointments_created_total", "Appointments created."),
		conflicts:   otelx.MustCounter(m, "booking_conflicts_total", "Booking attempts rejected because the slot was taken."),
		transitions: otelx.MustCounter(m, "booking_status_transitions_total", "Applied status transitions."),
	}
}

type CreateInput struct {
	PatientID string
	DoctorID  string
	Date      string
	Time      string
	Duration  int
	Type      string
	Reason    string
	Notes     string
}

// Create books a slot. The pre-check gives a friendly conflict for the common
// case; the live-slot unique index decides races.
func (s *Service) Create(ctx context.Context, caller Caller, in CreateInput) (model.Appointment, error) {
	switch {
	case caller.IsStaff():
	case caller.Role == auth.RolePatient:
		if in.PatientID == "" {
			in.PatientID = caller.UserID
		}
		if in.PatientID != caller.UserID {
			return model.Appointment{}, fmt.Errorf("%w: patients can only book for themselves", ErrForbidden)
		}
	default:
		return model.Appointment{}, fmt.Errorf("%w: role %q cannot book appointments", ErrForbidden, caller.Role)
	}

	in.PatientID = strings.TrimSpace(in.PatientID)
	in.DoctorID = strings.TrimSpace(in.DoctorID)
	if in.PatientID == "" || in.DoctorID == "" {
		return model.Appointment{}, validation("patientId and doctorId are required")
	}
	if err := validateSlot(in.Date, in.Time); err != nil {
		return model.Appointment{}, err
	}
	if in.Duration == 0 {
		in.Duration = model.DefaultDuration
	}
	if in.Duration < 0 || in.Duration > maxDuration {
		return model.Appointment{}, validation("duration must be between 1 and %d minutes", maxDuration)
	}
	apptType := model.TypeConsultation
	if in.Type != "" {
		t, ok := model.ParseType(in.Type)
		if !ok {
			return model.Appointment{}, validation("unknown appointment type %q", in.Type)
		}
		apptType = t
	}
	startsAt, err := calendar.StartsAt(in.Date, in.Time, s.loc)
	if err != nil {
		return model.Appointment{}, validation("%v", err)
	}

	if err := s.precheck(ctx, in.DoctorID, in.Date, in.Time, ""); err != nil {
		return model.Appointment{}, err
	}

	now := s.now().UTC()
	appt := model.Appointment{
		ID:        uuid.NewString(),
		PatientID: in.PatientID,
		DoctorID:  in.DoctorID,
		Date:      in.Date,
		Time:      in.Time,
		Duration:  in.Duration,
		Type:      apptType,
		Status:    model.StatusPending,
		Reason:    strings.TrimSpace(in.Reason),
		Notes:     strings.TrimSpace(in.Notes),
		StartsAt:  startsAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	evt, err := newEvent(EventBooked, appt, "")
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.store.Insert(ctx, appt, evt); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return model.Appointment{}, s.constraintConflict(ctx, appt.DoctorID, appt.Date, appt.Time)
		}
		return model.Appointment{}, fmt.Errorf("insert appointment: %w", err)
	}
	s.created.Add(ctx, 1)
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"doctor_id", appt.DoctorID,
		"date", appt.Date,
		"time", appt.Time,
	)
	return appt, nil
}

func (s *Service) Get(ctx context.Context, caller Caller, id string) (model.Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !caller.IsStaff() && !caller.IsParty(appt) {
		return model.Appointment{}, ErrForbidden
	}
	return appt, nil
}

// List scopes patients and doctors to their own appointments; staff may filter freely.
func (s *Service) List(ctx context.Context, caller Caller, f ListFilter) ([]model.Appointment, error) {
	switch caller.Role {
	case auth.RolePatient:
		f.PatientID = caller.UserID
	case auth.RoleDoctor:
		f.DoctorID = caller.UserID
	default:
		if !caller.IsStaff() {
			return nil, ErrForbidden
		}
	}
	if f.Date != "" && !calendar.ValidDate(f.Date) {
		return nil, validation("date must be YYYY-MM-DD")
	}
	switch {
	case f.Limit <= 0:
		f.Limit = 50
	case f.Limit > 200:
		f.Limit = 200
	}
	return s.store.List(ctx, f)
}

// UpdateStatus applies a move from the transition table. Only the appointment's
// doctor or staff may change status.
func (s *Service) UpdateStatus(ctx context.Context, caller Caller, id, status string) (model.Appointment, error) {
	to, ok := model.ParseStatus(status)
	if !ok {
		return model.Appointment{}, validation("unknown status %q", status)
	}
	appt, err := s.load(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !caller.IsStaff() && !caller.isDoctorOf(appt) {
		return model.Appointment{}, fmt.Errorf("%w: only the doctor or clinic staff can change status", ErrForbidden)
	}
	if !appt.Status.CanTransition(to) {
		return model.Appointment{}, invalidTransition(appt.Status, to)
	}

	from := appt.Status
	appt.Status = to
	appt.UpdatedAt = s.now().UTC()
	if to == model.StatusCancelled {
		at := appt.UpdatedAt
		appt.CancelledAt = &at
	}
	evt, err := newEvent(EventStatusChanged, appt, from)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.update(ctx, appt, from, evt); err != nil {
		return model.Appointment{}, err
	}
	s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("from", string(from)), attribute.String("to", string(to))))
	s.logger.Info("appointment status changed", "appointment_id", appt.ID, "from", from, "to", to)
	return appt, nil
}

// CheckIn records arrival. The status is left as is.
func (s *Service) CheckIn(ctx context.Context, caller Caller, id string) (model.Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !caller.IsStaff() && !caller.isDoctorOf(appt) {
		return model.Appointment{}, fmt.Errorf("%w: only the doctor or clinic staff can check in", ErrForbidden)
	}
	if appt.Status != model.StatusConfirmed {
		return model.Appointment{}, fmt.Errorf("%w: only confirmed appointments can be checked in", ErrPrecondition)
	}
	now := s.now().UTC()
	appt.CheckedInAt = &now
	appt.UpdatedAt = now
	if err := s.update(ctx, appt, model.StatusConfirmed, nil); err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment checked in", "appointment_id", appt.ID)
	return appt, nil
}

type RescheduleInput struct {
	Date string
	// Time keeps the current slot time when empty.
	Time string
}

// Reschedule moves a non-terminal appointment to a new slot and sends it back
// through approval.
func (s *Service) Reschedule(ctx context.Context, caller Caller, id string, in RescheduleInput) (model.Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !caller.IsParty(appt) {
		return model.Appointment{}, fmt.Errorf("%w: only the patient or doctor can reschedule", ErrForbidden)
	}
	if appt.Status.IsTerminal() {
		return model.Appointment{}, invalidTransition(appt.Status, model.StatusPending)
	}
	if in.Time == "" {
		in.Time = appt.Time
	}
	if err := validateSlot(in.Date, in.Time); err != nil {
		return model.Appointment{}, err
	}
	startsAt, err := calendar.StartsAt(in.Date, in.Time, s.loc)
	if err != nil {
		return model.Appointment{}, validation("%v", err)
	}
	if err := s.precheck(ctx, appt.DoctorID, in.Date, in.Time, appt.ID); err != nil {
		return model.Appointment{}, err
	}

	from := appt.Status
	appt.Date = in.Date
	appt.Time = in.Time
	appt.StartsAt = startsAt
	appt.Status = model.StatusPending
	appt.CheckedInAt = nil
	appt.UpdatedAt = s.now().UTC()
	evt, err := newEvent(EventRescheduled, appt, from)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.update(ctx, appt, from, evt); err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment rescheduled", "appointment_id", appt.ID, "date", appt.Date, "time", appt.Time)
	return appt, nil
}

// Cancel frees the slot. Cancelling twice returns the cancelled appointment.
func (s *Service) Cancel(ctx context.Context, caller Caller, id string) (model.Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !caller.IsStaff() && !caller.IsParty(appt) {
		return model.Appointment{}, ErrForbidden
	}
	if appt.Status == model.StatusCancelled {
		return appt, nil
	}
	if !appt.Status.CanTransition(model.StatusCancelled) {
		return model.Appointment{}, invalidTransition(appt.Status, model.StatusCancelled)
	}

	from := appt.Status
	now := s.now().UTC()
	appt.Status = model.StatusCancelled
	appt.CancelledAt = &now
	appt.UpdatedAt = now
	evt, err := newEvent(EventCancelled, appt, from)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.update(ctx, appt, from, evt); err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment cancelled", "appointment_id", appt.ID)
	return appt, nil
}

type Slots struct {
	Booked    []string
	Available []string
}

func (s *Service) AvailableSlots(ctx context.Context, doctorID, date string) (Slots, error) {
	doctorID = strings.TrimSpace(doctorID)
	if doctorID == "" || date == "" {
		return Slots{}, validation("doctorId and date are required")
	}
	if !calendar.ValidDate(date) {
		return Slots{}, validation("date must be YYYY-MM-DD")
	}
	booked, err := s.store.BookedTimes(ctx, doctorID, date)
	if err != nil {
		return Slots{}, fmt.Errorf("booked times: %w", err)
	}
	if booked == nil {
		booked = []string{}
	}
	return Slots{Booked: booked, Available: calendar.Available(booked)}, nil
}

func (s *Service) load(ctx context.Context, id string) (model.Appointment, error) {
	if strings.TrimSpace(id) == "" {
		return model.Appointment{}, validation("appointment id is required")
	}
	appt, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, fmt.Errorf("load appointment: %w", err)
	}
	return appt, nil
}

// precheck reports a conflict if another live appointment holds the slot.
func (s *Service) precheck(ctx context.Context, doctorID, date, clock, selfID string) error {
	existing, err := s.store.FindLiveAt(ctx, doctorID, date, clock)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("conflict precheck: %w", err)
	case existing.ID == selfID:
		return nil
	}
	s.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(SourcePrecheck))))
	return &ConflictError{Source: SourcePrecheck, Conflicting: &existing}
}

func (s *Service) constraintConflict(ctx context.Context, doctorID, date, clock string) error {
	s.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(SourceConstraint))))
	cerr := &ConflictError{Source: SourceConstraint}
	if existing, err := s.store.FindLiveAt(ctx, doctorID, date, clock); err == nil {
		cerr.Conflicting = &existing
	}
	return cerr
}

func (s *Service) update(ctx context.Context, appt model.Appointment, expected model.Status, evt *Event) error {
	err := s.store.Update(ctx, appt, expected, evt)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrSlotTaken):
		return s.constraintConflict(ctx, appt.DoctorID, appt.Date, appt.Time)
	case errors.Is(err, ErrStale):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("update appointment: %w", err)
	}
}

func validateSlot(date, clock string) error {
	if date == "" || clock == "" {
		return validation("date and time are required")
	}
	if !calendar.ValidDate(date) {
		return validation("date must be YYYY-MM-DD")
	}
	if !calendar.OnGrid(clock) {
		return validation("time %q is not a bookable slot", clock)
	}
	return nil
}
