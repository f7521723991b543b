package booking

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

var (
	patient      = Caller{UserID: "pat-1", Role: auth.RolePatient}
	otherPatient = Caller{UserID: "pat-2", Role: auth.RolePatient}
	doctor       = Caller{UserID: "doc-1", Role: auth.RoleDoctor}
	reception    = Caller{UserID: "rec-1", Role: auth.RoleReceptionist}
)

func newTestService(t *testing.T) (*Service, *memStore) {
	t.Helper()
	store := newMemStore()
	loc := time.FixedZone("clinic", 6*3600)
	svc := NewService(store, loc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }
	return svc, store
}

func book(t *testing.T, svc *Service, caller Caller, date, clock string) model.Appointment {
	t.Helper()
	appt, err := svc.Create(context.Background(), caller, CreateInput{DoctorID: "doc-1", Date: date, Time: clock})
	if err != nil {
		t.Fatalf("Create %s %s: %v", date, clock, err)
	}
	return appt
}

func TestCreateDefaults(t *testing.T) {
	svc, store := newTestService(t)
	appt := book(t, svc, patient, "2026-03-10", "09:30")

	if appt.Status != model.StatusPending {
		t.Fatalf("expected pending, got %s", appt.Status)
	}
	if appt.Duration != 30 || appt.Type != model.TypeConsultation {
		t.Fatalf("defaults not applied: %+v", appt)
	}
	if appt.PatientID != "pat-1" {
		t.Fatalf("expected patient id from caller, got %q", appt.PatientID)
	}
	want := time.Date(2026, 3, 10, 3, 30, 0, 0, time.UTC)
	if !appt.StartsAt.Equal(want) {
		t.Fatalf("expected starts_at %s, got %s", want, appt.StartsAt.UTC())
	}
	if got := store.eventTypes(); len(got) != 1 || got[0] != EventBooked {
		t.Fatalf("expected booked event, got %v", got)
	}
	var payload map[string]any
	if err := json.Unmarshal(store.events[0].Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["appointment_id"] != appt.ID || payload["status"] != "pending" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	cases := []CreateInput{
		{DoctorID: "", Date: "2026-03-10", Time: "09:00"},
		{DoctorID: "doc-1", Date: "", Time: "09:00"},
		{DoctorID: "doc-1", Date: "10-03-2026", Time: "09:00"},
		{DoctorID: "doc-1", Date: "2026-03-10", Time: "09:15"},
		{DoctorID: "doc-1", Date: "2026-03-10", Time: "17:00"},
		{DoctorID: "doc-1", Date: "2026-03-10", Time: "09:00", Type: "surgery"},
		{DoctorID: "doc-1", Date: "2026-03-10", Time: "09:00", Duration: 600},
	}
	for i, in := range cases {
		if _, err := svc.Create(ctx, patient, in); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestCreateAuthorization(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	in := CreateInput{PatientID: "pat-2", DoctorID: "doc-1", Date: "2026-03-10", Time: "09:00"}
	if _, err := svc.Create(ctx, patient, in); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for booking on behalf of another patient, got %v", err)
	}
	if _, err := svc.Create(ctx, doctor, in); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for doctor, got %v", err)
	}
	appt, err := svc.Create(ctx, reception, in)
	if err != nil {
		t.Fatalf("receptionist booking failed: %v", err)
	}
	if appt.PatientID != "pat-2" {
		t.Fatalf("expected pat-2, got %q", appt.PatientID)
	}
}

func TestCreatePrecheckConflict(t *testing.T) {
	svc, _ := newTestService(t)
	first := book(t, svc, patient, "2026-03-10", "10:00")

	_, err := svc.Create(context.Background(), otherPatient, CreateInput{DoctorID: "doc-1", Date: "2026-03-10", Time: "10:00"})
	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if !errors.Is(err, ErrConflict) {
		t.Fatal("ConflictError must match ErrConflict")
	}
	if cerr.Source != SourcePrecheck || cerr.Conflicting == nil || cerr.Conflicting.ID != first.ID {
		t.Fatalf("unexpected conflict: %+v", cerr)
	}

	// Another doctor at the same time is fine.
	if _, err := svc.Create(context.Background(), otherPatient, CreateInput{DoctorID: "doc-2", Date: "2026-03-10", Time: "10:00"}); err != nil {
		t.Fatalf("other doctor booking failed: %v", err)
	}
}

// racyStore hides existing rows from the pre-check so every caller reaches the insert.
type racyStore struct{ *memStore }

func (r racyStore) FindLiveAt(context.Context, string, string, string) (model.Appointment, error) {
	return model.Appointment{}, ErrNotFound
}

func TestConcurrentBookingsOneWins(t *testing.T) {
	for name, store := range map[string]Store{
		"precheck-visible": newMemStore(),
		"precheck-blind":   racyStore{newMemStore()},
	} {
		t.Run(name, func(t *testing.T) {
			svc := NewService(store, time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))

			const n = 10
			var wg sync.WaitGroup
			errs := make(chan error, n)
			start := make(chan struct{})
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, err := svc.Create(context.Background(), reception, CreateInput{
						PatientID: "pat-x", DoctorID: "doc-1", Date: "2026-03-10", Time: "11:00",
					})
					errs <- err
				}()
			}
			close(start)
			wg.Wait()
			close(errs)

			ok, conflicts := 0, 0
			for err := range errs {
				switch {
				case err == nil:
					ok++
				case errors.Is(err, ErrConflict):
					conflicts++
				default:
					t.Fatalf("unexpected error: %v", err)
				}
			}
			if ok != 1 || conflicts != n-1 {
				t.Fatalf("expected 1 success and %d conflicts, got %d and %d", n-1, ok, conflicts)
			}
		})
	}
}

func TestConstraintConflictSource(t *testing.T) {
	mem := newMemStore()
	svc := NewService(racyStore{mem}, time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()
	if _, err := svc.Create(ctx, patient, CreateInput{DoctorID: "doc-1", Date: "2026-03-10", Time: "12:00"}); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	_, err := svc.Create(ctx, otherPatient, CreateInput{DoctorID: "doc-1", Date: "2026-03-10", Time: "12:00"})
	var cerr *ConflictError
	if !errors.As(err, &cerr) || cerr.Source != SourceConstraint {
		t.Fatalf("expected constraint conflict, got %v", err)
	}
}

func TestSlotsSubtractAndRestoreOnCancel(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	slots, err := svc.AvailableSlots(ctx, "doc-1", "2026-03-10")
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	if len(slots.Available) != 16 || len(slots.Booked) != 0 {
		t.Fatalf("expected empty day, got %+v", slots)
	}

	appt := book(t, svc, patient, "2026-03-10", "14:00")
	slots, _ = svc.AvailableSlots(ctx, "doc-1", "2026-03-10")
	if len(slots.Available) != 15 || len(slots.Booked) != 1 || slots.Booked[0] != "14:00" {
		t.Fatalf("expected 14:00 booked, got %+v", slots)
	}
	for _, s := range slots.Available {
		if s == "14:00" {
			t.Fatal("14:00 still offered")
		}
	}

	if _, err := svc.Cancel(ctx, patient, appt.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	slots, _ = svc.AvailableSlots(ctx, "doc-1", "2026-03-10")
	if len(slots.Available) != 16 {
		t.Fatalf("expected slot restored, got %+v", slots)
	}
	book(t, svc, otherPatient, "2026-03-10", "14:00")
}

func TestAvailableSlotsValidation(t *testing.T) {
	svc, _ := newTestService(t)
	for _, tc := range []struct{ doctor, date string }{
		{"", "2026-03-10"},
		{"doc-1", ""},
		{"doc-1", "2026/03/10"},
	} {
		if _, err := svc.AvailableSlots(context.Background(), tc.doctor, tc.date); !errors.Is(err, ErrValidation) {
			t.Fatalf("%+v: expected validation error, got %v", tc, err)
		}
	}
}

func TestUpdateStatus(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	appt := book(t, svc, patient, "2026-03-10", "09:00")

	if _, err := svc.UpdateStatus(ctx, patient, appt.ID, "approved"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected patient to be forbidden, got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, Caller{UserID: "doc-9", Role: auth.RoleDoctor}, appt.ID, "approved"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected other doctor to be forbidden, got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, doctor, appt.ID, "completed"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected pending -> completed to be rejected, got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, doctor, appt.ID, "booked"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected unknown status to fail validation, got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, doctor, "missing", "approved"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	updated, err := svc.UpdateStatus(ctx, doctor, appt.ID, "approved")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if updated.Status != model.StatusApproved {
		t.Fatalf("expected approved, got %s", updated.Status)
	}
	if _, err := svc.UpdateStatus(ctx, reception, appt.ID, "confirmed"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, doctor, appt.ID, "completed"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, doctor, appt.ID, "cancelled"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected completed to be terminal, got %v", err)
	}

	got := store.eventTypes()
	if len(got) != 4 || got[1] != EventStatusChanged || got[3] != EventStatusChanged {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestCheckInRequiresConfirmed(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	appt := book(t, svc, patient, "2026-03-10", "09:00")

	_, err := svc.CheckIn(ctx, reception, appt.ID)
	if !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	if err.Error() != "precondition failed: only confirmed appointments can be checked in" {
		t.Fatalf("unexpected message %q", err.Error())
	}

	if _, err := svc.UpdateStatus(ctx, doctor, appt.ID, "confirmed"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	checked, err := svc.CheckIn(ctx, reception, appt.ID)
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if checked.CheckedInAt == nil || checked.Status != model.StatusConfirmed {
		t.Fatalf("unexpected check-in result: %+v", checked)
	}
	if _, err := svc.CheckIn(ctx, patient, appt.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected patient check-in to be forbidden, got %v", err)
	}
}

func TestRescheduleResetsLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	appt := book(t, svc, patient, "2026-03-10", "09:00")
	if _, err := svc.UpdateStatus(ctx, doctor, appt.ID, "confirmed"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if _, err := svc.Reschedule(ctx, reception, appt.ID, RescheduleInput{Date: "2026-03-11"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected receptionist to be forbidden, got %v", err)
	}

	moved, err := svc.Reschedule(ctx, patient, appt.ID, RescheduleInput{Date: "2026-03-11"})
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if moved.Status != model.StatusPending || moved.Date != "2026-03-11" || moved.Time != "09:00" {
		t.Fatalf("unexpected reschedule result: %+v", moved)
	}
	if !moved.StartsAt.Equal(time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC)) {
		t.Fatalf("starts_at not recomputed: %s", moved.StartsAt.UTC())
	}

	// Old slot is free again, new one is held.
	slots, _ := svc.AvailableSlots(ctx, "doc-1", "2026-03-10")
	if len(slots.Available) != 16 {
		t.Fatalf("old slot not released: %+v", slots)
	}

	// Same slot again is not a conflict with itself.
	if _, err := svc.Reschedule(ctx, doctor, appt.ID, RescheduleInput{Date: "2026-03-11", Time: "09:00"}); err != nil {
		t.Fatalf("reschedule onto own slot: %v", err)
	}
}

func TestRescheduleConflict(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := book(t, svc, patient, "2026-03-10", "09:00")
	b := book(t, svc, otherPatient, "2026-03-10", "10:00")

	_, err := svc.Reschedule(ctx, patient, a.ID, RescheduleInput{Date: "2026-03-10", Time: "10:00"})
	var cerr *ConflictError
	if !errors.As(err, &cerr) || cerr.Conflicting == nil || cerr.Conflicting.ID != b.ID {
		t.Fatalf("expected conflict with %s, got %v", b.ID, err)
	}
	if _, err := svc.Reschedule(ctx, patient, a.ID, RescheduleInput{Date: "2026-03-10", Time: "10:15"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected off-grid time rejected, got %v", err)
	}

	if _, err := svc.Cancel(ctx, patient, a.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := svc.Reschedule(ctx, patient, a.ID, RescheduleInput{Date: "2026-03-12"}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected terminal reschedule rejected, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	appt := book(t, svc, patient, "2026-03-10", "15:00")

	if _, err := svc.Cancel(ctx, otherPatient, appt.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	cancelled, err := svc.Cancel(ctx, patient, appt.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != model.StatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("unexpected cancel result: %+v", cancelled)
	}
	again, err := svc.Cancel(ctx, reception, appt.ID)
	if err != nil || again.Status != model.StatusCancelled {
		t.Fatalf("expected idempotent cancel, got %+v %v", again, err)
	}
	if got := store.eventTypes(); len(got) != 2 || got[1] != EventCancelled {
		t.Fatalf("expected a single cancelled event, got %v", got)
	}

	done := book(t, svc, patient, "2026-03-10", "16:00")
	for _, st := range []string{"confirmed", "completed"} {
		if _, err := svc.UpdateStatus(ctx, doctor, done.ID, st); err != nil {
			t.Fatalf("%s: %v", st, err)
		}
	}
	if _, err := svc.Cancel(ctx, patient, done.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected completed cancel rejected, got %v", err)
	}
}

func TestGetAndList(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := book(t, svc, patient, "2026-03-10", "09:00")
	book(t, svc, otherPatient, "2026-03-10", "09:30")

	if _, err := svc.Get(ctx, otherPatient, a.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := svc.Get(ctx, doctor, a.ID); err != nil {
		t.Fatalf("doctor Get: %v", err)
	}

	mine, err := svc.List(ctx, patient, ListFilter{PatientID: "pat-2"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != a.ID {
		t.Fatalf("patient list not scoped: %+v", mine)
	}
	all, err := svc.List(ctx, reception, ListFilter{Date: "2026-03-10"})
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 for staff, got %d %v", len(all), err)
	}
	if _, err := svc.List(ctx, reception, ListFilter{Date: "March"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type limitRecorder struct {
	*memStore
	limit int
}

func (l *limitRecorder) List(ctx context.Context, f ListFilter) ([]model.Appointment, error) {
	l.limit = f.Limit
	return l.memStore.List(ctx, f)
}

func TestListLimitBounds(t *testing.T) {
	store := &limitRecorder{memStore: newMemStore()}
	svc := NewService(store, time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	for _, tc := range []struct{ in, want int }{
		{0, 50},
		{-3, 50},
		{20, 20},
		{200, 200},
		{201, 200},
		{5000, 200},
	} {
		if _, err := svc.List(ctx, reception, ListFilter{Limit: tc.in}); err != nil {
			t.Fatalf("List(limit=%d): %v", tc.in, err)
		}
		if store.limit != tc.want {
			t.Fatalf("limit %d: expected %d, got %d", tc.in, tc.want, store.limit)
		}
	}
}
