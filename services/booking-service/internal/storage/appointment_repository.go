package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
)

// LiveSlotIndex is the partial unique index guarding one live booking per slot.
const LiveSlotIndex = "appointments_live_slot_uniq"

const appointmentColumns = `
	id::text, patient_id, doctor_id, to_char(appt_date, 'YYYY-MM-DD'), appt_time,
	duration_minutes, appt_type, status, reason, notes,
	starts_at, checked_in_at, cancelled_at, created_at, updated_at`

const liveStatusClause = `status NOT IN ('cancelled', 'rejected')`

// AppointmentRepository implements booking.Store on postgres. Every write that
// carries an event stores it in outbox_events in the same transaction.
type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

var _ booking.Store = (*AppointmentRepository)(nil)

func NewAppointmentRepository(pool *db.Pool, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: outboxRepo}
}

func (r *AppointmentRepository) FindLiveAt(ctx context.Context, doctorID, date, clock string) (model.Appointment, error) {
	day, err := parseDate(date)
	if err != nil {
		return model.Appointment{}, err
	}
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND appt_date = $2 AND appt_time = $3 AND `+liveStatusClause+`
		LIMIT 1
	`, doctorID, day, clock)
	return scanOne(row)
}

func (r *AppointmentRepository) Insert(ctx context.Context, a model.Appointment, evt *booking.Event) error {
	day, err := parseDate(a.Date)
	if err != nil {
		return err
	}
	return r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO appointments
				(id, patient_id, doctor_id, appt_date, appt_time, duration_minutes, appt_type, status,
				 reason, notes, starts_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, a.ID, a.PatientID, a.DoctorID, day, a.Time, a.Duration, string(a.Type), string(a.Status),
			a.Reason, a.Notes, a.StartsAt, a.CreatedAt, a.UpdatedAt)
		if err != nil {
			return translate(err)
		}
		return r.writeEvent(ctx, tx, evt)
	})
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Appointment{}, booking.ErrNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanOne(row)
}

func (r *AppointmentRepository) Update(ctx context.Context, a model.Appointment, expected model.Status, evt *booking.Event) error {
	day, err := parseDate(a.Date)
	if err != nil {
		return err
	}
	return r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE appointments
			SET appt_date = $2,
				appt_time = $3,
				starts_at = $4,
				status = $5,
				checked_in_at = $6,
				cancelled_at = $7,
				updated_at = $8
			WHERE id = $1 AND status = $9
		`, a.ID, day, a.Time, a.StartsAt, string(a.Status), a.CheckedInAt, a.CancelledAt, a.UpdatedAt, string(expected))
		if err != nil {
			return translate(err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, a.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return booking.ErrNotFound
			}
			return booking.ErrStale
		}
		return r.writeEvent(ctx, tx, evt)
	})
}

func (r *AppointmentRepository) List(ctx context.Context, f booking.ListFilter) ([]model.Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.PatientID != "" {
		add("patient_id = $%d", f.PatientID)
	}
	if f.DoctorID != "" {
		add("doctor_id = $%d", f.DoctorID)
	}
	if f.Date != "" {
		day, err := parseDate(f.Date)
		if err != nil {
			return nil, err
		}
		add("appt_date = $%d", day)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(` ORDER BY starts_at ASC LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Appointment, error) {
		return scanAppointment(row)
	})
}

func (r *AppointmentRepository) BookedTimes(ctx context.Context, doctorID, date string) ([]string, error) {
	day, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT appt_time
		FROM appointments
		WHERE doctor_id = $1 AND appt_date = $2 AND `+liveStatusClause+`
		ORDER BY appt_time
	`, doctorID, day)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *AppointmentRepository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *AppointmentRepository) writeEvent(ctx context.Context, tx pgx.Tx, evt *booking.Event) error {
	if evt == nil {
		return nil
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   evt.AggregateID,
		EventType:     evt.Type,
		Payload:       evt.Payload,
	}); err != nil {
		return fmt.Errorf("write outbox event: %w", err)
	}
	return nil
}

// translate maps postgres errors to the store signals booking understands.
func translate(err error) error {
	if db.IsUniqueViolation(err, LiveSlotIndex) {
		return fmt.Errorf("%w: %v", booking.ErrSlotTaken, err)
	}
	return err
}

func scanOne(row pgx.Row) (model.Appointment, error) {
	a, err := scanAppointment(row)
	if db.IsNotFound(err) {
		return model.Appointment{}, booking.ErrNotFound
	}
	return a, err
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		a        model.Appointment
		apptType string
		status   string
	)
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.Date,
		&a.Time,
		&a.Duration,
		&apptType,
		&status,
		&a.Reason,
		&a.Notes,
		&a.StartsAt,
		&a.CheckedInAt,
		&a.CancelledAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Type = model.Type(apptType)
	a.Status = model.Status(status)
	return a, nil
}

func parseDate(date string) (time.Time, error) {
	day, err := time.Parse(calendar.DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return day, nil
}

// IsSlotTaken reports whether err came from the live-slot index.
func IsSlotTaken(err error) bool {
	return errors.Is(err, booking.ErrSlotTaken)
}
