package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
)

var ErrNotFound = errors.New("appointment not found")

type Contact struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Appointment is the reminder view of a booking joined with both parties.
type Appointment struct {
	ID       string
	Date     string
	Time     string
	StartsAt time.Time
	Status   string
	Patient  Contact
	Doctor   Contact
}

// AppointmentRepository reads the appointments booking-service owns.
type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

const selectAppointment = `
	SELECT a.id::text, to_char(a.appt_date, 'YYYY-MM-DD'), a.appt_time, a.starts_at, a.status,
		COALESCE(p.first_name, ''), COALESCE(p.last_name, ''), COALESCE(p.email, ''), COALESCE(p.phone, ''),
		COALESCE(d.first_name, ''), COALESCE(d.last_name, ''), COALESCE(d.email, ''), COALESCE(d.phone, '')
	FROM appointments a
	LEFT JOIN users p ON p.id = a.patient_id
	LEFT JOIN users d ON d.id = a.doctor_id`

// ConfirmedStartingBetween returns confirmed appointments with from <= starts_at <= to.
func (r *AppointmentRepository) ConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, selectAppointment+`
		WHERE a.status = 'confirmed' AND a.starts_at BETWEEN $1 AND $2
		ORDER BY a.starts_at
	`, from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Appointment, error) {
		return scanAppointment(row)
	})
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id string) (Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Appointment{}, ErrNotFound
	}
	a, err := scanAppointment(r.pool.QueryRow(ctx, selectAppointment+` WHERE a.id = $1`, id))
	if db.IsNotFound(err) {
		return Appointment{}, ErrNotFound
	}
	return a, err
}

func scanAppointment(row pgx.Row) (Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID, &a.Date, &a.Time, &a.StartsAt, &a.Status,
		&a.Patient.FirstName, &a.Patient.LastName, &a.Patient.Email, &a.Patient.Phone,
		&a.Doctor.FirstName, &a.Doctor.LastName, &a.Doctor.Email, &a.Doctor.Phone,
	)
	return a, err
}
