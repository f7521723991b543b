package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/clinicbook/services/reminder-service/internal/storage"
)

// Result says which channels accepted the message.
type Result struct {
	EmailSent bool
	SMSSent   bool
}

func (r Result) Any() bool {
	return r.EmailSent || r.SMSSent
}

type Dispatcher struct {
	email         EmailSender
	sms           SMSSender
	clinicName    string
	defaultRegion string
}

type DispatcherConfig struct {
	ClinicName    string
	DefaultRegion string
}

func NewDispatcher(email EmailSender, sms SMSSender, cfg DispatcherConfig) *Dispatcher {
	if cfg.ClinicName == "" {
		cfg.ClinicName = "the clinic"
	}
	if cfg.DefaultRegion == "" {
		cfg.DefaultRegion = "US"
	}
	return &Dispatcher{
		email:         email,
		sms:           sms,
		clinicName:    cfg.ClinicName,
		defaultRegion: cfg.DefaultRegion,
	}
}

// SendReminder emails the patient and, when a phone is on file, texts them.
// Channels fail independently; the returned error joins every failure.
func (d *Dispatcher) SendReminder(ctx context.Context, a storage.Appointment, window string) (Result, error) {
	var (
		res  Result
		errs []error
	)
	if a.Patient.Email != "" {
		subject := "Appointment reminder"
		if err := d.email.Send(ctx, a.Patient.Email, subject, d.reminderEmail(a, window)); err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		} else {
			res.EmailSent = true
		}
	}
	if a.Patient.Phone != "" {
		err := d.sendSMS(ctx, a.Patient.Phone, d.reminderSMS(a, window))
		switch {
		case err == nil:
			res.SMSSent = true
		case errors.Is(err, ErrSMSDisabled):
			// Channel switched off: neither delivered nor failed.
		default:
			errs = append(errs, fmt.Errorf("sms: %w", err))
		}
	}
	if a.Patient.Email == "" && a.Patient.Phone == "" {
		errs = append(errs, errors.New("patient has no email or phone on file"))
	}
	if !res.Any() && len(errs) == 0 {
		errs = append(errs, errors.New("no delivery channel available for patient"))
	}
	return res, errors.Join(errs...)
}

// SendStatusNotice tells the patient the outcome of an approval decision.
func (d *Dispatcher) SendStatusNotice(ctx context.Context, a storage.Appointment, status string) error {
	if a.Patient.Email == "" {
		return errors.New("patient has no email on file")
	}
	var subject, outcome string
	switch status {
	case "approved":
		subject = "Your appointment has been approved"
		outcome = "has been approved. We look forward to seeing you."
	case "rejected":
		subject = "Your appointment request was declined"
		outcome = "could not be approved. Please book another time that suits you."
	default:
		return fmt.Errorf("no notice for status %q", status)
	}
	body := fmt.Sprintf("Hi %s,\n\nYour appointment with %s on %s at %s %s\n\n%s\n",
		patientName(a), doctorName(a), a.Date, a.Time, outcome, d.clinicName)
	return d.email.Send(ctx, a.Patient.Email, subject, body)
}

func (d *Dispatcher) sendSMS(ctx context.Context, raw, body string) error {
	to, err := NormalizePhone(raw, d.defaultRegion)
	if err != nil {
		return err
	}
	if err := d.sms.Send(ctx, to, body); err != nil {
		return fmt.Errorf("%s: %w", d.sms.ProviderID(), err)
	}
	return nil
}

func (d *Dispatcher) reminderEmail(a storage.Appointment, window string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", patientName(a))
	fmt.Fprintf(&b, "This is a reminder of your appointment with %s on %s at %s.", doctorName(a), a.Date, a.Time)
	if lead := leadTime(window); lead != "" {
		fmt.Fprintf(&b, " It starts %s.", lead)
	}
	fmt.Fprintf(&b, "\n\nIf you cannot make it, please cancel or reschedule so another patient can take the slot.\n\n%s\n", d.clinicName)
	return b.String()
}

func (d *Dispatcher) reminderSMS(a storage.Appointment, window string) string {
	msg := fmt.Sprintf("Reminder: appointment with %s on %s at %s", doctorName(a), a.Date, a.Time)
	if lead := leadTime(window); lead != "" {
		msg += " (" + lead + ")"
	}
	return msg + ". " + d.clinicName
}

func leadTime(window string) string {
	switch window {
	case "24h":
		return "tomorrow"
	case "1h":
		return "in about an hour"
	}
	return ""
}

func patientName(a storage.Appointment) string {
	if n := a.Patient.FullName(); n != "" {
		return n
	}
	return "there"
}

func doctorName(a storage.Appointment) string {
	if n := a.Doctor.FullName(); n != "" {
		return "Dr. " + n
	}
	return "your doctor"
}
