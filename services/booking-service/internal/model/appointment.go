package model

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// transitions lists every legal move. Statuses without an entry are terminal.
var transitions = map[Status][]Status{
	StatusPending:   {StatusApproved, StatusRejected, StatusConfirmed, StatusCancelled},
	StatusApproved:  {StatusConfirmed, StatusCancelled, StatusCompleted},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusApproved, StatusRejected, StatusConfirmed, StatusCancelled, StatusCompleted:
		return st, true
	}
	return "", false
}

func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// IsLive reports whether an appointment in this status holds its slot.
func (s Status) IsLive() bool {
	return s != StatusCancelled && s != StatusRejected
}

type Type string

const (
	TypeConsultation Type = "consultation"
	TypeFollowUp     Type = "follow-up"
	TypeEmergency    Type = "emergency"
)

func ParseType(s string) (Type, bool) {
	switch t := Type(s); t {
	case TypeConsultation, TypeFollowUp, TypeEmergency:
		return t, true
	}
	return "", false
}

const DefaultDuration = 30

type Appointment struct {
	ID        string
	PatientID string
	DoctorID  string
	Date      string // YYYY-MM-DD
	Time      string // HH:MM
	Duration  int    // minutes
	Type      Type
	Status    Status
	Reason    string
	Notes     string

	// StartsAt is Date+Time in the clinic time zone.
	StartsAt    time.Time
	CheckedInAt *time.Time
	CancelledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
