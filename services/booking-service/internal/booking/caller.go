package booking

import (
	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

// Caller is the authenticated user behind a request.
type Caller struct {
	UserID string
	Role   string
}

func CallerFromClaims(c *auth.Claims) Caller {
	return Caller{UserID: c.Subject, Role: c.Role}
}

func (c Caller) IsStaff() bool {
	return c.Role == auth.RoleReceptionist || c.Role == auth.RoleAdmin
}

func (c Caller) IsParty(a model.Appointment) bool {
	return c.UserID == a.PatientID || c.UserID == a.DoctorID
}

func (c Caller) isDoctorOf(a model.Appointment) bool {
	return c.Role == auth.RoleDoctor && c.UserID == a.DoctorID
}
