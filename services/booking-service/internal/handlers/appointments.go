package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

type AppointmentHandler struct {
	svc      *booking.Service
	logger   *slog.Logger
	validate *validator.Validate
}

func NewAppointmentHandler(svc *booking.Service, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, logger: logger, validate: newValidator()}
}

// Register mounts the appointment routes behind authn.
func (h *AppointmentHandler) Register(mux *http.ServeMux, authn httpx.Middleware) {
	route := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, authn(fn))
	}
	route("POST /api/v1/appointments", h.Create)
	route("GET /api/v1/appointments", h.List)
	route("GET /api/v1/appointments/available-slots", h.Slots)
	route("GET /api/v1/appointments/{id}", h.Get)
	route("PATCH /api/v1/appointments/{id}/status", h.UpdateStatus)
	route("PATCH /api/v1/appointments/{id}/checkin", h.CheckIn)
	route("PATCH /api/v1/appointments/{id}/reschedule", h.Reschedule)
	route("DELETE /api/v1/appointments/{id}", h.Cancel)
}

type createRequest struct {
	PatientID string `json:"patientId" validate:"omitempty,max=64"`
	DoctorID  string `json:"doctorId" validate:"required,max=64"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Time      string `json:"time" validate:"required,slot"`
	Duration  int    `json:"duration" validate:"omitempty,gt=0,lte=480"`
	Type      string `json:"type" validate:"omitempty,oneof=consultation follow-up emergency"`
	Reason    string `json:"reason" validate:"max=1000"`
	Notes     string `json:"notes" validate:"max=2000"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending approved rejected confirmed cancelled completed"`
}

type rescheduleRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Time string `json:"time" validate:"omitempty,slot"`
}

type appointmentResponse struct {
	ID          string     `json:"id"`
	PatientID   string     `json:"patientId"`
	DoctorID    string     `json:"doctorId"`
	Date        string     `json:"date"`
	Time        string     `json:"time"`
	Duration    int        `json:"duration"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	StartsAt    time.Time  `json:"startsAt"`
	CheckedInAt *time.Time `json:"checkedInAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type conflictResponse struct {
	Error                  string               `json:"error"`
	ConflictingAppointment *appointmentResponse `json:"conflictingAppointment,omitempty"`
}

type slotsResponse struct {
	AvailableSlots []string `json:"availableSlots"`
	BookedSlots    []string `json:"bookedSlots"`
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}
	appt, err := h.svc.Create(r.Context(), caller, booking.CreateInput{
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		Date:      req.Date,
		Time:      req.Time,
		Duration:  req.Duration,
		Type:      req.Type,
		Reason:    req.Reason,
		Notes:     req.Notes,
	})
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toResponse(appt))
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.Get(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt))
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := booking.ListFilter{
		PatientID: q.Get("patientId"),
		DoctorID:  q.Get("doctorId"),
		Date:      q.Get("date"),
	}
	if raw := q.Get("status"); raw != "" {
		st, ok := model.ParseStatus(raw)
		if !ok {
			httpx.WriteError(w, http.StatusBadRequest, "invalid status")
			return
		}
		filter.Status = st
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	appts, err := h.svc.List(r.Context(), caller, filter)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	out := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toResponse(a))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *AppointmentHandler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	slots, err := h.svc.AvailableSlots(r.Context(), q.Get("doctorId"), q.Get("date"))
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, slotsResponse{AvailableSlots: slots.Available, BookedSlots: slots.Booked})
}

func (h *AppointmentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	appt, err := h.svc.UpdateStatus(r.Context(), caller, r.PathValue("id"), req.Status)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt))
}

func (h *AppointmentHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.CheckIn(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt))
}

func (h *AppointmentHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req rescheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	appt, err := h.svc.Reschedule(r.Context(), caller, r.PathValue("id"), booking.RescheduleInput{Date: req.Date, Time: req.Time})
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt))
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.Cancel(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt))
}

func (h *AppointmentHandler) caller(w http.ResponseWriter, r *http.Request) (booking.Caller, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated")
		return booking.Caller{}, false
	}
	return booking.CallerFromClaims(claims), true
}

func (h *AppointmentHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, formatValidation(err))
		return false
	}
	return true
}

func (h *AppointmentHandler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var conflict *booking.ConflictError
	switch {
	case errors.As(err, &conflict):
		resp := conflictResponse{Error: booking.ErrConflict.Error()}
		if conflict.Conflicting != nil {
			c := toResponse(*conflict.Conflicting)
			resp.ConflictingAppointment = &c
		}
		httpx.WriteJSON(w, http.StatusConflict, resp)
	case errors.Is(err, booking.ErrValidation), errors.Is(err, booking.ErrPrecondition):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, booking.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrForbidden):
		httpx.WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, booking.ErrInvalidTransition), errors.Is(err, booking.ErrConflict):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	default:
		h.logger.ErrorContext(ctx, "appointment request failed", "err", err, "request_id", httpx.RequestIDFromContext(ctx))
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func toResponse(a model.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:          a.ID,
		PatientID:   a.PatientID,
		DoctorID:    a.DoctorID,
		Date:        a.Date,
		Time:        a.Time,
		Duration:    a.Duration,
		Type:        string(a.Type),
		Status:      string(a.Status),
		Reason:      a.Reason,
		Notes:       a.Notes,
		StartsAt:    a.StartsAt,
		CheckedInAt: a.CheckedInAt,
		CancelledAt: a.CancelledAt,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}
