package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/reminder-service/internal/reminders"
)

type ImmediateSender interface {
	SendImmediate(ctx context.Context, appointmentID string) (bool, error)
}

type ReminderHandler struct {
	sender ImmediateSender
	logger *slog.Logger
}

func NewReminderHandler(sender ImmediateSender, logger *slog.Logger) *ReminderHandler {
	return &ReminderHandler{sender: sender, logger: logger}
}

// Register mounts the manual reminder route; only clinic staff and doctors may
// trigger it.
func (h *ReminderHandler) Register(mux *http.ServeMux, authn httpx.Middleware) {
	staff := auth.RequireRole(auth.RoleDoctor, auth.RoleReceptionist, auth.RoleAdmin)
	mux.Handle("POST /api/v1/notifications/send-reminder/{appointmentId}", httpx.Chain(http.HandlerFunc(h.SendReminder), authn, staff))
}

func (h *ReminderHandler) SendReminder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("appointmentId")
	sent, err := h.sender.SendImmediate(r.Context(), id)
	switch {
	case errors.Is(err, reminders.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "appointment not found")
		return
	case err != nil || !sent:
		h.logger.Error("manual reminder failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"appointment_id", id,
			"err", err,
		)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to send reminder")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"sent": true})
}
