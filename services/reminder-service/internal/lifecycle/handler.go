// Package lifecycle emails patients when a doctor approves or rejects
// their appointment request.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	"github.com/md-rashed-zaman/clinicbook/services/reminder-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

const StatusChangedEvent = "booking.appointment.status_changed.v1"

type statusChanged struct {
	AppointmentID  string `json:"appointment_id"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status"`
}

type AppointmentLoader interface {
	GetByID(ctx context.Context, id string) (storage.Appointment, error)
}

type Notifier interface {
	SendStatusNotice(ctx context.Context, a storage.Appointment, status string) error
}

type Handler struct {
	appointments AppointmentLoader
	notifier     Notifier
	logger       *slog.Logger
}

func NewHandler(appointments AppointmentLoader, notifier Notifier, logger *slog.Logger) *Handler {
	return &Handler{appointments: appointments, notifier: notifier, logger: logger}
}

// Handle is a consumer.Handler. Malformed or irrelevant events are dropped;
// only lookup and delivery failures are returned.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	if meta := kafkax.ExtractEventMeta(msg); meta.EventType != StatusChangedEvent {
		return nil
	}
	var ev statusChanged
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		h.logger.Error("invalid status change event", "err", err)
		return nil
	}
	if ev.AppointmentID == "" {
		h.logger.Error("status change event without appointment_id")
		return nil
	}
	if ev.Status != "approved" && ev.Status != "rejected" {
		return nil
	}

	a, err := h.appointments.GetByID(ctx, ev.AppointmentID)
	if errors.Is(err, storage.ErrNotFound) {
		h.logger.Warn("status change for unknown appointment", "appointment_id", ev.AppointmentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load appointment %s: %w", ev.AppointmentID, err)
	}
	if err := h.notifier.SendStatusNotice(ctx, a, ev.Status); err != nil {
		return fmt.Errorf("notify %s of %s: %w", ev.AppointmentID, ev.Status, err)
	}
	h.logger.Info("status notice sent", "appointment_id", ev.AppointmentID, "status", ev.Status)
	return nil
}
