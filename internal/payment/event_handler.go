package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gsPatrick/nutri-lp/internal/core/events"
)

// EventHandler reacts to the ledger's access events. Granting access is a
// log line for now; downstream consumers read the same events from Kafka.
type EventHandler struct {
	logger *slog.Logger
}

func NewEventHandler(logger *slog.Logger) *EventHandler {
	return &EventHandler{logger: logger}
}

func (h *EventHandler) HandleAccessGranted(ctx context.Context, event events.Event) error {
	paymentEvent, ok := event.(*events.PaymentEvent)
	if !ok {
		h.logger.Error("invalid event type for access granted handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentEvent, got %T", event)
	}

	h.logger.Info("access granted",
		"payment_id", paymentEvent.PaymentID,
		"external_reference", paymentEvent.ExternalReference,
		"customer_email", paymentEvent.CustomerEmail,
		"status", paymentEvent.Status,
		"event_id", paymentEvent.EventID())
	return nil
}

func (h *EventHandler) HandleAccessRevoked(ctx context.Context, event events.Event) error {
	paymentEvent, ok := event.(*events.PaymentEvent)
	if !ok {
		h.logger.Error("invalid event type for access revoked handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentEvent, got %T", event)
	}

	h.logger.Warn("access revoked",
		"payment_id", paymentEvent.PaymentID,
		"external_reference", paymentEvent.ExternalReference,
		"customer_email", paymentEvent.CustomerEmail,
		"previous_status", paymentEvent.PreviousStatus,
		"status", paymentEvent.Status,
		"event_id", paymentEvent.EventID())
	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypeAccessGranted, h.HandleAccessGranted)
	eventBus.Subscribe(events.EventTypeAccessRevoked, h.HandleAccessRevoked)
	h.logger.Info("payment event handlers registered")
}
