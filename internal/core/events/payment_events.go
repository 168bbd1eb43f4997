package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeAccessGranted = "payment.access_granted"
	EventTypeAccessRevoked = "payment.access_revoked"
	EventTypeStatusChanged = "payment.status_changed"
)

// PaymentEvent announces a change in a ledger record.
type PaymentEvent struct {
	BaseEvent
	PaymentID         string `json:"payment_id"`
	ExternalReference string `json:"external_reference"`
	CustomerEmail     string `json:"customer_email"`
	BillingType       string `json:"billing_type"`
	Value             string `json:"value"`
	PreviousStatus    string `json:"previous_status"`
	Status            string `json:"status"`
}

type PaymentChange struct {
	PaymentID         string
	ExternalReference string
	CustomerEmail     string
	BillingType       string
	Value             string
	PreviousStatus    string
	Status            string
	At                time.Time
}

func NewPaymentEvent(eventType string, c PaymentChange) *PaymentEvent {
	at := c.At
	if at.IsZero() {
		at = time.Now()
	}
	return &PaymentEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: at,
			Data: map[string]interface{}{
				"payment_id":         c.PaymentID,
				"external_reference": c.ExternalReference,
				"customer_email":     c.CustomerEmail,
				"billing_type":       c.BillingType,
				"value":              c.Value,
				"previous_status":    c.PreviousStatus,
				"status":             c.Status,
			},
		},
		PaymentID:         c.PaymentID,
		ExternalReference: c.ExternalReference,
		CustomerEmail:     c.CustomerEmail,
		BillingType:       c.BillingType,
		Value:             c.Value,
		PreviousStatus:    c.PreviousStatus,
		Status:            c.Status,
	}
}

// PartitionKey keeps every event of one payment on the same partition.
func (e *PaymentEvent) PartitionKey() string {
	return e.PaymentID
}
