package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventCreated                EventType = "PAYMENT_CREATED"
	EventAwaitingRiskAnalysis   EventType = "PAYMENT_AWAITING_RISK_ANALYSIS"
	EventApprovedByRiskAnalysis EventType = "PAYMENT_APPROVED_BY_RISK_ANALYSIS"
	EventReprovedByRiskAnalysis EventType = "PAYMENT_REPROVED_BY_RISK_ANALYSIS"
	EventConfirmed              EventType = "PAYMENT_CONFIRMED"
	EventReceived               EventType = "PAYMENT_RECEIVED"
	EventOverdue                EventType = "PAYMENT_OVERDUE"
	EventRefunded               EventType = "PAYMENT_REFUNDED"
	EventPartiallyRefunded      EventType = "PAYMENT_PARTIALLY_REFUNDED"
	EventChargebackRequested    EventType = "PAYMENT_CHARGEBACK_REQUESTED"
	EventDeleted                EventType = "PAYMENT_DELETED"
)

var knownEvents = map[EventType]struct{}{
	EventCreated:                {},
	EventAwaitingRiskAnalysis:   {},
	EventApprovedByRiskAnalysis: {},
	EventReprovedByRiskAnalysis: {},
	EventConfirmed:              {},
	EventReceived:               {},
	EventOverdue:                {},
	EventRefunded:               {},
	EventPartiallyRefunded:      {},
	EventChargebackRequested:    {},
	EventDeleted:                {},
}

func (e EventType) Known() bool {
	_, ok := knownEvents[e]
	return ok
}

// Payload is the part of a gateway notification the ledger cares about.
type Payload struct {
	PaymentID         string
	ExternalReference string
	CustomerID        string
	CustomerEmail     string
	BillingType       BillingType
	Value             decimal.Decimal
	ConfirmedDate     *time.Time
	PaymentDate       *time.Time
	CreditDate        *time.Time
}

// EventForGatewayStatus maps a charge status read from the gateway to the event that reconciles it.
// The second result is false when the status needs no reconciliation.
func EventForGatewayStatus(status string) (EventType, bool) {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "CONFIRMED":
		return EventConfirmed, true
	case "RECEIVED", "RECEIVED_IN_CASH":
		return EventReceived, true
	case "OVERDUE":
		return EventOverdue, true
	case "REFUNDED":
		return EventRefunded, true
	case "PARTIALLY_REFUNDED":
		return EventPartiallyRefunded, true
	case "AWAITING_RISK_ANALYSIS":
		return EventAwaitingRiskAnalysis, true
	case "CHARGEBACK_REQUESTED":
		return EventChargebackRequested, true
	}
	return "", false
}

// next returns the status after applying event to current, and whether it differs.
func next(current Status, event EventType) (Status, bool) {
	to, ok := transitions[event][current]
	if !ok || to == current {
		return current, false
	}
	return to, true
}

var transitions = map[EventType]map[Status]Status{
	EventConfirmed: {
		StatusCreated:              StatusConfirmed,
		StatusAwaitingRiskAnalysis: StatusConfirmed,
		StatusOverdue:              StatusConfirmed,
	},
	EventReceived: {
		StatusCreated:              StatusReceived,
		StatusAwaitingRiskAnalysis: StatusReceived,
		StatusOverdue:              StatusReceived,
		StatusConfirmed:            StatusReceived,
	},
	EventAwaitingRiskAnalysis: {
		StatusCreated: StatusAwaitingRiskAnalysis,
		StatusOverdue: StatusAwaitingRiskAnalysis,
	},
	EventOverdue: {
		StatusCreated:              StatusOverdue,
		StatusAwaitingRiskAnalysis: StatusOverdue,
	},
	EventPartiallyRefunded: {
		StatusConfirmed: StatusPartiallyRefunded,
		StatusReceived:  StatusPartiallyRefunded,
	},
	EventChargebackRequested: {
		StatusConfirmed:         StatusChargebackRequested,
		StatusReceived:          StatusChargebackRequested,
		StatusPartiallyRefunded: StatusChargebackRequested,
	},
	EventDeleted: {
		StatusCreated:              StatusDeleted,
		StatusAwaitingRiskAnalysis: StatusDeleted,
		StatusOverdue:              StatusDeleted,
	},
	EventRefunded: {
		StatusCreated:              StatusRefunded,
		StatusAwaitingRiskAnalysis: StatusRefunded,
		StatusConfirmed:            StatusRefunded,
		StatusReceived:             StatusRefunded,
		StatusOverdue:              StatusRefunded,
		StatusPartiallyRefunded:    StatusRefunded,
		StatusChargebackRequested:  StatusRefunded,
		StatusDeleted:              StatusRefunded,
	},
}

// createsRecord lists the events that may insert a record the ledger has never seen.
func createsRecord(event EventType) bool {
	switch event {
	case EventCreated, EventConfirmed, EventReceived:
		return true
	}
	return false
}
