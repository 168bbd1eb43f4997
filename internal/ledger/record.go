package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound           = errors.New("payment record not found")
	ErrDuplicateReference = errors.New("external reference already bound to another payment")
	ErrInvalidField       = errors.New("field is not indexed")
	// ErrConflict means the stored record moved on since it was read.
	ErrConflict = errors.New("payment record was modified concurrently")
)

type Status string

const (
	StatusCreated              Status = "CREATED"
	StatusAwaitingRiskAnalysis Status = "AWAITING_RISK_ANALYSIS"
	StatusConfirmed            Status = "CONFIRMED"
	StatusReceived             Status = "RECEIVED"
	StatusOverdue              Status = "OVERDUE"
	StatusRefunded             Status = "REFUNDED"
	StatusPartiallyRefunded    Status = "PARTIALLY_REFUNDED"
	StatusChargebackRequested  Status = "CHARGEBACK_REQUESTED"
	StatusDeleted              Status = "DELETED"
)

// IsPaid reports whether the status grants access to the product.
func (s Status) IsPaid() bool {
	switch s {
	case StatusConfirmed, StatusReceived, StatusPartiallyRefunded:
		return true
	}
	return false
}

var PendingStatuses = []Status{StatusCreated, StatusAwaitingRiskAnalysis, StatusOverdue}

type BillingType string

const (
	BillingPix        BillingType = "PIX"
	BillingCreditCard BillingType = "CREDIT_CARD"
)

// Field names double as column names for the SQL store.
type Field string

const (
	FieldExternalReference Field = "external_reference"
	FieldStatus            Field = "status"
	FieldCustomerEmail     Field = "customer_email"
)

var IndexedFields = []Field{FieldExternalReference, FieldStatus, FieldCustomerEmail}

func (f Field) Valid() bool {
	for _, known := range IndexedFields {
		if f == known {
			return true
		}
	}
	return false
}

type Record struct {
	GatewayPaymentID  string          `json:"gatewayPaymentId"`
	ExternalReference string          `json:"externalReference"`
	CustomerID        string          `json:"customerId"`
	CustomerEmail     string          `json:"customerEmail"`
	BillingType       BillingType     `json:"billingType"`
	Value             decimal.Decimal `json:"value"`
	Status            Status          `json:"status"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
	ConfirmedAt       *time.Time      `json:"confirmedAt,omitempty"`
	ReceivedAt        *time.Time      `json:"receivedAt,omitempty"`
	CreditDate        *time.Time      `json:"creditDate,omitempty"`
	RefundedAt        *time.Time      `json:"refundedAt,omitempty"`
	// Version counts successful writes; zero means never stored.
	Version int64 `json:"version"`
}

// Tombstone marks a refunded record; it stays stored so nothing can recreate it.
func (r *Record) Tombstone() bool {
	return r != nil && r.Status == StatusRefunded
}

// FieldValue returns the value indexed under f.
func (r *Record) FieldValue(f Field) string {
	switch f {
	case FieldExternalReference:
		return r.ExternalReference
	case FieldStatus:
		return string(r.Status)
	case FieldCustomerEmail:
		return r.CustomerEmail
	}
	return ""
}

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.ConfirmedAt = cloneTime(r.ConfirmedAt)
	c.ReceivedAt = cloneTime(r.ReceivedAt)
	c.CreditDate = cloneTime(r.CreditDate)
	c.RefundedAt = cloneTime(r.RefundedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Metadata describes a charge the gateway just accepted.
type Metadata struct {
	ExternalReference string
	CustomerID        string
	CustomerEmail     string
	BillingType       BillingType
	Value             decimal.Decimal
}
