package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gsPatrick/nutri-lp/internal/core/datamodel/payment"
	"github.com/gsPatrick/nutri-lp/internal/ledger"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, id string) (*ledger.Record, error) {
	var m payment.Record
	err := s.db.WithContext(ctx).Where("gateway_payment_id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromModel(&m), nil
}

// Put inserts a new row (Version 0) or updates the row the caller read, using
// the version column as the compare-and-set guard.
func (s *Store) Put(ctx context.Context, record *ledger.Record) error {
	m := toModel(record)
	m.Version = record.Version + 1

	var result *gorm.DB
	if record.Version == 0 {
		result = s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "gateway_payment_id"}},
				DoNothing: true,
			}).
			Create(m)
	} else {
		result = s.db.WithContext(ctx).
			Model(&payment.Record{}).
			Where("gateway_payment_id = ? AND version = ?", record.GatewayPaymentID, record.Version).
			Updates(map[string]interface{}{
				"external_reference": m.ExternalReference,
				"customer_id":        m.CustomerID,
				"customer_email":     m.CustomerEmail,
				"billing_type":       m.BillingType,
				"value":              m.Value,
				"status":             m.Status,
				"created_at":         m.CreatedAt,
				"updated_at":         m.UpdatedAt,
				"confirmed_at":       m.ConfirmedAt,
				"received_at":        m.ReceivedAt,
				"credit_date":        m.CreditDate,
				"refunded_at":        m.RefundedAt,
				"version":            m.Version,
			})
	}
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ledger.ErrConflict
	}

	record.Version = m.Version
	return nil
}

func (s *Store) ScanByField(ctx context.Context, field ledger.Field, value string) ([]*ledger.Record, error) {
	if !field.Valid() {
		return nil, ledger.ErrInvalidField
	}

	var models []payment.Record
	err := s.db.WithContext(ctx).
		Where(fmt.Sprintf("%s = ?", field), value).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	out := make([]*ledger.Record, 0, len(models))
	for i := range models {
		out = append(out, fromModel(&models[i]))
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func toModel(r *ledger.Record) *payment.Record {
	return &payment.Record{
		GatewayPaymentID:  r.GatewayPaymentID,
		ExternalReference: r.ExternalReference,
		CustomerID:        r.CustomerID,
		CustomerEmail:     r.CustomerEmail,
		BillingType:       string(r.BillingType),
		Value:             r.Value,
		Status:            string(r.Status),
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
		ConfirmedAt:       r.ConfirmedAt,
		ReceivedAt:        r.ReceivedAt,
		CreditDate:        r.CreditDate,
		RefundedAt:        r.RefundedAt,
		Version:           r.Version,
	}
}

func fromModel(m *payment.Record) *ledger.Record {
	return &ledger.Record{
		GatewayPaymentID:  m.GatewayPaymentID,
		ExternalReference: m.ExternalReference,
		CustomerID:        m.CustomerID,
		CustomerEmail:     m.CustomerEmail,
		BillingType:       ledger.BillingType(m.BillingType),
		Value:             m.Value,
		Status:            ledger.Status(m.Status),
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
		ConfirmedAt:       m.ConfirmedAt,
		ReceivedAt:        m.ReceivedAt,
		CreditDate:        m.CreditDate,
		RefundedAt:        m.RefundedAt,
		Version:           m.Version,
	}
}
