package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

type Record struct {
	GatewayPaymentID  string          `gorm:"column:gateway_payment_id;primaryKey"`
	ExternalReference string          `gorm:"column:external_reference;not null;default:'';index"`
	CustomerID        string          `gorm:"column:customer_id;not null;default:''"`
	CustomerEmail     string          `gorm:"column:customer_email;not null;default:'';index"`
	BillingType       string          `gorm:"column:billing_type;not null;default:''"`
	Value             decimal.Decimal `gorm:"column:value;type:numeric(12,2);not null"`
	Status            string          `gorm:"column:status;not null;index"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime:false"`
	ConfirmedAt       *time.Time      `gorm:"column:confirmed_at"`
	ReceivedAt        *time.Time      `gorm:"column:received_at"`
	CreditDate        *time.Time      `gorm:"column:credit_date"`
	RefundedAt        *time.Time      `gorm:"column:refunded_at"`
	Version           int64           `gorm:"column:version;not null;default:0"`
}

func (Record) TableName() string {
	return "payment_records"
}
