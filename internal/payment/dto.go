package payment

import (
	"time"

	"github.com/shopspring/decimal"

	errors "github.com/gsPatrick/nutri-lp/internal"
	"github.com/gsPatrick/nutri-lp/internal/core/common/validation"
)

// CustomerRequest is the buyer block shared by both payment methods.
type CustomerRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	CpfCnpj       string `json:"cpfCnpj"`
	Phone         string `json:"phone,omitempty"`
	PostalCode    string `json:"postalCode,omitempty"`
	AddressNumber string `json:"addressNumber,omitempty"`
}

type CardRequest struct {
	Number      string `json:"number"`
	HolderName  string `json:"holderName"`
	ExpiryMonth string `json:"expiryMonth"`
	ExpiryYear  string `json:"expiryYear"`
	Cvv         string `json:"cvv"`
}

// PixPaymentRequest is the body of POST /api/payments/pix.
// Price is only honoured together with TestMode.
type PixPaymentRequest struct {
	Customer     *CustomerRequest `json:"customer"`
	TestMode     bool             `json:"testMode,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	Installments int              `json:"installments,omitempty"`
}

// CardPaymentRequest is the body of POST /api/payments/card.
type CardPaymentRequest struct {
	Customer     *CustomerRequest `json:"customer"`
	Card         *CardRequest     `json:"card"`
	Installments int              `json:"installments,omitempty"`
	TestMode     bool             `json:"testMode,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
}

func (r *PixPaymentRequest) Validate() error {
	v := validation.NewValidator()
	addCustomerRules(v, r.Customer)
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

func (r *CardPaymentRequest) Validate() error {
	v := validation.NewValidator()
	addCustomerRules(v, r.Customer)
	addCardRules(v, r.Card)
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

func addCustomerRules(v *validation.ValidationBuilder, c *CustomerRequest) {
	if c == nil {
		c = &CustomerRequest{}
	}
	v.Field("customer.name", c.Name).Required().MaxLength(120)
	v.Field("customer.email", c.Email).Required().Email()
	v.Field("customer.cpfCnpj", c.CpfCnpj).Required().DigitsLength(errors.ErrCodeInvalidDocument, 11, 14)
}

func addCardRules(v *validation.ValidationBuilder, c *CardRequest) {
	if c == nil {
		c = &CardRequest{}
	}
	v.Field("card.number", c.Number).Required().Digits(errors.ErrCodeInvalidFormat).DigitsLength(errors.ErrCodeInvalidLength, 13, 14, 15, 16, 17, 18, 19)
	v.Field("card.holderName", c.HolderName).Required()
	v.Field("card.expiryMonth", c.ExpiryMonth).Required().Digits(errors.ErrCodeInvalidFormat).DigitsLength(errors.ErrCodeInvalidLength, 1, 2)
	v.Field("card.expiryYear", c.ExpiryYear).Required().Digits(errors.ErrCodeInvalidFormat).DigitsLength(errors.ErrCodeInvalidLength, 2, 4)
	v.Field("card.cvv", c.Cvv).Required().Digits(errors.ErrCodeInvalidFormat).DigitsLength(errors.ErrCodeInvalidLength, 3, 4)
}

type PixData struct {
	QRCodeBase64   string `json:"qrCodeBase64"`
	CopyPaste      string `json:"copyPaste"`
	ExpirationDate string `json:"expirationDate,omitempty"`
}

type PixPaymentResponse struct {
	Success           bool    `json:"success"`
	PaymentID         string  `json:"paymentId"`
	ExternalReference string  `json:"externalReference"`
	Value             float64 `json:"value"`
	Status            string  `json:"status"`
	Pix               PixData `json:"pix"`
}

type CardPaymentResponse struct {
	Success           bool    `json:"success"`
	PaymentID         string  `json:"paymentId"`
	ExternalReference string  `json:"externalReference"`
	Value             float64 `json:"value"`
	Installments      int     `json:"installments"`
	Status            string  `json:"status"`
	Approved          bool    `json:"approved"`
	Message           string  `json:"message"`
}

// PaymentStatusResponse answers the polling endpoint. Confirmed is false for
// payments nobody knows about.
type PaymentStatusResponse struct {
	Success     bool    `json:"success"`
	PaymentID   string  `json:"paymentId"`
	Status      string  `json:"status"`
	Confirmed   bool    `json:"confirmed"`
	Value       float64 `json:"value,omitempty"`
	BillingType string  `json:"billingType,omitempty"`
}

type InstallmentOption struct {
	Installments int     `json:"installments"`
	Value        float64 `json:"value"`
	Label        string  `json:"label"`
}

type CheckoutConfigResponse struct {
	Success            bool                `json:"success"`
	ProductName        string              `json:"productName"`
	ProductDescription string              `json:"productDescription"`
	ProductPrice       float64             `json:"productPrice"`
	MaxInstallments    int                 `json:"maxInstallments"`
	InstallmentOptions []InstallmentOption `json:"installmentOptions"`
	TestMode           bool                `json:"testMode"`
}

type CheckoutResponse struct {
	Success     bool   `json:"success"`
	CheckoutID  string `json:"checkoutId"`
	CheckoutURL string `json:"checkoutUrl"`
}

// ConfirmationResponse tells the thank-you page whether access may be granted.
type ConfirmationResponse struct {
	Confirmed   bool       `json:"confirmed"`
	Status      string     `json:"status,omitempty"`
	PaymentID   string     `json:"paymentId,omitempty"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
}

// WebhookAck is always sent with 200 so the gateway does not pause delivery.
type WebhookAck struct {
	Received  bool   `json:"received"`
	Event     string `json:"event,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

type WebhookTestResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	WebhookURL string `json:"webhookUrl"`
	Timestamp  string `json:"timestamp"`
}
