package payment

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	errors "github.com/gsPatrick/nutri-lp/internal"
	"github.com/gsPatrick/nutri-lp/internal/core/common/validation"
	gatewaytypes "github.com/gsPatrick/nutri-lp/internal/core/datamodel/paymentgateway"
	"github.com/gsPatrick/nutri-lp/internal/ledger"
	"github.com/gsPatrick/nutri-lp/internal/paymentgateway"
	"github.com/gsPatrick/nutri-lp/internal/pricing"
)

const (
	messageApproved   = "Pagamento aprovado!"
	messageProcessing = "Pagamento em processamento"

	statusNotFound = "NOT_FOUND"

	defaultPostalCode    = "00000000"
	defaultAddressNumber = "0"
)

// ServiceAPI defines the checkout operations exposed over HTTP.
type ServiceAPI interface {
	CreatePixPayment(ctx context.Context, req *PixPaymentRequest) (*PixPaymentResponse, error)
	CreateCardPayment(ctx context.Context, req *CardPaymentRequest) (*CardPaymentResponse, error)
	GetPaymentStatus(ctx context.Context, paymentID string) (*PaymentStatusResponse, error)
	GetCheckoutConfig(ctx context.Context, testMode bool, price *decimal.Decimal) (*CheckoutConfigResponse, error)
	CreateCheckout(ctx context.Context) (*CheckoutResponse, error)
	ConfirmationByReference(ctx context.Context, externalReference string) (*ConfirmationResponse, error)
	ApplyNotification(ctx context.Context, notification *gatewaytypes.WebhookNotification) (ledger.Outcome, error)
}

// GatewayAPI is the subset of the payment gateway client the service calls.
type GatewayAPI interface {
	FindOrCreateCustomer(ctx context.Context, req gatewaytypes.CustomerRequest) (*gatewaytypes.Customer, error)
	CreatePixCharge(ctx context.Context, in paymentgateway.PixChargeInput) (*gatewaytypes.Charge, error)
	CreateCardCharge(ctx context.Context, in paymentgateway.CardChargeInput) (*gatewaytypes.Charge, error)
	CreateCheckoutSession(ctx context.Context, items []gatewaytypes.CheckoutItem, maxInstallments int) (*gatewaytypes.Checkout, error)
	GetCharge(ctx context.Context, id string) (*gatewaytypes.Charge, error)
}

type LedgerAPI interface {
	UpsertOnCreate(ctx context.Context, id string, meta ledger.Metadata) (*ledger.Record, error)
	ApplyEvent(ctx context.Context, id string, event ledger.EventType, payload ledger.Payload) (ledger.Outcome, error)
	Get(ctx context.Context, id string) (*ledger.Record, error)
	LookupByExternalReference(ctx context.Context, ref string) (*ledger.Record, error)
	Pending(ctx context.Context) ([]*ledger.Record, error)
}

type Settings struct {
	ProductName        string
	ProductDescription string
	BasePrice          decimal.Decimal
	// TestModeEnabled gates the per-request price override.
	TestModeEnabled bool
}

type Service struct {
	gateway  GatewayAPI
	ledger   LedgerAPI
	refs     *ReferenceGenerator
	settings Settings
	logger   *slog.Logger
}

func NewService(gateway GatewayAPI, l LedgerAPI, refs *ReferenceGenerator, settings Settings, logger *slog.Logger) *Service {
	if refs == nil {
		refs = NewReferenceGenerator(DefaultReferencePrefix)
	}
	return &Service{
		gateway:  gateway,
		ledger:   l,
		refs:     refs,
		settings: settings,
		logger:   logger,
	}
}

func (s *Service) CreatePixPayment(ctx context.Context, req *PixPaymentRequest) (*PixPaymentResponse, error) {
	if req == nil {
		req = &PixPaymentRequest{}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Installments > 1 {
		return nil, errors.NewValidationFieldError("installments", "PIX payments cannot be split into installments", errors.ErrCodeInstallmentsNotAllowed)
	}

	price := s.resolvePrice(req.TestMode, req.Price)
	if appErr := pricing.ValidateCharge(price); appErr != nil {
		return nil, appErr
	}

	customer, err := s.gateway.FindOrCreateCustomer(ctx, customerRequest(req.Customer))
	if err != nil {
		return nil, gatewayFailure(err, "failed to register customer")
	}

	ref := s.refs.New()
	charge, err := s.gateway.CreatePixCharge(ctx, paymentgateway.PixChargeInput{
		CustomerID:        customer.ID,
		Value:             price,
		Description:       s.settings.ProductName,
		ExternalReference: ref,
	})
	if err != nil {
		return nil, gatewayFailure(err, "failed to create pix charge")
	}

	status := s.track(ctx, charge, ledger.Metadata{
		ExternalReference: ref,
		CustomerID:        customer.ID,
		CustomerEmail:     req.Customer.Email,
		BillingType:       ledger.BillingPix,
		Value:             price,
	})

	resp := &PixPaymentResponse{
		Success:           true,
		PaymentID:         charge.ID,
		ExternalReference: ref,
		Value:             price.InexactFloat64(),
		Status:            string(status),
	}
	if charge.Pix != nil {
		resp.Pix = PixData{
			QRCodeBase64:   charge.Pix.EncodedImage,
			CopyPaste:      charge.Pix.Payload,
			ExpirationDate: charge.Pix.ExpirationDate,
		}
	}
	return resp, nil
}

func (s *Service) CreateCardPayment(ctx context.Context, req *CardPaymentRequest) (*CardPaymentResponse, error) {
	if req == nil {
		req = &CardPaymentRequest{}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	price := s.resolvePrice(req.TestMode, req.Price)
	if appErr := pricing.ValidateCharge(price); appErr != nil {
		return nil, appErr
	}
	installments, appErr := pricing.ValidateInstallments(req.Installments, pricing.MaxInstallments(price))
	if appErr != nil {
		return nil, appErr
	}

	customer, err := s.gateway.FindOrCreateCustomer(ctx, customerRequest(req.Customer))
	if err != nil {
		return nil, gatewayFailure(err, "failed to register customer")
	}

	ref := s.refs.New()
	charge, err := s.gateway.CreateCardCharge(ctx, paymentgateway.CardChargeInput{
		CustomerID:        customer.ID,
		Value:             price,
		Description:       s.settings.ProductName,
		ExternalReference: ref,
		Card: gatewaytypes.CreditCard{
			HolderName:  strings.TrimSpace(req.Card.HolderName),
			Number:      validation.OnlyDigits(req.Card.Number),
			ExpiryMonth: validation.OnlyDigits(req.Card.ExpiryMonth),
			ExpiryYear:  validation.OnlyDigits(req.Card.ExpiryYear),
			Ccv:         validation.OnlyDigits(req.Card.Cvv),
		},
		Holder:       holderInfo(req.Customer),
		RemoteIP:     errors.RemoteIPFromContext(ctx),
		Installments: installments,
	})
	if err != nil {
		return nil, gatewayFailure(err, "failed to create card charge")
	}

	status := s.track(ctx, charge, ledger.Metadata{
		ExternalReference: ref,
		CustomerID:        customer.ID,
		CustomerEmail:     req.Customer.Email,
		BillingType:       ledger.BillingCreditCard,
		Value:             price,
	})

	approved := status.IsPaid()
	message := messageProcessing
	if approved {
		message = messageApproved
	}

	return &CardPaymentResponse{
		Success:           true,
		PaymentID:         charge.ID,
		ExternalReference: ref,
		Value:             price.InexactFloat64(),
		Installments:      installments,
		Status:            string(status),
		Approved:          approved,
		Message:           message,
	}, nil
}

// GetPaymentStatus refreshes the ledger from the gateway and answers from the
// ledger. When the gateway is unreachable the stored status is returned.
func (s *Service) GetPaymentStatus(ctx context.Context, paymentID string) (*PaymentStatusResponse, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, errors.NewValidationFieldError("id", "payment id is required", errors.ErrCodeRequiredField)
	}

	record, err := s.ledger.Get(ctx, paymentID)
	if err != nil && !stderrors.Is(err, ledger.ErrNotFound) {
		s.logger.Error("failed to read payment record", "payment_id", paymentID, "error", err)
		record = nil
	}

	charge, gwErr := s.gateway.GetCharge(ctx, paymentID)
	if gwErr != nil {
		s.logger.Warn("gateway status lookup failed, answering from ledger", "payment_id", paymentID, "error", gwErr)
		if record != nil {
			return statusFromRecord(record), nil
		}
		return &PaymentStatusResponse{Success: true, PaymentID: paymentID, Status: statusNotFound}, nil
	}

	outcome, err := s.reconcileCharge(ctx, charge)
	if err != nil {
		s.logger.Error("failed to reconcile payment", "payment_id", paymentID, "error", err)
	} else if outcome.Record != nil {
		record = outcome.Record
	} else if outcome.Current == ledger.StatusRefunded {
		record = nil
	}

	if record != nil {
		return statusFromRecord(record), nil
	}

	// The gateway knows a charge the ledger does not track (or no longer does).
	value := decimal.NewFromFloat(charge.Value).Round(2)
	return &PaymentStatusResponse{
		Success:     true,
		PaymentID:   charge.ID,
		Status:      charge.Status,
		Confirmed:   charge.Status == string(ledger.StatusConfirmed) || charge.Status == string(ledger.StatusReceived),
		Value:       value.InexactFloat64(),
		BillingType: charge.BillingType,
	}, nil
}

func (s *Service) GetCheckoutConfig(ctx context.Context, testMode bool, override *decimal.Decimal) (*CheckoutConfigResponse, error) {
	price := s.resolvePrice(testMode, override)
	options := pricing.Options(price)

	resp := &CheckoutConfigResponse{
		Success:            true,
		ProductName:        s.settings.ProductName,
		ProductDescription: s.settings.ProductDescription,
		ProductPrice:       price.InexactFloat64(),
		MaxInstallments:    len(options),
		InstallmentOptions: make([]InstallmentOption, 0, len(options)),
		TestMode:           s.testModeApplies(testMode, override),
	}
	for _, o := range options {
		resp.InstallmentOptions = append(resp.InstallmentOptions, InstallmentOption{
			Installments: o.Installments,
			Value:        o.Value.InexactFloat64(),
			Label:        o.Label,
		})
	}
	return resp, nil
}

func (s *Service) CreateCheckout(ctx context.Context) (*CheckoutResponse, error) {
	price := pricing.ComputePrice(s.settings.BasePrice, nil)
	if appErr := pricing.ValidateCharge(price); appErr != nil {
		return nil, appErr
	}

	items := []gatewaytypes.CheckoutItem{{
		Name:        s.settings.ProductName,
		Description: s.settings.ProductDescription,
		Quantity:    1,
		Value:       price.InexactFloat64(),
	}}
	checkout, err := s.gateway.CreateCheckoutSession(ctx, items, pricing.MaxInstallments(price))
	if err != nil {
		return nil, gatewayFailure(err, "failed to create checkout session")
	}

	return &CheckoutResponse{
		Success:     true,
		CheckoutID:  checkout.ID,
		CheckoutURL: checkout.URL,
	}, nil
}

func (s *Service) ConfirmationByReference(ctx context.Context, externalReference string) (*ConfirmationResponse, error) {
	externalReference = strings.TrimSpace(externalReference)
	if externalReference == "" {
		return &ConfirmationResponse{Confirmed: false}, nil
	}

	record, err := s.ledger.LookupByExternalReference(ctx, externalReference)
	if stderrors.Is(err, ledger.ErrNotFound) {
		return &ConfirmationResponse{Confirmed: false}, nil
	}
	if err != nil {
		return nil, errors.NewInternalError("failed to look up payment", err)
	}

	resp := &ConfirmationResponse{
		Confirmed: record.Status.IsPaid(),
		Status:    string(record.Status),
		PaymentID: record.GatewayPaymentID,
	}
	if resp.Confirmed {
		resp.ConfirmedAt = record.ConfirmedAt
		if resp.ConfirmedAt == nil {
			resp.ConfirmedAt = record.ReceivedAt
		}
	}
	return resp, nil
}

// ErrInvalidNotification is returned for webhook bodies without a payment.
var ErrInvalidNotification = errors.NewValidationError("notification has no payment", errors.ErrCodeInvalidBody)

func (s *Service) ApplyNotification(ctx context.Context, n *gatewaytypes.WebhookNotification) (ledger.Outcome, error) {
	if n == nil || n.Payment == nil || n.Payment.ID == "" {
		return ledger.Outcome{}, ErrInvalidNotification
	}

	s.logger.Info("payment notification received",
		"notification_id", n.ID,
		"event", n.Event,
		"payment_id", n.Payment.ID,
		"status", n.Payment.Status,
		"billing_type", n.Payment.BillingType,
		"value", n.Payment.Value)

	if ref := n.Payment.ExternalReference; ref != "" && !s.refs.Owns(ref) {
		s.logger.Warn("notification for a charge this service did not create", "payment_id", n.Payment.ID, "external_reference", ref)
	}

	return s.ledger.ApplyEvent(ctx, n.Payment.ID, ledger.EventType(n.Event), payloadFromCharge(n.Payment))
}

// Reconcile pulls the current gateway status of record and feeds it to the ledger.
func (s *Service) Reconcile(ctx context.Context, record *ledger.Record) (ledger.Outcome, error) {
	charge, err := s.gateway.GetCharge(ctx, record.GatewayPaymentID)
	if err != nil {
		return ledger.Outcome{}, gatewayFailure(err, "failed to fetch charge")
	}
	return s.reconcileCharge(ctx, charge)
}

// PendingRecords lists ledger entries still waiting on the gateway.
func (s *Service) PendingRecords(ctx context.Context) ([]*ledger.Record, error) {
	return s.ledger.Pending(ctx)
}

func (s *Service) reconcileCharge(ctx context.Context, charge *gatewaytypes.Charge) (ledger.Outcome, error) {
	event, ok := ledger.EventForGatewayStatus(charge.Status)
	if !ok {
		record, err := s.ledger.Get(ctx, charge.ID)
		if err != nil {
			if stderrors.Is(err, ledger.ErrNotFound) {
				return ledger.Outcome{}, nil
			}
			return ledger.Outcome{}, err
		}
		return ledger.Outcome{Record: record, Previous: record.Status, Current: record.Status}, nil
	}
	return s.ledger.ApplyEvent(ctx, charge.ID, event, payloadFromCharge(charge))
}

// track records a freshly created charge and applies its initial gateway
// status. The charge already exists at the gateway, so ledger failures are
// logged and left to the webhook to repair.
func (s *Service) track(ctx context.Context, charge *gatewaytypes.Charge, meta ledger.Metadata) ledger.Status {
	record, err := s.ledger.UpsertOnCreate(ctx, charge.ID, meta)
	if err != nil {
		s.logger.Error("failed to record payment", "payment_id", charge.ID, "external_reference", meta.ExternalReference, "error", err)
		return ledger.Status(charge.Status)
	}

	outcome, err := s.reconcileCharge(ctx, charge)
	if err != nil {
		s.logger.Error("failed to apply initial payment status", "payment_id", charge.ID, "status", charge.Status, "error", err)
		return record.Status
	}
	if outcome.Record != nil {
		return outcome.Record.Status
	}
	if outcome.Current != "" {
		return outcome.Current
	}
	return record.Status
}

func (s *Service) testModeApplies(testMode bool, override *decimal.Decimal) bool {
	return testMode && override != nil && s.settings.TestModeEnabled
}

func (s *Service) resolvePrice(testMode bool, override *decimal.Decimal) decimal.Decimal {
	if s.testModeApplies(testMode, override) {
		s.logger.Info("test mode price override", "price", override.String())
		return pricing.ComputePrice(s.settings.BasePrice, override)
	}
	return pricing.ComputePrice(s.settings.BasePrice, nil)
}

func customerRequest(c *CustomerRequest) gatewaytypes.CustomerRequest {
	return gatewaytypes.CustomerRequest{
		Name:    strings.TrimSpace(c.Name),
		Email:   strings.TrimSpace(c.Email),
		CpfCnpj: validation.OnlyDigits(c.CpfCnpj),
		Phone:   validation.OnlyDigits(c.Phone),
	}
}

func holderInfo(c *CustomerRequest) gatewaytypes.CreditCardHolderInfo {
	postalCode := validation.OnlyDigits(c.PostalCode)
	if postalCode == "" {
		postalCode = defaultPostalCode
	}
	addressNumber := strings.TrimSpace(c.AddressNumber)
	if addressNumber == "" {
		addressNumber = defaultAddressNumber
	}
	return gatewaytypes.CreditCardHolderInfo{
		Name:          strings.TrimSpace(c.Name),
		Email:         strings.TrimSpace(c.Email),
		CpfCnpj:       validation.OnlyDigits(c.CpfCnpj),
		PostalCode:    postalCode,
		AddressNumber: addressNumber,
		Phone:         validation.OnlyDigits(c.Phone),
	}
}

func statusFromRecord(r *ledger.Record) *PaymentStatusResponse {
	return &PaymentStatusResponse{
		Success:     true,
		PaymentID:   r.GatewayPaymentID,
		Status:      string(r.Status),
		Confirmed:   r.Status.IsPaid(),
		Value:       r.Value.Round(2).InexactFloat64(),
		BillingType: string(r.BillingType),
	}
}

func payloadFromCharge(c *gatewaytypes.Charge) ledger.Payload {
	return ledger.Payload{
		PaymentID:         c.ID,
		ExternalReference: c.ExternalReference,
		CustomerID:        c.Customer,
		BillingType:       ledger.BillingType(c.BillingType),
		Value:             decimal.NewFromFloat(c.Value).Round(2),
		ConfirmedDate:     parseGatewayDate(c.ConfirmedDate),
		PaymentDate:       parseGatewayDate(firstNonEmpty(c.PaymentDate, c.ClientPaymentDate)),
		CreditDate:        parseGatewayDate(c.CreditDate),
	}
}

var gatewayDateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339}

func parseGatewayDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range gatewayDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// gatewayFailure keeps the gateway's own message so the client sees why the
// charge was declined.
func gatewayFailure(err error, fallback string) error {
	var gwErr *paymentgateway.Error
	if stderrors.As(err, &gwErr) {
		code := errors.ErrCodeGatewayFailed
		if gwErr.Timeout {
			code = errors.ErrCodeGatewayTimeout
		}
		return errors.NewGatewayError(gwErr.Message, code, err)
	}
	return errors.NewGatewayError(fallback, errors.ErrCodeGatewayFailed, err)
}
