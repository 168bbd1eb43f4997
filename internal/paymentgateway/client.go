package paymentgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gsPatrick/nutri-lp/internal"
	"github.com/gsPatrick/nutri-lp/internal/core/common/validation"
	gatewaytypes "github.com/gsPatrick/nutri-lp/internal/core/datamodel/paymentgateway"
	"github.com/gsPatrick/nutri-lp/internal/pricing"
)

const (
	defaultErrorMessage = "ASAAS API Error"
	timeoutMessage      = "payment gateway did not answer in time"
	dueDateLayout       = "2006-01-02"
)

// Error is any failed exchange with the gateway.
type Error struct {
	Message    string
	StatusCode int
	Code       string
	Timeout    bool
	Cause      error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway error (status %d): %s", e.StatusCode, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("gateway error: %s: %v", e.Message, e.Cause)
	}
	return "gateway error: " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Transient reports failures worth retrying later: timeouts, transport errors
// without a response, throttling and server-side errors.
func (e *Error) Transient() bool {
	switch {
	case e.Timeout, e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= 500
}

func IsTimeout(err error) bool {
	var gwErr *Error
	return errors.As(err, &gwErr) && gwErr.Timeout
}

type Config struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	FrontendURL string
	// CheckoutExpiry is the lifetime of a hosted checkout link.
	CheckoutExpiry time.Duration
}

type Client struct {
	baseURL        string
	apiKey         string
	timeout        time.Duration
	frontendURL    string
	checkoutExpiry time.Duration
	httpClient     *http.Client
	logger         *slog.Logger
	now            func() time.Time
}

func NewClient(config Config, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	expiry := config.CheckoutExpiry
	if expiry <= 0 {
		expiry = 120 * time.Minute
	}

	return &Client{
		baseURL:        strings.TrimRight(config.BaseURL, "/"),
		apiKey:         config.APIKey,
		timeout:        timeout,
		frontendURL:    strings.TrimRight(config.FrontendURL, "/"),
		checkoutExpiry: expiry,
		httpClient:     &http.Client{Timeout: timeout},
		logger:         logger,
		now:            time.Now,
	}
}

// WithClock replaces the time source used for due dates, for tests.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// FindCustomerByEmail returns (nil, nil) when no customer uses email.
func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (*gatewaytypes.Customer, error) {
	var list gatewaytypes.CustomerList
	if err := c.do(ctx, http.MethodGet, "/customers?email="+url.QueryEscape(email), nil, &list); err != nil {
		return nil, err
	}
	if len(list.Data) == 0 {
		return nil, nil
	}
	return &list.Data[0], nil
}

func (c *Client) CreateCustomer(ctx context.Context, req gatewaytypes.CustomerRequest) (*gatewaytypes.Customer, error) {
	var customer gatewaytypes.Customer
	if err := c.do(ctx, http.MethodPost, "/customers", req, &customer); err != nil {
		return nil, err
	}
	c.logger.Info("gateway customer created", "customer_id", customer.ID)
	return &customer, nil
}

// FindOrCreateCustomer reuses the customer registered under the same email.
// A lookup the gateway rejected outright is treated as a miss; a transient
// failure is returned, since creating anyway would duplicate the customer.
func (c *Client) FindOrCreateCustomer(ctx context.Context, req gatewaytypes.CustomerRequest) (*gatewaytypes.Customer, error) {
	existing, err := c.FindCustomerByEmail(ctx, req.Email)
	if err != nil {
		var gwErr *Error
		if !errors.As(err, &gwErr) || gwErr.Transient() {
			c.logger.Error("customer lookup failed", "error", err)
			return nil, err
		}
		c.logger.Warn("customer lookup rejected, creating a new customer", "error", err)
	}
	if existing != nil {
		return existing, nil
	}
	if req.MobilePhone == "" {
		req.MobilePhone = req.Phone
	}
	return c.CreateCustomer(ctx, req)
}

type PixChargeInput struct {
	CustomerID        string
	Value             decimal.Decimal
	Description       string
	ExternalReference string
}

// CreatePixCharge issues a PIX charge due tomorrow and attaches its QR code.
func (c *Client) CreatePixCharge(ctx context.Context, in PixChargeInput) (*gatewaytypes.Charge, error) {
	req := gatewaytypes.ChargeRequest{
		Customer:          in.CustomerID,
		BillingType:       gatewaytypes.BillingTypePix,
		Value:             in.Value.Round(2).InexactFloat64(),
		DueDate:           c.dueDate(),
		Description:       in.Description,
		ExternalReference: in.ExternalReference,
	}

	var charge gatewaytypes.Charge
	if err := c.do(ctx, http.MethodPost, "/payments", req, &charge); err != nil {
		return nil, err
	}

	var qr gatewaytypes.PixQRCode
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(charge.ID)+"/pixQrCode", nil, &qr); err != nil {
		c.logger.Error("failed to fetch pix qr code", "payment_id", charge.ID, "error", err)
		return nil, err
	}
	charge.Pix = &qr

	c.logger.Info("pix charge created",
		"payment_id", charge.ID,
		"external_reference", in.ExternalReference,
		"status", charge.Status)
	return &charge, nil
}

type CardChargeInput struct {
	CustomerID        string
	Value             decimal.Decimal
	Description       string
	ExternalReference string
	Card              gatewaytypes.CreditCard
	Holder            gatewaytypes.CreditCardHolderInfo
	RemoteIP          string
	Installments      int
}

// CreateCardCharge sends value for a single payment, or installmentCount,
// installmentValue and totalValue when split.
func (c *Client) CreateCardCharge(ctx context.Context, in CardChargeInput) (*gatewaytypes.Charge, error) {
	card := in.Card
	card.Number = validation.OnlyDigits(card.Number)
	card.Ccv = validation.OnlyDigits(card.Ccv)
	holder := in.Holder

	remoteIP := in.RemoteIP
	if remoteIP == "" {
		remoteIP = "127.0.0.1"
	}

	req := gatewaytypes.ChargeRequest{
		Customer:             in.CustomerID,
		BillingType:          gatewaytypes.BillingTypeCreditCard,
		DueDate:              c.dueDate(),
		Description:          in.Description,
		ExternalReference:    in.ExternalReference,
		CreditCard:           &card,
		CreditCardHolderInfo: &holder,
		RemoteIP:             remoteIP,
	}
	if in.Installments > 1 {
		req.InstallmentCount = in.Installments
		req.InstallmentValue = pricing.InstallmentValue(in.Value, in.Installments).InexactFloat64()
		req.TotalValue = in.Value.Round(2).InexactFloat64()
	} else {
		req.Value = in.Value.Round(2).InexactFloat64()
	}

	var charge gatewaytypes.Charge
	if err := c.do(ctx, http.MethodPost, "/payments", req, &charge); err != nil {
		return nil, err
	}

	c.logger.Info("card charge created",
		"payment_id", charge.ID,
		"external_reference", in.ExternalReference,
		"installments", in.Installments,
		"status", charge.Status)
	return &charge, nil
}

// CreateCheckoutSession opens a hosted page accepting PIX and card, in one go or in installments.
func (c *Client) CreateCheckoutSession(ctx context.Context, items []gatewaytypes.CheckoutItem, maxInstallments int) (*gatewaytypes.Checkout, error) {
	req := gatewaytypes.CheckoutRequest{
		BillingTypes:        []string{gatewaytypes.BillingTypePix, gatewaytypes.BillingTypeCreditCard},
		ChargeTypes:         []string{gatewaytypes.ChargeTypeDetached, gatewaytypes.ChargeTypeInstallment},
		MinutesToExpire:     int(c.checkoutExpiry / time.Minute),
		MaxInstallmentCount: maxInstallments,
		Callback: gatewaytypes.CheckoutCallback{
			SuccessURL: c.frontendURL + "/sucesso",
			CancelURL:  c.frontendURL + "/checkout",
			ExpiredURL: c.frontendURL + "/checkout",
		},
		Items: items,
	}

	var checkout gatewaytypes.Checkout
	if err := c.do(ctx, http.MethodPost, "/checkouts", req, &checkout); err != nil {
		return nil, err
	}
	c.logger.Info("checkout session created", "checkout_id", checkout.ID)
	return &checkout, nil
}

func (c *Client) GetCharge(ctx context.Context, id string) (*gatewaytypes.Charge, error) {
	var charge gatewaytypes.Charge
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(id), nil, &charge); err != nil {
		return nil, err
	}
	return &charge, nil
}

func (c *Client) dueDate() string {
	return c.now().AddDate(0, 0, 1).Format(dueDateLayout)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	ctx, cancel := internal.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Message: "failed to encode request", Cause: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Message: "failed to build request", Cause: err}
	}
	req.Header.Set("access_token", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "nutri-lp")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			c.logger.Error("gateway request timed out", "method", method, "path", redactQuery(path))
			return &Error{Message: timeoutMessage, Timeout: true, Cause: err}
		}
		return &Error{Message: "gateway request failed", Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return &Error{Message: timeoutMessage, Timeout: true, StatusCode: resp.StatusCode, Cause: err}
		}
		return &Error{Message: "failed to read gateway response", StatusCode: resp.StatusCode, Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gwErr := &Error{Message: defaultErrorMessage, StatusCode: resp.StatusCode}
		var apiErr gatewaytypes.ErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && len(apiErr.Errors) > 0 {
			if apiErr.Errors[0].Description != "" {
				gwErr.Message = apiErr.Errors[0].Description
			}
			gwErr.Code = apiErr.Errors[0].Code
		}
		c.logger.Error("gateway returned an error",
			"method", method,
			"path", redactQuery(path),
			"status_code", resp.StatusCode,
			"message", gwErr.Message)
		return gwErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Message: "failed to decode gateway response", StatusCode: resp.StatusCode, Cause: err}
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// redactQuery keeps customer emails out of the logs.
func redactQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}
