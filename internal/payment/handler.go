package payment

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi"
	"github.com/shopspring/decimal"

	errors "github.com/gsPatrick/nutri-lp/internal"
	"github.com/gsPatrick/nutri-lp/internal/pricing"
	"github.com/gsPatrick/nutri-lp/internal/transport"
)

type Handler struct {
	*transport.BaseHandler
	PaymentService ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, paymentService ServiceAPI) *Handler {
	return &Handler{
		BaseHandler:    baseHandler,
		PaymentService: paymentService,
	}
}

// CreatePixPayment handles POST /api/payments/pix
func (h *Handler) CreatePixPayment(w http.ResponseWriter, r *http.Request) {
	var req PixPaymentRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}

	resp, err := h.PaymentService.CreatePixPayment(h.requestContext(r), &req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("pix charge issued",
		"payment_id", resp.PaymentID,
		"external_reference", resp.ExternalReference,
		"value", resp.Value)
	h.WriteJSON(w, http.StatusOK, resp)
}

// CreateCardPayment handles POST /api/payments/card
func (h *Handler) CreateCardPayment(w http.ResponseWriter, r *http.Request) {
	var req CardPaymentRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}

	resp, err := h.PaymentService.CreateCardPayment(h.requestContext(r), &req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("card charge issued",
		"payment_id", resp.PaymentID,
		"external_reference", resp.ExternalReference,
		"installments", resp.Installments,
		"approved", resp.Approved)
	h.WriteJSON(w, http.StatusOK, resp)
}

// GetPaymentStatus handles GET /api/payments/{id}/status
func (h *Handler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := h.PaymentService.GetPaymentStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

// GetCheckoutConfig handles GET /api/payments/config?testMode=true&price=5.00
func (h *Handler) GetCheckoutConfig(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	testMode, _ := strconv.ParseBool(query.Get("testMode"))

	var override *decimal.Decimal
	if raw := strings.TrimSpace(query.Get("price")); raw != "" {
		price, err := pricing.ParsePrice(raw)
		if err != nil {
			h.HandleError(w, errors.NewValidationFieldError("price", "price must be a number", errors.ErrCodeInvalidBody))
			return
		}
		override = &price
	}

	resp, err := h.PaymentService.GetCheckoutConfig(r.Context(), testMode, override)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

// CreateCheckout handles POST /api/payments/checkout
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	resp, err := h.PaymentService.CreateCheckout(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) requestContext(r *http.Request) context.Context {
	return errors.ContextWithRemoteIP(r.Context(), ClientIP(r))
}

// ClientIP prefers the first X-Forwarded-For hop, then the connection address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "127.0.0.1"
}
