package payment

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"
	lru "github.com/hashicorp/golang-lru/v2"

	gatewaytypes "github.com/gsPatrick/nutri-lp/internal/core/datamodel/paymentgateway"
	"github.com/gsPatrick/nutri-lp/internal/transport"
)

const (
	headerAccessToken       = "access-token"
	headerAsaasAccessToken  = "asaas-access-token"
	defaultDedupeSize       = 1024
	webhookNotificationPath = "/api/webhook/gateway"
)

type WebhookSettings struct {
	// Token is compared against the access-token header; empty disables the check.
	Token      string
	PublicURL  string
	DedupeSize int
}

type WebhookHandler struct {
	*transport.BaseHandler
	paymentService ServiceAPI
	settings       WebhookSettings
	seen           *lru.Cache[string, struct{}]
	now            func() time.Time
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, paymentService ServiceAPI, settings WebhookSettings) (*WebhookHandler, error) {
	size := settings.DedupeSize
	if size <= 0 {
		size = defaultDedupeSize
	}
	seen, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification cache: %w", err)
	}
	settings.PublicURL = strings.TrimRight(settings.PublicURL, "/")

	return &WebhookHandler{
		BaseHandler:    baseHandler,
		paymentService: paymentService,
		settings:       settings,
		seen:           seen,
		now:            time.Now,
	}, nil
}

// HandleNotification handles POST /api/webhook/gateway. It always answers 200
// so the gateway never pauses its delivery queue.
func (h *WebhookHandler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	ack := WebhookAck{Received: true, Timestamp: h.now().UTC().Format(time.RFC3339)}
	defer func() {
		if rec := recover(); rec != nil {
			h.Logger.Error("panic while processing payment notification", "panic", rec)
			ack.Error = "internal error"
			h.WriteJSON(w, http.StatusOK, ack)
		}
	}()

	if !h.authorized(r) {
		h.Logger.Warn("payment notification with invalid access token", "remote_ip", ClientIP(r))
	}

	var notification gatewaytypes.WebhookNotification
	if err := json.NewDecoder(r.Body).Decode(&notification); err != nil {
		h.Logger.Warn("unreadable payment notification", "error", err)
		ack.Received = false
		ack.Error = "invalid notification payload"
		h.WriteJSON(w, http.StatusOK, ack)
		return
	}
	ack.Event = notification.Event

	// Only applied ids are remembered, so a failed one can be resent.
	if notification.ID != "" {
		if h.seen.Contains(notification.ID) {
			h.Logger.Info("duplicate payment notification", "notification_id", notification.ID, "event", notification.Event)
			ack.Duplicate = true
			h.WriteJSON(w, http.StatusOK, ack)
			return
		}
	}

	outcome, err := h.paymentService.ApplyNotification(r.Context(), &notification)
	if err != nil {
		h.Logger.Error("failed to process payment notification",
			"notification_id", notification.ID,
			"event", notification.Event,
			"error", err)
		ack.Error = err.Error()
		h.WriteJSON(w, http.StatusOK, ack)
		return
	}
	if notification.ID != "" {
		h.seen.Add(notification.ID, struct{}{})
	}

	h.Logger.Info("payment notification processed",
		"notification_id", notification.ID,
		"event", notification.Event,
		"status", outcome.Current,
		"changed", outcome.Changed,
		"ignored", outcome.Ignored)
	h.WriteJSON(w, http.StatusOK, ack)
}

// HandleConfirmed handles GET /api/webhook/confirmed/{externalRef}
func (h *WebhookHandler) HandleConfirmed(w http.ResponseWriter, r *http.Request) {
	resp, err := h.paymentService.ConfirmationByReference(r.Context(), chi.URLParam(r, "externalRef"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

// HandleTest handles GET /api/webhook/test
func (h *WebhookHandler) HandleTest(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, WebhookTestResponse{
		Status:     "ok",
		Message:    "Webhook endpoint is active",
		WebhookURL: h.settings.PublicURL + webhookNotificationPath,
		Timestamp:  h.now().UTC().Format(time.RFC3339),
	})
}

func (h *WebhookHandler) authorized(r *http.Request) bool {
	if h.settings.Token == "" {
		return true
	}
	provided := r.Header.Get(headerAccessToken)
	if provided == "" {
		provided = r.Header.Get(headerAsaasAccessToken)
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.settings.Token)) == 1
}
