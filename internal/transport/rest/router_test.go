package rest_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	gatewaytypes "github.com/gsPatrick/nutri-lp/internal/core/datamodel/paymentgateway"
	"github.com/gsPatrick/nutri-lp/internal/ledger"
	"github.com/gsPatrick/nutri-lp/internal/payment"
	"github.com/gsPatrick/nutri-lp/internal/transport"
	"github.com/gsPatrick/nutri-lp/internal/transport/rest"
)

type stubService struct {
	payment.ServiceAPI
	notifications int
}

func (s *stubService) ApplyNotification(ctx context.Context, n *gatewaytypes.WebhookNotification) (ledger.Outcome, error) {
	s.notifications++
	return ledger.Outcome{}, nil
}

func (s *stubService) GetCheckoutConfig(ctx context.Context, testMode bool, price *decimal.Decimal) (*payment.CheckoutConfigResponse, error) {
	return &payment.CheckoutConfigResponse{Success: true, ProductPrice: 289, MaxInstallments: 6}, nil
}

func (s *stubService) GetPaymentStatus(ctx context.Context, id string) (*payment.PaymentStatusResponse, error) {
	return &payment.PaymentStatusResponse{Success: true, PaymentID: id, Status: "CREATED"}, nil
}

var _ = Describe("RegisterAllRoutes", func() {
	var (
		router  *chi.Mux
		svc     *stubService
		storage error
	)

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		base := transport.NewBaseHandler(logger)
		svc = &stubService{}
		storage = nil

		webhooks, err := payment.NewWebhookHandler(base, svc, payment.WebhookSettings{PublicURL: "http://localhost:3001"})
		Expect(err).ToNot(HaveOccurred())
		health := rest.NewHealthHandler(map[string]rest.Pinger{
			"storage": rest.PingerFunc(func(ctx context.Context) error { return storage }),
		})

		router = chi.NewRouter()
		rest.RegisterAllRoutes(router, rest.RouterConfig{FrontendURL: "http://localhost:3000"},
			health, payment.NewHandler(base, svc), webhooks, logger)
	})

	serve := func(method, target, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, req)
		return recorder
	}

	It("answers the liveness check", func() {
		recorder := serve(http.MethodGet, "/health", "")
		Expect(recorder.Code).To(Equal(http.StatusOK))

		var body map[string]string
		Expect(json.Unmarshal(recorder.Body.Bytes(), &body)).To(Succeed())
		Expect(body["status"]).To(Equal("ok"))
		Expect(body).To(HaveKey("timestamp"))
	})

	It("reports an unreachable store on the readiness check", func() {
		Expect(serve(http.MethodGet, "/health/ready", "").Code).To(Equal(http.StatusOK))

		storage = errors.New("connection refused")
		recorder := serve(http.MethodGet, "/health/ready", "")
		Expect(recorder.Code).To(Equal(http.StatusServiceUnavailable))
		Expect(recorder.Body.String()).To(ContainSubstring("connection refused"))
	})

	It("accepts notifications on both webhook paths", func() {
		body := `{"id":"evt_1","event":"PAYMENT_CREATED","payment":{"id":"pay_1"}}`
		Expect(serve(http.MethodPost, "/api/webhook/gateway", body).Code).To(Equal(http.StatusOK))
		Expect(serve(http.MethodPost, "/api/webhook/asaas", `{"id":"evt_2","event":"PAYMENT_CREATED","payment":{"id":"pay_1"}}`).Code).To(Equal(http.StatusOK))
		Expect(svc.notifications).To(Equal(2))
	})

	It("routes the status path parameter", func() {
		recorder := serve(http.MethodGet, "/api/payments/pay_123/status", "")
		Expect(recorder.Code).To(Equal(http.StatusOK))
		Expect(recorder.Body.String()).To(ContainSubstring(`"paymentId":"pay_123"`))
	})

	It("serves the checkout config", func() {
		recorder := serve(http.MethodGet, "/api/payments/config", "")
		Expect(recorder.Code).To(Equal(http.StatusOK))
		Expect(recorder.Body.String()).To(ContainSubstring(`"maxInstallments":6`))
	})
})
