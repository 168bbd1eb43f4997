package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/gsPatrick/nutri-lp/internal/payment"
	"github.com/gsPatrick/nutri-lp/internal/transport/middleware"
	"github.com/gsPatrick/nutri-lp/internal/transport/swagger"
)

type RouterConfig struct {
	FrontendURL string
	// OpenAPIPath is the file served at /openapi.yml.
	OpenAPIPath string
}

func RegisterAllRoutes(router *chi.Mux, cfg RouterConfig, healthHandler *HealthHandler, paymentHandler *payment.Handler, webhookHandler *payment.WebhookHandler, logger *slog.Logger) {
	if cfg.OpenAPIPath == "" {
		cfg.OpenAPIPath = "./api/openapi.yml"
	}

	router.Use(middleware.CORS(cfg.FrontendURL))
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	router.Get(swagger.DefaultSpecURL, func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, cfg.OpenAPIPath)
	})
	router.Handle("/swagger/*", swagger.Handler(swagger.DefaultSpecURL))

	if healthHandler != nil {
		router.Get("/health", healthHandler.liveness)
		router.Get("/health/ready", healthHandler.readiness)
	}

	router.Route("/api", func(r chi.Router) {
		if paymentHandler != nil {
			r.Route("/payments", func(pr chi.Router) {
				pr.Get("/config", paymentHandler.GetCheckoutConfig)     // GET /payments/config
				pr.Post("/pix", paymentHandler.CreatePixPayment)        // POST /payments/pix
				pr.Post("/card", paymentHandler.CreateCardPayment)      // POST /payments/card
				pr.Post("/checkout", paymentHandler.CreateCheckout)     // POST /payments/checkout
				pr.Get("/{id}/status", paymentHandler.GetPaymentStatus) // GET /payments/:id/status
			})
		}

		if webhookHandler != nil {
			r.Route("/webhook", func(wr chi.Router) {
				wr.Post("/gateway", webhookHandler.HandleNotification)
				// path already registered in the gateway dashboard
				wr.Post("/asaas", webhookHandler.HandleNotification)
				wr.Get("/confirmed/{externalRef}", webhookHandler.HandleConfirmed)
				wr.Get("/test", webhookHandler.HandleTest)
			})
		}
	})
}
