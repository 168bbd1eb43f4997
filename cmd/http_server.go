package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"

	"github.com/gsPatrick/nutri-lp/internal/payment"
	"github.com/gsPatrick/nutri-lp/internal/transport"
	"github.com/gsPatrick/nutri-lp/internal/transport/rest"
)

var (
	httpServerCmd = &cobra.Command{
		Use:   "server",
		Short: "Start HTTP server",
		Long:  `Start the HTTP server to handle checkout API requests and gateway webhooks`,
		Run: func(cmd *cobra.Command, args []string) {
			startHTTPServer()
		},
	}
	withReconciler bool
)

func startHTTPServer() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	lg := deps.Logger

	router, err := setupRoutes(deps)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up routes: %v\n", err)
		os.Exit(1)
	}

	cfg := deps.Config.Server
	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	if withReconciler && deps.Config.Payment.ReconcileInterval > 0 {
		reconciler := payment.NewReconciler(deps.PaymentService, deps.Config.Payment.ReconcileWorkers, lg)
		go func() {
			_ = reconciler.Run(ctx, deps.Config.Payment.ReconcileInterval)
		}()
		lg.Info("background reconciliation enabled", "interval", deps.Config.Payment.ReconcileInterval)
	}

	serverErrChan := make(chan error, 1)
	go func() {
		lg.Info("Starting HTTP server", "address", addr, "public_url", cfg.PublicURL)
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		lg.Info("Received signal, shutting down...")
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			lg.Error("Server failed to start", "error", err)
			deps.Close(context.Background())
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error("Server shutdown error", "error", err)
	}
	deps.Close(shutdownCtx)

	slog.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) (*chi.Mux, error) {
	base := transport.NewBaseHandler(deps.Logger)

	webhookHandler, err := payment.NewWebhookHandler(base, deps.PaymentService, payment.WebhookSettings{
		Token:      deps.Config.Webhook.Token,
		PublicURL:  deps.Config.Server.PublicURL,
		DedupeSize: deps.Config.Webhook.DedupeSize,
	})
	if err != nil {
		return nil, err
	}
	if deps.Config.Webhook.Token == "" {
		deps.Logger.Warn("webhook token is empty, notifications are not authenticated")
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router,
		rest.RouterConfig{FrontendURL: deps.Config.Server.FrontendURL},
		rest.NewHealthHandler(deps.Pingers()),
		payment.NewHandler(base, deps.PaymentService),
		webhookHandler,
		deps.Logger,
	)
	return router, nil
}

func init() {
	httpServerCmd.Flags().BoolVar(&withReconciler, "reconcile", true, "poll the gateway for pending payments every payment.reconcile_interval")
}
