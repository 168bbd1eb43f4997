package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gsPatrick/nutri-lp/internal"
	"github.com/gsPatrick/nutri-lp/internal/payment"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start background workers that keep the payment ledger in step with the gateway.`,
}

var reconcileWorkerCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Poll the gateway for pending payments",
	Long:  `Fetch every pending payment from the gateway and apply its current status, covering lost webhooks.`,
	Run: func(cmd *cobra.Command, args []string) {
		startReconcileWorker()
	},
}

var (
	reconcileWorkers  int
	reconcileInterval time.Duration
	reconcileOnce     bool
)

func startReconcileWorker() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := requireSharedStore(config.Storage.Driver); err != nil {
		fmt.Fprintf(os.Stderr, "Cannot start reconcile worker: %v\n", err)
		os.Exit(1)
	}

	deps, err := initializeDependencies(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	lg := deps.Logger

	workers := getIntFlag(reconcileWorkers, deps.Config.Payment.ReconcileWorkers)
	interval := reconcileInterval
	if interval <= 0 {
		interval = deps.Config.Payment.ReconcileInterval
	}
	reconciler := payment.NewReconciler(deps.PaymentService, workers, lg)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		deps.Close(shutdownCtx)
	}()

	if reconcileOnce {
		summary, err := reconciler.RunOnce(ctx)
		if err != nil {
			lg.Error("reconciliation failed", "error", err)
			return
		}
		lg.Info("reconciliation complete", "checked", summary.Checked, "changed", summary.Changed, "failed", summary.Failed)
		return
	}

	lg.Info("reconcile worker is running. Press Ctrl+C to stop.", "workers", workers, "interval", interval)
	if err := reconciler.Run(ctx, interval); err != nil {
		lg.Error("reconcile worker stopped", "error", err)
	}
	lg.Info("reconcile worker shutdown complete")
}

// requireSharedStore rejects drivers whose records live only inside the server
// process; a separate worker would reconcile an empty ledger.
func requireSharedStore(driver string) error {
	switch driver {
	case internal.StoragePostgres, internal.StorageRedis:
		return nil
	case internal.StorageMemory:
		return fmt.Errorf("storage.driver %q is private to the server process, run the server with --reconcile instead", driver)
	default:
		return fmt.Errorf("unknown storage.driver %q", driver)
	}
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	reconcileWorkerCmd.Flags().IntVar(&reconcileWorkers, "workers", 0, "Concurrent gateway lookups (overrides config)")
	reconcileWorkerCmd.Flags().DurationVar(&reconcileInterval, "interval", 0, "Time between passes (overrides config)")
	reconcileWorkerCmd.Flags().BoolVar(&reconcileOnce, "once", false, "Run a single pass and exit")

	workerCmd.AddCommand(reconcileWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
