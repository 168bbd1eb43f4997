package payment

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gsPatrick/nutri-lp/internal/ledger"
)

const defaultReconcileWorkers = 4

// ReconcileAPI is implemented by Service.
type ReconcileAPI interface {
	PendingRecords(ctx context.Context) ([]*ledger.Record, error)
	Reconcile(ctx context.Context, record *ledger.Record) (ledger.Outcome, error)
}

type ReconcileSummary struct {
	Checked int
	Changed int
	Failed  int
}

// Reconciler polls the gateway for pending records, covering lost webhooks.
type Reconciler struct {
	service ReconcileAPI
	workers int
	logger  *slog.Logger
}

func NewReconciler(service ReconcileAPI, workers int, logger *slog.Logger) *Reconciler {
	if workers <= 0 {
		workers = defaultReconcileWorkers
	}
	return &Reconciler{service: service, workers: workers, logger: logger}
}

// RunOnce checks every pending record once. A failing record is counted and
// does not stop the others.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileSummary, error) {
	records, err := r.service.PendingRecords(ctx)
	if err != nil {
		return ReconcileSummary{}, err
	}

	var changed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, record := range records {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			outcome, err := r.service.Reconcile(gctx, record)
			if err != nil {
				failed.Add(1)
				r.logger.Warn("failed to reconcile payment", "payment_id", record.GatewayPaymentID, "error", err)
				return nil
			}
			if outcome.Changed {
				changed.Add(1)
				r.logger.Info("payment reconciled",
					"payment_id", record.GatewayPaymentID,
					"from", outcome.Previous,
					"to", outcome.Current)
			}
			return nil
		})
	}

	err = g.Wait()
	summary := ReconcileSummary{
		Checked: len(records),
		Changed: int(changed.Load()),
		Failed:  int(failed.Load()),
	}
	r.logger.Info("reconciliation pass finished",
		"checked", summary.Checked,
		"changed", summary.Changed,
		"failed", summary.Failed)
	return summary, err
}

// Run repeats RunOnce every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("reconciliation pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
