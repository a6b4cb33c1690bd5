package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/application"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/application/services"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/config"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
)

// completions maps an intermediate status to the one it always leads to.
var completions = map[domain.Status]domain.Status{
	domain.StatusConfirming: domain.StatusConfirmed,
	domain.StatusReversing:  domain.StatusReversed,
}

// Reconciler finishes transactions left between the two steps of a confirm
// or reversal, e.g. after a crash.
type Reconciler struct {
	store       application.TransactionStore
	coordinator *services.Coordinator
	stuckAfter  time.Duration
	interval    time.Duration
	batchSize   int
	concurrency int
	logger      *slog.Logger
}

func NewReconciler(
	store application.TransactionStore,
	coordinator *services.Coordinator,
	cfg config.WorkerConfig,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		store:       store,
		coordinator: coordinator,
		stuckAfter:  cfg.StuckAfter,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		logger:      logger,
	}
}

func (r *Reconciler) Start(ctx context.Context) {
	runEvery(ctx, r.interval, "reconciler", r.logger, func(ctx context.Context) error {
		_, err := r.RunOnce(ctx)
		return err
	})
}

// RunOnce executes a single reconciliation cycle.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	olderThan := r.coordinator.Now().Add(-r.stuckAfter)

	statuses := make([]domain.Status, 0, len(completions))
	for s := range completions {
		statuses = append(statuses, s)
	}

	stuck, err := r.store.FindStuck(ctx, statuses, olderThan, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("find stuck transactions: %w", err)
	}
	if len(stuck) == 0 {
		return 0, nil
	}

	r.logger.Info("reconciling stuck transactions", "count", len(stuck))
	completed := fanOut(ctx, stuck, r.concurrency, r.logger, r.complete)
	r.logger.Info("reconciliation finished", "found", len(stuck), "completed", completed)

	return completed, nil
}

func (r *Reconciler) complete(ctx context.Context, tx *domain.Transaction) error {
	target, ok := completions[tx.Status]
	if !ok {
		return nil
	}
	_, err := r.coordinator.Apply(ctx, services.TransitionRequest{
		TransactionID: tx.ID,
		Target:        target,
		Actor:         domain.ActorSystem,
		Reason:        domain.ReasonStuckRecovery,
	})
	return err
}
