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

// IdempotencyPurger drops idempotency records that can no longer be replayed.
type IdempotencyPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ExpirationWorker moves pending transactions past their deadline to EXPIRED
// through the coordinator, so it waits on the same leases as merchant calls.
type ExpirationWorker struct {
	store       application.TransactionStore
	coordinator *services.Coordinator
	purger      IdempotencyPurger
	interval    time.Duration
	batchSize   int
	concurrency int
	logger      *slog.Logger
}

func NewExpirationWorker(
	store application.TransactionStore,
	coordinator *services.Coordinator,
	cfg config.WorkerConfig,
	logger *slog.Logger,
) *ExpirationWorker {
	return &ExpirationWorker{
		store:       store,
		coordinator: coordinator,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		logger:      logger,
	}
}

// WithPurger also removes expired idempotency records on every sweep.
func (w *ExpirationWorker) WithPurger(p IdempotencyPurger) *ExpirationWorker {
	w.purger = p
	return w
}

func (w *ExpirationWorker) Start(ctx context.Context) {
	runEvery(ctx, w.interval, "expiration worker", w.logger, func(ctx context.Context) error {
		_, err := w.SweepOnce(ctx)
		return err
	})
}

// SweepOnce expires one batch and returns how many transactions it expired.
func (w *ExpirationWorker) SweepOnce(ctx context.Context) (int, error) {
	now := w.coordinator.Now()

	txs, err := w.store.FindExpired(ctx, now, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("find expired transactions: %w", err)
	}

	expired := 0
	if len(txs) > 0 {
		expired = fanOut(ctx, txs, w.concurrency, w.logger, w.expire)
		w.logger.Info("processed expiration sweep",
			"found", len(txs),
			"marked_expired", expired,
		)
	}

	if w.purger != nil {
		purged, err := w.purger.DeleteExpired(ctx, now)
		if err != nil {
			return expired, fmt.Errorf("purge idempotency records: %w", err)
		}
		if purged > 0 {
			w.logger.Info("purged idempotency records", "count", purged)
		}
	}

	return expired, nil
}

func (w *ExpirationWorker) expire(ctx context.Context, tx *domain.Transaction) error {
	_, err := w.coordinator.Apply(ctx, services.TransitionRequest{
		TransactionID: tx.ID,
		Target:        domain.StatusExpired,
		Actor:         domain.ActorSystem,
		Reason:        domain.ReasonDeadlineSweep,
	})
	return err
}
