package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
	"golang.org/x/sync/errgroup"
)

// runEvery calls fn once right away and then on every tick until ctx ends.
func runEvery(ctx context.Context, interval time.Duration, name string, logger *slog.Logger, fn func(ctx context.Context) error) {
	logger.Info(name+" started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := fn(ctx); err != nil {
		logger.Error(name+" run failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info(name + " stopping")
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				logger.Error(name+" run failed", "error", err)
			}
		}
	}
}

// fanOut runs fn over txs with at most limit in flight and returns how many
// succeeded. A failure is logged and does not stop the others.
func fanOut(ctx context.Context, txs []*domain.Transaction, limit int, logger *slog.Logger, fn func(ctx context.Context, tx *domain.Transaction) error) int {
	var succeeded atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(max(limit, 1))
	for _, tx := range txs {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if err := fn(ctx, tx); err != nil {
				logTransitionFailure(logger, tx, err)
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return int(succeeded.Load())
}

// A transaction that moved on since it was listed is not a failure.
func logTransitionFailure(logger *slog.Logger, tx *domain.Transaction, err error) {
	switch {
	case domain.IsKind(err, domain.KindInvalidTransition):
		logger.Debug("transaction moved on before the worker reached it",
			"transaction_id", tx.ID,
			"status", tx.Status,
			"error", err,
		)
	case domain.IsKind(err, domain.KindConcurrency):
		logger.Warn("transaction busy, retrying next run",
			"transaction_id", tx.ID,
			"error", err,
		)
	default:
		logger.Error("failed to transition transaction",
			"transaction_id", tx.ID,
			"status", tx.Status,
			"error", err,
		)
	}
}
