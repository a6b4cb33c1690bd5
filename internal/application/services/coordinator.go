package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/application"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/config"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/locking"
)

// TransitionRequest asks the coordinator to move one transaction to Target.
type TransitionRequest struct {
	TransactionID string
	Target        domain.Status
	// Amount is the requested amount for amount-bearing transitions
	// (confirm, refund step, reversal); zero elsewhere.
	Amount int64
	Actor  domain.Actor
	Reason domain.ReasonCode
}

// Coordinator is the only writer of transaction state. Every transition runs
// under the transaction's lease: load, decide, persist with a version check,
// publish.
type Coordinator struct {
	store     application.TransactionStore
	locks     *locking.Manager
	machine   *domain.StateMachine
	publisher application.EventPublisher
	lockTTL   time.Duration
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func NewCoordinator(
	store application.TransactionStore,
	locks *locking.Manager,
	publisher application.EventPublisher,
	cfg config.LifecycleConfig,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		store:     store,
		locks:     locks,
		machine:   domain.NewStateMachine(),
		publisher: publisher,
		lockTTL:   cfg.LockTTL,
		timeout:   cfg.LockTimeout,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock replaces the coordinator's time source.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

func (c *Coordinator) Now() time.Time {
	return c.now()
}

func transactionLockKey(id string) string {
	return "tx:" + id
}

// Apply performs one transition. A refusal by the state machine leaves the
// transaction untouched and is returned as a typed domain error. Once the
// lease is held the write is not interrupted by ctx cancellation.
func (c *Coordinator) Apply(ctx context.Context, req TransitionRequest) (*domain.Transaction, error) {
	return c.ApplyAll(ctx, req)
}

// ApplyAll performs consecutive transitions of one transaction under a single
// lease, so other callers never observe the intermediate states. Steps that
// committed before a failing one stay committed.
func (c *Coordinator) ApplyAll(ctx context.Context, steps ...TransitionRequest) (*domain.Transaction, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("no transition requested")
	}
	id := steps[0].TransactionID
	for _, step := range steps[1:] {
		if step.TransactionID != id {
			return nil, fmt.Errorf("transitions span transactions %s and %s", id, step.TransactionID)
		}
	}

	var next *domain.Transaction
	err := c.withLease(ctx, transactionLockKey(id), func(ctx context.Context, lease *locking.Lease) error {
		for _, step := range steps {
			tx, err := c.applyLocked(ctx, lease, step)
			if err != nil {
				return err
			}
			next = tx
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (c *Coordinator) applyLocked(ctx context.Context, lease *locking.Lease, req TransitionRequest) (*domain.Transaction, error) {
	current, err := c.store.Load(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}

	now := c.now()
	allowed, reason := c.machine.CanTransition(current.Status, req.Target, current.TransitionContext(now, req.Amount))
	if !allowed {
		c.logger.Info("transition denied",
			"transaction_id", current.ID,
			"merchant_id", current.MerchantID,
			"from", current.Status,
			"to", req.Target,
			"reason", reason,
			"allowed", c.machine.AllowedTargets(current.Status),
		)
		return nil, domain.NewTransitionDeniedError(current, req.Target, reason)
	}

	candidate := current.Advance(req.Target, req.Amount, now)
	record := domain.NewTransitionRecord(current, candidate, req.Reason, req.Actor, req.Amount)

	// the write gets exactly the renewed lease, never more
	if err := c.locks.Renew(lease, c.lockTTL); err != nil {
		c.logger.Warn("lease lost before write",
			"transaction_id", current.ID,
			"to", req.Target,
		)
		return nil, fmt.Errorf("%w: %w", domain.NewStaleVersionError(current.ID, current.Version), err)
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.lockTTL)
	defer cancel()

	if err := c.store.SaveWithVersion(writeCtx, candidate, current.Version, record); err != nil {
		return nil, err
	}

	c.logger.Info("transaction transitioned",
		"transaction_id", candidate.ID,
		"merchant_id", candidate.MerchantID,
		"from", record.FromStatus,
		"to", record.ToStatus,
		"reason", record.ReasonCode,
		"actor", record.Actor,
		"version", candidate.Version,
	)
	c.publish(writeCtx, record)

	return candidate, nil
}

// Create persists a freshly opened transaction and its initial record.
func (c *Coordinator) Create(ctx context.Context, tx *domain.Transaction, actor domain.Actor) error {
	record := domain.NewTransitionRecord(nil, tx, domain.ReasonMerchantRequest, actor, tx.Amount)

	if err := c.store.Create(ctx, tx, record); err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}

	c.logger.Info("transaction created",
		"transaction_id", tx.ID,
		"merchant_id", tx.MerchantID,
		"order_id", tx.MerchantOrderID,
		"amount", tx.Amount,
		"currency", tx.Currency,
	)
	c.publish(ctx, record)
	return nil
}

// WithLease runs fn while holding the lease on key.
func (c *Coordinator) WithLease(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return c.withLease(ctx, key, func(ctx context.Context, _ *locking.Lease) error {
		return fn(ctx)
	})
}

func (c *Coordinator) withLease(ctx context.Context, key string, fn func(ctx context.Context, lease *locking.Lease) error) error {
	lease, err := c.locks.Acquire(ctx, key, c.lockTTL, c.timeout)
	if err != nil {
		if domain.IsKind(err, domain.KindConcurrency) {
			c.logger.Warn("lock acquisition timed out", "key", key, "timeout", c.timeout)
		}
		return err
	}
	defer func() {
		if err := c.locks.Release(lease); err != nil {
			c.logger.Warn("lease expired before release", "key", key, "error", err)
		}
	}()

	return fn(ctx, lease)
}

// publish is best-effort; a failure never changes the outcome.
func (c *Coordinator) publish(ctx context.Context, record domain.TransitionRecord) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, record); err != nil {
		c.logger.Warn("failed to publish transition",
			"transaction_id", record.TransactionID,
			"to", record.ToStatus,
			"error", err,
		)
	}
}
