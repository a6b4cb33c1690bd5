package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/application/services"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/application/services/testhelpers"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/config"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func workerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		Interval:    time.Second,
		BatchSize:   10,
		Concurrency: 4,
		StuckAfter:  5 * time.Minute,
	}
}

func TestReconciler_CompletesStuckTransactions(t *testing.T) {
	ctx := context.Background()
	env := testhelpers.NewMemoryEnv(nil, nil)

	// confirm interrupted between its two steps
	confirming := env.CreateAuthorizedTransaction(t, ctx, 1000)
	_, err := env.Coordinator.Apply(ctx, services.TransitionRequest{
		TransactionID: confirming.TransactionID,
		Target:        domain.StatusConfirming,
		Amount:        1000,
		Actor:         domain.ActorMerchant,
		Reason:        domain.ReasonMerchantRequest,
	})
	require.NoError(t, err)

	env.Clock.Advance(10 * time.Minute)

	// a reversal still inside the grace period
	reversing := env.CreateAuthorizedTransaction(t, ctx, 500)
	_, err = env.Coordinator.Apply(ctx, services.TransitionRequest{
		TransactionID: reversing.TransactionID,
		Target:        domain.StatusReversing,
		Actor:         domain.ActorMerchant,
		Reason:        domain.ReasonMerchantRequest,
	})
	require.NoError(t, err)

	r := worker.NewReconciler(env.Store, env.Coordinator, workerConfig(), env.Logger)

	completed, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)

	tx, err := env.Store.Load(ctx, confirming.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, tx.Status)

	history, err := env.Store.History(ctx, confirming.TransactionID)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, domain.ReasonStuckRecovery, last.ReasonCode)
	assert.Equal(t, domain.ActorSystem, last.Actor)

	tx, err = env.Store.Load(ctx, reversing.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReversing, tx.Status)

	env.Clock.Advance(10 * time.Minute)
	completed, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)

	tx, err = env.Store.Load(ctx, reversing.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReversed, tx.Status)
}

func TestReconciler_NothingStuck(t *testing.T) {
	ctx := context.Background()
	env := testhelpers.NewMemoryEnv(nil, nil)
	env.CreateAuthorizedTransaction(t, ctx, 1000)
	env.Clock.Advance(time.Hour)

	completed, err := worker.NewReconciler(env.Store, env.Coordinator, workerConfig(), env.Logger).RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, completed)
}
