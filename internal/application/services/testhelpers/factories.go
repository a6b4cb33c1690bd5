package testhelpers

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/application"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/application/services"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/config"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/idempotency"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/infrastructure/persistence/memory"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/locking"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/security"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const (
	MerchantID     = "shop-1"
	MerchantSecret = "s3cret"
	OtherMerchant  = "shop-2"
	OtherSecret    = "other-s3cret"
	PaymentBaseURL = "https://pay.example.test"
)

// Clock is a settable time source shared by the coordinator and the guards.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Now().UTC().Truncate(time.Microsecond)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Env is a fully wired lifecycle over the given stores.
type Env struct {
	Store       application.TransactionStore
	Merchants   application.MerchantAccountLookup
	Auth        *security.TokenAuthenticator
	Locks       *locking.Manager
	Coordinator *services.Coordinator
	Service     *services.LifecycleService
	Clock       *Clock
	Config      config.LifecycleConfig
	Logger      *slog.Logger
}

func DefaultLifecycleConfig() config.LifecycleConfig {
	return config.LifecycleConfig{
		LockTTL:         2 * time.Second,
		LockTimeout:     2 * time.Second,
		IdempotencyTTL:  time.Hour,
		TransactionTTL:  30 * time.Minute,
		MaxAttempts:     3,
		DefaultCurrency: "RUB",
		Retry: config.RetryConfig{
			BaseDelay:  time.Millisecond,
			MaxRetries: 2,
		},
	}
}

func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewMemoryEnv wires the lifecycle over in-memory stores.
func NewMemoryEnv(publisher application.EventPublisher, rules application.BusinessRuleHook) *Env {
	return NewEnv(memory.NewTransactionStore(), idempotency.NewMemoryStore(), publisher, rules, DefaultLifecycleConfig())
}

// FixtureMerchants are the accounts every Env authenticates against.
func FixtureMerchants() []domain.MerchantAccount {
	return []domain.MerchantAccount{
		{MerchantID: MerchantID, Secret: MerchantSecret, IsActive: true},
		{MerchantID: OtherMerchant, Secret: OtherSecret, IsActive: true},
		{MerchantID: "shop-closed", Secret: "closed", IsActive: false},
	}
}

func NewEnv(
	store application.TransactionStore,
	idem idempotency.Store,
	publisher application.EventPublisher,
	rules application.BusinessRuleHook,
	cfg config.LifecycleConfig,
) *Env {
	return NewEnvWithMerchants(store, idem, memory.NewMerchantStore(FixtureMerchants()...), publisher, rules, cfg)
}

// NewEnvWithMerchants is NewEnv over an explicit merchant lookup, which must
// hold FixtureMerchants.
func NewEnvWithMerchants(
	store application.TransactionStore,
	idem idempotency.Store,
	merchants application.MerchantAccountLookup,
	publisher application.EventPublisher,
	rules application.BusinessRuleHook,
	cfg config.LifecycleConfig,
) *Env {
	logger := DiscardLogger()
	clock := NewClock()

	auth := security.NewTokenAuthenticator()
	locks := locking.NewManager(locking.WithPollInterval(time.Millisecond))
	coordinator := services.NewCoordinator(store, locks, publisher, cfg, logger).WithClock(clock.Now)

	return &Env{
		Store:       store,
		Merchants:   merchants,
		Auth:        auth,
		Locks:       locks,
		Coordinator: coordinator,
		Service: services.NewLifecycleService(
			store, merchants, auth, coordinator, idem, rules, cfg, PaymentBaseURL, logger,
		),
		Clock:  clock,
		Config: cfg,
		Logger: logger,
	}
}

func (e *Env) Sign(fields map[string]any) string {
	return e.Auth.Sign(fields, MerchantSecret)
}

// InitCommand returns a signed Init for a fresh order.
func (e *Env) InitCommand(amount int64) services.InitCommand {
	cmd := services.InitCommand{
		MerchantID: MerchantID,
		OrderID:    "order-" + uuid.NewString(),
		Amount:     amount,
	}
	cmd.Token = e.Sign(cmd.SignedFields())
	return cmd
}

func (e *Env) ConfirmCommand(transactionID string, amount int64, externalID string) services.ConfirmCommand {
	cmd := services.ConfirmCommand{
		MerchantID:        MerchantID,
		TransactionID:     transactionID,
		Amount:            amount,
		ExternalRequestID: externalID,
	}
	cmd.Token = e.Sign(cmd.SignedFields())
	return cmd
}

func (e *Env) CancelCommand(transactionID string, amount int64, externalID string) services.CancelCommand {
	cmd := services.CancelCommand{
		MerchantID:        MerchantID,
		TransactionID:     transactionID,
		Amount:            amount,
		ExternalRequestID: externalID,
	}
	cmd.Token = e.Sign(cmd.SignedFields())
	return cmd
}

func (e *Env) StateCommand(transactionID string) services.GetStateCommand {
	cmd := services.GetStateCommand{MerchantID: MerchantID, TransactionID: transactionID}
	cmd.Token = e.Sign(cmd.SignedFields())
	return cmd
}

// CreateTransaction opens a transaction through Init.
func (e *Env) CreateTransaction(t *testing.T, ctx context.Context, amount int64) services.TransactionView {
	t.Helper()
	res, err := e.Service.Init(ctx, e.InitCommand(amount))
	require.NoError(t, err)
	require.Equal(t, domain.StatusCreated, res.Transaction.Status)
	return res.Transaction
}

// CreateAuthorizedTransaction drives a new transaction through the
// processor events up to AUTHORIZED.
func (e *Env) CreateAuthorizedTransaction(t *testing.T, ctx context.Context, amount int64) services.TransactionView {
	t.Helper()
	tx := e.CreateTransaction(t, ctx, amount)

	var view *services.TransactionView
	for _, ev := range []services.ProcessorEvent{
		services.EventFormShown,
		services.EventVerificationStarted,
		services.EventAuthorizationStarted,
		services.EventAuthorizationApproved,
	} {
		var err error
		view, err = e.Service.HandleProcessorEvent(ctx, tx.TransactionID, ev)
		require.NoError(t, err)
	}
	require.Equal(t, domain.StatusAuthorized, view.Status)
	return *view
}

func (e *Env) CreateConfirmedTransaction(t *testing.T, ctx context.Context, amount int64) services.TransactionView {
	t.Helper()
	tx := e.CreateAuthorizedTransaction(t, ctx, amount)

	_, err := e.Service.Confirm(ctx, e.ConfirmCommand(tx.TransactionID, 0, ""))
	require.NoError(t, err)

	loaded, err := e.Store.Load(ctx, tx.TransactionID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusConfirmed, loaded.Status)
	return services.NewTransactionView(loaded)
}

// CountRecords returns how many history records moved the transaction to status.
func (e *Env) CountRecords(t *testing.T, ctx context.Context, transactionID string, status domain.Status) int {
	t.Helper()
	history, err := e.Store.History(ctx, transactionID)
	require.NoError(t, err)
	n := 0
	for _, r := range history {
		if r.ToStatus == status {
			n++
		}
	}
	return n
}
