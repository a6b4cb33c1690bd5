package application

import (
	"context"
	"time"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
)

// TransactionStore is the port for transaction persistence. Writes append
// their TransitionRecord in the same atomic step as the state change.
type TransactionStore interface {
	// Create stores a new transaction with its initial history record.
	Create(ctx context.Context, tx *domain.Transaction, record domain.TransitionRecord) error
	// Load returns a NotFoundError for unknown ids.
	Load(ctx context.Context, id string) (*domain.Transaction, error)
	// SaveWithVersion replaces the stored transaction only if its version is
	// still expectedVersion, else returns a StaleVersion ConcurrencyError.
	SaveWithVersion(ctx context.Context, tx *domain.Transaction, expectedVersion int64, record domain.TransitionRecord) error
	History(ctx context.Context, id string) ([]domain.TransitionRecord, error)
	FindByOrder(ctx context.Context, merchantID, orderID string) ([]*domain.Transaction, error)
	// FindExpired returns pending transactions whose deadline is before now.
	FindExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Transaction, error)
	// FindStuck returns transactions in one of statuses not updated since olderThan.
	FindStuck(ctx context.Context, statuses []domain.Status, olderThan time.Time, limit int) ([]*domain.Transaction, error)
}

// MerchantAccountLookup resolves merchant credentials. Unknown merchants are
// reported with a NotFoundError.
type MerchantAccountLookup interface {
	FindMerchant(ctx context.Context, merchantID string) (*domain.MerchantAccount, error)
}

// InitCheck is what a BusinessRuleHook sees before a transaction is opened.
type InitCheck struct {
	MerchantID string
	OrderID    string
	Amount     int64
	Currency   string
}

// BusinessRuleHook lets external policy veto an Init. A returned error is
// surfaced to the merchant as-is, so hooks should return domain errors.
type BusinessRuleHook interface {
	ValidateInit(ctx context.Context, check InitCheck) error
}

// EventPublisher receives every committed transition.
type EventPublisher interface {
	Publish(ctx context.Context, record domain.TransitionRecord) error
}

