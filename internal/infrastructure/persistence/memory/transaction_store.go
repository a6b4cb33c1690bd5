// Package memory holds process-local stores used by the memory database
// driver and by tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/application"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
)

// TransactionStore keeps transactions and their history in memory. Every
// read and write copies, so callers never share snapshots with the store.
type TransactionStore struct {
	mu           sync.RWMutex
	transactions map[string]*domain.Transaction
	history      map[string][]domain.TransitionRecord
}

func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		transactions: make(map[string]*domain.Transaction),
		history:      make(map[string][]domain.TransitionRecord),
	}
}

func (s *TransactionStore) Create(_ context.Context, tx *domain.Transaction, record domain.TransitionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[tx.ID]; exists {
		return domain.NewInternalError(errDuplicateID(tx.ID))
	}
	s.transactions[tx.ID] = tx.Clone()
	s.history[tx.ID] = append(s.history[tx.ID], record)
	return nil
}

func (s *TransactionStore) Load(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, domain.NewTransactionNotFoundError(id)
	}
	return tx.Clone(), nil
}

func (s *TransactionStore) SaveWithVersion(_ context.Context, tx *domain.Transaction, expectedVersion int64, record domain.TransitionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.transactions[tx.ID]
	if !ok {
		return domain.NewTransactionNotFoundError(tx.ID)
	}
	if current.Version != expectedVersion {
		return domain.NewStaleVersionError(tx.ID, expectedVersion)
	}
	s.transactions[tx.ID] = tx.Clone()
	s.history[tx.ID] = append(s.history[tx.ID], record)
	return nil
}

func (s *TransactionStore) History(_ context.Context, id string) ([]domain.TransitionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.transactions[id]; !ok {
		return nil, domain.NewTransactionNotFoundError(id)
	}
	return slices.Clone(s.history[id]), nil
}

func (s *TransactionStore) FindByOrder(_ context.Context, merchantID, orderID string) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Transaction
	for _, tx := range s.transactions {
		if tx.MerchantID == merchantID && tx.MerchantOrderID == orderID {
			out = append(out, tx.Clone())
		}
	}
	sortByCreation(out)
	return out, nil
}

func (s *TransactionStore) FindExpired(_ context.Context, now time.Time, limit int) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Transaction
	for _, tx := range s.transactions {
		if tx.Status.IsPending() && tx.ExpiresAt.Before(now) {
			out = append(out, tx.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *domain.Transaction) int {
		return a.ExpiresAt.Compare(b.ExpiresAt)
	})
	return truncate(out, limit), nil
}

func (s *TransactionStore) FindStuck(_ context.Context, statuses []domain.Status, olderThan time.Time, limit int) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Transaction
	for _, tx := range s.transactions {
		if slices.Contains(statuses, tx.Status) && tx.UpdatedAt.Before(olderThan) {
			out = append(out, tx.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *domain.Transaction) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})
	return truncate(out, limit), nil
}

func errDuplicateID(id string) error {
	return fmt.Errorf("transaction %s already exists", id)
}

func sortByCreation(txs []*domain.Transaction) {
	slices.SortFunc(txs, func(a, b *domain.Transaction) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

func truncate(txs []*domain.Transaction, limit int) []*domain.Transaction {
	if limit > 0 && len(txs) > limit {
		return txs[:limit]
	}
	return txs
}

// Compile-time check: ensure TransactionStore implements the port
var _ application.TransactionStore = (*TransactionStore)(nil)
