package memory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/application"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
	"gopkg.in/yaml.v3"
)

type merchantSeed struct {
	Merchants []struct {
		ID     string `yaml:"id"`
		Secret string `yaml:"secret"`
		Active *bool  `yaml:"active"`
	} `yaml:"merchants"`
}

// MerchantStore is a MerchantAccountLookup over a fixed set of accounts.
type MerchantStore struct {
	mu       sync.RWMutex
	accounts map[string]domain.MerchantAccount
}

func NewMerchantStore(accounts ...domain.MerchantAccount) *MerchantStore {
	s := &MerchantStore{accounts: make(map[string]domain.MerchantAccount)}
	for _, a := range accounts {
		s.accounts[a.MerchantID] = a
	}
	return s
}

// LoadMerchantFile reads accounts from a YAML seed file:
//
//	merchants:
//	  - id: shop-1
//	    secret: s3cret
//	    active: true
func LoadMerchantFile(path string) ([]domain.MerchantAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read merchant seed file: %w", err)
	}
	return ParseMerchants(data)
}

// ParseMerchants decodes a seed document. Accounts are active unless stated.
func ParseMerchants(data []byte) ([]domain.MerchantAccount, error) {
	var seed merchantSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse merchant seed: %w", err)
	}

	accounts := make([]domain.MerchantAccount, 0, len(seed.Merchants))
	for i, m := range seed.Merchants {
		if m.ID == "" || m.Secret == "" {
			return nil, fmt.Errorf("merchant seed entry %d: id and secret are required", i)
		}
		active := true
		if m.Active != nil {
			active = *m.Active
		}
		accounts = append(accounts, domain.MerchantAccount{
			MerchantID: m.ID,
			Secret:     m.Secret,
			IsActive:   active,
		})
	}
	return accounts, nil
}

func (s *MerchantStore) FindMerchant(_ context.Context, merchantID string) (*domain.MerchantAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[merchantID]
	if !ok {
		return nil, domain.NewNotFoundError("merchant", merchantID)
	}
	return &a, nil
}

func (s *MerchantStore) Put(account domain.MerchantAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.MerchantID] = account
}

var _ application.MerchantAccountLookup = (*MerchantStore)(nil)
