package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/application"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
	"github.com/jackc/pgx/v5"
)

// MerchantRepository reads merchant credentials from merchant_accounts.
type MerchantRepository struct {
	db *DB
}

func NewMerchantRepository(db *DB) *MerchantRepository {
	return &MerchantRepository{db: db}
}

var _ application.MerchantAccountLookup = (*MerchantRepository)(nil)

func (r *MerchantRepository) FindMerchant(ctx context.Context, merchantID string) (*domain.MerchantAccount, error) {
	query := `SELECT merchant_id, secret, is_active FROM merchant_accounts WHERE merchant_id = $1`

	var a domain.MerchantAccount
	err := r.db.Pool.QueryRow(ctx, query, merchantID).Scan(&a.MerchantID, &a.Secret, &a.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("merchant", merchantID)
		}
		return nil, fmt.Errorf("failed to load merchant: %w", err)
	}
	return &a, nil
}

// Upsert creates or replaces accounts, as loaded from a seed file.
func (r *MerchantRepository) Upsert(ctx context.Context, accounts ...domain.MerchantAccount) error {
	query := `
		INSERT INTO merchant_accounts (merchant_id, secret, is_active)
		VALUES ($1, $2, $3)
		ON CONFLICT (merchant_id) DO UPDATE
		SET secret = EXCLUDED.secret, is_active = EXCLUDED.is_active
	`
	return r.db.WithTransaction(ctx, func(ctx context.Context, q Executor) error {
		for _, a := range accounts {
			if _, err := q.Exec(ctx, query, a.MerchantID, a.Secret, a.IsActive); err != nil {
				return fmt.Errorf("failed to upsert merchant %s: %w", a.MerchantID, err)
			}
		}
		return nil
	})
}
