package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/idempotency"
	"github.com/jackc/pgx/v5"
)

type IdempotencyRepository struct {
	db *DB
}

func NewIdempotencyRepository(db *DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

var _ idempotency.Store = (*IdempotencyRepository)(nil)

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	query := `
		SELECT key, fingerprint, result, created_at, expires_at
		FROM idempotency_records
		WHERE key = $1
	`
	var m IdempotencyRecordModel

	err := r.db.Pool.QueryRow(ctx, query, key).Scan(
		&m.Key,
		&m.Fingerprint,
		&m.Result,
		&m.CreatedAt,
		&m.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, idempotency.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load idempotency record: %w", err)
	}

	return toIdempotencyRecord(m), nil
}

// Put inserts the record unless a live one holds the key. The conflict
// branch only overwrites rows that had expired when the new record was made.
func (r *IdempotencyRepository) Put(ctx context.Context, record idempotency.Record) error {
	query := `
		INSERT INTO idempotency_records (key, fingerprint, result, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE
		SET fingerprint = EXCLUDED.fingerprint,
			result = EXCLUDED.result,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
		WHERE idempotency_records.expires_at <= EXCLUDED.created_at
	`

	results, err := r.db.Pool.Exec(ctx, query,
		record.Key,
		record.Fingerprint,
		record.Result,
		record.CreatedAt,
		record.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store idempotency record: %w", err)
	}

	if results.RowsAffected() == 0 {
		return idempotency.ErrRecordExists
	}
	return nil
}

// DeleteExpired removes records that expired before now.
func (r *IdempotencyRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	results, err := r.db.Pool.Exec(ctx, `DELETE FROM idempotency_records WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired idempotency records: %w", err)
	}
	return results.RowsAffected(), nil
}
