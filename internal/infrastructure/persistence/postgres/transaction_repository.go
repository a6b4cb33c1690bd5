package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/application"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `
	id, merchant_id, merchant_order_id, description, amount, authorized_amount, currency,
	status, attempt_count, max_attempts, created_at, updated_at, expires_at,
	authorized_at, confirmed_at, closed_at, version`

// TransactionRepository is the PostgreSQL TransactionStore. A state change and
// its history row are committed in one database transaction.
type TransactionRepository struct {
	db *DB
}

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

var _ application.TransactionStore = (*TransactionRepository)(nil)

func (r *TransactionRepository) Create(ctx context.Context, tx *domain.Transaction, record domain.TransitionRecord) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	m := toDBModel(tx)

	return r.db.WithTransaction(ctx, func(ctx context.Context, q Executor) error {
		_, err := q.Exec(ctx, query,
			m.ID,
			m.MerchantID,
			m.MerchantOrderID,
			m.Description,
			m.Amount,
			m.AuthorizedAmount,
			m.Currency,
			m.Status,
			m.AttemptCount,
			m.MaxAttempts,
			m.CreatedAt,
			m.UpdatedAt,
			m.ExpiresAt,
			m.AuthorizedAt,
			m.ConfirmedAt,
			m.ClosedAt,
			m.Version,
		)
		if err != nil {
			if IsUniqueViolation(err) {
				return domain.NewInternalError(fmt.Errorf("transaction %s already exists", m.ID))
			}
			return fmt.Errorf("failed to create transaction: %w", err)
		}
		return appendHistory(ctx, q, record)
	})
}

// Load retrieves a transaction by id
func (r *TransactionRepository) Load(ctx context.Context, id string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(r.db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewTransactionNotFoundError(id)
	}
	return tx, err
}

func (r *TransactionRepository) SaveWithVersion(ctx context.Context, tx *domain.Transaction, expectedVersion int64, record domain.TransitionRecord) error {
	query := `
		UPDATE transactions
		SET authorized_amount = $1, status = $2, attempt_count = $3, updated_at = $4,
			authorized_at = $5, confirmed_at = $6, closed_at = $7, version = $8
		WHERE id = $9 AND version = $10
	`
	m := toDBModel(tx)

	return r.db.WithTransaction(ctx, func(ctx context.Context, q Executor) error {
		results, err := q.Exec(ctx, query,
			m.AuthorizedAmount,
			m.Status,
			m.AttemptCount,
			m.UpdatedAt,
			m.AuthorizedAt,
			m.ConfirmedAt,
			m.ClosedAt,
			m.Version,
			m.ID,
			expectedVersion,
		)
		if err != nil {
			return fmt.Errorf("failed to update transaction: %w", err)
		}

		if results.RowsAffected() == 0 {
			var exists bool
			if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`, m.ID).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check transaction: %w", err)
			}
			if !exists {
				return domain.NewTransactionNotFoundError(m.ID)
			}
			return domain.NewStaleVersionError(m.ID, expectedVersion)
		}

		return appendHistory(ctx, q, record)
	})
}

func (r *TransactionRepository) History(ctx context.Context, id string) ([]domain.TransitionRecord, error) {
	query := `
		SELECT transaction_id, from_status, to_status, occurred_at, reason_code, actor, amount, version
		FROM transition_history
		WHERE transaction_id = $1
		ORDER BY version ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.TransitionRecord, error) {
		var m TransitionModel
		err := row.Scan(
			&m.TransactionID, &m.FromStatus, &m.ToStatus, &m.OccurredAt,
			&m.ReasonCode, &m.Actor, &m.Amount, &m.Version,
		)
		return toTransitionRecord(m), err
	})
	if err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}

	if len(records) == 0 {
		return nil, domain.NewTransactionNotFoundError(id)
	}
	return records, nil
}

// FindByOrder returns every transaction of one merchant order, oldest first.
func (r *TransactionRepository) FindByOrder(ctx context.Context, merchantID, orderID string) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE merchant_id = $1 AND merchant_order_id = $2
		ORDER BY created_at ASC, id ASC
	`
	return r.queryTransactions(ctx, query, merchantID, orderID)
}

func (r *TransactionRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = ANY($1) AND expires_at < $2
		ORDER BY expires_at ASC
		LIMIT $3
	`
	return r.queryTransactions(ctx, query, statusStrings(domain.PendingStatuses), now, limit)
}

func (r *TransactionRepository) FindStuck(ctx context.Context, statuses []domain.Status, olderThan time.Time, limit int) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = ANY($1) AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`
	return r.queryTransactions(ctx, query, statusStrings(statuses), olderThan, limit)
}

func (r *TransactionRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Transaction, error) {
		return scanTransaction(row)
	})
	if err != nil {
		return nil, fmt.Errorf("error occurred while scanning rows: %w", err)
	}
	return results, nil
}

func appendHistory(ctx context.Context, q Executor, record domain.TransitionRecord) error {
	query := `
		INSERT INTO transition_history (
			transaction_id, from_status, to_status, occurred_at, reason_code, actor, amount, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	m := toTransitionModel(record)
	_, err := q.Exec(ctx, query,
		m.TransactionID,
		m.FromStatus,
		m.ToStatus,
		m.OccurredAt,
		m.ReasonCode,
		m.Actor,
		m.Amount,
		m.Version,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return domain.NewStaleVersionError(m.TransactionID, m.Version-1)
		}
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// scanTransaction converts a database row into a domain Transaction.
// pgx.ErrNoRows is returned unwrapped for callers to translate.
func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var m TransactionModel
	err := row.Scan(
		&m.ID, &m.MerchantID, &m.MerchantOrderID, &m.Description, &m.Amount, &m.AuthorizedAmount, &m.Currency,
		&m.Status, &m.AttemptCount, &m.MaxAttempts, &m.CreatedAt, &m.UpdatedAt, &m.ExpiresAt,
		&m.AuthorizedAt, &m.ConfirmedAt, &m.ClosedAt, &m.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	return toDomainModel(m)
}

func statusStrings(statuses []domain.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
