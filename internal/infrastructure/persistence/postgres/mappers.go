package postgres

import (
	"fmt"
	"time"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/idempotency"
)

// toDomainModel: maps db model to domain entity
func toDomainModel(m TransactionModel) (*domain.Transaction, error) {
	status, err := domain.ParseStatus(m.Status)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", m.ID, err)
	}
	return &domain.Transaction{
		ID:               m.ID,
		MerchantID:       m.MerchantID,
		MerchantOrderID:  m.MerchantOrderID,
		Description:      m.Description,
		Amount:           m.Amount,
		AuthorizedAmount: m.AuthorizedAmount,
		Currency:         m.Currency,
		Status:           status,
		AttemptCount:     m.AttemptCount,
		MaxAttempts:      m.MaxAttempts,
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
		ExpiresAt:        m.ExpiresAt.UTC(),
		AuthorizedAt:     utc(m.AuthorizedAt),
		ConfirmedAt:      utc(m.ConfirmedAt),
		ClosedAt:         utc(m.ClosedAt),
		Version:          m.Version,
	}, nil
}

// toDBModel: maps domain entity to db model
func toDBModel(t *domain.Transaction) TransactionModel {
	return TransactionModel{
		ID:               t.ID,
		MerchantID:       t.MerchantID,
		MerchantOrderID:  t.MerchantOrderID,
		Description:      t.Description,
		Amount:           t.Amount,
		AuthorizedAmount: t.AuthorizedAmount,
		Currency:         t.Currency,
		Status:           string(t.Status),
		AttemptCount:     t.AttemptCount,
		MaxAttempts:      t.MaxAttempts,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
		ExpiresAt:        t.ExpiresAt,
		AuthorizedAt:     t.AuthorizedAt,
		ConfirmedAt:      t.ConfirmedAt,
		ClosedAt:         t.ClosedAt,
		Version:          t.Version,
	}
}

func toTransitionModel(r domain.TransitionRecord) TransitionModel {
	return TransitionModel{
		TransactionID: r.TransactionID,
		FromStatus:    string(r.FromStatus),
		ToStatus:      string(r.ToStatus),
		OccurredAt:    r.Timestamp,
		ReasonCode:    string(r.ReasonCode),
		Actor:         string(r.Actor),
		Amount:        r.Amount,
		Version:       r.Version,
	}
}

func toTransitionRecord(m TransitionModel) domain.TransitionRecord {
	return domain.TransitionRecord{
		TransactionID: m.TransactionID,
		FromStatus:    domain.Status(m.FromStatus),
		ToStatus:      domain.Status(m.ToStatus),
		Timestamp:     m.OccurredAt.UTC(),
		ReasonCode:    domain.ReasonCode(m.ReasonCode),
		Actor:         domain.Actor(m.Actor),
		Amount:        m.Amount,
		Version:       m.Version,
	}
}

func toIdempotencyRecord(m IdempotencyRecordModel) *idempotency.Record {
	return &idempotency.Record{
		Key:         m.Key,
		Fingerprint: m.Fingerprint,
		Result:      m.Result,
		CreatedAt:   m.CreatedAt.UTC(),
		ExpiresAt:   m.ExpiresAt.UTC(),
	}
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
