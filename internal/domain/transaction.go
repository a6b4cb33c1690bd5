// Package domain holds the transaction entity, its lifecycle state machine and
// the error taxonomy shared by every layer.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// Status represents the current state of a transaction in its lifecycle
type Status string

const (
	StatusCreated             Status = "CREATED"
	StatusFormShown           Status = "FORM_SHOWN"
	StatusVerifying           Status = "VERIFYING"
	StatusAuthorizing         Status = "AUTHORIZING"
	StatusAuthorized          Status = "AUTHORIZED"
	StatusAuthorizationFailed Status = "AUTH_FAIL"
	StatusConfirming          Status = "CONFIRMING"
	StatusConfirmed           Status = "CONFIRMED"
	StatusCancelled           Status = "CANCELLED"
	StatusRejected            Status = "REJECTED"
	StatusExpired             Status = "EXPIRED"
	StatusReversing           Status = "REVERSING"
	StatusReversed            Status = "REVERSED"
	StatusRefunding           Status = "REFUNDING"
	StatusRefunded            Status = "REFUNDED"
)

// AllStatuses lists every lifecycle state.
var AllStatuses = []Status{
	StatusCreated,
	StatusFormShown,
	StatusVerifying,
	StatusAuthorizing,
	StatusAuthorized,
	StatusAuthorizationFailed,
	StatusConfirming,
	StatusConfirmed,
	StatusCancelled,
	StatusRejected,
	StatusExpired,
	StatusReversing,
	StatusReversed,
	StatusRefunding,
	StatusRefunded,
}

// PendingStatuses are the pre-authorization states that expire at the deadline.
var PendingStatuses = []Status{
	StatusCreated,
	StatusFormShown,
	StatusVerifying,
	StatusAuthorizing,
	StatusAuthorizationFailed,
}

func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown transaction status %q", s)
}

func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

// IsTerminal reports whether no further transition is possible from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusRejected, StatusExpired, StatusRefunded, StatusReversed:
		return true
	default:
		return false
	}
}

func (s Status) IsPending() bool {
	switch s {
	case StatusCreated, StatusFormShown, StatusVerifying, StatusAuthorizing, StatusAuthorizationFailed:
		return true
	default:
		return false
	}
}

type Transaction struct {
	ID              string
	MerchantID      string
	MerchantOrderID string
	Description     string

	// Amount is what the merchant asked for at Init. AuthorizedAmount is the
	// amount currently held or settled and shrinks with confirmations below
	// the hold, reversals and refunds.
	Amount           int64
	AuthorizedAmount int64
	Currency         string

	Status       Status
	AttemptCount int
	MaxAttempts  int

	CreatedAt    time.Time
	UpdatedAt    time.Time
	ExpiresAt    time.Time
	AuthorizedAt *time.Time
	ConfirmedAt  *time.Time
	ClosedAt     *time.Time

	Version int64
}

func NewTransaction(
	id string,
	merchantID string,
	orderID string,
	amount Money,
	maxAttempts int,
	createdAt time.Time,
	expiresAt time.Time,
) (*Transaction, error) {
	if id == "" {
		return nil, errors.New("transaction ID is required")
	}
	if merchantID == "" {
		return nil, errors.New("merchant ID is required")
	}
	if orderID == "" {
		return nil, errors.New("order ID is required")
	}
	if maxAttempts < 1 {
		return nil, errors.New("max attempts must be at least 1")
	}
	if !expiresAt.After(createdAt) {
		return nil, errors.New("expiry must be after creation")
	}

	return &Transaction{
		ID:              id,
		MerchantID:      merchantID,
		MerchantOrderID: orderID,
		Amount:          amount.Amount,
		Currency:        amount.Currency,
		Status:          StatusCreated,
		MaxAttempts:     maxAttempts,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
		ExpiresAt:       expiresAt,
		Version:         1,
	}, nil
}

// Clone returns a deep copy so snapshots never share timestamp pointers.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.AuthorizedAt = cloneTime(t.AuthorizedAt)
	c.ConfirmedAt = cloneTime(t.ConfirmedAt)
	c.ClosedAt = cloneTime(t.ClosedAt)
	return &c
}

// TransitionContext builds the state machine input for a request against t.
func (t *Transaction) TransitionContext(now time.Time, requestedAmount int64) TransitionContext {
	return TransitionContext{
		AttemptCount:     t.AttemptCount,
		MaxAttempts:      t.MaxAttempts,
		Now:              now,
		ExpiresAt:        t.ExpiresAt,
		RequestedAmount:  requestedAmount,
		AuthorizedAmount: t.AuthorizedAmount,
	}
}

// Advance returns the snapshot that results from moving t to target. It does
// not validate the move; callers consult the StateMachine first. t is left
// untouched.
//
// A refund step toward REFUNDED only reaches it once nothing remains; a
// partial refund keeps the transaction in REFUNDING.
func (t *Transaction) Advance(target Status, amount int64, now time.Time) *Transaction {
	next := t.Clone()
	next.Status = target
	next.Version++
	next.UpdatedAt = now

	switch target {
	case StatusAuthorizationFailed:
		next.AttemptCount++
	case StatusAuthorized:
		next.AuthorizedAt = &now
		next.AuthorizedAmount = t.Amount
	case StatusConfirming:
		next.AuthorizedAmount = amount
	case StatusConfirmed:
		next.ConfirmedAt = &now
	case StatusRefunded:
		next.AuthorizedAmount -= amount
		if next.AuthorizedAmount > 0 {
			next.Status = StatusRefunding
		} else {
			next.AuthorizedAmount = 0
			next.ClosedAt = &now
		}
	case StatusReversed:
		next.AuthorizedAmount = 0
		next.ClosedAt = &now
	case StatusCancelled, StatusRejected, StatusExpired:
		next.ClosedAt = &now
	}
	return next
}

// TransitionRecord is the append-only audit entry written for every applied transition.
type TransitionRecord struct {
	TransactionID string     `json:"transactionId"`
	FromStatus    Status     `json:"fromStatus"`
	ToStatus      Status     `json:"toStatus"`
	Timestamp     time.Time  `json:"timestamp"`
	ReasonCode    ReasonCode `json:"reasonCode"`
	Actor         Actor      `json:"actor"`
	Amount        int64      `json:"amount,omitempty"`
	Version       int64      `json:"version"`
}

// NewTransitionRecord describes the move from prev to next.
func NewTransitionRecord(prev, next *Transaction, reason ReasonCode, actor Actor, amount int64) TransitionRecord {
	var from Status
	if prev != nil {
		from = prev.Status
	}
	if prev != nil && prev.Status == next.Status && next.Status == StatusRefunding {
		reason = ReasonPartialRefund
	}
	return TransitionRecord{
		TransactionID: next.ID,
		FromStatus:    from,
		ToStatus:      next.Status,
		Timestamp:     next.UpdatedAt,
		ReasonCode:    reason,
		Actor:         actor,
		Amount:        amount,
		Version:       next.Version,
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
