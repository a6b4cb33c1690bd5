package postgres

import (
	"time"
)

// TransactionModel is the row shape of the transactions table.
type TransactionModel struct {
	ID               string
	MerchantID       string
	MerchantOrderID  string
	Description      string
	Amount           int64
	AuthorizedAmount int64
	Currency         string
	Status           string
	AttemptCount     int
	MaxAttempts      int
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ExpiresAt        time.Time
	AuthorizedAt     *time.Time
	ConfirmedAt      *time.Time
	ClosedAt         *time.Time
	Version          int64
}

// TransitionModel is one transition_history row. FromStatus is empty for the
// record written at creation.
type TransitionModel struct {
	TransactionID string
	FromStatus    string
	ToStatus      string
	OccurredAt    time.Time
	ReasonCode    string
	Actor         string
	Amount        int64
	Version       int64
}

// IdempotencyRecordModel enforces at-most-once semantics via the primary key
// on key; an expired row may be overwritten.
type IdempotencyRecordModel struct {
	Key         string
	Fingerprint string
	Result      []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}
