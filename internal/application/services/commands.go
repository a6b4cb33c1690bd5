package services

import (
	"time"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
)

// Each merchant command carries the token and the exact top-level fields it
// was signed over. When Fields is nil the command's own wire fields are used.

type InitCommand struct {
	MerchantID  string
	OrderID     string
	Amount      int64
	Currency    string
	Description string
	Token       string
	Fields      map[string]any
}

func (c InitCommand) SignedFields() map[string]any {
	if c.Fields != nil {
		return c.Fields
	}
	f := map[string]any{
		"merchantId": c.MerchantID,
		"orderId":    c.OrderID,
		"amount":     c.Amount,
	}
	if c.Currency != "" {
		f["currency"] = c.Currency
	}
	if c.Description != "" {
		f["description"] = c.Description
	}
	return f
}

type ConfirmCommand struct {
	MerchantID        string
	TransactionID     string
	Amount            int64
	ExternalRequestID string
	Token             string
	Fields            map[string]any
}

func (c ConfirmCommand) SignedFields() map[string]any {
	if c.Fields != nil {
		return c.Fields
	}
	return transactionFields(c.MerchantID, c.TransactionID, c.Amount, c.ExternalRequestID)
}

type CancelCommand struct {
	MerchantID        string
	TransactionID     string
	Amount            int64
	ExternalRequestID string
	Token             string
	Fields            map[string]any
}

func (c CancelCommand) SignedFields() map[string]any {
	if c.Fields != nil {
		return c.Fields
	}
	return transactionFields(c.MerchantID, c.TransactionID, c.Amount, c.ExternalRequestID)
}

type CheckCommand struct {
	MerchantID string
	OrderID    string
	Token      string
	Fields     map[string]any
}

func (c CheckCommand) SignedFields() map[string]any {
	if c.Fields != nil {
		return c.Fields
	}
	return map[string]any{"merchantId": c.MerchantID, "orderId": c.OrderID}
}

// GetStateCommand addresses one transaction; History uses it too.
type GetStateCommand struct {
	MerchantID    string
	TransactionID string
	Token         string
	Fields        map[string]any
}

func (c GetStateCommand) SignedFields() map[string]any {
	if c.Fields != nil {
		return c.Fields
	}
	return map[string]any{"merchantId": c.MerchantID, "transactionId": c.TransactionID}
}

func transactionFields(merchantID, transactionID string, amount int64, externalID string) map[string]any {
	f := map[string]any{
		"merchantId":    merchantID,
		"transactionId": transactionID,
	}
	if amount != 0 {
		f["amount"] = amount
	}
	if externalID != "" {
		f["externalRequestId"] = externalID
	}
	return f
}

// ProcessorEvent is reported by the payment form and the bank side.
type ProcessorEvent string

const (
	EventFormShown             ProcessorEvent = "form_shown"
	EventVerificationStarted   ProcessorEvent = "verification_started"
	EventAuthorizationStarted  ProcessorEvent = "authorization_started"
	EventAuthorizationApproved ProcessorEvent = "authorization_approved"
	EventAuthorizationDeclined ProcessorEvent = "authorization_declined"
)

type TransactionView struct {
	TransactionID    string        `json:"transactionId"`
	MerchantID       string        `json:"merchantId"`
	OrderID          string        `json:"orderId"`
	Description      string        `json:"description,omitempty"`
	Amount           int64         `json:"amount"`
	AuthorizedAmount int64         `json:"authorizedAmount"`
	Currency         string        `json:"currency"`
	Status           domain.Status `json:"status"`
	AttemptCount     int           `json:"attemptCount"`
	MaxAttempts      int           `json:"maxAttempts"`
	CreatedAt        time.Time     `json:"createdAt"`
	ExpiresAt        time.Time     `json:"expiresAt"`
	AuthorizedAt     *time.Time    `json:"authorizedAt"`
	ConfirmedAt      *time.Time    `json:"confirmedAt"`
	ClosedAt         *time.Time    `json:"closedAt"`
	Version          int64         `json:"version"`
}

func NewTransactionView(tx *domain.Transaction) TransactionView {
	c := tx.Clone()
	return TransactionView{
		TransactionID:    c.ID,
		MerchantID:       c.MerchantID,
		OrderID:          c.MerchantOrderID,
		Description:      c.Description,
		Amount:           c.Amount,
		AuthorizedAmount: c.AuthorizedAmount,
		Currency:         c.Currency,
		Status:           c.Status,
		AttemptCount:     c.AttemptCount,
		MaxAttempts:      c.MaxAttempts,
		CreatedAt:        c.CreatedAt,
		ExpiresAt:        c.ExpiresAt,
		AuthorizedAt:     c.AuthorizedAt,
		ConfirmedAt:      c.ConfirmedAt,
		ClosedAt:         c.ClosedAt,
		Version:          c.Version,
	}
}

type InitResult struct {
	Transaction TransactionView
	PaymentURL  string
	// Existing is set when Init returned an open transaction for the same order.
	Existing bool
}

type ConfirmResult struct {
	MerchantID    string        `json:"merchantId"`
	OrderID       string        `json:"orderId"`
	TransactionID string        `json:"transactionId"`
	Status        domain.Status `json:"status"`
	Amount        int64         `json:"amount"`
}

type CancelResult struct {
	MerchantID     string        `json:"merchantId"`
	OrderID        string        `json:"orderId"`
	TransactionID  string        `json:"transactionId"`
	Status         domain.Status `json:"status"`
	OriginalAmount int64         `json:"originalAmount"`
	NewAmount      int64         `json:"newAmount"`
}

type CheckResult struct {
	MerchantID   string            `json:"merchantId"`
	OrderID      string            `json:"orderId"`
	Transactions []TransactionView `json:"transactions"`
}
