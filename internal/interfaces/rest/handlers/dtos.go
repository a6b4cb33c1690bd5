package handlers

import (
	"github.com/DanielPopoola/merchant-payment-gateway/internal/application/services"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
)

// Requests carry the token alongside the signed fields. It is not tagged
// required: a missing token is an authentication failure, not a shape error.

type InitRequest struct {
	MerchantID  string `json:"merchantId" validate:"required"`
	OrderID     string `json:"orderId" validate:"required,max=64"`
	Amount      int64  `json:"amount" validate:"gt=0"`
	Currency    string `json:"currency" validate:"omitempty,len=3"`
	Description string `json:"description" validate:"max=250"`
	Token       string `json:"token"`
}

type TransactionRequest struct {
	MerchantID        string `json:"merchantId" validate:"required"`
	TransactionID     string `json:"transactionId" validate:"required"`
	Amount            int64  `json:"amount" validate:"gte=0"`
	ExternalRequestID string `json:"externalRequestId" validate:"max=128"`
	Token             string `json:"token"`
}

type CheckRequest struct {
	MerchantID string `json:"merchantId" validate:"required"`
	OrderID    string `json:"orderId" validate:"required"`
	Token      string `json:"token"`
}

type StateRequest struct {
	MerchantID    string `json:"merchantId" validate:"required"`
	TransactionID string `json:"transactionId" validate:"required"`
	Token         string `json:"token"`
}

type ProcessorEventRequest struct {
	Event string `json:"event" validate:"required"`
}

type InitResponse struct {
	envelope
	MerchantID    string        `json:"merchantId"`
	OrderID       string        `json:"orderId"`
	Amount        int64         `json:"amount"`
	Status        domain.Status `json:"status"`
	TransactionID string        `json:"transactionId"`
	PaymentURL    string        `json:"paymentUrl,omitempty"`
}

type ConfirmResponse struct {
	envelope
	services.ConfirmResult
}

type CancelResponse struct {
	envelope
	services.CancelResult
}

type CheckResponse struct {
	envelope
	services.CheckResult
}

type StateResponse struct {
	envelope
	Transaction services.TransactionView `json:"transaction"`
}

type HistoryResponse struct {
	envelope
	TransactionID string                    `json:"transactionId"`
	History       []domain.TransitionRecord `json:"history"`
}
