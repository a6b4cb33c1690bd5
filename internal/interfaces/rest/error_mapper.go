package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/application"
)

// ErrorResponse is the body of every failed merchant call. The identifiers
// of the request are echoed back when they were readable.
type ErrorResponse struct {
	Success       bool   `json:"success"`
	ErrorCode     string `json:"errorCode"`
	Message       string `json:"message"`
	MerchantID    string `json:"merchantId,omitempty"`
	OrderID       string `json:"orderId,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
}

// Echo names the request identifiers copied into an error body.
type Echo struct {
	MerchantID    string
	OrderID       string
	TransactionID string
}

// WriteError maps application errors to HTTP responses
func WriteError(w http.ResponseWriter, err error, logger *slog.Logger) {
	WriteErrorFor(w, err, logger, Echo{})
}

func WriteErrorFor(w http.ResponseWriter, err error, logger *slog.Logger, echo Echo) {
	statusCode := application.ToHTTPStatus(err)
	errorCode := application.ToErrorCode(err)

	if statusCode >= http.StatusInternalServerError {
		logger.Error("request failed",
			"error_code", errorCode,
			"category", application.CategorizeError(err),
			"error", err,
		)
	} else {
		logger.Debug("request rejected",
			"error_code", errorCode,
			"category", application.CategorizeError(err),
			"error", err,
		)
	}

	WriteJSON(w, statusCode, ErrorResponse{
		Success:       false,
		ErrorCode:     errorCode,
		Message:       application.ToMessage(err),
		MerchantID:    echo.MerchantID,
		OrderID:       echo.OrderID,
		TransactionID: echo.TransactionID,
	})
}

func WriteJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
