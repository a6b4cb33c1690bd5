package application

import (
	"context"
	"errors"
	"net/http"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
)

// ErrorCategory represents the nature of an error for retry logic
type ErrorCategory string

const (
	CategoryTransient      ErrorCategory = "TRANSIENT"
	CategoryBusinessRule   ErrorCategory = "BUSINESS_RULE"
	CategoryClientError    ErrorCategory = "CLIENT_ERROR"
	CategoryInfrastructure ErrorCategory = "INFRASTRUCTURE"
)

// CategorizeError determines error category for retry and logging purposes
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CategoryTransient
	}

	domainErr, ok := domain.AsError(err)
	if !ok {
		return CategoryInfrastructure
	}

	switch domainErr.Kind {
	case domain.KindConcurrency:
		return CategoryTransient
	case domain.KindAuthentication,
		domain.KindValidation,
		domain.KindNotFound,
		domain.KindDuplicateOperation:
		return CategoryClientError
	case domain.KindInvalidTransition,
		domain.KindDeadlineExceeded,
		domain.KindAttemptsExhausted:
		return CategoryBusinessRule
	default:
		return CategoryInfrastructure
	}
}

// IsRetryable reports whether the same request may be retried automatically.
// Only lock timeouts and stale versions qualify.
func IsRetryable(err error) bool {
	domainErr, ok := domain.AsError(err)
	return ok && domainErr.Retryable()
}

// ToHTTPStatus maps error to appropriate HTTP status code
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return http.StatusRequestTimeout
	}

	domainErr, ok := domain.AsError(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch domainErr.Kind {
	case domain.KindAuthentication:
		if domainErr.Code == domain.CodeMerchantNotFound {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindDuplicateOperation:
		return http.StatusUnprocessableEntity
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidTransition,
		domain.KindConcurrency,
		domain.KindAttemptsExhausted:
		return http.StatusConflict
	case domain.KindDeadlineExceeded:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// ToErrorCode returns the merchant-facing errorCode for err. Errors outside
// the taxonomy collapse to the generic internal code.
func ToErrorCode(err error) string {
	if err == nil {
		return domain.CodeSuccess
	}
	if domainErr, ok := domain.AsError(err); ok && domainErr.Code != "" {
		return domainErr.Code
	}
	return domain.CodeInternal
}

// ToMessage returns a message safe to show the merchant.
func ToMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	domainErr, ok := domain.AsError(err)
	if !ok || domainErr.Kind == domain.KindInternal {
		return "internal error"
	}
	return domainErr.Message
}
