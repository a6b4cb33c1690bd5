package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/interfaces/rest"
)

// Timeout bounds the whole request, lease waits and store calls included:
// the request context is cancelled at the deadline.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	body := timeoutBody()
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.TimeoutHandler(next, d, body)
	}
}

func timeoutBody() string {
	b, _ := json.Marshal(rest.ErrorResponse{
		ErrorCode: domain.CodeInternal,
		Message:   "request timed out",
	})
	return string(b)
}
