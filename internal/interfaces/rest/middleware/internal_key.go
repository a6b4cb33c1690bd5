package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/interfaces/rest"
)

const InternalKeyHeader = "X-Internal-Key"

// InternalKey guards the processor-facing endpoints with a shared key.
func InternalKey(key string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(InternalKeyHeader)
			if got == "" {
				rest.WriteError(w, domain.NewMissingTokenError(), logger)
				return
			}
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				logger.Warn("internal key mismatch", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				rest.WriteError(w, domain.NewInvalidTokenError(), logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
