package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/interfaces/rest"
)

// Recovery turns a panicking handler into a 9999 response. Nothing is
// written when the handler already started its response.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}

			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}

				logger.Error("panic recovered",
					"panic", v,
					"method", r.Method,
					"path", r.URL.Path,
					"response_started", rec.status != 0,
					"stack", string(debug.Stack()),
				)
				if rec.status == 0 {
					rest.WriteError(w, domain.NewInternalError(fmt.Errorf("panic: %v", v)), logger)
				}
			}()

			next.ServeHTTP(rec, r)
		})
	}
}
