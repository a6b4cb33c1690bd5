package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/application/services"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/interfaces/rest"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/interfaces/rest/middleware"
)

// Handlers exposes the LifecycleService over HTTP.
type Handlers struct {
	lifecycle *services.LifecycleService
	health    func(ctx context.Context) error
	logger    *slog.Logger
}

func NewHandlers(lifecycle *services.LifecycleService, logger *slog.Logger) *Handlers {
	return &Handlers{
		lifecycle: lifecycle,
		logger:    logger,
	}
}

// WithHealthCheck makes /healthz report the result of check.
func (h *Handlers) WithHealthCheck(check func(ctx context.Context) error) *Handlers {
	h.health = check
	return h
}

// Register mounts the merchant API on mux. The processor event endpoint is
// mounted only when internalKey is set.
func (h *Handlers) Register(mux *http.ServeMux, internalKey string) {
	mux.HandleFunc("POST /v1/init", h.Init)
	mux.HandleFunc("POST /v1/confirm", h.Confirm)
	mux.HandleFunc("POST /v1/cancel", h.Cancel)
	mux.HandleFunc("POST /v1/check", h.Check)
	mux.HandleFunc("POST /v1/state", h.GetState)
	mux.HandleFunc("GET /v1/transactions/{transactionId}/history", h.History)
	mux.HandleFunc("GET /healthz", h.Health)

	if internalKey != "" {
		guard := middleware.InternalKey(internalKey, h.logger)
		mux.Handle("POST /internal/v1/transactions/{transactionId}/events", guard(http.HandlerFunc(h.ProcessorEvent)))
	} else {
		h.logger.Warn("internal api key not set, processor event endpoint disabled")
	}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.logger.Error("health check failed", "error", err)
			rest.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	rest.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// envelope is the success part every merchant response starts with.
type envelope struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"errorCode"`
}

func ok() envelope {
	return envelope{Success: true, ErrorCode: domain.CodeSuccess}
}
