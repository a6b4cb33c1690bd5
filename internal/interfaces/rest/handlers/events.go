package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/application/services"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/interfaces/rest"
	"github.com/oapi-codegen/runtime"
)

// ProcessorEvent receives form and bank progress for one transaction.
func (h *Handlers) ProcessorEvent(w http.ResponseWriter, r *http.Request) {
	var transactionID string
	err := runtime.BindStyledParameterWithOptions("simple", "transactionId", r.PathValue("transactionId"), &transactionID, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		rest.WriteError(w, domain.NewValidationError("invalid transactionId", err), h.logger)
		return
	}

	var req ProcessorEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.WriteError(w, domain.NewValidationError("malformed request body", err), h.logger)
		return
	}
	if err := rest.ValidateStruct(&req); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	view, err := h.lifecycle.HandleProcessorEvent(r.Context(), transactionID, services.ProcessorEvent(req.Event))
	if err != nil {
		rest.WriteErrorFor(w, err, h.logger, rest.Echo{TransactionID: transactionID})
		return
	}

	h.logger.Info("processor event applied",
		"transaction_id", transactionID,
		"event", req.Event,
		"status", view.Status,
	)
	rest.WriteJSON(w, http.StatusOK, StateResponse{envelope: ok(), Transaction: *view})
}
