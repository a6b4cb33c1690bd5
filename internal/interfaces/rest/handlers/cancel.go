package handlers

import (
	"net/http"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/application/services"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/interfaces/rest"
)

// Cancel cancels, reverses or refunds depending on where the transaction is.
func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	fields, err := rest.DecodeSigned(w, r, &req)
	if err != nil {
		rest.WriteErrorFor(w, err, h.logger, echoTransaction(req))
		return
	}

	result, err := h.lifecycle.Cancel(r.Context(), services.CancelCommand{
		MerchantID:        req.MerchantID,
		TransactionID:     req.TransactionID,
		Amount:            req.Amount,
		ExternalRequestID: req.ExternalRequestID,
		Token:             req.Token,
		Fields:            fields,
	})
	if err != nil {
		rest.WriteErrorFor(w, err, h.logger, echoTransaction(req))
		return
	}

	rest.WriteJSON(w, http.StatusOK, CancelResponse{envelope: ok(), CancelResult: *result})
}
