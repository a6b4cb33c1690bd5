package handlers

import (
	"net/http"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/application/services"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/interfaces/rest"
)

func (h *Handlers) Confirm(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	fields, err := rest.DecodeSigned(w, r, &req)
	if err != nil {
		rest.WriteErrorFor(w, err, h.logger, echoTransaction(req))
		return
	}

	result, err := h.lifecycle.Confirm(r.Context(), services.ConfirmCommand{
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

	rest.WriteJSON(w, http.StatusOK, ConfirmResponse{envelope: ok(), ConfirmResult: *result})
}

func echoTransaction(req TransactionRequest) rest.Echo {
	return rest.Echo{MerchantID: req.MerchantID, TransactionID: req.TransactionID}
}
