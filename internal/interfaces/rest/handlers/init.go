package handlers

import (
	"net/http"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/application/services"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/interfaces/rest"
)

func (h *Handlers) Init(w http.ResponseWriter, r *http.Request) {
	var req InitRequest
	fields, err := rest.DecodeSigned(w, r, &req)
	if err != nil {
		rest.WriteErrorFor(w, err, h.logger, rest.Echo{MerchantID: req.MerchantID, OrderID: req.OrderID})
		return
	}

	result, err := h.lifecycle.Init(r.Context(), services.InitCommand{
		MerchantID:  req.MerchantID,
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		Token:       req.Token,
		Fields:      fields,
	})
	if err != nil {
		rest.WriteErrorFor(w, err, h.logger, rest.Echo{MerchantID: req.MerchantID, OrderID: req.OrderID})
		return
	}

	tx := result.Transaction
	status := http.StatusCreated
	if result.Existing {
		status = http.StatusOK
	}
	rest.WriteJSON(w, status, InitResponse{
		envelope:      ok(),
		MerchantID:    tx.MerchantID,
		OrderID:       tx.OrderID,
		Amount:        tx.Amount,
		Status:        tx.Status,
		TransactionID: tx.TransactionID,
		PaymentURL:    result.PaymentURL,
	})
}
