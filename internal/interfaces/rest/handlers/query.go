package handlers

import (
	"net/http"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/application/services"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/interfaces/rest"
	"github.com/oapi-codegen/runtime"
)

func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	fields, err := rest.DecodeSigned(w, r, &req)
	if err != nil {
		rest.WriteErrorFor(w, err, h.logger, rest.Echo{MerchantID: req.MerchantID, OrderID: req.OrderID})
		return
	}

	result, err := h.lifecycle.Check(r.Context(), services.CheckCommand{
		MerchantID: req.MerchantID,
		OrderID:    req.OrderID,
		Token:      req.Token,
		Fields:     fields,
	})
	if err != nil {
		rest.WriteErrorFor(w, err, h.logger, rest.Echo{MerchantID: req.MerchantID, OrderID: req.OrderID})
		return
	}

	rest.WriteJSON(w, http.StatusOK, CheckResponse{envelope: ok(), CheckResult: *result})
}

func (h *Handlers) GetState(w http.ResponseWriter, r *http.Request) {
	var req StateRequest
	fields, err := rest.DecodeSigned(w, r, &req)
	if err != nil {
		rest.WriteErrorFor(w, err, h.logger, rest.Echo{MerchantID: req.MerchantID, TransactionID: req.TransactionID})
		return
	}

	view, err := h.lifecycle.GetState(r.Context(), services.GetStateCommand{
		MerchantID:    req.MerchantID,
		TransactionID: req.TransactionID,
		Token:         req.Token,
		Fields:        fields,
	})
	if err != nil {
		rest.WriteErrorFor(w, err, h.logger, rest.Echo{MerchantID: req.MerchantID, TransactionID: req.TransactionID})
		return
	}

	rest.WriteJSON(w, http.StatusOK, StateResponse{envelope: ok(), Transaction: *view})
}

// History serves GET /v1/transactions/{transactionId}/history. The token
// signs merchantId and transactionId.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	var (
		transactionID string
		merchantID    string
		token         *string
	)

	err := runtime.BindStyledParameterWithOptions("simple", "transactionId", r.PathValue("transactionId"), &transactionID, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		rest.WriteError(w, domain.NewValidationError("invalid transactionId", err), h.logger)
		return
	}
	if err := runtime.BindQueryParameter("form", true, true, "merchantId", r.URL.Query(), &merchantID); err != nil {
		rest.WriteError(w, domain.NewValidationError("invalid merchantId", err), h.logger)
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "token", r.URL.Query(), &token); err != nil {
		rest.WriteError(w, domain.NewValidationError("invalid token", err), h.logger)
		return
	}

	cmd := services.GetStateCommand{MerchantID: merchantID, TransactionID: transactionID}
	if token != nil {
		cmd.Token = *token
	}

	records, err := h.lifecycle.History(r.Context(), cmd)
	if err != nil {
		rest.WriteErrorFor(w, err, h.logger, rest.Echo{MerchantID: merchantID, TransactionID: transactionID})
		return
	}

	rest.WriteJSON(w, http.StatusOK, HistoryResponse{envelope: ok(), TransactionID: transactionID, History: records})
}
