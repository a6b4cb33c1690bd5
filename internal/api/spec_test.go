package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpec_LoadsAndValidates(t *testing.T) {
	doc, err := Spec()
	require.NoError(t, err)

	assert.Equal(t, "Merchant Payment Gateway", doc.Info.Title)
	for _, path := range []string{
		"/v1/init",
		"/v1/confirm",
		"/v1/cancel",
		"/v1/check",
		"/v1/state",
		"/v1/transactions/{transactionId}/history",
		"/internal/v1/transactions/{transactionId}/events",
	} {
		assert.NotNil(t, doc.Paths.Value(path), path)
	}
}

func TestRegisterDocsRoutes(t *testing.T) {
	mux := http.NewServeMux()
	RegisterDocsRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs/openapi.json", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "3.0.3", body["openapi"])

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs/openapi.yaml", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "operationId: initTransaction")
}
