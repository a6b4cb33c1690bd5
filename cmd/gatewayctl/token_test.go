package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestTokenCmd(t *testing.T) {
	body := `{"merchantId":"shop-1","orderId":"42","amount":1000,"token":"ignored","receipt":{"items":[]}}`
	fields, err := security.ParseFields([]byte(body))
	require.NoError(t, err)
	want := security.NewTokenAuthenticator().Sign(fields, "s3cret")

	got, err := runCmd(t, "", "token", "--secret", "s3cret", body)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = runCmd(t, body, "token", "--secret", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTokenCmd_RequiresSecret(t *testing.T) {
	_, err := runCmd(t, "", "token", `{"merchantId":"shop-1"}`)
	assert.EqualError(t, err, "--secret is required")
}

func TestTokenCmd_RejectsNonObject(t *testing.T) {
	_, err := runCmd(t, "", "token", "--secret", "s3cret", `[1,2]`)
	assert.Error(t, err)
}

func TestTokenCmd_RejectsReservedField(t *testing.T) {
	_, err := runCmd(t, "", "token", "--secret", "s3cret", `{"merchantId":"shop-1","password":"x"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field password is reserved")
}
