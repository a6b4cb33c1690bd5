package security_test

import (
	"testing"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "usaf8fw8fsw21g"

func TestSign_PublishedExample(t *testing.T) {
	raw := []byte(`{
		"TerminalKey": "MerchantTerminalKey",
		"Amount": 19200,
		"OrderId": "21090",
		"Description": "Подарочная карта на 1000 рублей",
		"Token": "ignored"
	}`)
	fields, err := security.ParseFields(raw)
	require.NoError(t, err)

	auth := security.NewTokenAuthenticator(security.WithPasswordKey("Password"))

	assert.Equal(t,
		"0024a00af7c350a3a67ca168ce06502aa72772456662e38696d48b56ee9c97d9",
		auth.Sign(fields, testSecret))
}

func TestSign_NestedAndBooleanFields(t *testing.T) {
	raw := []byte(`{
		"TerminalKey": "MerchantTerminalKey",
		"Amount": 19200,
		"OrderId": "21090",
		"Recurrent": true,
		"Data": {"Phone": "+71234567890"},
		"Receipt": [{"Name": "item"}],
		"CustomerKey": null
	}`)
	fields, err := security.ParseFields(raw)
	require.NoError(t, err)

	auth := security.NewTokenAuthenticator(security.WithPasswordKey("Password"))

	assert.Equal(t,
		"895a3e3712efcbec79b24127ca7682e26d2a821b8e36a112c3c4b5ef7fe43ed4",
		auth.Sign(fields, testSecret))
}

func TestSign_DefaultPasswordKey(t *testing.T) {
	auth := security.NewTokenAuthenticator()

	fields := map[string]any{
		"amount":      19200,
		"description": "Gift card",
		"merchantId":  "shop-1",
		"orderId":     "21090",
	}

	assert.Equal(t,
		"207a96d0adcf71e72cfa2ce0cb71612aab0376b7755437551a9ada11e10ee75c",
		auth.Sign(fields, testSecret))
}

func TestSign_IsDeterministicAcrossNumberForms(t *testing.T) {
	auth := security.NewTokenAuthenticator()

	parsed, err := security.ParseFields([]byte(`{"merchantId":"shop-1","orderId":"ord-7","amount":2500}`))
	require.NoError(t, err)
	native := map[string]any{"merchantId": "shop-1", "orderId": "ord-7", "amount": int64(2500)}

	want := "6eeaabd69057d01b6f299f557666ad8185fb8e01be506466fbe56c0da3758c5c"
	assert.Equal(t, want, auth.Sign(parsed, "s3cret"))
	assert.Equal(t, want, auth.Sign(native, "s3cret"))
}

func TestAuthenticate(t *testing.T) {
	auth := security.NewTokenAuthenticator()
	fields := map[string]any{"merchantId": "shop-1", "orderId": "ord-7", "amount": 2500}
	token := auth.Sign(fields, "s3cret")

	t.Run("accepts a matching token", func(t *testing.T) {
		signed := map[string]any{"merchantId": "shop-1", "orderId": "ord-7", "amount": 2500, "token": token}
		assert.True(t, auth.Authenticate(signed, token, "s3cret"))
	})

	t.Run("rejects a tampered field", func(t *testing.T) {
		tampered := map[string]any{"merchantId": "shop-1", "orderId": "ord-7", "amount": 2501}
		assert.False(t, auth.Authenticate(tampered, token, "s3cret"))
	})

	t.Run("rejects the wrong secret", func(t *testing.T) {
		assert.False(t, auth.Authenticate(fields, token, "other"))
	})

	t.Run("rejects uppercase hex", func(t *testing.T) {
		assert.False(t, auth.Authenticate(fields, "6EEAABD6", "s3cret"))
	})
}

func TestVerify(t *testing.T) {
	auth := security.NewTokenAuthenticator()
	fields := map[string]any{"merchantId": "shop-1", "amount": 100}
	account := &domain.MerchantAccount{MerchantID: "shop-1", Secret: "s3cret", IsActive: true}
	token := auth.Sign(fields, account.Secret)

	tests := []struct {
		name    string
		token   string
		account *domain.MerchantAccount
		wantErr *domain.Error
	}{
		{name: "valid", token: token, account: account},
		{name: "missing token", token: "", account: account, wantErr: domain.ErrMissingToken},
		{name: "unknown merchant", token: token, account: nil, wantErr: domain.ErrMerchantNotFound},
		{
			name:    "inactive merchant",
			token:   token,
			account: &domain.MerchantAccount{MerchantID: "shop-1", Secret: "s3cret"},
			wantErr: domain.ErrMerchantNotFound,
		},
		{name: "wrong token", token: "deadbeef", account: account, wantErr: domain.ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.Verify(fields, tt.token, tt.account)

			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, domain.IsKind(err, domain.KindAuthentication))
		})
	}
}

func TestVerify_RejectsReservedField(t *testing.T) {
	account := &domain.MerchantAccount{MerchantID: "shop-1", Secret: "s3cret", IsActive: true}
	fields := map[string]any{"merchantId": "shop-1", "amount": 100, "password": "guess"}

	auth := security.NewTokenAuthenticator()
	err := auth.Verify(fields, auth.Sign(fields, account.Secret), account)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "password")

	// only the configured key is reserved
	custom := security.NewTokenAuthenticator(security.WithPasswordKey("Password"))
	assert.NoError(t, custom.Verify(fields, custom.Sign(fields, account.Secret), account))
}

func TestTokenFrom(t *testing.T) {
	auth := security.NewTokenAuthenticator()

	assert.Equal(t, "abc", auth.TokenFrom(map[string]any{"Token": "abc"}))
	assert.Equal(t, "", auth.TokenFrom(map[string]any{"token": 12}))
	assert.Equal(t, "", auth.TokenFrom(map[string]any{}))
}

func TestParseFields_RejectsNonObjects(t *testing.T) {
	_, err := security.ParseFields([]byte(`[1,2]`))
	assert.Error(t, err)

	_, err = security.ParseFields([]byte(`null`))
	assert.Error(t, err)
}
