// Package security implements the request signature merchants attach to every
// call: a SHA-256 over the sorted top-level scalar values plus the merchant
// secret.
package security

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
)

const (
	DefaultPasswordKey = "password"
	DefaultTokenField  = "token"
)

type TokenAuthenticator struct {
	passwordKey string
	tokenField  string
}

type Option func(*TokenAuthenticator)

// WithPasswordKey sets the field name the secret is sorted under.
func WithPasswordKey(key string) Option {
	return func(a *TokenAuthenticator) {
		a.passwordKey = key
	}
}

// WithTokenField sets the request field that carries the signature.
// It is matched case-insensitively and never signed.
func WithTokenField(name string) Option {
	return func(a *TokenAuthenticator) {
		a.tokenField = name
	}
}

func NewTokenAuthenticator(opts ...Option) *TokenAuthenticator {
	a := &TokenAuthenticator{
		passwordKey: DefaultPasswordKey,
		tokenField:  DefaultTokenField,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Sign returns the lowercase hex token for fields signed with secret.
func (a *TokenAuthenticator) Sign(fields map[string]any, secret string) string {
	values := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		if strings.EqualFold(k, a.tokenField) {
			continue
		}
		s, ok := scalarString(v)
		if !ok {
			continue
		}
		values[k] = s
	}
	values[a.passwordKey] = secret

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(values[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// CheckReserved rejects a request carrying a top-level field under the
// password key: the secret takes that slot, so the field could not be signed.
func (a *TokenAuthenticator) CheckReserved(fields map[string]any) error {
	if _, ok := fields[a.passwordKey]; ok {
		return domain.NewValidationError(fmt.Sprintf("field %s is reserved", a.passwordKey), nil)
	}
	return nil
}

// Authenticate reports whether token is the signature of fields under secret.
func (a *TokenAuthenticator) Authenticate(fields map[string]any, token, secret string) bool {
	expected := a.Sign(fields, secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(token)) == 1
}

// Verify authenticates a request on behalf of account and returns the
// matching AuthenticationError when it cannot.
func (a *TokenAuthenticator) Verify(fields map[string]any, token string, account *domain.MerchantAccount) error {
	if err := a.CheckReserved(fields); err != nil {
		return err
	}
	if token == "" {
		return domain.NewMissingTokenError()
	}
	if account == nil || !account.IsActive {
		merchantID := ""
		if account != nil {
			merchantID = account.MerchantID
		}
		return domain.NewMerchantNotFoundError(merchantID)
	}
	if !a.Authenticate(fields, token, account.Secret) {
		return domain.NewInvalidTokenError()
	}
	return nil
}

// TokenFrom returns the signature carried in fields, if any.
func (a *TokenAuthenticator) TokenFrom(fields map[string]any) string {
	for k, v := range fields {
		if strings.EqualFold(k, a.tokenField) {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

// ParseFields decodes a JSON object keeping numbers in their sent form, so the
// signature covers exactly what the merchant hashed.
func ParseFields(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode request fields: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("decode request fields: body is not a JSON object")
	}
	return fields, nil
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		// nil, nested objects and arrays are not signed
		return "", false
	}
}
