package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/security"
	"github.com/go-playground/validator"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// DecodeSigned reads a merchant request body into dst and also returns its
// top-level fields exactly as sent, which is what the token was computed
// over. Shape and tag violations come back as ValidationErrors.
func DecodeSigned(w http.ResponseWriter, r *http.Request, dst any) (map[string]any, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, domain.NewValidationError("request body too large", err)
		}
		return nil, domain.NewValidationError("unreadable request body", err)
	}

	fields, err := security.ParseFields(raw)
	if err != nil {
		return nil, domain.NewValidationError("request body must be a JSON object", err)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, domain.NewValidationError(fmt.Sprintf("field %s has the wrong type", typeErr.Field), err)
		}
		return nil, domain.NewValidationError("malformed request body", err)
	}

	if err := ValidateStruct(dst); err != nil {
		return nil, err
	}
	return fields, nil
}

// ValidateStruct runs the validate tags of v.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.NewValidationError("invalid request", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return domain.NewValidationError(strings.Join(msgs, "; "), err)
}
