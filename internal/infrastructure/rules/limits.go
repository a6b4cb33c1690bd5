// Package rules holds BusinessRuleHook implementations applied before Init.
package rules

import (
	"context"
	"fmt"
	"strings"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/application"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
	"github.com/shopspring/decimal"
)

// minorUnits is the ISO 4217 exponent for currencies that differ from two.
var minorUnits = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
}

func exponent(currency string) int32 {
	if e, ok := minorUnits[currency]; ok {
		return e
	}
	return 2
}

// ToMajor converts an amount in minor units to major units.
func ToMajor(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -exponent(currency))
}

// SpendingLimits caps the amount of a single Init per currency. Currencies
// without a limit are not restricted.
type SpendingLimits struct {
	max map[string]decimal.Decimal
}

var _ application.BusinessRuleHook = (*SpendingLimits)(nil)

// ParseLimits reads "RUB:150000,USD:2000.50" (major units). An empty string
// yields no limits.
func ParseLimits(spec string) (*SpendingLimits, error) {
	l := &SpendingLimits{max: make(map[string]decimal.Decimal)}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		currency, value, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("limit %q: want CURRENCY:AMOUNT", part)
		}
		currency = strings.ToUpper(strings.TrimSpace(currency))
		if len(currency) != 3 {
			return nil, fmt.Errorf("limit %q: currency must be a three letter code", part)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("limit %q: %w", part, err)
		}
		if amount.Cmp(decimal.Zero) <= 0 {
			return nil, fmt.Errorf("limit %q: amount must be positive", part)
		}
		l.max[currency] = amount
	}
	return l, nil
}

// Limit returns the configured maximum for currency, if any.
func (l *SpendingLimits) Limit(currency string) (decimal.Decimal, bool) {
	d, ok := l.max[currency]
	return d, ok
}

func (l *SpendingLimits) ValidateInit(_ context.Context, check application.InitCheck) error {
	limit, ok := l.Limit(check.Currency)
	if !ok {
		return nil
	}
	amount := ToMajor(check.Amount, check.Currency)
	if amount.GreaterThan(limit) {
		return domain.NewValidationError(
			fmt.Sprintf("amount %s %s exceeds the limit of %s", amount.StringFixed(exponent(check.Currency)), check.Currency, limit.String()),
			nil,
		)
	}
	return nil
}
