package domain

import (
	"errors"
	"regexp"

	"github.com/google/uuid"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Money is an amount in minor units of a currency.
type Money struct {
	Amount   int64
	Currency string
}

func NewMoney(amount int64, currency string) (Money, error) {
	if amount <= 0 {
		return Money{}, errors.New("amount must be positive")
	}
	if currency == "" {
		return Money{}, errors.New("currency is required")
	}
	if !currencyPattern.MatchString(currency) {
		return Money{}, errors.New("currency must be a three letter ISO 4217 code")
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// Actor identifies who requested a transition.
type Actor string

const (
	ActorSystem   Actor = "system"
	ActorMerchant Actor = "merchant"
	ActorBank     Actor = "bank-simulation"
)

// NewTransactionID returns a fresh opaque transaction identifier.
func NewTransactionID() string {
	return uuid.NewString()
}

// IsTransactionID reports whether id has the shape produced by NewTransactionID.
func IsTransactionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// MerchantAccount is the credential record used to authenticate merchant requests.
type MerchantAccount struct {
	MerchantID string
	Secret     string
	IsActive   bool
}
