package billing

import (
	"strings"

	"github.com/saas/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 currency code
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	BRL Currency = "BRL"
)

// DefaultCurrency is used when a caller does not name one
const DefaultCurrency = USD

// moneyScale is the number of decimal places amounts are rounded to
const moneyScale = 2

// ParseCurrency normalizes and validates a currency code
func ParseCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", shared.NewDomainError(shared.CodeInvalidInput, "Currency must be a 3-letter ISO 4217 code")
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", shared.NewDomainError(shared.CodeInvalidInput, "Currency must be a 3-letter ISO 4217 code")
		}
	}
	return Currency(code), nil
}

// String returns the currency code
func (c Currency) String() string {
	return string(c)
}

// RoundMoney rounds an amount to cents
func RoundMoney(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(moneyScale)
}

func validatePositiveAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return shared.NewDomainError(shared.CodeInvalidInput, "Amount must be greater than zero")
	}
	return nil
}
