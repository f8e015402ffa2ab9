package payment

import (
	"github.com/saas/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
)

// minorUnitExponent is the number of decimals providers expect per currency.
// Every supported currency uses cents.
func minorUnitExponent(billing.Currency) int32 {
	return 2
}

// toMinorUnits converts 100.00 USD to 10000
func toMinorUnits(amount decimal.Decimal, currency billing.Currency) int64 {
	return amount.Shift(minorUnitExponent(currency)).Round(0).IntPart()
}

// fromMinorUnits converts 10000 USD cents to 100.00
func fromMinorUnits(amount int64, currency billing.Currency) decimal.Decimal {
	return decimal.New(amount, -minorUnitExponent(currency))
}
