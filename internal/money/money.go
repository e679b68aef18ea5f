// Package money holds the fixed-point decimal conventions shared by the
// FX cache and the risk engine: which scale applies to which quantity,
// and which rounding mode.
package money

import "github.com/shopspring/decimal"

const (
	// CurrencyScale is the rounding scale for monetary amounts.
	CurrencyScale = 2
	// RateScale is the rounding scale for intermediate percentage
	// factors. FX rates are rounded at InvertScale instead.
	RateScale = 4
	// InvertScale is the precision used when inverting a quoted FX rate.
	InvertScale = 10
)

// RoundCurrency rounds a monetary amount to CurrencyScale, half-up.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyScale)
}

// RoundRate rounds a rate or percentage factor to RateScale, half-up.
func RoundRate(d decimal.Decimal) decimal.Decimal {
	return d.Round(RateScale)
}

// RoundInvert rounds an inverted FX rate to InvertScale, half-up.
func RoundInvert(d decimal.Decimal) decimal.Decimal {
	return d.Round(InvertScale)
}

// RoundDownCurrency rounds towards negative infinity at CurrencyScale — used for
// long stop-loss quotes, which must never round up past the assumed
// exit price.
func RoundDownCurrency(d decimal.Decimal) decimal.Decimal {
	return d.RoundFloor(CurrencyScale)
}

// RoundUpCurrency rounds towards positive infinity at CurrencyScale — used for
// short stop-loss quotes, which must never round down past the assumed
// exit price.
func RoundUpCurrency(d decimal.Decimal) decimal.Decimal {
	return d.RoundCeil(CurrencyScale)
}

// Abs returns the absolute value of d.
func Abs(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return d.Neg()
	}
	return d
}

// IsZero is a small readability helper for decimal.Decimal.
func IsZero(d decimal.Decimal) bool {
	return d.IsZero()
}
