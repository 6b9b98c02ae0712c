package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// zero-decimal currencies; everything else uses two places
var zeroDecimal = map[string]bool{"IDR": true, "JPY": true, "KRW": true, "VND": true}

// Exponent is the number of minor-unit digits for a currency.
func Exponent(currency string) int32 {
	if zeroDecimal[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// Round rounds half away from zero to the currency exponent.
func Round(d decimal.Decimal, currency string) decimal.Decimal {
	return d.Round(Exponent(currency))
}

// ToMinor converts an already rounded amount into integer minor units.
func ToMinor(d decimal.Decimal, currency string) int64 {
	return d.Shift(Exponent(currency)).Round(0).IntPart()
}

// FromMinor is the inverse of ToMinor.
func FromMinor(v int64, currency string) decimal.Decimal {
	return decimal.New(v, -Exponent(currency))
}
