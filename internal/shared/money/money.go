// Package money converts between the minor units amounts are stored in and
// the major units some providers expect on the wire.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrFractional = errors.New("amount is not a whole number of major units")

// zero-decimal currencies seen in the target markets; everything else uses 2.
var exponents = map[string]int32{
	"XOF": 0,
	"XAF": 0,
	"GNF": 0,
	"RWF": 0,
	"UGX": 0,
	"JPY": 0,
	"KRW": 0,
}

func Exponent(currency string) int32 {
	if e, ok := exponents[strings.ToUpper(currency)]; ok {
		return e
	}
	return 2
}

// ToMajor converts an amount in minor units to major units.
func ToMajor(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -Exponent(currency))
}

// WholeMajor returns the amount in whole major units, failing with
// ErrFractional when the minor amount does not divide evenly.
func WholeMajor(minor int64, currency string) (string, error) {
	d := ToMajor(minor, currency)
	if !d.IsInteger() {
		return "", ErrFractional
	}
	return d.StringFixed(0), nil
}
