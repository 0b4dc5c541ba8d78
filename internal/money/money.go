// Package money provides fixed-point decimal arithmetic for transaction
// amounts and fees. Binary floating point is never used for amount or
// fee values; fee rates remain float64 but are converted through
// decimal.NewFromFloat, which yields the shortest decimal that
// round-trips to the same float64 (0.025 becomes exactly 0.025).
package money

import (
	"github.com/shopspring/decimal"
)

// Money wraps decimal.Decimal so callers never reach for float64
// arithmetic by accident.
type Money struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Money{d: decimal.Zero}

// FromString parses a decimal string (e.g. "100.00") into Money.
func FromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{d: d}, nil
}

// MustFromString parses s and panics on error; only for constants and
// tests where the literal is known to be valid.
func MustFromString(s string) Money {
	m, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return m
}

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool {
	return m.d.IsPositive()
}

// Fee computes amount * rate, preserving at least 4 decimal places.
// rate is a binary float64 (fee rates are permitted to be), converted
// via decimal.NewFromFloat to its shortest round-tripping decimal form
// before multiplying. The product is rounded to 4 decimal places.
func (m Money) Fee(rate float64) Money {
	r := decimal.NewFromFloat(rate)
	return Money{d: m.d.Mul(r).Round(4)}
}

// StringFixed renders the amount with exactly places decimal digits,
// matching the HTTP contract's decimal-string fields.
func (m Money) StringFixed(places int32) string {
	return m.d.StringFixed(places)
}

// String renders the amount at 4 decimal places, the precision floor
// fee values carry on the wire.
func (m Money) String() string {
	return m.d.StringFixed(4)
}

// Decimal exposes the underlying decimal.Decimal for callers that need
// it (e.g. comparisons in tests).
func (m Money) Decimal() decimal.Decimal {
	return m.d
}
