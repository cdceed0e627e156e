// Package money provides fixed-precision rupee amounts stored as integer
// paise. All arithmetic is integral; rounding is half-up at two decimals.
package money

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Money is an amount in paise (hundredths of a rupee).
type Money int64

// FromRupees converts a rupee amount to paise with half-up rounding.
func FromRupees(rupees float64) Money {
	return Money(int64(math.Floor(rupees*100 + 0.5)))
}

// Rupees returns the amount as a float. For display only; never feed the
// result back into money arithmetic.
func (m Money) Rupees() float64 {
	return float64(m) / 100
}

// MulQuantity multiplies the amount by a possibly fractional quantity using
// integer arithmetic (quantity carried in milli-units), rounding half-up.
func (m Money) MulQuantity(quantity float64) Money {
	milli := int64(math.Floor(quantity*1000 + 0.5))
	return Money(divRoundHalfUp(int64(m)*milli, 1000))
}

// PercentBasisPoints returns m × bps/10000 rounded half-up, i.e. a
// percentage expressed in basis points (18% = 1800 bps).
func (m Money) PercentBasisPoints(bps int64) Money {
	return Money(divRoundHalfUp(int64(m)*bps, 10000))
}

// HalfPercentBasisPoints returns m × bps/20000 rounded half-up: one half
// of the given basis-point percentage, computed on the full rate so odd
// bps values do not lose a half-point to integer division.
func (m Money) HalfPercentBasisPoints(bps int64) Money {
	return Money(divRoundHalfUp(int64(m)*bps, 20000))
}

// String formats the amount with two decimals, e.g. "660.00".
func (m Money) String() string {
	v := int64(m)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON emits the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number (or numeric string) in rupees.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*m = 0
		return nil
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid money value %q: %w", raw, err)
	}
	*m = FromRupees(parsed)
	return nil
}

func divRoundHalfUp(numerator, denominator int64) int64 {
	if denominator <= 0 {
		return 0
	}
	if numerator >= 0 {
		return (numerator + denominator/2) / denominator
	}
	return -((-numerator + denominator/2) / denominator)
}
