package domain

import (
	"github.com/shopspring/decimal"
)

// MaxTotal is the sanity ceiling applied to portfolio totals.
var MaxTotal = decimal.New(1, 12)

var hundred = decimal.NewFromInt(100)

// SafeParse parses a string into a decimal, returning zero for invalid or empty input.
func SafeParse(value string) decimal.Decimal {
	if value == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// PositivePart returns max(0, d).
func PositivePart(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// ClampTotal bounds a total to [0, MaxTotal].
func ClampTotal(d decimal.Decimal) decimal.Decimal {
	return decimal.Min(PositivePart(d), MaxTotal)
}

// PercentChange returns change / previous * 100, or zero when previous is not positive.
func PercentChange(change, previous decimal.Decimal) decimal.Decimal {
	if !previous.IsPositive() {
		return decimal.Zero
	}
	return change.Div(previous).Mul(hundred)
}
