package money

import "github.com/shopspring/decimal"

// Cents rounds d to 2 decimals (half away from zero) and returns integer minor units.
func Cents(d decimal.Decimal) int64 {
	return d.Round(2).Mul(decimal.NewFromInt(100)).IntPart()
}

// FromCents converts integer minor units back to a decimal amount.
func FromCents(c int64) decimal.Decimal {
	return decimal.NewFromInt(c).Div(decimal.NewFromInt(100))
}

// RoundCost rounds an average unit cost to 4 decimals, half away from zero.
func RoundCost(d decimal.Decimal) decimal.Decimal {
	return d.Round(4)
}
