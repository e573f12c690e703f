package domain

import "github.com/shopspring/decimal"

var million = decimal.NewFromInt(1_000_000)

// AmountCents computes round(unitCount / 1_000_000 × rate, 2 decimal
// places) in integer cents. Negative unit counts never occur upstream
// but clamp to zero so the result is always ≥ 0.
func AmountCents(unitCount, ratePerMillionCents int64) int64 {
	if unitCount <= 0 || ratePerMillionCents <= 0 {
		return 0
	}
	return decimal.NewFromInt(unitCount).
		Mul(decimal.NewFromInt(ratePerMillionCents)).
		Div(million).
		Round(0).
		IntPart()
}
