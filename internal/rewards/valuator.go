package rewards

import "github.com/shopspring/decimal"

// Valuation is the reward a spend earns on one instrument.
type Valuation struct {
	Points     int64
	ValueCents int64
}

var centsPerUnit = decimal.NewFromInt(100)

// Value converts a spend into points and their monetary value.
//
//	points = floor(amount * multiplier)
//	value  = floor(points * pointValue), in cents
//
// Non-positive amounts and multipliers earn nothing.
func Value(multiplier decimal.Decimal, amountCents int64, pointValue decimal.Decimal) Valuation {
	if amountCents <= 0 || multiplier.Sign() <= 0 {
		return Valuation{}
	}

	amount := decimal.New(amountCents, -2)
	points := amount.Mul(multiplier).Floor()
	value := points.Mul(pointValue).Mul(centsPerUnit).Floor()

	return Valuation{
		Points:     points.IntPart(),
		ValueCents: value.IntPart(),
	}
}

// ValueRate returns the value earned per currency unit spent.
func ValueRate(multiplier, pointValue decimal.Decimal) decimal.Decimal {
	return multiplier.Mul(pointValue)
}
