package rewards

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValue(t *testing.T) {
	tests := []struct {
		name       string
		multiplier string
		pointValue string
		amount     int64
		wantPoints int64
		wantValue  int64
	}{
		{name: "base rate", multiplier: "1", pointValue: "0.01", amount: 10000, wantPoints: 100, wantValue: 100},
		{name: "category rate", multiplier: "4", pointValue: "0.01", amount: 10000, wantPoints: 400, wantValue: 400},
		{name: "points floored", multiplier: "1.5", pointValue: "0.01", amount: 999, wantPoints: 14, wantValue: 14},
		{name: "value floored to cents", multiplier: "3", pointValue: "0.0125", amount: 1000, wantPoints: 30, wantValue: 37},
		{name: "sub-unit spend earns nothing", multiplier: "1", pointValue: "0.01", amount: 99, wantPoints: 0, wantValue: 0},
		{name: "refund earns nothing", multiplier: "5", pointValue: "0.01", amount: -5000, wantPoints: 0, wantValue: 0},
		{name: "zero multiplier", multiplier: "0", pointValue: "0.01", amount: 5000, wantPoints: 0, wantValue: 0},
		{name: "valuable points", multiplier: "2", pointValue: "0.015", amount: 12345, wantPoints: 246, wantValue: 369},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Value(dec(tt.multiplier), tt.amount, dec(tt.pointValue))
			assert.Equal(t, tt.wantPoints, got.Points)
			assert.Equal(t, tt.wantValue, got.ValueCents)
		})
	}
}

func TestValue_MonotonicInMultiplier(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		amount := rng.Int63n(1_000_000)
		pointValue := decimal.New(rng.Int63n(300), -4)
		low := decimal.New(rng.Int63n(1000), -2)
		high := low.Add(decimal.New(rng.Int63n(1000), -2))

		lowVal := Value(low, amount, pointValue)
		highVal := Value(high, amount, pointValue)

		assert.LessOrEqual(t, lowVal.Points, highVal.Points,
			"amount=%d low=%s high=%s", amount, low, high)
		assert.LessOrEqual(t, lowVal.ValueCents, highVal.ValueCents,
			"amount=%d low=%s high=%s pv=%s", amount, low, high, pointValue)
	}
}

func TestValueRate(t *testing.T) {
	assert.True(t, ValueRate(dec("4"), dec("0.01")).Equal(dec("0.04")))
}
