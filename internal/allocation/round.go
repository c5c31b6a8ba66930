package allocation

import "github.com/shopspring/decimal"

const (
	// MinPrecision 与 MaxPrecision 限定份额小数位。
	MinPrecision = 0
	MaxPrecision = 10

	centPlaces    = 2
	percentPlaces = 2
)

var hundred = decimal.NewFromInt(100)

// Round 按 half-away-from-zero 规则保留 places 位小数。
func Round(value decimal.Decimal, places int) decimal.Decimal {
	return value.Round(int32(places))
}

// RoundCents 保留到分。
func RoundCents(value decimal.Decimal) decimal.Decimal {
	return value.Round(centPlaces)
}

func percentOf(amount, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return amount.Mul(hundred).Div(total).Round(percentPlaces)
}
