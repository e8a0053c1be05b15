package models

import "github.com/shopspring/decimal"

// MoneyPlaces is the number of decimal places all money values are rounded to
const MoneyPlaces = 2

// RoundMoney rounds a money value to cents
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// PlatformFee computes the fee charged on a gross amount.
// The fee is always taken from the unrounded gross amount.
func PlatformFee(gross decimal.Decimal, rate decimal.Decimal) decimal.Decimal {
	return RoundMoney(gross.Mul(rate))
}

// SplitPot distributes pot across stakes proportionally. Each share is rounded to cents
// and any rounding remainder goes to the largest stake so the shares always sum to pot.
func SplitPot(pot decimal.Decimal, stakes []decimal.Decimal) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(stakes))
	if len(stakes) == 0 {
		return shares
	}

	total := decimal.Zero
	largest := 0
	for i, s := range stakes {
		total = total.Add(s)
		if s.GreaterThan(stakes[largest]) {
			largest = i
		}
	}
	if total.IsZero() {
		return shares
	}

	distributed := decimal.Zero
	for i, s := range stakes {
		shares[i] = RoundMoney(pot.Mul(s).Div(total))
		distributed = distributed.Add(shares[i])
	}
	shares[largest] = shares[largest].Add(RoundMoney(pot).Sub(distributed))
	return shares
}
