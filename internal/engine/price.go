package engine

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// PriceGap compares two spot prices for the same pair and returns the signed
// divergence of a over b in percent, rounded to two places. Both samples are
// rounded to the configured precision first so the two venues are compared on
// equal footing. A zero sample on either side means an uninitialized or
// illiquid pool; that is not an error, just no signal.
func PriceGap(a, b decimal.Decimal, units int32) (float64, bool) {
	a = a.Round(units)
	b = b.Round(units)
	if a.IsZero() || b.IsZero() {
		return 0, false
	}
	gap := a.Sub(b).Div(b).Mul(hundred).Round(2)
	return gap.InexactFloat64(), true
}
