package dca

import (
	"math"

	"github.com/shopspring/decimal"
)

// tickBase is the ratio between two adjacent ticks on the venue's price grid.
const tickBase = 1.0001

var logTickBase = math.Log(tickBase)

// PriceToTickIndex returns the index of the grid tick nearest to price, where
// tick = -ln(price) / ln(1.0001), rounded half away from zero.
func PriceToTickIndex(price decimal.Decimal) (int64, error) {
	if price.Sign() <= 0 {
		return 0, ErrInvalidPrice
	}
	value := price.InexactFloat64()
	if value <= 0 || math.IsInf(value, 0) {
		return 0, ErrInvalidPrice
	}
	tick := -(math.Log(value) / logTickBase)
	return int64(math.Round(tick)), nil
}
