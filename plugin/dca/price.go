package dca

import (
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// DecimalPlaces is the fixed-point precision of every price the contract keeps.
const DecimalPlaces = 18

var (
	ten         = big.NewInt(10)
	maxAtomics  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	maxDecimal  = decimal.NewFromBigInt(maxAtomics, -DecimalPlaces)
	maxRaw      = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minRaw      = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	basisPoints = decimal.NewFromInt(10000)
)

// ParseRawPrice parses the signed 128-bit integer price string reported by
// the oracle.
func ParseRawPrice(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, ErrInvalidPrice
	}
	price, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || price.Cmp(maxRaw) > 0 || price.Cmp(minRaw) < 0 {
		return nil, ErrInvalidPrice
	}
	return price, nil
}

// NormalizePrice converts an integer price with the given number of decimals
// into an 18 digit fixed-point value. Digits beyond the 18th are truncated.
func NormalizePrice(price *big.Int, decimals uint64) (decimal.Decimal, error) {
	if decimals > math.MaxUint32 {
		return decimal.Decimal{}, ErrTooManyDecimals
	}
	if price == nil {
		return decimal.Decimal{}, ErrInvalidPrice
	}
	if price.Sign() < 0 {
		return decimal.Decimal{}, ErrPriceIsNegative
	}

	atomics := new(big.Int).Set(price)
	switch {
	case decimals < DecimalPlaces:
		factor := new(big.Int).Exp(ten, big.NewInt(int64(DecimalPlaces-decimals)), nil)
		atomics.Mul(atomics, factor)
	case decimals > DecimalPlaces:
		digits := decimals - DecimalPlaces
		// 10^39 exceeds the 128-bit range; anything divided by it is zero.
		if digits > 38 {
			return decimal.Zero, nil
		}
		factor := new(big.Int).Exp(ten, big.NewInt(int64(digits)), nil)
		atomics.Quo(atomics, factor)
	}

	if atomics.Cmp(maxAtomics) > 0 {
		return decimal.Decimal{}, ErrDecimalConversionError
	}
	return decimal.NewFromBigInt(atomics, -DecimalPlaces), nil
}

func checkedDecimal(value decimal.Decimal, field string) (decimal.Decimal, error) {
	value = value.Truncate(DecimalPlaces)
	if value.GreaterThan(maxDecimal) {
		return decimal.Decimal{}, errOverflow(field)
	}
	return value, nil
}

// SlippageTargetPrice widens the oracle price by the schedule's slippage.
// The result is price + (price + price*bp/10000), i.e. price*(2 + bp/10000).
func SlippageTargetPrice(price decimal.Decimal, slippageBasisPoints uint64) (decimal.Decimal, error) {
	ratio := decimal.NewFromBigInt(new(big.Int).SetUint64(slippageBasisPoints), 0).Div(basisPoints)
	delta, err := checkedDecimal(price.Mul(ratio), "slippage delta")
	if err != nil {
		return decimal.Decimal{}, err
	}
	adjusted, err := checkedDecimal(price.Add(delta), "adjusted price")
	if err != nil {
		return decimal.Decimal{}, err
	}
	return checkedDecimal(price.Add(adjusted), "target price")
}
