package dca

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/dca-plugin/internal/types"
)

func validStub() *stubOracle {
	return &stubOracle{
		price: &types.GetPriceResponse{
			Price:    &types.QuotePrice{Price: "1234567", BlockHeight: 95},
			Nonce:    4,
			Decimals: 6,
		},
		pairs: []types.CurrencyPair{{Base: "ATOM", Quote: "USD"}, testPair},
		marketMap: &types.MarketMap{Markets: map[string]types.Market{
			"NTRN/USD": {Ticker: &types.Ticker{CurrencyPair: testPair, Decimals: 6, Enabled: true}},
		}},
	}
}

func TestGetValidatedPrice(t *testing.T) {
	stub := validStub()
	a := NewPriceAdapter(stub, stub)

	price, err := a.GetValidatedPrice(context.Background(), testPair, 100, 10)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1.234567").Equal(price))
	assert.Equal(t, 1, stub.calls)
}

func TestGetValidatedPriceChecks(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(s *stubOracle)
		height   uint64
		expected error
	}{
		{
			name:     "no price record",
			mutate:   func(s *stubOracle) { s.price.Price = nil },
			height:   100,
			expected: ErrPriceNotAvailable,
		},
		{
			name:     "no response",
			mutate:   func(s *stubOracle) { s.price = nil },
			height:   100,
			expected: ErrPriceNotAvailable,
		},
		{
			name:     "never updated",
			mutate:   func(s *stubOracle) { s.price.Nonce = 0 },
			height:   100,
			expected: ErrPriceIsNil,
		},
		{
			name: "missing wins over nil",
			mutate: func(s *stubOracle) {
				s.price.Price = nil
				s.price.Nonce = 0
			},
			height:   100,
			expected: ErrPriceNotAvailable,
		},
		{
			name:     "too old",
			mutate:   func(s *stubOracle) {},
			height:   106,
			expected: ErrPriceTooOld,
		},
		{
			name:     "negative",
			mutate:   func(s *stubOracle) { s.price.Price.Price = "-5" },
			height:   100,
			expected: ErrPriceIsNegative,
		},
		{
			name:     "not an integer",
			mutate:   func(s *stubOracle) { s.price.Price.Price = "1.25" },
			height:   100,
			expected: ErrInvalidPrice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := validStub()
			tt.mutate(stub)
			_, err := NewPriceAdapter(stub, stub).GetValidatedPrice(context.Background(), testPair, tt.height, 10)
			require.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestGetValidatedPriceAgeBoundary(t *testing.T) {
	stub := validStub()
	a := NewPriceAdapter(stub, stub)

	// exactly max_blocks_old behind is still fresh
	_, err := a.GetValidatedPrice(context.Background(), testPair, 105, 10)
	require.NoError(t, err)

	// a record ahead of the current height is fresh
	_, err = a.GetValidatedPrice(context.Background(), testPair, 90, 10)
	require.NoError(t, err)

	_, err = a.GetValidatedPrice(context.Background(), testPair, 106, 10)
	var cerr *ContractError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindPriceTooOld, cerr.Kind)
	assert.Equal(t, "NTRN", cerr.Symbol)
	assert.Equal(t, "USD", cerr.Quote)
	assert.Equal(t, uint64(10), cerr.MaxBlocks)
}

func TestGetValidatedPriceTransportError(t *testing.T) {
	stub := validStub()
	stub.priceErr = errors.New("connection refused")
	_, err := NewPriceAdapter(stub, stub).GetValidatedPrice(context.Background(), testPair, 100, 10)
	require.Error(t, err)
	var cerr *ContractError
	assert.False(t, errors.As(err, &cerr))
}

func TestValidateMarket(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(s *stubOracle)
		kind     ErrorKind
		location string
	}{
		{
			name:     "not listed by oracle",
			mutate:   func(s *stubOracle) { s.pairs = s.pairs[:1] },
			kind:     KindUnsupportedMarket,
			location: locationOracle,
		},
		{
			name:     "missing from market map",
			mutate:   func(s *stubOracle) { s.marketMap = &types.MarketMap{Markets: map[string]types.Market{}} },
			kind:     KindUnsupportedMarket,
			location: locationMarketMap,
		},
		{
			name: "disabled in market map",
			mutate: func(s *stubOracle) {
				s.marketMap.Markets["NTRN/USD"].Ticker.Enabled = false
			},
			kind:     KindDisabledMarket,
			location: locationMarketMap,
		},
		{
			name:   "stale price",
			mutate: func(s *stubOracle) { s.price.Price.BlockHeight = 1 },
			kind:   KindPriceTooOld,
		},
		{
			name:   "nil price",
			mutate: func(s *stubOracle) { s.price.Nonce = 0 },
			kind:   KindPriceIsNil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := validStub()
			tt.mutate(stub)
			err := NewPriceAdapter(stub, stub).ValidateMarket(context.Background(), testPair, 100, 10)
			var cerr *ContractError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.kind, cerr.Kind)
			assert.Equal(t, tt.location, cerr.Location)
		})
	}

	stub := validStub()
	require.NoError(t, NewPriceAdapter(stub, stub).ValidateMarket(context.Background(), testPair, 100, 10))
	assert.Equal(t, 1, stub.calls)
}
