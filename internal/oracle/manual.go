package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/vultisig/dca-plugin/internal/types"
)

// ManualOracle is an in-memory price feed and market registry, used by tests
// and for manual overrides in development.
type ManualOracle struct {
	mu      sync.RWMutex
	prices  map[string]types.GetPriceResponse
	pairs   []types.CurrencyPair
	markets map[string]types.Market
	height  uint64
	nextID  uint64
}

func NewManualOracle() *ManualOracle {
	return &ManualOracle{
		prices:  make(map[string]types.GetPriceResponse),
		markets: make(map[string]types.Market),
	}
}

// SetPrice records a raw integer price observed at height. Every update bumps
// the pair's nonce.
func (m *ManualOracle) SetPrice(pair types.CurrencyPair, raw string, decimals uint64, height uint64) error {
	trimmed := strings.TrimSpace(raw)
	if _, ok := new(big.Int).SetString(trimmed, 10); !ok {
		return fmt.Errorf("manual oracle: invalid price %q", raw)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.listPair(pair)
	current := m.prices[pair.String()]
	current.Price = &types.QuotePrice{Price: trimmed, BlockHeight: height}
	current.Decimals = decimals
	current.Nonce++
	m.prices[pair.String()] = current
	if height > m.height {
		m.height = height
	}
	return nil
}

// ListPair registers a pair with the oracle without publishing a price.
func (m *ManualOracle) ListPair(pair types.CurrencyPair) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listPair(pair)
}

func (m *ManualOracle) listPair(pair types.CurrencyPair) {
	for _, p := range m.pairs {
		if p == pair {
			return
		}
	}
	m.pairs = append(m.pairs, pair)
	m.prices[pair.String()] = types.GetPriceResponse{ID: m.nextID}
	m.nextID++
}

// SetMarket adds or replaces the pair's entry in the market map.
func (m *ManualOracle) SetMarket(pair types.CurrencyPair, decimals uint64, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markets[pair.String()] = types.Market{
		Ticker: &types.Ticker{
			CurrencyPair:     pair,
			Decimals:         decimals,
			MinProviderCount: 1,
			Enabled:          enabled,
		},
	}
}

// SetHeight moves the reported chain height forward.
func (m *ManualOracle) SetHeight(height uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.height = height
}

func (m *ManualOracle) GetPrice(_ context.Context, pair types.CurrencyPair) (*types.GetPriceResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resp, ok := m.prices[pair.String()]
	if !ok {
		return nil, fmt.Errorf("manual oracle: pair %s not listed", pair)
	}
	if resp.Price != nil {
		price := *resp.Price
		resp.Price = &price
	}
	return &resp, nil
}

func (m *ManualOracle) GetAllCurrencyPairs(_ context.Context) ([]types.CurrencyPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.CurrencyPair, len(m.pairs))
	copy(out, m.pairs)
	return out, nil
}

func (m *ManualOracle) MarketMap(_ context.Context) (*types.MarketMap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	markets := make(map[string]types.Market, len(m.markets))
	for k, v := range m.markets {
		markets[k] = v
	}
	return &types.MarketMap{Markets: markets}, nil
}

func (m *ManualOracle) LatestHeight(_ context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.height, nil
}
