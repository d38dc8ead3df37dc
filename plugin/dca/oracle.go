package dca

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vultisig/dca-plugin/internal/types"
)

const (
	locationOracle    = "x/oracle"
	locationMarketMap = "x/marketmap"
)

// OracleQuerier is the price feed the contract reads from.
type OracleQuerier interface {
	GetPrice(ctx context.Context, pair types.CurrencyPair) (*types.GetPriceResponse, error)
	GetAllCurrencyPairs(ctx context.Context) ([]types.CurrencyPair, error)
}

// MarketMapQuerier is the market registry consulted at setup.
type MarketMapQuerier interface {
	MarketMap(ctx context.Context) (*types.MarketMap, error)
}

// PriceAdapter validates oracle observations against the ledger height.
type PriceAdapter struct {
	oracle    OracleQuerier
	marketMap MarketMapQuerier
}

func NewPriceAdapter(oracle OracleQuerier, marketMap MarketMapQuerier) *PriceAdapter {
	return &PriceAdapter{
		oracle:    oracle,
		marketMap: marketMap,
	}
}

// GetValidatedPrice fetches the pair's latest price and rejects it when it is
// missing, never updated or older than maxBlocksOld.
func (a *PriceAdapter) GetValidatedPrice(ctx context.Context, pair types.CurrencyPair, height, maxBlocksOld uint64) (decimal.Decimal, error) {
	resp, err := a.fetchPrice(ctx, pair)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if err := checkPriceAvailable(resp, pair); err != nil {
		return decimal.Decimal{}, err
	}
	if err := checkPriceNotNil(resp, pair); err != nil {
		return decimal.Decimal{}, err
	}
	if err := checkPriceRecent(resp, pair, height, maxBlocksOld); err != nil {
		return decimal.Decimal{}, err
	}

	raw, err := ParseRawPrice(resp.Price.Price)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return NormalizePrice(raw, resp.Decimals)
}

// ValidateMarket runs the one-time setup checks: the pair must be listed by
// the oracle and enabled in the market map, and its price must be usable.
func (a *PriceAdapter) ValidateMarket(ctx context.Context, pair types.CurrencyPair, height, maxBlocksOld uint64) error {
	resp, err := a.fetchPrice(ctx, pair)
	if err != nil {
		return err
	}

	pairs, err := a.oracle.GetAllCurrencyPairs(ctx)
	if err != nil {
		return fmt.Errorf("failed to query oracle currency pairs: %w", err)
	}
	listed := false
	for _, p := range pairs {
		if p == pair {
			listed = true
			break
		}
	}
	if !listed {
		return errMarket(KindUnsupportedMarket, pair.Base, pair.Quote, locationOracle)
	}

	markets, err := a.marketMap.MarketMap(ctx)
	if err != nil {
		return fmt.Errorf("failed to query market map: %w", err)
	}
	if markets == nil {
		return errMarket(KindUnsupportedMarket, pair.Base, pair.Quote, locationMarketMap)
	}
	market, ok := markets.Markets[pair.String()]
	if !ok {
		return errMarket(KindUnsupportedMarket, pair.Base, pair.Quote, locationMarketMap)
	}
	if market.Ticker != nil && !market.Ticker.Enabled {
		return errMarket(KindDisabledMarket, pair.Base, pair.Quote, locationMarketMap)
	}

	if err := checkPriceAvailable(resp, pair); err != nil {
		return err
	}
	if err := checkPriceRecent(resp, pair, height, maxBlocksOld); err != nil {
		return err
	}
	return checkPriceNotNil(resp, pair)
}

func (a *PriceAdapter) fetchPrice(ctx context.Context, pair types.CurrencyPair) (*types.GetPriceResponse, error) {
	resp, err := a.oracle.GetPrice(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("failed to query oracle price for %s: %w", pair, err)
	}
	if resp == nil {
		return nil, errMarket(KindPriceNotAvailable, pair.Base, pair.Quote, "")
	}
	return resp, nil
}

func checkPriceAvailable(resp *types.GetPriceResponse, pair types.CurrencyPair) error {
	if resp.Price == nil {
		return errMarket(KindPriceNotAvailable, pair.Base, pair.Quote, "")
	}
	return nil
}

func checkPriceNotNil(resp *types.GetPriceResponse, pair types.CurrencyPair) error {
	if resp.Nonce == 0 {
		return errMarket(KindPriceIsNil, pair.Base, pair.Quote, "")
	}
	return nil
}

// A record reported ahead of the current height counts as fresh.
func checkPriceRecent(resp *types.GetPriceResponse, pair types.CurrencyPair, height, maxBlocksOld uint64) error {
	if height > resp.Price.BlockHeight && height-resp.Price.BlockHeight > maxBlocksOld {
		return errPriceTooOld(pair.Base, pair.Quote, maxBlocksOld)
	}
	return nil
}
