package dca

import (
	"context"
	"encoding/json"
	"io"
	"strconv"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/dca-plugin/internal/oracle"
	"github.com/vultisig/dca-plugin/internal/types"
	"github.com/vultisig/dca-plugin/internal/venue"
	"github.com/vultisig/dca-plugin/storage"
)

const (
	testContract = "neutron14hj2tavq8fpesdwxxcu44rty3hh90vhujrvcmstl4zr3txmfvw9s5c2epq"
	denomBase    = "untrn"
	denomQuote   = "uusdc"
	alice        = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	bob          = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
)

var testPair = types.CurrencyPair{Base: "NTRN", Quote: "USD"}

type fixture struct {
	ctx    context.Context
	store  *storage.MemoryStorage
	oracle *oracle.ManualOracle
	venue  *venue.PaperVenue
	plugin *DCAPlugin
	env    types.Env
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newBareFixture(t *testing.T) *fixture {
	t.Helper()
	logger := testLogger()
	o := oracle.NewManualOracle()
	o.SetMarket(testPair, 6, true)
	// 0.5 USD per NTRN
	require.NoError(t, o.SetPrice(testPair, "500000", 6, 100))

	v := venue.NewPaperVenue(logger)
	v.SetPrice(denomQuote, denomBase, decimal.RequireFromString("0.5"))

	store := storage.NewMemoryStorage()
	p, err := NewDCAPlugin(store, o, o, v, logger)
	require.NoError(t, err)

	return &fixture{
		ctx:    context.Background(),
		store:  store,
		oracle: o,
		venue:  v,
		plugin: p,
		env:    types.Env{BlockHeight: 100, ContractAddress: testContract},
	}
}

func newFixture(t *testing.T, mode types.ExecutionMode, maxSchedules uint64) *fixture {
	t.Helper()
	f := newBareFixture(t)
	_, err := f.plugin.Instantiate(f.ctx, f.env, instantiateMsg(mode, maxSchedules))
	require.NoError(t, err)
	return f
}

func instantiateMsg(mode types.ExecutionMode, maxSchedules uint64) types.InstantiateMsg {
	return types.InstantiateMsg{
		Owner:         alice,
		DenomBase:     denomBase,
		DenomQuote:    denomQuote,
		Base:          testPair.Base,
		Quote:         testPair.Quote,
		MaxBlockOld:   10,
		MaxSchedules:  maxSchedules,
		ExecutionMode: mode,
	}
}

func funds(denom string, amount uint64) []types.Coin {
	return []types.Coin{types.NewCoin(denom, sdkmath.NewUint(amount))}
}

func (f *fixture) create(t *testing.T, owner string, amount, maxSell, slippage uint64) uint64 {
	t.Helper()
	resp, err := f.plugin.CreateSchedule(f.ctx, f.env,
		types.MessageInfo{Sender: owner, Funds: funds(denomQuote, amount)},
		types.CreateScheduleMsg{MaxSellAmount: sdkmath.NewUint(maxSell), MaxSlippageBasisPoints: slippage})
	require.NoError(t, err)
	raw, ok := resp.Attribute("schedule_id")
	require.True(t, ok)
	id, err := strconv.ParseUint(raw, 10, 64)
	require.NoError(t, err)
	return id
}

func (f *fixture) schedules(t *testing.T) *types.Schedules {
	t.Helper()
	var state *types.Schedules
	require.NoError(t, f.store.View(f.ctx, func(kv storage.KVStore) error {
		var err error
		state, err = loadSchedules(f.ctx, kv)
		return err
	}))
	return state
}

func (f *fixture) rawSchedules(t *testing.T) []byte {
	t.Helper()
	var raw []byte
	require.NoError(t, f.store.View(f.ctx, func(kv storage.KVStore) error {
		var err error
		raw, err = kv.Get(f.ctx, keySchedules)
		return err
	}))
	return raw
}

func fillNotice(t *testing.T, id uint64, denom string, amount uint64) types.CompletionNotice {
	t.Helper()
	data, err := json.Marshal(types.PlaceLimitOrderResponse{
		TrancheKey:   "tranche",
		CoinIn:       types.NewCoin(denom, sdkmath.NewUint(amount)),
		TakerCoinIn:  types.NewCoin(denom, sdkmath.NewUint(amount)),
		TakerCoinOut: types.NewCoin(denomBase, sdkmath.NewUint(amount*2)),
	})
	require.NoError(t, err)
	return types.CompletionNotice{ID: id, Data: data}
}

// stubOracle serves a fixed response for every pair.
type stubOracle struct {
	price     *types.GetPriceResponse
	priceErr  error
	pairs     []types.CurrencyPair
	marketMap *types.MarketMap
	calls     int
}

func (s *stubOracle) GetPrice(_ context.Context, _ types.CurrencyPair) (*types.GetPriceResponse, error) {
	s.calls++
	return s.price, s.priceErr
}

func (s *stubOracle) GetAllCurrencyPairs(_ context.Context) ([]types.CurrencyPair, error) {
	return s.pairs, nil
}

func (s *stubOracle) MarketMap(_ context.Context) (*types.MarketMap, error) {
	return s.marketMap, nil
}

// stubVenue returns a fixed simulation result.
type stubVenue struct {
	consumed sdkmath.Uint
}

func (s *stubVenue) SimulatePlaceLimitOrder(_ context.Context, order types.PlaceLimitOrder) (*types.PlaceLimitOrderResponse, error) {
	return &types.PlaceLimitOrderResponse{
		CoinIn:      types.NewCoin(order.TokenIn, order.AmountIn),
		TakerCoinIn: types.NewCoin(order.TokenIn, s.consumed),
	}, nil
}
