package venue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/dca-plugin/internal/types"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoPrice             = errors.New("no price for pair")
	ErrNotFilled           = errors.New("order could not be filled")
)

// Fill is a simulated order execution.
type Fill struct {
	TrancheKey string
	Order      types.PlaceLimitOrder
	CoinIn     types.Coin
	CoinOut    types.Coin
}

// PaperVenue is a book-less matching venue with virtual balances. Orders
// fill at the configured price, capped by the configured liquidity of the
// pair.
type PaperVenue struct {
	mu        sync.Mutex
	balances  map[string]map[string]sdkmath.Uint
	prices    map[string]decimal.Decimal
	liquidity map[string]sdkmath.Uint
	fills     []Fill
	logger    logrus.FieldLogger
}

func NewPaperVenue(logger logrus.FieldLogger) *PaperVenue {
	return &PaperVenue{
		balances:  make(map[string]map[string]sdkmath.Uint),
		prices:    make(map[string]decimal.Decimal),
		liquidity: make(map[string]sdkmath.Uint),
		logger:    logger,
	}
}

func pairKey(tokenIn, tokenOut string) string {
	return tokenIn + "->" + tokenOut
}

// SetPrice sets how many units of tokenIn buy one unit of tokenOut.
func (p *PaperVenue) SetPrice(tokenIn, tokenOut string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[pairKey(tokenIn, tokenOut)] = price
}

// SetLiquidity caps how much tokenIn the venue absorbs. Pairs without a cap
// are unlimited.
func (p *PaperVenue) SetLiquidity(tokenIn, tokenOut string, amount sdkmath.Uint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.liquidity[pairKey(tokenIn, tokenOut)] = amount
}

// Deposit credits funds to an account.
func (p *PaperVenue) Deposit(address string, coin types.Coin) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.credit(address, coin)
}

func (p *PaperVenue) Balance(address, denom string) sdkmath.Uint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance(address, denom)
}

func (p *PaperVenue) Fills() []Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Fill, len(p.fills))
	copy(out, p.fills)
	return out
}

// SimulatePlaceLimitOrder reports what the order would consume without
// touching balances.
func (p *PaperVenue) SimulatePlaceLimitOrder(_ context.Context, order types.PlaceLimitOrder) (*types.PlaceLimitOrderResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	coinIn, coinOut, err := p.quote(order)
	if err != nil {
		return nil, err
	}
	return &types.PlaceLimitOrderResponse{
		CoinIn:       types.NewCoin(order.TokenIn, order.AmountIn),
		TakerCoinIn:  coinIn,
		TakerCoinOut: coinOut,
	}, nil
}

// PlaceLimitOrder executes the order for the creator, paying the proceeds to
// the receiver.
func (p *PaperVenue) PlaceLimitOrder(_ context.Context, order types.PlaceLimitOrder) (*types.PlaceLimitOrderResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	coinIn, coinOut, err := p.quote(order)
	if err != nil {
		return nil, err
	}
	if coinIn.Amount.IsZero() && order.OrderType == types.LimitOrderFillOrKill {
		return nil, ErrNotFilled
	}
	if err := p.debit(order.Creator, coinIn); err != nil {
		return nil, err
	}
	p.credit(order.Receiver, coinOut)

	key := pairKey(order.TokenIn, order.TokenOut)
	if limit, ok := p.liquidity[key]; ok {
		p.liquidity[key] = limit.Sub(coinIn.Amount)
	}

	fill := Fill{
		TrancheKey: uuid.New().String(),
		Order:      order,
		CoinIn:     coinIn,
		CoinOut:    coinOut,
	}
	p.fills = append(p.fills, fill)

	p.logger.WithFields(logrus.Fields{
		"tranche_key": fill.TrancheKey,
		"receiver":    order.Receiver,
		"amount_in":   coinIn.Amount.String(),
		"amount_out":  coinOut.Amount.String(),
	}).Info("paper order filled")

	return &types.PlaceLimitOrderResponse{
		TrancheKey:   fill.TrancheKey,
		CoinIn:       types.NewCoin(order.TokenIn, order.AmountIn),
		TakerCoinIn:  coinIn,
		TakerCoinOut: coinOut,
	}, nil
}

// BankSend moves funds out of from's balance.
func (p *PaperVenue) BankSend(_ context.Context, from string, send types.BankSend) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, coin := range send.Amount {
		if p.balance(from, coin.Denom).LT(coin.Amount) {
			return fmt.Errorf("%w: %s has %s%s, needs %s%s", ErrInsufficientBalance,
				from, p.balance(from, coin.Denom), coin.Denom, coin.Amount, coin.Denom)
		}
	}
	for _, coin := range send.Amount {
		if err := p.debit(from, coin); err != nil {
			return err
		}
		p.credit(send.ToAddress, coin)
	}
	return nil
}

// quote sizes the fill. Immediate-or-cancel and fill-or-kill orders take what
// liquidity allows; fill-or-kill fails instead of partially filling.
func (p *PaperVenue) quote(order types.PlaceLimitOrder) (types.Coin, types.Coin, error) {
	amountIn := order.AmountIn
	if amountIn == (sdkmath.Uint{}) {
		amountIn = sdkmath.ZeroUint()
	}
	price, ok := p.prices[pairKey(order.TokenIn, order.TokenOut)]
	if !ok || !price.IsPositive() {
		return types.Coin{}, types.Coin{}, fmt.Errorf("%w %s", ErrNoPrice, pairKey(order.TokenIn, order.TokenOut))
	}

	filled := amountIn
	if limit, ok := p.liquidity[pairKey(order.TokenIn, order.TokenOut)]; ok {
		filled = sdkmath.MinUint(filled, limit)
	}
	if order.OrderType == types.LimitOrderFillOrKill && filled.LT(amountIn) {
		return types.Coin{}, types.Coin{}, ErrNotFilled
	}

	out := decimal.NewFromBigInt(filled.BigInt(), 0).Div(price).Truncate(0)
	return types.NewCoin(order.TokenIn, filled), types.NewCoin(order.TokenOut, sdkmath.NewUintFromBigInt(out.BigInt())), nil
}

func (p *PaperVenue) balance(address, denom string) sdkmath.Uint {
	if account, ok := p.balances[address]; ok {
		if amount, ok := account[denom]; ok {
			return amount
		}
	}
	return sdkmath.ZeroUint()
}

func (p *PaperVenue) credit(address string, coin types.Coin) {
	if coin.Amount == (sdkmath.Uint{}) || coin.Amount.IsZero() {
		return
	}
	account, ok := p.balances[address]
	if !ok {
		account = make(map[string]sdkmath.Uint)
		p.balances[address] = account
	}
	account[coin.Denom] = p.balance(address, coin.Denom).Add(coin.Amount)
}

func (p *PaperVenue) debit(address string, coin types.Coin) error {
	if coin.Amount == (sdkmath.Uint{}) || coin.Amount.IsZero() {
		return nil
	}
	current := p.balance(address, coin.Denom)
	if current.LT(coin.Amount) {
		return fmt.Errorf("%w: %s has %s%s, needs %s%s", ErrInsufficientBalance,
			address, current, coin.Denom, coin.Amount, coin.Denom)
	}
	p.balances[address][coin.Denom] = current.Sub(coin.Amount)
	return nil
}
