package dca

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/dca-plugin/internal/types"
	"github.com/vultisig/dca-plugin/storage"
)

// PassResult is what one execution pass produced.
type PassResult struct {
	Messages []types.SubMsg
	Price    decimal.Decimal
	Pruned   int
	Mode     types.ExecutionMode
	// Redispatched counts schedules ordered again while their previous
	// order still awaited its completion notice.
	Redispatched int
	Locked       sdkmath.Uint
}

// Engine runs execution passes over the schedule collection.
type Engine struct {
	prices *PriceAdapter
	venue  Venue
	logger logrus.FieldLogger
}

func NewEngine(prices *PriceAdapter, venue Venue, logger logrus.FieldLogger) *Engine {
	return &Engine{
		prices: prices,
		venue:  venue,
		logger: logger,
	}
}

// RunPass prices every schedule against one oracle snapshot and builds one
// immediate-or-cancel sell order per funded schedule. Any failure aborts the
// pass before anything is written.
func (e *Engine) RunPass(ctx context.Context, kv storage.KVStore, env types.Env) (*PassResult, error) {
	cfg, err := loadConfig(ctx, kv)
	if err != nil {
		return nil, err
	}
	state, err := loadSchedules(ctx, kv)
	if err != nil {
		return nil, err
	}
	result := &PassResult{Messages: []types.SubMsg{}, Mode: cfg.ExecutionMode, Locked: sdkmath.ZeroUint()}
	if len(state.Schedules) == 0 {
		return result, nil
	}

	policy, err := policyFor(cfg.ExecutionMode, e.venue)
	if err != nil {
		return nil, err
	}
	price, err := e.prices.GetValidatedPrice(ctx, cfg.PairData.CurrencyPair, env.BlockHeight, cfg.MaxBlocksOld)
	if err != nil {
		return nil, err
	}
	result.Price = price

	ledger := NewLedger(state, cfg)
	for i := range state.Schedules {
		schedule := &state.Schedules[i]
		if schedule.RemainingAmount.IsZero() {
			continue
		}
		if schedule.Dispatch != nil && schedule.Dispatch.Phase == types.PhaseDispatched {
			result.Redispatched++
			e.logger.WithFields(logrus.Fields{
				"schedule_id":     schedule.ID,
				"dispatch_height": schedule.Dispatch.Height,
				"expected_max":    schedule.Dispatch.ExpectedMax.String(),
			}).Warn("previous order not reconciled, dispatching again")
		}

		order, err := buildOrder(cfg, env, schedule, price)
		if err != nil {
			return nil, err
		}
		msg, err := policy.Dispatch(ctx, schedule, order, env.BlockHeight)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			result.Messages = append(result.Messages, *msg)
		}
	}

	result.Pruned = ledger.Prune()
	result.Locked = ledger.Total()
	if err := saveSchedules(ctx, kv, ledger.State()); err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"height":       env.BlockHeight,
		"price":        price.String(),
		"mode":         policy.Mode(),
		"orders":       len(result.Messages),
		"pruned":       result.Pruned,
		"redispatched": result.Redispatched,
		"remaining":    ledger.Len(),
		"locked":       result.Locked.String(),
	}).Info("execution pass completed")
	return result, nil
}

func buildOrder(cfg *types.Config, env types.Env, schedule *types.Schedule, price decimal.Decimal) (types.PlaceLimitOrder, error) {
	sell := sdkmath.MinUint(schedule.RemainingAmount, schedule.MaxSellAmount)
	target, err := SlippageTargetPrice(price, schedule.MaxSlippageBasisPoints)
	if err != nil {
		return types.PlaceLimitOrder{}, err
	}
	tick, err := PriceToTickIndex(target)
	if err != nil {
		return types.PlaceLimitOrder{}, fmt.Errorf("schedule %d: %w", schedule.ID, err)
	}
	return types.PlaceLimitOrder{
		Creator:          env.ContractAddress,
		Receiver:         schedule.Owner,
		TokenIn:          cfg.PairData.DenomQuote,
		TokenOut:         cfg.PairData.DenomBase,
		TickIndexInToOut: tick,
		AmountIn:         sell,
		OrderType:        types.LimitOrderImmediateOrCancel,
		LimitSellPrice:   target,
	}, nil
}
