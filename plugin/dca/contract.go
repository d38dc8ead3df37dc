package dca

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/dca-plugin/common"
	"github.com/vultisig/dca-plugin/internal/types"
	"github.com/vultisig/dca-plugin/plugin"
	"github.com/vultisig/dca-plugin/storage"
)

const (
	ContractName    = "vultisig:dca-plugin"
	ContractVersion = "0.1.0"

	maxBasisPoints = 10000
	ibcDenomLength = 68
)

type DCAPlugin struct {
	store  storage.StateStorage
	prices *PriceAdapter
	engine *Engine
	venue  Venue
	outbox plugin.Outbox
	logger logrus.FieldLogger
}

var _ plugin.Plugin = (*DCAPlugin)(nil)

func NewDCAPlugin(store storage.StateStorage, oracle OracleQuerier, marketMap MarketMapQuerier, venue Venue, logger logrus.FieldLogger) (*DCAPlugin, error) {
	if store == nil {
		return nil, fmt.Errorf("state storage is nil")
	}
	if oracle == nil || marketMap == nil {
		return nil, fmt.Errorf("oracle and market map queriers are required")
	}
	prices := NewPriceAdapter(oracle, marketMap)
	return &DCAPlugin{
		store:  store,
		prices: prices,
		engine: NewEngine(prices, venue, logger.WithField("component", "engine")),
		venue:  venue,
		logger: logger,
	}, nil
}

// WithOutbox stages every mutating response inside the state transaction
// that produced it.
func (p *DCAPlugin) WithOutbox(outbox plugin.Outbox) *DCAPlugin {
	p.outbox = outbox
	return p
}

func (p *DCAPlugin) stage(ctx context.Context, kv storage.KVStore, env types.Env, info types.MessageInfo, resp *types.Response) error {
	if p.outbox == nil {
		return nil
	}
	if err := p.outbox.Stage(ctx, kv, env, info, resp); err != nil {
		return fmt.Errorf("failed to stage instructions: %w", err)
	}
	return nil
}

func (p *DCAPlugin) Instantiate(ctx context.Context, env types.Env, msg types.InstantiateMsg) (*types.Response, error) {
	if err := validateInstantiateMsg(msg); err != nil {
		return nil, err
	}
	mode := msg.ExecutionMode
	if mode == "" {
		mode = types.ExecutionModeOptimistic
	}
	if _, err := policyFor(mode, p.venue); err != nil {
		return nil, err
	}

	pair := types.CurrencyPair{Base: msg.Base, Quote: msg.Quote}
	cfg := &types.Config{
		PairData: types.PairData{
			DenomBase:    msg.DenomBase,
			DenomQuote:   msg.DenomQuote,
			CurrencyPair: pair,
			PairID:       common.GetPairID(msg.DenomBase, msg.DenomQuote),
		},
		MaxBlocksOld:  msg.MaxBlockOld,
		Owner:         msg.Owner,
		MaxSchedules:  msg.MaxSchedules,
		ExecutionMode: mode,
	}

	err := p.store.Update(ctx, func(kv storage.KVStore) error {
		_, err := loadConfig(ctx, kv)
		if err == nil {
			return ErrAlreadyInstantiated
		}
		if !errors.Is(err, ErrNotInstantiated) {
			return err
		}
		if err := p.prices.ValidateMarket(ctx, pair, env.BlockHeight, msg.MaxBlockOld); err != nil {
			return err
		}
		if err := saveContractInfo(ctx, kv, &types.ContractInfo{Contract: ContractName, Version: ContractVersion}); err != nil {
			return err
		}
		if err := saveConfig(ctx, kv, cfg); err != nil {
			return err
		}
		return saveSchedules(ctx, kv, &types.Schedules{})
	})
	if err != nil {
		return nil, err
	}

	p.logger.WithFields(logrus.Fields{
		"owner":   cfg.Owner,
		"pair_id": cfg.PairData.PairID,
		"mode":    cfg.ExecutionMode,
	}).Info("contract instantiated")

	return types.NewResponse().
		AddAttribute("action", "instantiate").
		AddAttribute("owner", cfg.Owner).
		AddAttribute("max_blocks_stale", strconv.FormatUint(cfg.MaxBlocksOld, 10)).
		AddAttribute("denom_base", cfg.PairData.DenomBase).
		AddAttribute("denom_quote", cfg.PairData.DenomQuote).
		AddAttribute("pool_id", cfg.PairData.PairID), nil
}

func (p *DCAPlugin) CreateSchedule(ctx context.Context, env types.Env, info types.MessageInfo, msg types.CreateScheduleMsg) (*types.Response, error) {
	if len(info.Funds) == 0 {
		return nil, ErrNoFundsSent
	}
	if len(info.Funds) > 1 {
		return nil, ErrMultipleFundsSent
	}
	funds := info.Funds[0]
	if uintOrZero(funds.Amount).IsZero() {
		return nil, ErrNoFundsSent
	}
	if strings.TrimSpace(info.Sender) == "" {
		return nil, errEmptyValue("sender")
	}
	if msg.MaxSlippageBasisPoints > maxBasisPoints {
		return nil, errMalformedInput("max_slippage_basis_points", "must be <= 10000")
	}
	if uintOrZero(msg.MaxSellAmount).IsZero() {
		return nil, errMalformedInput("max_sell_amount", "must be > 0")
	}

	var (
		id   uint64
		resp *types.Response
	)
	err := p.store.Update(ctx, func(kv storage.KVStore) error {
		cfg, err := loadConfig(ctx, kv)
		if err != nil {
			return err
		}
		state, err := loadSchedules(ctx, kv)
		if err != nil {
			return err
		}
		ledger := NewLedger(state, cfg)
		id, err = ledger.Create(info.Sender, msg.MaxSellAmount, msg.MaxSlippageBasisPoints, funds)
		if err != nil {
			return err
		}
		if err := saveSchedules(ctx, kv, ledger.State()); err != nil {
			return err
		}
		resp = types.NewResponse().
			AddAttribute("action", "create_schedule").
			AddAttribute("owner", info.Sender).
			AddAttribute("schedule_id", strconv.FormatUint(id, 10)).
			AddAttribute("denom", funds.Denom).
			AddAttribute("amount", funds.Amount.String())
		return p.stage(ctx, kv, env, info, resp)
	})
	if err != nil {
		return nil, err
	}

	p.logger.WithFields(logrus.Fields{
		"owner":       info.Sender,
		"schedule_id": id,
		"amount":      funds.Amount.String(),
		"height":      env.BlockHeight,
	}).Info("schedule created")
	return resp, nil
}

func (p *DCAPlugin) RunSchedules(ctx context.Context, env types.Env) (*types.Response, error) {
	var resp *types.Response
	err := p.store.Update(ctx, func(kv storage.KVStore) error {
		result, err := p.engine.RunPass(ctx, kv, env)
		if err != nil {
			return err
		}
		resp = types.NewResponse().
			AddMessages(result.Messages...).
			AddAttribute("action", "run_schedules").
			AddAttribute("mode", string(result.Mode)).
			AddAttribute("orders", strconv.Itoa(len(result.Messages))).
			AddAttribute("pruned", strconv.Itoa(result.Pruned)).
			AddAttribute("locked", result.Locked.String())
		if len(result.Messages) > 0 || result.Pruned > 0 {
			resp.AddAttribute("price", result.Price.String())
		}
		if result.Redispatched > 0 {
			resp.AddAttribute("redispatched", strconv.Itoa(result.Redispatched))
		}
		return p.stage(ctx, kv, env, types.MessageInfo{}, resp)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (p *DCAPlugin) Reconcile(ctx context.Context, env types.Env, notice types.CompletionNotice) (*types.Response, error) {
	var (
		outcome *ReconcileOutcome
		resp    *types.Response
	)
	err := p.store.Update(ctx, func(kv storage.KVStore) error {
		cfg, err := loadConfig(ctx, kv)
		if err != nil {
			return err
		}
		state, err := loadSchedules(ctx, kv)
		if err != nil {
			return err
		}
		ledger := NewLedger(state, cfg)
		outcome, err = reconcile(ledger, cfg, notice, env.BlockHeight)
		if err != nil {
			return err
		}
		if !outcome.Failed {
			if err := saveSchedules(ctx, kv, ledger.State()); err != nil {
				return err
			}
		}
		resp = reconcileResponse(outcome)
		return p.stage(ctx, kv, env, types.MessageInfo{}, resp)
	})
	if err != nil {
		return nil, err
	}

	if outcome.Failed {
		p.logger.WithFields(logrus.Fields{
			"schedule_id": outcome.ScheduleID,
			"reason":      outcome.Reason,
		}).Warn("dispatched order failed on venue")
	}
	return resp, nil
}

func reconcileResponse(outcome *ReconcileOutcome) *types.Response {
	resp := types.NewResponse().
		AddAttribute("action", "reconcile").
		AddAttribute("schedule_id", strconv.FormatUint(outcome.ScheduleID, 10))
	switch {
	case outcome.Failed:
		resp.AddAttribute("result", "order_failed").AddAttribute("reason", outcome.Reason)
	case outcome.Removed:
		resp.AddAttribute("result", "schedule_removed").AddAttribute("confirmed", outcome.Confirmed.String())
	default:
		resp.AddAttribute("result", "reconciled").
			AddAttribute("confirmed", outcome.Confirmed.String()).
			AddAttribute("remaining", outcome.Remaining.String())
	}
	return resp
}

func (p *DCAPlugin) WithdrawAll(ctx context.Context, env types.Env, info types.MessageInfo) (*types.Response, error) {
	if strings.TrimSpace(info.Sender) == "" {
		return nil, errEmptyValue("sender")
	}

	var (
		resp      *types.Response
		withdrawn = "0"
	)
	err := p.store.Update(ctx, func(kv storage.KVStore) error {
		cfg, err := loadConfig(ctx, kv)
		if err != nil {
			return err
		}
		state, err := loadSchedules(ctx, kv)
		if err != nil {
			return err
		}
		ledger := NewLedger(state, cfg)
		send, total := withdrawAll(ledger, cfg, info.Sender)
		withdrawn = total.String()
		if err := saveSchedules(ctx, kv, ledger.State()); err != nil {
			return err
		}
		resp = types.NewResponse().
			AddAttribute("action", "withdraw_all").
			AddAttribute("owner", info.Sender).
			AddAttribute("amount_withdrawn", withdrawn)
		if send != nil {
			resp.AddMessages(types.SubMsg{ReplyOn: types.ReplyNever, BankSend: send})
		}
		return p.stage(ctx, kv, env, info, resp)
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Messages) > 0 {
		p.logger.WithFields(logrus.Fields{
			"owner":  info.Sender,
			"amount": withdrawn,
			"height": env.BlockHeight,
		}).Info("schedules withdrawn")
	}
	return resp, nil
}

func (p *DCAPlugin) GetCurrentPrice(ctx context.Context, env types.Env) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := p.store.View(ctx, func(kv storage.KVStore) error {
		cfg, err := loadConfig(ctx, kv)
		if err != nil {
			return err
		}
		price, err = p.prices.GetValidatedPrice(ctx, cfg.PairData.CurrencyPair, env.BlockHeight, cfg.MaxBlocksOld)
		return err
	})
	if err != nil {
		return decimal.Decimal{}, err
	}
	return price, nil
}

func (p *DCAPlugin) GetSchedulesByOwner(ctx context.Context, owner string) ([]types.Schedule, error) {
	var schedules []types.Schedule
	err := p.store.View(ctx, func(kv storage.KVStore) error {
		cfg, err := loadConfig(ctx, kv)
		if err != nil {
			return err
		}
		state, err := loadSchedules(ctx, kv)
		if err != nil {
			return err
		}
		schedules = NewLedger(state, cfg).ListByOwner(owner)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return schedules, nil
}

func (p *DCAPlugin) GetConfig(ctx context.Context) (*types.Config, error) {
	var cfg *types.Config
	err := p.store.View(ctx, func(kv storage.KVStore) error {
		var err error
		cfg, err = loadConfig(ctx, kv)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (p *DCAPlugin) GetContractInfo(ctx context.Context) (*types.ContractInfo, error) {
	var info *types.ContractInfo
	err := p.store.View(ctx, func(kv storage.KVStore) error {
		var err error
		info, err = loadContractInfo(ctx, kv)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotInstantiated
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func validateInstantiateMsg(msg types.InstantiateMsg) error {
	required := []struct {
		field string
		value string
	}{
		{"owner", msg.Owner},
		{"denom_base", msg.DenomBase},
		{"denom_quote", msg.DenomQuote},
		{"base", msg.Base},
		{"quote", msg.Quote},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return errEmptyValue(r.field)
		}
	}
	if msg.MaxBlockOld < 1 {
		return errMalformedInput("max_block_old", "must be >=1")
	}
	if msg.MaxSchedules < 1 {
		return errMalformedInput("max_schedules", "must be >=1")
	}
	if err := validateDenom(msg.DenomBase); err != nil {
		return err
	}
	return validateDenom(msg.DenomQuote)
}

// validateDenom checks the ibc/<HASH> form; native denoms pass unchanged.
func validateDenom(denom string) error {
	if !strings.HasPrefix(denom, "ibc/") {
		return nil
	}
	if len(denom) != ibcDenomLength {
		return errInvalidIbcDenom(denom, "expected length of 68 chars")
	}
	for _, c := range denom[4:] {
		if !(c >= '0' && c <= '9') && !(c >= 'A' && c <= 'F') {
			return errInvalidIbcDenom(denom, "invalid denom hash")
		}
	}
	return nil
}
