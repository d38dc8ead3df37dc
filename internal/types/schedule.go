package types

import (
	sdkmath "cosmossdk.io/math"
)

type CurrencyPair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// String renders the pair in the BASE/QUOTE form used by the market map.
func (p CurrencyPair) String() string {
	return p.Base + "/" + p.Quote
}

type PairData struct {
	DenomBase    string       `json:"denom_base"`
	DenomQuote   string       `json:"denom_quote"`
	CurrencyPair CurrencyPair `json:"currency_pair"`
	PairID       string       `json:"pair_id"`
}

type ExecutionMode string

const (
	ExecutionModeOptimistic ExecutionMode = "optimistic"
	ExecutionModeEstimate   ExecutionMode = "estimate"
)

// Config is written once at instantiation and never updated.
type Config struct {
	PairData      PairData      `json:"pair_data"`
	MaxBlocksOld  uint64        `json:"max_blocks_old"`
	Owner         string        `json:"owner"`
	MaxSchedules  uint64        `json:"max_schedules"`
	ExecutionMode ExecutionMode `json:"execution_mode"`
}

type ContractInfo struct {
	Contract string `json:"contract"`
	Version  string `json:"version"`
}

type DispatchPhase string

const (
	PhaseDispatched DispatchPhase = "dispatched"
	PhaseReconciled DispatchPhase = "reconciled"
)

// Dispatch tracks the last order sent for a schedule. The schedule id is the
// correlation key between the order and its completion notice.
type Dispatch struct {
	Phase       DispatchPhase `json:"phase"`
	ExpectedMax sdkmath.Uint  `json:"expected_max"`
	Confirmed   sdkmath.Uint  `json:"confirmed"`
	Height      uint64        `json:"height"`
}

type Schedule struct {
	ID                     uint64       `json:"id"`
	Owner                  string       `json:"owner"`
	RemainingAmount        sdkmath.Uint `json:"remaining_amount"`
	MaxSellAmount          sdkmath.Uint `json:"max_sell_amount"`
	MaxSlippageBasisPoints uint64       `json:"max_slippage_basis_points"`
	Dispatch               *Dispatch    `json:"dispatch,omitempty"`
}

// Schedules is the single persisted collection of active schedules.
type Schedules struct {
	Schedules []Schedule `json:"schedules"`
	Nonce     uint64     `json:"nonce"`
}
