package types

import (
	sdkmath "cosmossdk.io/math"
)

// InstantiateMsg carries the one-time setup parameters.
type InstantiateMsg struct {
	Owner         string        `json:"owner" mapstructure:"owner"`
	DenomBase     string        `json:"denom_base" mapstructure:"denom_base"`
	DenomQuote    string        `json:"denom_quote" mapstructure:"denom_quote"`
	Base          string        `json:"base" mapstructure:"base"`
	Quote         string        `json:"quote" mapstructure:"quote"`
	MaxBlockOld   uint64        `json:"max_block_old" mapstructure:"max_block_old"`
	MaxSchedules  uint64        `json:"max_schedules" mapstructure:"max_schedules"`
	ExecutionMode ExecutionMode `json:"execution_mode,omitempty" mapstructure:"execution_mode"`
}

type CreateScheduleMsg struct {
	MaxSellAmount          sdkmath.Uint `json:"max_sell_amount"`
	MaxSlippageBasisPoints uint64       `json:"max_slippage_basis_points"`
}
