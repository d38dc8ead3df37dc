package dca

import (
	sdkmath "cosmossdk.io/math"

	"github.com/vultisig/dca-plugin/internal/types"
)

// withdrawAll removes the owner's schedules and returns the refund transfer,
// or nil when there is nothing to send back.
func withdrawAll(ledger *Ledger, cfg *types.Config, owner string) (*types.BankSend, sdkmath.Uint) {
	total := ledger.RemoveAllByOwner(owner)
	if total.IsZero() {
		return nil, total
	}
	return &types.BankSend{
		ToAddress: owner,
		Amount:    []types.Coin{types.NewCoin(cfg.PairData.DenomQuote, total)},
	}, total
}
