package dca

import (
	"encoding/json"

	sdkmath "cosmossdk.io/math"

	"github.com/vultisig/dca-plugin/internal/types"
)

// ReconcileOutcome reports what a completion notice did to its schedule.
type ReconcileOutcome struct {
	ScheduleID uint64
	Failed     bool
	Reason     string
	Confirmed  sdkmath.Uint
	Remaining  sdkmath.Uint
	Removed    bool
}

type replyCoin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

type placeLimitOrderReply struct {
	TakerCoinIn *replyCoin `json:"taker_coin_in"`
}

// confirmedAmount extracts the quote amount the venue actually consumed.
func confirmedAmount(data []byte, quoteDenom string) (sdkmath.Uint, error) {
	if len(data) == 0 {
		return sdkmath.Uint{}, ErrNoResponseData
	}
	var reply placeLimitOrderReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return sdkmath.Uint{}, ErrDecodingError
	}
	if reply.TakerCoinIn == nil || reply.TakerCoinIn.Denom != quoteDenom {
		return sdkmath.Uint{}, ErrDecodingError
	}
	amount, err := sdkmath.ParseUint(reply.TakerCoinIn.Amount)
	if err != nil {
		return sdkmath.Uint{}, ErrDecodingError
	}
	return amount, nil
}

// reconcile applies a completion notice to the ledger. A venue failure leaves
// the ledger as it was and is reported through the outcome.
func reconcile(ledger *Ledger, cfg *types.Config, notice types.CompletionNotice, height uint64) (*ReconcileOutcome, error) {
	outcome := &ReconcileOutcome{
		ScheduleID: notice.ID,
		Confirmed:  sdkmath.ZeroUint(),
		Remaining:  sdkmath.ZeroUint(),
	}
	if notice.Error != "" {
		outcome.Failed = true
		outcome.Reason = notice.Error
		if s, ok := ledger.Get(notice.ID); ok {
			outcome.Remaining = s.RemainingAmount
		}
		return outcome, nil
	}

	confirmed, err := confirmedAmount(notice.Data, cfg.PairData.DenomQuote)
	if err != nil {
		return nil, err
	}
	if err := ledger.Decrement(notice.ID, confirmed); err != nil {
		return nil, err
	}
	outcome.Confirmed = confirmed

	schedule, ok := ledger.Get(notice.ID)
	if !ok {
		outcome.Removed = true
		return outcome, nil
	}
	expected := confirmed
	if schedule.Dispatch != nil {
		expected = uintOrZero(schedule.Dispatch.ExpectedMax)
	}
	schedule.Dispatch = &types.Dispatch{
		Phase:       types.PhaseReconciled,
		ExpectedMax: expected,
		Confirmed:   confirmed,
		Height:      height,
	}
	outcome.Remaining = schedule.RemainingAmount
	return outcome, nil
}
