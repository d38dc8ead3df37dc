package dca

import (
	sdkmath "cosmossdk.io/math"

	"github.com/vultisig/dca-plugin/internal/types"
)

// Ledger is the in-invocation view of the schedule collection. Callers load
// it from storage, mutate it and persist State() in the same transaction.
type Ledger struct {
	state        *types.Schedules
	maxSchedules uint64
	quoteDenom   string
}

func NewLedger(state *types.Schedules, cfg *types.Config) *Ledger {
	if state == nil {
		state = &types.Schedules{}
	}
	for i := range state.Schedules {
		state.Schedules[i].RemainingAmount = uintOrZero(state.Schedules[i].RemainingAmount)
		state.Schedules[i].MaxSellAmount = uintOrZero(state.Schedules[i].MaxSellAmount)
	}
	return &Ledger{
		state:        state,
		maxSchedules: cfg.MaxSchedules,
		quoteDenom:   cfg.PairData.DenomQuote,
	}
}

func (l *Ledger) State() *types.Schedules {
	return l.state
}

func (l *Ledger) Len() int {
	return len(l.state.Schedules)
}

// Create appends a schedule funded with funds and returns its id.
func (l *Ledger) Create(owner string, maxSellAmount sdkmath.Uint, maxSlippageBasisPoints uint64, funds types.Coin) (uint64, error) {
	if uint64(len(l.state.Schedules)) >= l.maxSchedules {
		return 0, ErrMaxSchedulesReached
	}
	if funds.Denom != l.quoteDenom {
		return 0, ErrInvalidToken
	}

	id := l.state.Nonce
	l.state.Schedules = append(l.state.Schedules, types.Schedule{
		ID:                     id,
		Owner:                  owner,
		RemainingAmount:        uintOrZero(funds.Amount),
		MaxSellAmount:          uintOrZero(maxSellAmount),
		MaxSlippageBasisPoints: maxSlippageBasisPoints,
	})
	l.state.Nonce++
	return id, nil
}

// ListByOwner returns copies of the owner's schedules in insertion order.
func (l *Ledger) ListByOwner(owner string) []types.Schedule {
	out := make([]types.Schedule, 0)
	for _, s := range l.state.Schedules {
		if s.Owner == owner {
			out = append(out, s)
		}
	}
	return out
}

func (l *Ledger) Get(id uint64) (*types.Schedule, bool) {
	idx := l.indexOf(id)
	if idx < 0 {
		return nil, false
	}
	return &l.state.Schedules[idx], true
}

// Decrement subtracts amount from the schedule's balance and removes the
// schedule once it is drained. The schedule is left untouched on error.
func (l *Ledger) Decrement(id uint64, amount sdkmath.Uint) error {
	idx := l.indexOf(id)
	if idx < 0 {
		return ErrScheduleNotFound
	}
	amount = uintOrZero(amount)
	schedule := &l.state.Schedules[idx]
	if amount.GT(schedule.RemainingAmount) {
		return errInsufficientLiquidity(amount, schedule.RemainingAmount)
	}
	schedule.RemainingAmount = schedule.RemainingAmount.Sub(amount)
	if schedule.RemainingAmount.IsZero() {
		l.removeAt(idx)
	}
	return nil
}

// RemoveAllByOwner drops every schedule of owner and returns their summed
// balance.
func (l *Ledger) RemoveAllByOwner(owner string) sdkmath.Uint {
	total := sdkmath.ZeroUint()
	kept := l.state.Schedules[:0]
	for _, s := range l.state.Schedules {
		if s.Owner == owner {
			total = total.Add(s.RemainingAmount)
			continue
		}
		kept = append(kept, s)
	}
	l.state.Schedules = kept
	return total
}

// Prune removes every schedule with a zero balance and reports how many were
// dropped.
func (l *Ledger) Prune() int {
	kept := l.state.Schedules[:0]
	for _, s := range l.state.Schedules {
		if s.RemainingAmount.IsZero() {
			continue
		}
		kept = append(kept, s)
	}
	removed := len(l.state.Schedules) - len(kept)
	l.state.Schedules = kept
	return removed
}

// Total is the sum of all remaining balances.
func (l *Ledger) Total() sdkmath.Uint {
	total := sdkmath.ZeroUint()
	for _, s := range l.state.Schedules {
		total = total.Add(s.RemainingAmount)
	}
	return total
}

func (l *Ledger) indexOf(id uint64) int {
	for i, s := range l.state.Schedules {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (l *Ledger) removeAt(idx int) {
	l.state.Schedules = append(l.state.Schedules[:idx], l.state.Schedules[idx+1:]...)
}

// uintOrZero replaces an unset amount with zero.
func uintOrZero(u sdkmath.Uint) sdkmath.Uint {
	if u == (sdkmath.Uint{}) {
		return sdkmath.ZeroUint()
	}
	return u
}
