package dca

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/dca-plugin/internal/types"
	"github.com/vultisig/dca-plugin/storage"
)

func TestRunSchedulesEmptyPassIsNoop(t *testing.T) {
	f := newFixture(t, types.ExecutionModeOptimistic, 5)
	before := f.rawSchedules(t)

	// a broken feed is never consulted when there is nothing to run
	f.env.BlockHeight = 10_000
	resp, err := f.plugin.RunSchedules(f.ctx, f.env)
	require.NoError(t, err)
	assert.Empty(t, resp.Messages)
	assert.Equal(t, before, f.rawSchedules(t))
}

func TestRunSchedulesOptimistic(t *testing.T) {
	f := newFixture(t, types.ExecutionModeOptimistic, 5)
	id0 := f.create(t, alice, 100, 30, 100)
	id1 := f.create(t, bob, 20, 50, 0)

	resp, err := f.plugin.RunSchedules(f.ctx, f.env)
	require.NoError(t, err)
	require.Len(t, resp.Messages, 2)

	price := decimal.RequireFromString("0.5")
	for i, c := range []struct {
		id       uint64
		owner    string
		amountIn string
		bp       uint64
	}{{id0, alice, "30", 100}, {id1, bob, "20", 0}} {
		msg := resp.Messages[i]
		assert.Equal(t, c.id, msg.ID)
		assert.Equal(t, types.ReplyAlways, msg.ReplyOn)
		require.NotNil(t, msg.Order)
		assert.Equal(t, testContract, msg.Order.Creator)
		assert.Equal(t, c.owner, msg.Order.Receiver)
		assert.Equal(t, denomQuote, msg.Order.TokenIn)
		assert.Equal(t, denomBase, msg.Order.TokenOut)
		assert.Equal(t, c.amountIn, msg.Order.AmountIn.String())
		assert.Equal(t, types.LimitOrderImmediateOrCancel, msg.Order.OrderType)
		assert.Nil(t, msg.Order.ExpirationTime)

		target, err := SlippageTargetPrice(price, c.bp)
		require.NoError(t, err)
		assert.True(t, target.Equal(msg.Order.LimitSellPrice))
		tick, err := PriceToTickIndex(target)
		require.NoError(t, err)
		assert.Equal(t, tick, msg.Order.TickIndexInToOut)
	}

	// balances stay put until fills are confirmed
	state := f.schedules(t)
	require.Len(t, state.Schedules, 2)
	assert.Equal(t, "100", state.Schedules[0].RemainingAmount.String())
	require.NotNil(t, state.Schedules[0].Dispatch)
	assert.Equal(t, types.PhaseDispatched, state.Schedules[0].Dispatch.Phase)
	assert.Equal(t, "30", state.Schedules[0].Dispatch.ExpectedMax.String())
	assert.Equal(t, f.env.BlockHeight, state.Schedules[0].Dispatch.Height)
}

func TestRunSchedulesStalePriceAbortsPass(t *testing.T) {
	f := newFixture(t, types.ExecutionModeOptimistic, 5)
	f.create(t, alice, 100, 30, 100)
	before := f.rawSchedules(t)

	f.env.BlockHeight = 111
	_, err := f.plugin.RunSchedules(f.ctx, f.env)
	require.ErrorIs(t, err, ErrPriceTooOld)
	assert.Equal(t, before, f.rawSchedules(t))
}

func TestRunSchedulesPrunesZeroBalances(t *testing.T) {
	f := newFixture(t, types.ExecutionModeOptimistic, 5)
	f.create(t, alice, 100, 30, 0)
	f.create(t, bob, 40, 30, 0)

	// plant a drained schedule the way an older state could hold one
	require.NoError(t, f.store.Update(f.ctx, func(kv storage.KVStore) error {
		state, err := loadSchedules(f.ctx, kv)
		if err != nil {
			return err
		}
		state.Schedules[1].RemainingAmount = sdkmath.ZeroUint()
		return saveSchedules(f.ctx, kv, state)
	}))

	resp, err := f.plugin.RunSchedules(f.ctx, f.env)
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	pruned, _ := resp.Attribute("pruned")
	assert.Equal(t, "1", pruned)

	state := f.schedules(t)
	require.Len(t, state.Schedules, 1)
	assert.Equal(t, alice, state.Schedules[0].Owner)
}

func TestRunSchedulesEstimate(t *testing.T) {
	f := newFixture(t, types.ExecutionModeEstimate, 5)
	f.venue.SetLiquidity(denomQuote, denomBase, sdkmath.NewUint(25))
	id0 := f.create(t, alice, 100, 30, 0)

	resp, err := f.plugin.RunSchedules(f.ctx, f.env)
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	msg := resp.Messages[0]
	assert.Equal(t, id0, msg.ID)
	assert.Equal(t, types.ReplyNever, msg.ReplyOn)
	assert.Equal(t, "25", msg.Order.AmountIn.String())

	state := f.schedules(t)
	require.Len(t, state.Schedules, 1)
	assert.Equal(t, "75", state.Schedules[0].RemainingAmount.String())
	assert.Equal(t, types.PhaseReconciled, state.Schedules[0].Dispatch.Phase)
	assert.Equal(t, "25", state.Schedules[0].Dispatch.Confirmed.String())
}

func TestRunSchedulesEstimateZeroLiquidity(t *testing.T) {
	f := newFixture(t, types.ExecutionModeEstimate, 5)
	f.venue.SetLiquidity(denomQuote, denomBase, sdkmath.ZeroUint())
	f.create(t, alice, 100, 30, 0)

	resp, err := f.plugin.RunSchedules(f.ctx, f.env)
	require.NoError(t, err)
	assert.Empty(t, resp.Messages)
	state := f.schedules(t)
	require.Len(t, state.Schedules, 1)
	assert.Equal(t, "100", state.Schedules[0].RemainingAmount.String())
}

func TestRunSchedulesEstimateDrainsSchedule(t *testing.T) {
	f := newFixture(t, types.ExecutionModeEstimate, 5)
	f.create(t, alice, 20, 30, 0)

	resp, err := f.plugin.RunSchedules(f.ctx, f.env)
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "20", resp.Messages[0].Order.AmountIn.String())
	assert.Empty(t, f.schedules(t).Schedules)
}

func TestRunSchedulesEstimateExceedingBalance(t *testing.T) {
	f := newBareFixture(t)
	p, err := NewDCAPlugin(f.store, f.oracle, f.oracle, &stubVenue{consumed: sdkmath.NewUint(101)}, testLogger())
	require.NoError(t, err)
	_, err = p.Instantiate(f.ctx, f.env, instantiateMsg(types.ExecutionModeEstimate, 5))
	require.NoError(t, err)
	f.plugin = p
	f.create(t, alice, 100, 30, 0)
	before := f.rawSchedules(t)

	_, err = p.RunSchedules(f.ctx, f.env)
	var cerr *ContractError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindInsufficientLiquidity, cerr.Kind)
	assert.Equal(t, "101", cerr.Requested.String())
	assert.Equal(t, "100", cerr.Available.String())
	assert.Equal(t, before, f.rawSchedules(t))
}

func TestRunSchedulesNotInstantiated(t *testing.T) {
	f := newBareFixture(t)
	_, err := f.plugin.RunSchedules(f.ctx, f.env)
	require.ErrorIs(t, err, ErrNotInstantiated)
}

func TestRunSchedulesFlagsUnreconciledRedispatch(t *testing.T) {
	f := newFixture(t, types.ExecutionModeOptimistic, 5)
	id := f.create(t, alice, 100, 30, 0)
	f.create(t, bob, 20, 50, 0)

	resp, err := f.plugin.RunSchedules(f.ctx, f.env)
	require.NoError(t, err)
	_, ok := resp.Attribute("redispatched")
	assert.False(t, ok)
	locked, _ := resp.Attribute("locked")
	assert.Equal(t, "120", locked)

	// only alice's order is confirmed before the next pass
	_, err = f.plugin.Reconcile(f.ctx, f.env, fillNotice(t, id, denomQuote, 30))
	require.NoError(t, err)

	resp, err = f.plugin.RunSchedules(f.ctx, f.env)
	require.NoError(t, err)
	require.Len(t, resp.Messages, 2)
	redispatched, ok := resp.Attribute("redispatched")
	require.True(t, ok)
	assert.Equal(t, "1", redispatched)
	locked, _ = resp.Attribute("locked")
	assert.Equal(t, "90", locked)
}
