package dca

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/vultisig/dca-plugin/internal/types"
)

// Venue is the matching venue as seen from inside the contract. Only the
// dry-run call is needed here; execution belongs to the host.
type Venue interface {
	SimulatePlaceLimitOrder(ctx context.Context, order types.PlaceLimitOrder) (*types.PlaceLimitOrderResponse, error)
}

// ExecutionPolicy turns a prepared order into the instruction dispatched for
// a schedule. It may adjust the schedule's bookkeeping and may decline to emit
// anything by returning a nil message.
type ExecutionPolicy interface {
	Mode() types.ExecutionMode
	Dispatch(ctx context.Context, schedule *types.Schedule, order types.PlaceLimitOrder, height uint64) (*types.SubMsg, error)
}

// OptimisticPolicy sends the full order size and leaves the balance untouched
// until the completion notice reports what the venue consumed.
type OptimisticPolicy struct{}

func (OptimisticPolicy) Mode() types.ExecutionMode {
	return types.ExecutionModeOptimistic
}

func (OptimisticPolicy) Dispatch(_ context.Context, schedule *types.Schedule, order types.PlaceLimitOrder, height uint64) (*types.SubMsg, error) {
	schedule.Dispatch = &types.Dispatch{
		Phase:       types.PhaseDispatched,
		ExpectedMax: order.AmountIn,
		Confirmed:   sdkmath.ZeroUint(),
		Height:      height,
	}
	return &types.SubMsg{
		ID:      schedule.ID,
		ReplyOn: types.ReplyAlways,
		Order:   &order,
	}, nil
}

// EstimatePolicy dry-runs the order and books the estimated fill before the
// order is sent, so no completion notice is expected.
type EstimatePolicy struct {
	venue Venue
}

func NewEstimatePolicy(venue Venue) *EstimatePolicy {
	return &EstimatePolicy{venue: venue}
}

func (p *EstimatePolicy) Mode() types.ExecutionMode {
	return types.ExecutionModeEstimate
}

func (p *EstimatePolicy) Dispatch(ctx context.Context, schedule *types.Schedule, order types.PlaceLimitOrder, height uint64) (*types.SubMsg, error) {
	if p.venue == nil {
		return nil, fmt.Errorf("estimate policy requires a venue")
	}
	sim, err := p.venue.SimulatePlaceLimitOrder(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("failed to simulate order for schedule %d: %w", schedule.ID, err)
	}
	estimate := sdkmath.ZeroUint()
	if sim != nil {
		estimate = uintOrZero(sim.TakerCoinIn.Amount)
	}
	if estimate.GT(schedule.RemainingAmount) {
		return nil, errInsufficientLiquidity(estimate, schedule.RemainingAmount)
	}

	schedule.RemainingAmount = schedule.RemainingAmount.Sub(estimate)
	schedule.Dispatch = &types.Dispatch{
		Phase:       types.PhaseReconciled,
		ExpectedMax: order.AmountIn,
		Confirmed:   estimate,
		Height:      height,
	}
	// Nothing would fill.
	if estimate.IsZero() {
		return nil, nil
	}

	order.AmountIn = estimate
	return &types.SubMsg{
		ID:      schedule.ID,
		ReplyOn: types.ReplyNever,
		Order:   &order,
	}, nil
}

// policyFor resolves the configured mode. An empty mode is optimistic.
func policyFor(mode types.ExecutionMode, venue Venue) (ExecutionPolicy, error) {
	switch mode {
	case "", types.ExecutionModeOptimistic:
		return OptimisticPolicy{}, nil
	case types.ExecutionModeEstimate:
		return NewEstimatePolicy(venue), nil
	default:
		return nil, errMalformedInput("execution_mode", fmt.Sprintf("unknown mode %q", mode))
	}
}
