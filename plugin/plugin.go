package plugin

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/vultisig/dca-plugin/internal/types"
	"github.com/vultisig/dca-plugin/storage"
)

// Plugin is the contract surface the host runtime drives. Mutating calls
// return the instructions the host must execute after the call commits.
type Plugin interface {
	Instantiate(ctx context.Context, env types.Env, msg types.InstantiateMsg) (*types.Response, error)
	CreateSchedule(ctx context.Context, env types.Env, info types.MessageInfo, msg types.CreateScheduleMsg) (*types.Response, error)
	RunSchedules(ctx context.Context, env types.Env) (*types.Response, error)
	Reconcile(ctx context.Context, env types.Env, notice types.CompletionNotice) (*types.Response, error)
	WithdrawAll(ctx context.Context, env types.Env, info types.MessageInfo) (*types.Response, error)

	GetCurrentPrice(ctx context.Context, env types.Env) (decimal.Decimal, error)
	GetSchedulesByOwner(ctx context.Context, owner string) ([]types.Schedule, error)
	GetConfig(ctx context.Context) (*types.Config, error)
	GetContractInfo(ctx context.Context) (*types.ContractInfo, error)
}

// Outbox persists the response of a mutating call through the same KVStore
// the call writes its state to. A Stage error discards the state change.
type Outbox interface {
	Stage(ctx context.Context, kv storage.KVStore, env types.Env, info types.MessageInfo, resp *types.Response) error
}
