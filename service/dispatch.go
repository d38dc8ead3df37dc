package service

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"

	"github.com/vultisig/dca-plugin/plugin/dca"
)

// TaskEnqueuer is the part of asynq.Client the services use.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

var _ TaskEnqueuer = (*asynq.Client)(nil)

// isContractError reports whether err was raised by contract logic rather
// than by infrastructure. Contract errors are final and never retried.
func isContractError(err error) bool {
	var cerr *dca.ContractError
	return errors.As(err, &cerr)
}
