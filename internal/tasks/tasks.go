package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vultisig/dca-plugin/internal/types"
)

const QUEUE_NAME = "dca_queue"

const (
	TypeRunSchedules    = "dca:run_schedules"
	TypePlaceLimitOrder = "dca:place_limit_order"
	TypeReconcile       = "dca:reconcile"
	TypeBankSend        = "dca:bank_send"
	TypeDeposit         = "dca:deposit"
)

type RunSchedulesPayload struct {
	RequestID string `json:"request_id,omitempty"`
}

type PlaceLimitOrderPayload struct {
	ScheduleID  uint64                `json:"schedule_id"`
	ReplyOn     types.ReplyOn         `json:"reply_on"`
	Order       types.PlaceLimitOrder `json:"order"`
	BlockHeight uint64                `json:"block_height"`
}

type ReconcilePayload struct {
	Notice      types.CompletionNotice `json:"notice"`
	BlockHeight uint64                 `json:"block_height"`
}

type BankSendPayload struct {
	From        string         `json:"from"`
	Send        types.BankSend `json:"send"`
	BlockHeight uint64         `json:"block_height"`
}

type DepositPayload struct {
	ScheduleID uint64     `json:"schedule_id"`
	Sender     string     `json:"sender"`
	Coin       types.Coin `json:"coin"`
}

// DefaultOptions are applied to every task this service enqueues.
func DefaultOptions() []asynq.Option {
	return []asynq.Option{
		asynq.MaxRetry(3),
		asynq.Timeout(2 * time.Minute),
		asynq.Retention(24 * time.Hour),
		asynq.Queue(QUEUE_NAME),
	}
}

func newTask(typeName string, payload any) (*asynq.Task, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", typeName, err)
	}
	return asynq.NewTask(typeName, buf), nil
}

func NewRunSchedulesTask(payload RunSchedulesPayload) (*asynq.Task, error) {
	return newTask(TypeRunSchedules, payload)
}

func NewPlaceLimitOrderTask(payload PlaceLimitOrderPayload) (*asynq.Task, error) {
	return newTask(TypePlaceLimitOrder, payload)
}

func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	return newTask(TypeReconcile, payload)
}

func NewBankSendTask(payload BankSendPayload) (*asynq.Task, error) {
	return newTask(TypeBankSend, payload)
}

func NewDepositTask(payload DepositPayload) (*asynq.Task, error) {
	return newTask(TypeDeposit, payload)
}
