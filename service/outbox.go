package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/dca-plugin/internal/tasks"
	"github.com/vultisig/dca-plugin/internal/types"
	"github.com/vultisig/dca-plugin/plugin"
	"github.com/vultisig/dca-plugin/storage"
)

const keyOutbox = "host_outbox"

// OutboxEntry is one instruction waiting to be handed to the worker queue.
// Exactly one of Message and Deposit is set.
type OutboxEntry struct {
	ID          uint64                `json:"id"`
	BlockHeight uint64                `json:"block_height"`
	Message     *types.SubMsg         `json:"message,omitempty"`
	Deposit     *tasks.DepositPayload `json:"deposit,omitempty"`
}

type outboxState struct {
	Entries []OutboxEntry `json:"entries"`
	Nonce   uint64        `json:"nonce"`
}

// Outbox keeps contract instructions in contract state until the queue has
// accepted them. Entries are written in the transaction that produced them
// and enqueued under a task id derived from their sequence number, so a
// repeated flush is rejected by asynq instead of running twice.
type Outbox struct {
	contractAddress string
	store           storage.StateStorage
	queue           TaskEnqueuer
	logger          logrus.FieldLogger
}

var _ plugin.Outbox = (*Outbox)(nil)

func NewOutbox(contractAddress string, store storage.StateStorage, queue TaskEnqueuer, logger logrus.FieldLogger) (*Outbox, error) {
	if store == nil {
		return nil, fmt.Errorf("state storage is nil")
	}
	if queue == nil {
		return nil, fmt.Errorf("queue client is nil")
	}
	return &Outbox{
		contractAddress: contractAddress,
		store:           store,
		queue:           queue,
		logger:          logger,
	}, nil
}

func loadOutbox(ctx context.Context, kv storage.KVStore) (*outboxState, error) {
	raw, err := kv.Get(ctx, keyOutbox)
	if errors.Is(err, storage.ErrNotFound) {
		return &outboxState{}, nil
	}
	if err != nil {
		return nil, err
	}
	var state outboxState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", keyOutbox, err)
	}
	return &state, nil
}

func saveOutbox(ctx context.Context, kv storage.KVStore, state *outboxState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", keyOutbox, err)
	}
	return kv.Set(ctx, keyOutbox, raw)
}

// Stage appends the instructions implied by resp. A created schedule yields
// a deposit of the attached funds ahead of any order.
func (o *Outbox) Stage(ctx context.Context, kv storage.KVStore, env types.Env, info types.MessageInfo, resp *types.Response) error {
	var entries []OutboxEntry
	if action, _ := resp.Attribute("action"); action == "create_schedule" {
		raw, _ := resp.Attribute("schedule_id")
		scheduleID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid schedule id %q: %w", raw, err)
		}
		if len(info.Funds) != 1 {
			return fmt.Errorf("schedule %d: expected one coin, got %d", scheduleID, len(info.Funds))
		}
		entries = append(entries, OutboxEntry{Deposit: &tasks.DepositPayload{
			ScheduleID: scheduleID,
			Sender:     info.Sender,
			Coin:       info.Funds[0],
		}})
	}
	for i := range resp.Messages {
		msg := resp.Messages[i]
		if msg.Order == nil && msg.BankSend == nil {
			return fmt.Errorf("message %d carries no instruction", msg.ID)
		}
		entries = append(entries, OutboxEntry{Message: &msg})
	}
	if len(entries) == 0 {
		return nil
	}

	state, err := loadOutbox(ctx, kv)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		entry.ID = state.Nonce
		entry.BlockHeight = env.BlockHeight
		state.Nonce++
		state.Entries = append(state.Entries, entry)
	}
	return saveOutbox(ctx, kv, state)
}

// Pending returns the entries not yet accepted by the queue.
func (o *Outbox) Pending(ctx context.Context) ([]OutboxEntry, error) {
	var entries []OutboxEntry
	err := o.store.View(ctx, func(kv storage.KVStore) error {
		state, err := loadOutbox(ctx, kv)
		if err != nil {
			return err
		}
		entries = state.Entries
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Flush enqueues pending entries in order, stopping at the first queue
// failure, and drops the accepted ones. It returns how many were accepted.
func (o *Outbox) Flush(ctx context.Context) (int, error) {
	pending, err := o.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load outbox: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	accepted := make(map[uint64]bool, len(pending))
	var flushErr error
	for _, entry := range pending {
		task, err := o.task(entry)
		if err != nil {
			flushErr = err
			break
		}
		opts := append(tasks.DefaultOptions(), asynq.TaskID(o.taskID(entry.ID)))
		_, err = o.queue.EnqueueContext(ctx, task, opts...)
		if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
			flushErr = fmt.Errorf("failed to enqueue %s: %w", task.Type(), err)
			break
		}
		accepted[entry.ID] = true
	}

	if len(accepted) > 0 {
		err := o.store.Update(ctx, func(kv storage.KVStore) error {
			state, err := loadOutbox(ctx, kv)
			if err != nil {
				return err
			}
			kept := state.Entries[:0]
			for _, entry := range state.Entries {
				if !accepted[entry.ID] {
					kept = append(kept, entry)
				}
			}
			state.Entries = kept
			return saveOutbox(ctx, kv, state)
		})
		if err != nil {
			return len(accepted), errors.Join(flushErr, fmt.Errorf("failed to trim outbox: %w", err))
		}
	}
	if flushErr != nil {
		o.logger.WithError(flushErr).WithField("pending", len(pending)-len(accepted)).Warn("outbox flush incomplete")
	}
	return len(accepted), flushErr
}

func (o *Outbox) taskID(id uint64) string {
	return fmt.Sprintf("%s:outbox:%d", o.contractAddress, id)
}

func (o *Outbox) task(entry OutboxEntry) (*asynq.Task, error) {
	switch {
	case entry.Deposit != nil:
		return tasks.NewDepositTask(*entry.Deposit)
	case entry.Message != nil && entry.Message.Order != nil:
		return tasks.NewPlaceLimitOrderTask(tasks.PlaceLimitOrderPayload{
			ScheduleID:  entry.Message.ID,
			ReplyOn:     entry.Message.ReplyOn,
			Order:       *entry.Message.Order,
			BlockHeight: entry.BlockHeight,
		})
	case entry.Message != nil && entry.Message.BankSend != nil:
		return tasks.NewBankSendTask(tasks.BankSendPayload{
			From:        o.contractAddress,
			Send:        *entry.Message.BankSend,
			BlockHeight: entry.BlockHeight,
		})
	default:
		return nil, fmt.Errorf("outbox entry %d carries no instruction", entry.ID)
	}
}
