package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/dca-plugin/common"
	"github.com/vultisig/dca-plugin/internal/oracle"
	"github.com/vultisig/dca-plugin/internal/tasks"
	"github.com/vultisig/dca-plugin/internal/types"
	"github.com/vultisig/dca-plugin/plugin"
	"github.com/vultisig/dca-plugin/storage"
)

type Schedule interface {
	CreateSchedule(ctx context.Context, sender string, funds []types.Coin, msg types.CreateScheduleMsg) (*types.Response, error)
	WithdrawAll(ctx context.Context, sender string) (*types.Response, error)
	TriggerRun(ctx context.Context) (string, error)
	GetRunStatus(ctx context.Context, taskID string) (*RunStatus, error)
	GetCurrentPrice(ctx context.Context) (decimal.Decimal, error)
	GetSchedulesByOwner(ctx context.Context, owner string) ([]types.Schedule, error)
	GetConfig(ctx context.Context) (*types.Config, error)
	GetContractInfo(ctx context.Context) (*types.ContractInfo, error)
	GetInstructionHistory(ctx context.Context, scheduleID uint64, sort string, take, skip int) ([]types.InstructionRecord, error)
}

var _ Schedule = (*ScheduleService)(nil)

// TaskInspector is the part of asynq.Inspector used to report pass status.
type TaskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
}

var _ TaskInspector = (*asynq.Inspector)(nil)

type RunStatus struct {
	TaskID string `json:"task_id"`
	State  string `json:"state"`
	Error  string `json:"error,omitempty"`
}

var ErrTaskNotFound = errors.New("task not found")

// ScheduleService runs inbound requests against the contract and hands the
// resulting instructions to the worker.
type ScheduleService struct {
	contractAddress string
	plugin          plugin.Plugin
	heights         oracle.HeightSource
	queueClient     TaskEnqueuer
	outbox          *Outbox
	inspector       TaskInspector
	history         storage.InstructionLog
	logger          *logrus.Logger
}

// NewScheduleService expects p to stage its instructions into outbox.
func NewScheduleService(contractAddress string, p plugin.Plugin, heights oracle.HeightSource,
	queueClient TaskEnqueuer, outbox *Outbox, history storage.InstructionLog, logger *logrus.Logger) (*ScheduleService, error) {
	if p == nil {
		return nil, fmt.Errorf("plugin cannot be nil")
	}
	if heights == nil {
		return nil, fmt.Errorf("height source cannot be nil")
	}
	if queueClient == nil {
		return nil, fmt.Errorf("queue client cannot be nil")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox cannot be nil")
	}
	return &ScheduleService{
		contractAddress: contractAddress,
		plugin:          p,
		heights:         heights,
		queueClient:     queueClient,
		outbox:          outbox,
		history:         history,
		logger:          logger,
	}, nil
}

// WithInspector enables GetRunStatus.
func (s *ScheduleService) WithInspector(inspector TaskInspector) *ScheduleService {
	s.inspector = inspector
	return s
}

func (s *ScheduleService) env(ctx context.Context) (types.Env, error) {
	height, err := s.heights.LatestHeight(ctx)
	if err != nil {
		return types.Env{}, fmt.Errorf("failed to get latest height: %w", err)
	}
	return types.Env{BlockHeight: height, ContractAddress: s.contractAddress}, nil
}

func (s *ScheduleService) CreateSchedule(ctx context.Context, sender string, funds []types.Coin, msg types.CreateScheduleMsg) (*types.Response, error) {
	owner, err := common.NormalizeAddress(sender)
	if err != nil {
		return nil, err
	}
	env, err := s.env(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := s.plugin.CreateSchedule(ctx, env, types.MessageInfo{Sender: owner, Funds: funds}, msg)
	if err != nil {
		return nil, err
	}
	scheduleID, _ := resp.Attribute("schedule_id")
	s.logger.WithFields(logrus.Fields{
		"owner":       owner,
		"schedule_id": scheduleID,
	}).Info("schedule created")
	s.flush(ctx)
	return resp, nil
}

// flush hands staged instructions to the queue. The call they belong to has
// committed, so a failure only delays them until the next flush.
func (s *ScheduleService) flush(ctx context.Context) {
	if _, err := s.outbox.Flush(ctx); err != nil {
		s.logger.WithError(err).Warn("instructions left in outbox")
	}
}

func (s *ScheduleService) WithdrawAll(ctx context.Context, sender string) (*types.Response, error) {
	owner, err := common.NormalizeAddress(sender)
	if err != nil {
		return nil, err
	}
	env, err := s.env(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := s.plugin.WithdrawAll(ctx, env, types.MessageInfo{Sender: owner})
	if err != nil {
		return nil, err
	}
	s.flush(ctx)
	return resp, nil
}

// TriggerRun enqueues an on-demand schedule pass and returns its task id.
func (s *ScheduleService) TriggerRun(ctx context.Context) (string, error) {
	requestID := uuid.New().String()
	task, err := tasks.NewRunSchedulesTask(tasks.RunSchedulesPayload{RequestID: requestID})
	if err != nil {
		return "", err
	}
	opts := append(tasks.DefaultOptions(), asynq.TaskID(requestID), asynq.MaxRetry(0))
	ti, err := s.queueClient.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue run: %w", err)
	}
	return ti.ID, nil
}

func (s *ScheduleService) GetRunStatus(_ context.Context, taskID string) (*RunStatus, error) {
	if s.inspector == nil {
		return nil, fmt.Errorf("task inspector is not configured")
	}
	info, err := s.inspector.GetTaskInfo(tasks.QUEUE_NAME, taskID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task info: %w", err)
	}
	return &RunStatus{TaskID: info.ID, State: info.State.String(), Error: info.LastErr}, nil
}

func (s *ScheduleService) GetCurrentPrice(ctx context.Context) (decimal.Decimal, error) {
	env, err := s.env(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return s.plugin.GetCurrentPrice(ctx, env)
}

func (s *ScheduleService) GetSchedulesByOwner(ctx context.Context, owner string) ([]types.Schedule, error) {
	normalized, err := common.NormalizeAddress(owner)
	if err != nil {
		return nil, err
	}
	return s.plugin.GetSchedulesByOwner(ctx, normalized)
}

func (s *ScheduleService) GetConfig(ctx context.Context) (*types.Config, error) {
	return s.plugin.GetConfig(ctx)
}

func (s *ScheduleService) GetContractInfo(ctx context.Context) (*types.ContractInfo, error) {
	return s.plugin.GetContractInfo(ctx)
}

func (s *ScheduleService) GetInstructionHistory(ctx context.Context, scheduleID uint64, sort string, take, skip int) ([]types.InstructionRecord, error) {
	if s.history == nil {
		return []types.InstructionRecord{}, nil
	}
	history, err := s.history.GetInstructionHistory(ctx, scheduleID, sort, take, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to get instruction history: %w", err)
	}
	return history, nil
}
