package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/dca-plugin/internal/oracle"
	"github.com/vultisig/dca-plugin/internal/tasks"
	"github.com/vultisig/dca-plugin/internal/types"
	"github.com/vultisig/dca-plugin/plugin"
	"github.com/vultisig/dca-plugin/storage"
)

// Venue executes the instructions the contract emits.
type Venue interface {
	PlaceLimitOrder(ctx context.Context, order types.PlaceLimitOrder) (*types.PlaceLimitOrderResponse, error)
	BankSend(ctx context.Context, from string, send types.BankSend) error
	Deposit(address string, coin types.Coin)
}

type WorkerService struct {
	contractAddress string
	plugin          plugin.Plugin
	venue           Venue
	heights         oracle.HeightSource
	queueClient     TaskEnqueuer
	outbox          *Outbox
	history         storage.InstructionLog
	sdClient        statsd.ClientInterface
	logger          *logrus.Logger
}

// NewWorker creates a new worker service. p must stage its instructions into
// outbox.
func NewWorker(contractAddress string, p plugin.Plugin, venue Venue, heights oracle.HeightSource,
	queueClient TaskEnqueuer, outbox *Outbox, history storage.InstructionLog, sdClient statsd.ClientInterface, logger *logrus.Logger) (*WorkerService, error) {
	if p == nil {
		return nil, fmt.Errorf("plugin is nil")
	}
	if venue == nil || heights == nil || queueClient == nil || outbox == nil || history == nil {
		return nil, fmt.Errorf("venue, height source, queue client, outbox and instruction log are required")
	}
	if sdClient == nil {
		sdClient = &statsd.NoOpClient{}
	}
	return &WorkerService{
		contractAddress: contractAddress,
		plugin:          p,
		venue:           venue,
		heights:         heights,
		queueClient:     queueClient,
		outbox:          outbox,
		history:         history,
		sdClient:        sdClient,
		logger:          logger,
	}, nil
}

func (s *WorkerService) incCounter(name string, tags []string) {
	if err := s.sdClient.Count(name, 1, tags, 1); err != nil {
		s.logger.Errorf("fail to count metric, err: %v", err)
	}
}

func (s *WorkerService) measureTime(name string, start time.Time, tags []string) {
	if err := s.sdClient.Timing(name, time.Since(start), tags, 1); err != nil {
		s.logger.Errorf("fail to measure time metric, err: %v", err)
	}
}

func (s *WorkerService) env(ctx context.Context) (types.Env, error) {
	height, err := s.heights.LatestHeight(ctx)
	if err != nil {
		return types.Env{}, fmt.Errorf("failed to get latest height: %w", err)
	}
	return types.Env{BlockHeight: height, ContractAddress: s.contractAddress}, nil
}

// record appends to the audit trail. Failures are logged, the instruction
// itself has already been applied.
func (s *WorkerService) record(ctx context.Context, action string, height, correlation uint64, payload any) {
	buf, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).Error("failed to marshal instruction record")
		return
	}
	err = s.history.RecordInstruction(ctx, types.InstructionRecord{
		Action:      action,
		BlockHeight: height,
		Correlation: correlation,
		Payload:     buf,
	})
	if err != nil {
		s.logger.WithError(err).WithField("action", action).Error("failed to record instruction")
	}
}

// contractFailure turns a contract error into a final task failure.
// Anything else is returned unchanged so asynq retries it.
func (s *WorkerService) contractFailure(op string, err error) error {
	if isContractError(err) {
		s.incCounter("worker.dca.contract_error", []string{"op:" + op})
		return fmt.Errorf("%s failed: %w: %w", op, err, asynq.SkipRetry)
	}
	return fmt.Errorf("%s failed: %w", op, err)
}

func (s *WorkerService) HandleRunSchedules(ctx context.Context, t *asynq.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.measureTime("worker.dca.run.latency", time.Now(), []string{})
	var p tasks.RunSchedulesPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	s.incCounter("worker.dca.run", []string{})

	// instructions from earlier calls go out before a new pass is priced
	if _, err := s.outbox.Flush(ctx); err != nil {
		return fmt.Errorf("outbox.Flush failed: %w", err)
	}

	env, err := s.env(ctx)
	if err != nil {
		return err
	}
	resp, err := s.plugin.RunSchedules(ctx, env)
	if err != nil {
		s.logger.WithError(err).WithField("request_id", p.RequestID).Error("schedule pass failed")
		return s.contractFailure("RunSchedules", err)
	}

	// the pass is committed; orders that miss the queue now go out with the next flush
	if _, err := s.outbox.Flush(ctx); err != nil {
		s.incCounter("worker.dca.outbox.error", []string{})
		s.logger.WithError(err).WithField("request_id", p.RequestID).Warn("pass orders left in outbox")
	}

	fields := logrus.Fields{
		"request_id": p.RequestID,
		"height":     env.BlockHeight,
		"orders":     len(resp.Messages),
	}
	if redispatched, ok := resp.Attribute("redispatched"); ok {
		s.incCounter("worker.dca.run.redispatched", []string{})
		fields["redispatched"] = redispatched
	}
	s.logger.WithFields(fields).Info("schedule pass completed")
	return nil
}

func (s *WorkerService) HandlePlaceLimitOrder(ctx context.Context, t *asynq.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.measureTime("worker.dca.order.latency", time.Now(), []string{})
	var p tasks.PlaceLimitOrderPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	s.incCounter("worker.dca.order", []string{})

	notice := types.CompletionNotice{ID: p.ScheduleID}
	result, err := s.venue.PlaceLimitOrder(ctx, p.Order)
	if err != nil {
		s.incCounter("worker.dca.order.error", []string{})
		s.logger.WithError(err).WithField("schedule_id", p.ScheduleID).Warn("venue rejected order")
		notice.Error = err.Error()
	} else {
		notice.Data, err = json.Marshal(result)
		if err != nil {
			return fmt.Errorf("json.Marshal failed: %v: %w", err, asynq.SkipRetry)
		}
	}
	s.record(ctx, tasks.TypePlaceLimitOrder, p.BlockHeight, p.ScheduleID, map[string]any{
		"order":  p.Order,
		"result": result,
		"error":  notice.Error,
	})

	if !wantsReply(p.ReplyOn, notice.Error == "") {
		return nil
	}
	task, err := tasks.NewReconcileTask(tasks.ReconcilePayload{Notice: notice, BlockHeight: p.BlockHeight})
	if err != nil {
		return fmt.Errorf("failed to build reconcile task: %v: %w", err, asynq.SkipRetry)
	}
	ti, err := s.queueClient.EnqueueContext(ctx, task, tasks.DefaultOptions()...)
	if err != nil {
		return fmt.Errorf("failed to enqueue reconcile task: %v: %w", err, asynq.SkipRetry)
	}
	s.logger.WithField("schedule_id", p.ScheduleID).Infof("Enqueued reconcile task: %s", ti.ID)
	return nil
}

func wantsReply(on types.ReplyOn, succeeded bool) bool {
	switch on {
	case types.ReplyAlways:
		return true
	case types.ReplySuccess:
		return succeeded
	case types.ReplyError:
		return !succeeded
	default:
		return false
	}
}

func (s *WorkerService) HandleReconcile(ctx context.Context, t *asynq.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.measureTime("worker.dca.reconcile.latency", time.Now(), []string{})
	var p tasks.ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	s.incCounter("worker.dca.reconcile", []string{})

	env, err := s.env(ctx)
	if err != nil {
		return err
	}
	resp, err := s.plugin.Reconcile(ctx, env, p.Notice)
	if err != nil {
		s.logger.WithError(err).WithField("schedule_id", p.Notice.ID).Error("reconcile failed")
		return s.contractFailure("Reconcile", err)
	}
	s.record(ctx, tasks.TypeReconcile, env.BlockHeight, p.Notice.ID, resp.Attributes)
	return nil
}

func (s *WorkerService) HandleBankSend(ctx context.Context, t *asynq.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var p tasks.BankSendPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	s.incCounter("worker.dca.bank_send", []string{})

	if err := s.venue.BankSend(ctx, p.From, p.Send); err != nil {
		s.logger.WithError(err).WithField("to", p.Send.ToAddress).Error("bank send failed")
		return fmt.Errorf("venue.BankSend failed: %v: %w", err, asynq.SkipRetry)
	}
	s.record(ctx, tasks.TypeBankSend, p.BlockHeight, 0, p.Send)
	s.logger.WithField("to", p.Send.ToAddress).Info("refund sent")
	return nil
}

// HandleDeposit credits funds attached to a created schedule to the contract
// account at the venue.
func (s *WorkerService) HandleDeposit(ctx context.Context, t *asynq.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var p tasks.DepositPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	s.incCounter("worker.dca.deposit", []string{})
	s.venue.Deposit(s.contractAddress, p.Coin)
	s.record(ctx, tasks.TypeDeposit, 0, p.ScheduleID, p)
	return nil
}

// Register wires every handler into mux.
func (s *WorkerService) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(tasks.TypeRunSchedules, s.HandleRunSchedules)
	mux.HandleFunc(tasks.TypePlaceLimitOrder, s.HandlePlaceLimitOrder)
	mux.HandleFunc(tasks.TypeReconcile, s.HandleReconcile)
	mux.HandleFunc(tasks.TypeBankSend, s.HandleBankSend)
	mux.HandleFunc(tasks.TypeDeposit, s.HandleDeposit)
}
