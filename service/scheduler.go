package service

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/dca-plugin/internal/tasks"
)

const DefaultRunSpec = "@every 1m"

// Scheduler enqueues a schedule pass on a cron spec.
type Scheduler struct {
	scheduler *asynq.Scheduler
	spec      string
	logger    *logrus.Logger
}

// ValidateRunSpec accepts standard five field cron expressions and the
// @every / @hourly style descriptors.
func ValidateRunSpec(spec string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid run schedule %q: %w", spec, err)
	}
	return schedule, nil
}

// passUniqueness keeps at most one queued pass per interval.
func passUniqueness(schedule cron.Schedule) time.Duration {
	now := time.Now()
	next := schedule.Next(now)
	ttl := schedule.Next(next).Sub(next)
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func NewScheduler(redisOpt asynq.RedisConnOpt, spec string, logger *logrus.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultRunSpec
	}
	schedule, err := ValidateRunSpec(spec)
	if err != nil {
		return nil, err
	}
	s := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger:   logger,
		Location: time.UTC,
	})

	task, err := tasks.NewRunSchedulesTask(tasks.RunSchedulesPayload{})
	if err != nil {
		return nil, err
	}
	opts := append(tasks.DefaultOptions(), asynq.MaxRetry(0), asynq.Unique(passUniqueness(schedule)))
	entryID, err := s.Register(spec, task, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to register schedule pass: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"entry_id": entryID,
		"spec":     spec,
	}).Info("schedule pass registered")

	return &Scheduler{scheduler: s, spec: spec, logger: logger}, nil
}

func (s *Scheduler) Start() error {
	return s.scheduler.Start()
}

func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
}
