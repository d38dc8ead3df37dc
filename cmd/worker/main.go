package main

import (
	"fmt"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/dca-plugin/config"
	"github.com/vultisig/dca-plugin/internal/tasks"
	"github.com/vultisig/dca-plugin/service"
)

func main() {
	cfg, err := config.GetConfigure()
	if err != nil {
		panic(err)
	}
	logger := logrus.StandardLogger()

	sdClient, err := statsd.New(cfg.DatadogAddr())
	if err != nil {
		panic(err)
	}

	rt, err := service.NewRuntime(cfg, logger)
	if err != nil {
		panic(fmt.Errorf("failed to set up runtime: %w", err))
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.WithError(err).Error("fail to close state storage")
		}
	}()

	redisOptions := cfg.RedisClientOpt()
	client := asynq.NewClient(redisOptions)
	defer func() {
		if err := client.Close(); err != nil {
			logger.WithError(err).Error("fail to close asynq client")
		}
	}()

	// a single ordered queue keeps deposits ahead of the orders they fund
	srv := asynq.NewServer(
		redisOptions,
		asynq.Config{
			Logger:         logger,
			Concurrency:    cfg.Scheduler.Concurrency,
			StrictPriority: true,
			Queues: map[string]int{
				tasks.QUEUE_NAME: 10,
			},
		},
	)

	outbox, err := rt.AttachOutbox(client, logger)
	if err != nil {
		panic(fmt.Errorf("failed to set up outbox: %w", err))
	}
	worker, err := service.NewWorker(rt.ContractAddress, rt.Plugin, rt.Venue, rt.Prices, client, outbox, rt.History, sdClient, logger)
	if err != nil {
		panic(fmt.Errorf("failed to create worker service: %w", err))
	}

	scheduler, err := service.NewScheduler(redisOptions, cfg.Scheduler.Spec, logger)
	if err != nil {
		panic(fmt.Errorf("failed to create scheduler: %w", err))
	}
	if err := scheduler.Start(); err != nil {
		panic(fmt.Errorf("could not start scheduler: %w", err))
	}
	defer scheduler.Shutdown()

	mux := asynq.NewServeMux()
	worker.Register(mux)
	if err := srv.Run(mux); err != nil {
		panic(fmt.Errorf("could not run server: %w", err))
	}
}
