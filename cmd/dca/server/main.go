package main

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/dca-plugin/api"
	"github.com/vultisig/dca-plugin/config"
	"github.com/vultisig/dca-plugin/service"
)

func main() {
	cfg, err := config.GetConfigure()
	if err != nil {
		panic(err)
	}
	logger := logrus.New()

	sdClient, err := statsd.New(cfg.DatadogAddr())
	if err != nil {
		panic(err)
	}

	rt, err := service.NewRuntime(cfg, logger)
	if err != nil {
		logger.Fatalf("failed to set up runtime: %v", err)
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
	inspector := asynq.NewInspector(redisOptions)

	outbox, err := rt.AttachOutbox(client, logger)
	if err != nil {
		logger.Fatalf("failed to set up outbox: %v", err)
	}
	schedules, err := service.NewScheduleService(rt.ContractAddress, rt.Plugin, rt.Prices, client, outbox, rt.History,
		logger)
	if err != nil {
		logger.Fatalf("Failed to initialize schedule service: %v", err)
	}
	schedules.WithInspector(inspector)

	// nil idempotency store disables Idempotency-Key handling
	var idempotency api.IdempotencyStore
	if rt.Redis != nil {
		idempotency = rt.Redis
	}
	server := api.NewServer(cfg.Server, schedules, idempotency, sdClient, logger)
	if err := server.StartServer(); err != nil {
		panic(err)
	}
}
