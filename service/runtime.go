package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/dca-plugin/config"
	"github.com/vultisig/dca-plugin/internal/oracle"
	"github.com/vultisig/dca-plugin/internal/types"
	"github.com/vultisig/dca-plugin/internal/venue"
	"github.com/vultisig/dca-plugin/plugin/dca"
	"github.com/vultisig/dca-plugin/storage"
	"github.com/vultisig/dca-plugin/storage/postgres"
)

// PriceSource is everything the host needs from the price feed.
type PriceSource interface {
	dca.OracleQuerier
	dca.MarketMapQuerier
	oracle.HeightSource
}

// Runtime is the contract plus the infrastructure it runs on, shared by the
// API server and the worker.
type Runtime struct {
	ContractAddress string
	Store           storage.StateStorage
	History         storage.InstructionLog
	Redis           *storage.RedisStorage
	Prices          PriceSource
	Venue           *venue.PaperVenue
	Plugin          *dca.DCAPlugin
}

func NewRuntime(cfg *config.Config, logger *logrus.Logger) (*Runtime, error) {
	pluginCfg, err := cfg.DCAPluginConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load plugin config: %w", err)
	}

	rt := &Runtime{ContractAddress: pluginCfg.ContractAddress}
	switch cfg.Storage.Backend {
	case config.StorageRedis:
		redis, err := storage.NewRedisStorage(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("storage.NewRedisStorage failed: %w", err)
		}
		rt.Store = redis
		rt.Redis = redis
		rt.History = storage.NewMemoryInstructionLog()
	case config.StoragePostgres:
		db, err := postgres.NewPostgresBackend(cfg.Server.Database.DSN, logger.WithField("component", "postgres"))
		if err != nil {
			return nil, fmt.Errorf("fail to connect to database: %w", err)
		}
		rt.Store = db
		rt.History = db
	default:
		return nil, fmt.Errorf("unsupported storage backend: %q", cfg.Storage.Backend)
	}

	rt.Prices, err = newPriceSource(cfg, logger)
	if err != nil {
		return nil, err
	}

	rt.Venue = venue.NewPaperVenue(logger.WithField("component", "venue"))
	for _, p := range cfg.Venue.Prices {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, fmt.Errorf("invalid venue price for %s->%s: %w", p.TokenIn, p.TokenOut, err)
		}
		rt.Venue.SetPrice(p.TokenIn, p.TokenOut, price)
	}

	rt.Plugin, err = dca.NewDCAPlugin(rt.Store, rt.Prices, rt.Prices, rt.Venue, logger.WithField("service", "plugin"))
	if err != nil {
		return nil, fmt.Errorf("fail to initialize DCA plugin: %w", err)
	}
	if err := rt.ensureInstantiated(context.Background(), pluginCfg.Instantiate, logger); err != nil {
		return nil, err
	}
	return rt, nil
}

func newPriceSource(cfg *config.Config, logger *logrus.Logger) (PriceSource, error) {
	if cfg.Oracle.Source == config.OracleSlinky {
		return oracle.NewSlinkyClient(cfg.Oracle.Slinky, logger.WithField("component", "oracle"))
	}
	manual := oracle.NewManualOracle()
	for _, p := range cfg.Oracle.Manual {
		pair := types.CurrencyPair{Base: p.Base, Quote: p.Quote}
		manual.SetMarket(pair, p.Decimals, true)
		if err := manual.SetPrice(pair, p.Price, p.Decimals, p.Height); err != nil {
			return nil, err
		}
	}
	return manual, nil
}

// ensureInstantiated runs the one-time setup on a fresh store.
func (rt *Runtime) ensureInstantiated(ctx context.Context, msg types.InstantiateMsg, logger *logrus.Logger) error {
	_, err := rt.Plugin.GetConfig(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, dca.ErrNotInstantiated) {
		return fmt.Errorf("failed to read contract config: %w", err)
	}
	height, err := rt.Prices.LatestHeight(ctx)
	if err != nil {
		return fmt.Errorf("failed to get latest height: %w", err)
	}
	_, err = rt.Plugin.Instantiate(ctx, types.Env{BlockHeight: height, ContractAddress: rt.ContractAddress}, msg)
	if err != nil && !errors.Is(err, dca.ErrAlreadyInstantiated) {
		return fmt.Errorf("failed to instantiate contract: %w", err)
	}
	logger.WithField("contract", rt.ContractAddress).Info("contract instantiated")
	return nil
}

// AttachOutbox routes every instruction the contract emits through an outbox
// flushed into queue.
func (rt *Runtime) AttachOutbox(queue TaskEnqueuer, logger *logrus.Logger) (*Outbox, error) {
	outbox, err := NewOutbox(rt.ContractAddress, rt.Store, queue, logger.WithField("component", "outbox"))
	if err != nil {
		return nil, err
	}
	rt.Plugin.WithOutbox(outbox)
	return outbox, nil
}

func (rt *Runtime) Close() error {
	return rt.Store.Close()
}
