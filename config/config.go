package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/vultisig/dca-plugin/internal/oracle"
	"github.com/vultisig/dca-plugin/plugin/dca"
	"github.com/vultisig/dca-plugin/storage"
)

const (
	StorageRedis    = "redis"
	StoragePostgres = "postgres"

	OracleSlinky = "slinky"
	OracleManual = "manual"
)

// ManualPrice seeds the in-process oracle when no node is configured.
type ManualPrice struct {
	Base     string `mapstructure:"base" json:"base"`
	Quote    string `mapstructure:"quote" json:"quote"`
	Price    string `mapstructure:"price" json:"price"`
	Decimals uint64 `mapstructure:"decimals" json:"decimals"`
	Height   uint64 `mapstructure:"height" json:"height"`
}

// VenuePrice is how many units of TokenIn the paper venue charges for one
// unit of TokenOut.
type VenuePrice struct {
	TokenIn  string `mapstructure:"token_in" json:"token_in"`
	TokenOut string `mapstructure:"token_out" json:"token_out"`
	Price    string `mapstructure:"price" json:"price"`
}

type ServerConfig struct {
	Host      string     `mapstructure:"host" json:"host,omitempty"`
	Port      int64      `mapstructure:"port" json:"port,omitempty"`
	RateLimit rate.Limit `mapstructure:"rate_limit" json:"rate_limit,omitempty"`
	Database  struct {
		DSN string `mapstructure:"dsn" json:"dsn,omitempty"`
	} `mapstructure:"database" json:"database,omitempty"`
}

type Config struct {
	Server ServerConfig `mapstructure:"server" json:"server"`

	BaseConfigPath string `mapstructure:"base_config_path" json:"base_config_path,omitempty"`

	Storage struct {
		Backend string `mapstructure:"backend" json:"backend,omitempty"`
	} `mapstructure:"storage" json:"storage,omitempty"`

	Redis storage.RedisConfig `mapstructure:"redis" json:"redis,omitempty"`

	Oracle struct {
		Source string        `mapstructure:"source" json:"source,omitempty"`
		Slinky oracle.Config `mapstructure:"slinky" json:"slinky,omitempty"`
		Manual []ManualPrice `mapstructure:"manual" json:"manual,omitempty"`
	} `mapstructure:"oracle" json:"oracle,omitempty"`

	Venue struct {
		Prices []VenuePrice `mapstructure:"prices" json:"prices,omitempty"`
	} `mapstructure:"venue" json:"venue,omitempty"`

	Scheduler struct {
		Spec        string `mapstructure:"spec" json:"spec,omitempty"`
		Concurrency int    `mapstructure:"concurrency" json:"concurrency,omitempty"`
	} `mapstructure:"scheduler" json:"scheduler,omitempty"`

	Plugin struct {
		PluginConfigs map[string]map[string]interface{} `mapstructure:"plugin_configs" json:"plugin_configs,omitempty"`
	} `mapstructure:"plugin" json:"plugin,omitempty"`

	Datadog struct {
		Host string `mapstructure:"host" json:"host,omitempty"`
		Port string `mapstructure:"port" json:"port,omitempty"`
	} `mapstructure:"datadog" json:"datadog"`
}

func GetConfigure() (*Config, error) {
	configName := os.Getenv("VS_CONFIG_NAME")
	if configName == "" {
		configName = "config"
	}

	return ReadConfig(configName)
}

func ReadConfig(configName string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.AddConfigPath(".")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("fail to reading config file, %w", err)
	}
	var cfg Config
	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 5)
	v.SetDefault("storage.backend", StorageRedis)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("oracle.source", OracleSlinky)
	v.SetDefault("scheduler.spec", "@every 1m")
	v.SetDefault("scheduler.concurrency", 1)
	v.SetDefault("datadog.host", "localhost")
	v.SetDefault("datadog.port", "8125")
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageRedis:
	case StoragePostgres:
		if c.Server.Database.DSN == "" {
			return fmt.Errorf("server.database.dsn is required for the postgres backend")
		}
	case "memory":
		// the api server and the worker are separate processes
		return fmt.Errorf("storage backend %q is not shared between processes, use %q or %q", c.Storage.Backend, StorageRedis, StoragePostgres)
	default:
		return fmt.Errorf("unknown storage backend: %q", c.Storage.Backend)
	}
	switch c.Oracle.Source {
	case OracleSlinky:
		if c.Oracle.Slinky.URL == "" {
			return fmt.Errorf("oracle.slinky.url is required")
		}
	case OracleManual:
	default:
		return fmt.Errorf("unknown oracle source: %q", c.Oracle.Source)
	}
	if c.Scheduler.Concurrency < 1 {
		return fmt.Errorf("scheduler.concurrency must be >= 1")
	}
	return nil
}

// DCAPluginConfig resolves the plugin section: inline under
// plugin.plugin_configs.dca when present, otherwise dca.yaml under
// base_config_path.
func (c *Config) DCAPluginConfig() (*dca.PluginConfig, error) {
	if raw, ok := c.Plugin.PluginConfigs[dca.PLUGIN_TYPE]; ok {
		return dca.DecodePluginConfig(raw)
	}
	return dca.LoadPluginConfig(c.BaseConfigPath)
}

func (c *Config) DatadogAddr() string {
	return c.Datadog.Host + ":" + c.Datadog.Port
}

func (c *Config) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.Redis.Addr(),
		Username: c.Redis.User,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}
}
