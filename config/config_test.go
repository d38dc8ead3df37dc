package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/vultisig/dca-plugin/internal/types"
)

func writeConfig(t *testing.T, name, body string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(body), 0o600))
	chdir(t, dir)
}

func TestReadConfigDefaults(t *testing.T) {
	writeConfig(t, "config", `
oracle:
  slinky:
    url: http://localhost:1317
    timeout: 5s
`)
	cfg, err := ReadConfig("config")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, int64(8080), cfg.Server.Port)
	assert.Equal(t, rate.Limit(5), cfg.Server.RateLimit)
	assert.Equal(t, StorageRedis, cfg.Storage.Backend)
	assert.Equal(t, OracleSlinky, cfg.Oracle.Source)
	assert.Equal(t, 5*time.Second, cfg.Oracle.Slinky.Timeout)
	assert.Equal(t, "@every 1m", cfg.Scheduler.Spec)
	assert.Equal(t, 1, cfg.Scheduler.Concurrency)
	assert.Equal(t, "localhost:8125", cfg.DatadogAddr())
	assert.Equal(t, "localhost:6379", cfg.RedisClientOpt().Addr)
}

func TestReadConfigManualOracle(t *testing.T) {
	writeConfig(t, "dev", `
storage:
  backend: redis
oracle:
  source: manual
  manual:
    - base: NTRN
      quote: USD
      price: "500000"
      decimals: 6
      height: 100
venue:
  prices:
    - token_in: uusdc
      token_out: untrn
      price: "0.5"
`)
	cfg, err := ReadConfig("dev")
	require.NoError(t, err)
	require.Len(t, cfg.Oracle.Manual, 1)
	assert.Equal(t, ManualPrice{Base: "NTRN", Quote: "USD", Price: "500000", Decimals: 6, Height: 100}, cfg.Oracle.Manual[0])
	require.Len(t, cfg.Venue.Prices, 1)
	assert.Equal(t, "untrn", cfg.Venue.Prices[0].TokenOut)
}

func TestReadConfigMissingFile(t *testing.T) {
	chdir(t, t.TempDir())
	_, err := ReadConfig("absent")
	assert.Error(t, err)
}

func TestReadConfigRejectsMemoryBackend(t *testing.T) {
	writeConfig(t, "config", `
storage:
  backend: memory
oracle:
  source: manual
`)
	_, err := ReadConfig("config")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not shared between processes")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		var c Config
		c.Storage.Backend = StorageRedis
		c.Oracle.Source = OracleManual
		c.Scheduler.Concurrency = 1
		return c
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "sqlite" }, false},
		{"process-local backend", func(c *Config) { c.Storage.Backend = "memory" }, false},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = StoragePostgres }, false},
		{"postgres with dsn", func(c *Config) {
			c.Storage.Backend = StoragePostgres
			c.Server.Database.DSN = "postgres://localhost/dca"
		}, true},
		{"slinky without url", func(c *Config) { c.Oracle.Source = OracleSlinky }, false},
		{"unknown oracle", func(c *Config) { c.Oracle.Source = "chainlink" }, false},
		{"zero concurrency", func(c *Config) { c.Scheduler.Concurrency = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestDCAPluginConfigInline(t *testing.T) {
	writeConfig(t, "config", `
storage:
  backend: redis
oracle:
  source: manual
plugin:
  plugin_configs:
    dca:
      contract_address: neutron1contract
      instantiate:
        owner: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
        denom_base: untrn
        denom_quote: uusdc
        base: NTRN
        quote: USD
        max_block_old: 10
        max_schedules: 5
`)
	cfg, err := ReadConfig("config")
	require.NoError(t, err)

	pluginCfg, err := cfg.DCAPluginConfig()
	require.NoError(t, err)
	assert.Equal(t, "neutron1contract", pluginCfg.ContractAddress)
	assert.Equal(t, types.InstantiateMsg{
		Owner:        "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		DenomBase:    "untrn",
		DenomQuote:   "uusdc",
		Base:         "NTRN",
		Quote:        "USD",
		MaxBlockOld:  10,
		MaxSchedules: 5,
	}, pluginCfg.Instantiate)
}

func TestDCAPluginConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dca.yaml"), []byte(`
contract_address: neutron1contract
instantiate:
  owner: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
  denom_base: untrn
  denom_quote: uusdc
  base: NTRN
  quote: USD
  max_block_old: 0
  max_schedules: 5
`), 0o600))
	cfg := Config{BaseConfigPath: dir}

	// max_block_old must be at least one
	_, err := cfg.DCAPluginConfig()
	assert.Error(t, err)
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent to testing.T.Chdir, Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
