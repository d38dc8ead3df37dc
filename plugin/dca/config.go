package dca

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/vultisig/dca-plugin/internal/types"
)

const PLUGIN_TYPE = "dca"

type PluginConfig struct {
	Type            string               `mapstructure:"type"`
	Version         string               `mapstructure:"version"`
	ContractAddress string               `mapstructure:"contract_address"`
	Instantiate     types.InstantiateMsg `mapstructure:"instantiate"`
}

func LoadPluginConfig(basePath string) (*PluginConfig, error) {
	v := viper.New()
	v.SetConfigName("dca")

	// Add config paths in order of precedence
	if basePath != "" {
		v.AddConfigPath(basePath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/vultisig")

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("DCA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("type", PLUGIN_TYPE)
	v.SetDefault("instantiate.execution_mode", string(types.ExecutionModeOptimistic))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config PluginConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// DecodePluginConfig reads the plugin section embedded in the host config.
func DecodePluginConfig(raw map[string]interface{}) (*PluginConfig, error) {
	var config PluginConfig
	if err := mapstructure.WeakDecode(raw, &config); err != nil {
		return nil, fmt.Errorf("failed to decode plugin config: %w", err)
	}
	if config.Type == "" {
		config.Type = PLUGIN_TYPE
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *PluginConfig) validate() error {
	if c.Type != PLUGIN_TYPE {
		return fmt.Errorf("invalid plugin type: %s", c.Type)
	}
	if c.ContractAddress == "" {
		return errors.New("contract_address is required")
	}
	return validateInstantiateMsg(c.Instantiate)
}
