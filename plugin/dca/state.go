package dca

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vultisig/dca-plugin/internal/types"
	"github.com/vultisig/dca-plugin/storage"
)

const (
	keyConfig       = "data"
	keySchedules    = "user_schedules"
	keyContractInfo = "contract_info"
)

func loadJSON(ctx context.Context, kv storage.KVStore, key string, out any) error {
	raw, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func saveJSON(ctx context.Context, kv storage.KVStore, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return kv.Set(ctx, key, raw)
}

func loadConfig(ctx context.Context, kv storage.KVStore) (*types.Config, error) {
	var cfg types.Config
	err := loadJSON(ctx, kv, keyConfig, &cfg)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotInstantiated
	}
	if err != nil {
		return nil, err
	}
	if cfg.ExecutionMode == "" {
		cfg.ExecutionMode = types.ExecutionModeOptimistic
	}
	return &cfg, nil
}

func saveConfig(ctx context.Context, kv storage.KVStore, cfg *types.Config) error {
	return saveJSON(ctx, kv, keyConfig, cfg)
}

// loadSchedules returns an empty collection when nothing was stored yet.
func loadSchedules(ctx context.Context, kv storage.KVStore) (*types.Schedules, error) {
	var schedules types.Schedules
	err := loadJSON(ctx, kv, keySchedules, &schedules)
	if errors.Is(err, storage.ErrNotFound) {
		return &types.Schedules{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &schedules, nil
}

func saveSchedules(ctx context.Context, kv storage.KVStore, schedules *types.Schedules) error {
	return saveJSON(ctx, kv, keySchedules, schedules)
}

func loadContractInfo(ctx context.Context, kv storage.KVStore) (*types.ContractInfo, error) {
	var info types.ContractInfo
	if err := loadJSON(ctx, kv, keyContractInfo, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func saveContractInfo(ctx context.Context, kv storage.KVStore, info *types.ContractInfo) error {
	return saveJSON(ctx, kv, keyContractInfo, info)
}
