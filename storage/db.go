package storage

import (
	"context"
	"errors"

	"github.com/vultisig/dca-plugin/internal/types"
)

var (
	// ErrNotFound is returned by KVStore.Get for a missing key.
	ErrNotFound = errors.New("storage: key not found")
	// ErrConflict is returned when a concurrent writer committed first.
	ErrConflict = errors.New("storage: concurrent modification")
)

// KVStore is the view of contract state available inside one invocation.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// StateStorage runs each invocation against a consistent snapshot. Writes made
// inside Update are committed only when fn returns nil.
type StateStorage interface {
	Update(ctx context.Context, fn func(kv KVStore) error) error
	View(ctx context.Context, fn func(kv KVStore) error) error
	Close() error
}

// InstructionLog keeps the audit trail of instructions executed by the host.
type InstructionLog interface {
	RecordInstruction(ctx context.Context, record types.InstructionRecord) error
	GetInstructionHistory(ctx context.Context, correlation uint64, sort string, take int, skip int) ([]types.InstructionRecord, error)
}

var errReadOnly = errors.New("storage: write in read-only view")
