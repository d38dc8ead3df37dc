package storage

import (
	"context"
	"sync"
)

type MemoryStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

var _ StateStorage = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]byte)}
}

func (m *MemoryStorage) Update(ctx context.Context, fn func(kv KVStore) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := newBufferedKV(m.data)
	if err := fn(buf); err != nil {
		return err
	}
	for key, value := range buf.writes {
		if value == nil {
			delete(m.data, key)
			continue
		}
		m.data[key] = value
	}
	return nil
}

func (m *MemoryStorage) View(ctx context.Context, fn func(kv KVStore) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&readOnlyKV{inner: newBufferedKV(m.data)})
}

func (m *MemoryStorage) Close() error {
	return nil
}

// bufferedKV reads through to base and holds writes until commit. A nil value
// in writes marks a deletion.
type bufferedKV struct {
	base   map[string][]byte
	writes map[string][]byte
}

func newBufferedKV(base map[string][]byte) *bufferedKV {
	return &bufferedKV{base: base, writes: make(map[string][]byte)}
}

func (b *bufferedKV) Get(_ context.Context, key string) ([]byte, error) {
	if value, ok := b.writes[key]; ok {
		if value == nil {
			return nil, ErrNotFound
		}
		return cloneBytes(value), nil
	}
	value, ok := b.base[key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(value), nil
}

func (b *bufferedKV) Set(_ context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	b.writes[key] = cloneBytes(value)
	return nil
}

func (b *bufferedKV) Delete(_ context.Context, key string) error {
	b.writes[key] = nil
	return nil
}

type readOnlyKV struct {
	inner KVStore
}

func (r *readOnlyKV) Get(ctx context.Context, key string) ([]byte, error) {
	return r.inner.Get(ctx, key)
}

func (r *readOnlyKV) Set(context.Context, string, []byte) error {
	return errReadOnly
}

func (r *readOnlyKV) Delete(context.Context, string) error {
	return errReadOnly
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
