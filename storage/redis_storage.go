package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the configuration parameters for connecting to a Redis instance.
// Fields:
// - Host: The hostname or IP address of the Redis server.
// - Port: The port number on which the Redis server is listening.
// - User: The username for authentication (if required by the Redis server).
// - Password: The password for authentication (if required by the Redis server).
// - DB: The Redis database number to use (default is 0).
// - Prefix: Namespace prepended to every contract state key.
type RedisConfig struct {
	Host     string `mapstructure:"host" json:"host,omitempty"`
	Port     string `mapstructure:"port" json:"port,omitempty"`
	User     string `mapstructure:"user" json:"user,omitempty"`
	Password string `mapstructure:"password" json:"password,omitempty"`
	DB       int    `mapstructure:"db" json:"db,omitempty"`
	Prefix   string `mapstructure:"prefix" json:"prefix,omitempty"`
}

func (c RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

type RedisStorage struct {
	cfg    RedisConfig
	client redis.UniversalClient
}

var _ StateStorage = (*RedisStorage)(nil)

func NewRedisStorage(cfg RedisConfig) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Username: cfg.User,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	status := client.Ping(context.Background())
	if status.Err() != nil {
		return nil, status.Err()
	}
	return NewRedisStorageWithClient(cfg, client), nil
}

func NewRedisStorageWithClient(cfg RedisConfig, client redis.UniversalClient) *RedisStorage {
	if cfg.Prefix == "" {
		cfg.Prefix = "dca"
	}
	return &RedisStorage{
		cfg:    cfg,
		client: client,
	}
}

func (r *RedisStorage) key(k string) string {
	return r.cfg.Prefix + ":" + k
}

func (r *RedisStorage) revisionKey() string {
	return r.key("_rev")
}

// Get and Set operate outside of contract state on plain keys, e.g. request
// idempotency markers.
func (r *RedisStorage) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return r.client.Get(ctx, key).Result()
}

func (r *RedisStorage) Set(ctx context.Context, key string, value string, expiry time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.client.Set(ctx, key, value, expiry).Err()
}

// SetNX stores value only when key does not exist yet.
func (r *RedisStorage) SetNX(ctx context.Context, key string, value string, expiry time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return r.client.SetNX(ctx, key, value, expiry).Result()
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.client.Del(ctx, key).Err()
}

// Update watches the revision key, buffers writes and commits them in a single
// MULTI/EXEC together with a revision bump.
func (r *RedisStorage) Update(ctx context.Context, fn func(kv KVStore) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		kv := &redisKV{storage: r, reader: tx, writes: make(map[string][]byte)}
		if err := fn(kv); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for k, v := range kv.writes {
				if v == nil {
					pipe.Del(ctx, r.key(k))
					continue
				}
				pipe.Set(ctx, r.key(k), v, 0)
			}
			pipe.Incr(ctx, r.revisionKey())
			return nil
		})
		return err
	}, r.revisionKey())
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

func (r *RedisStorage) View(ctx context.Context, fn func(kv KVStore) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	kv := &redisKV{storage: r, reader: r.client, writes: make(map[string][]byte)}
	return fn(&readOnlyKV{inner: kv})
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

type redisKV struct {
	storage *RedisStorage
	reader  redisGetter
	writes  map[string][]byte
}

func (kv *redisKV) Get(ctx context.Context, key string) ([]byte, error) {
	if value, ok := kv.writes[key]; ok {
		if value == nil {
			return nil, ErrNotFound
		}
		return cloneBytes(value), nil
	}
	value, err := kv.reader.Get(ctx, kv.storage.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

func (kv *redisKV) Set(_ context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	kv.writes[key] = cloneBytes(value)
	return nil
}

func (kv *redisKV) Delete(_ context.Context, key string) error {
	kv.writes[key] = nil
	return nil
}
