package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/dca-plugin/storage"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

type PostgresBackend struct {
	pool   *pgxpool.Pool
	lockID int64
	logger logrus.FieldLogger
}

var _ storage.StateStorage = (*PostgresBackend)(nil)

func NewPostgresBackend(dsn string, logger logrus.FieldLogger) (*PostgresBackend, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	backend := &PostgresBackend{
		pool:   pool,
		lockID: advisoryLockID("dca-contract-state"),
		logger: logger,
	}
	if err := backend.Migrate(); err != nil {
		pool.Close()
		return nil, err
	}
	return backend, nil
}

func (p *PostgresBackend) Migrate() error {
	db := stdlib.OpenDBFromPool(p.pool)
	defer func() {
		if err := db.Close(); err != nil {
			p.logger.WithError(err).Error("failed to close migration handle")
		}
	}()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (p *PostgresBackend) Pool() *pgxpool.Pool {
	return p.pool
}

func (p *PostgresBackend) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresBackend) handleRollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		p.logger.WithError(err).Error("failed to rollback transaction")
	}
}

// Update serializes invocations with a transaction-scoped advisory lock, so a
// contract call always observes the state left by the previous one.
func (p *PostgresBackend) Update(ctx context.Context, fn func(kv storage.KVStore) error) error {
	if p.pool == nil {
		return fmt.Errorf("database pool is nil")
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer p.handleRollback(ctx, tx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, p.lockID); err != nil {
		return fmt.Errorf("failed to acquire state lock: %w", err)
	}

	if err := fn(&txKV{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (p *PostgresBackend) View(ctx context.Context, fn func(kv storage.KVStore) error) error {
	if p.pool == nil {
		return fmt.Errorf("database pool is nil")
	}
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer p.handleRollback(ctx, tx)

	return fn(&txKV{tx: tx})
}

type txKV struct {
	tx pgx.Tx
}

func (kv *txKV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := kv.tx.QueryRow(ctx, `SELECT value FROM contract_state WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state %s: %w", key, err)
	}
	return value, nil
}

func (kv *txKV) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := kv.tx.Exec(ctx, `
	INSERT INTO contract_state (key, value, updated_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set state %s: %w", key, err)
	}
	return nil
}

func (kv *txKV) Delete(ctx context.Context, key string) error {
	_, err := kv.tx.Exec(ctx, `DELETE FROM contract_state WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete state %s: %w", key, err)
	}
	return nil
}

func advisoryLockID(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64() >> 1)
}
