package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridianlabs/lendx/pkg/retry"
	"github.com/meridianlabs/lendx/pkg/utils"
	"go.uber.org/zap"
)

// Executor is implemented by both *pgxpool.Pool and pgx.Tx, letting store
// methods run against the pool or inside a caller-owned transaction.
type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Client wraps a PostgreSQL connection pool.
type Client struct {
	Logger *zap.Logger
	Pool   *pgxpool.Pool
}

// PoolConfig defines connection pool settings.
type PoolConfig struct {
	MinConns        int32
	MaxConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig sizes the pool for the daemon's handful of sequential
// timer loops.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MinConns:        2,
		MaxConns:        10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}
}

// NewClient connects to POSTGRES_URL with bounded retry.
func NewClient(ctx context.Context, logger *zap.Logger, poolCfg PoolConfig) (*Client, error) {
	connCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbURL := utils.Env("POSTGRES_URL", "postgres://localhost:5432/lendx")
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse POSTGRES_URL: %w", err)
	}
	cfg.MinConns = poolCfg.MinConns
	cfg.MaxConns = poolCfg.MaxConns
	cfg.MaxConnLifetime = poolCfg.ConnMaxLifetime
	cfg.MaxConnIdleTime = poolCfg.ConnMaxIdleTime

	client := &Client{Logger: logger}

	retryErr := retry.WithBackoff(connCtx, retry.DefaultConfig(), logger, "postgres_connection", func() error {
		pool, openErr := pgxpool.NewWithConfig(connCtx, cfg)
		if openErr != nil {
			return fmt.Errorf("create connection pool: %w", openErr)
		}
		if pingErr := pool.Ping(connCtx); pingErr != nil {
			pool.Close()
			return fmt.Errorf("ping postgres: %w", pingErr)
		}
		client.Pool = pool
		return nil
	})
	if retryErr != nil {
		return nil, retryErr
	}

	logger.Info("PostgreSQL connection pool configured",
		zap.Int32("min_conns", poolCfg.MinConns),
		zap.Int32("max_conns", poolCfg.MaxConns))

	return client, nil
}

// Exec executes a query without returning rows.
func (c *Client) Exec(ctx context.Context, query string, args ...any) error {
	_, err := c.GetExecutor(ctx).Exec(ctx, query, args...)
	return err
}

// Query executes a query that returns rows. Callers own rows.Close.
func (c *Client) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return c.GetExecutor(ctx).Query(ctx, query, args...)
}

// QueryRow executes a query expected to return at most one row.
func (c *Client) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return c.GetExecutor(ctx).QueryRow(ctx, query, args...)
}

// BeginFunc executes fn inside a transaction; rollback on error, commit
// otherwise.
func (c *Client) BeginFunc(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, c.Pool, fn)
}

// Close closes the connection pool.
func (c *Client) Close() {
	c.Pool.Close()
}

type ctxKey string

const txKey ctxKey = "pgx_tx"

// WithTx returns a context carrying tx, so store methods on that context
// run inside the transaction.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey, tx)
}

// GetExecutor returns the transaction embedded in ctx, or the pool.
func (c *Client) GetExecutor(ctx context.Context) Executor {
	if tx, ok := ctx.Value(txKey).(pgx.Tx); ok {
		return tx
	}
	return c.Pool
}

// InTx runs fn inside a transaction whose context routes every store call
// through that transaction.
func (c *Client) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.BeginFunc(ctx, func(tx pgx.Tx) error {
		return fn(WithTx(ctx, tx))
	})
}

// IsNoRows checks if the error is a "no rows" error.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
