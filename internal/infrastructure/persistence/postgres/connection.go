// Package postgres stores the participant registry and sweep history in
// PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrConnectionClosed is returned for any call after Close.
	ErrConnectionClosed = errors.New("postgres: connection pool is closed")

	// ErrMigrationFailed wraps the failing schema version.
	ErrMigrationFailed = errors.New("postgres: migration failed")

	// ErrTransactionFailed means a transaction could not be opened.
	ErrTransactionFailed = errors.New("postgres: transaction failed")

	// ErrPoolExhausted means every pooled connection is checked out.
	ErrPoolExhausted = errors.New("postgres: connection pool exhausted")
)

// ══════════════════════════════════════════════════════════════════════════════
// POOL CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds pool settings. URL is a libpq URL or keyword/value DSN.
type Config struct {
	URL string

	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration

	// QueryTimeout bounds each registry or history statement.
	QueryTimeout time.Duration
}

// DefaultConfig returns pool defaults sized for one tracker process.
func DefaultConfig() Config {
	return Config{
		MaxConns:          10,
		MinConns:          1,
		MaxConnLifetime:   30 * time.Minute,
		MaxConnIdleTime:   5 * time.Minute,
		HealthCheckPeriod: time.Minute,
		QueryTimeout:      10 * time.Second,
	}
}

// PoolConfig parses URL and applies the pool limits, falling back to the
// defaults for unset values.
func (c Config) PoolConfig() (*pgxpool.Config, error) {
	if c.URL == "" {
		return nil, errors.New("postgres: empty database URL")
	}
	pc, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse database URL: %w", err)
	}

	def := DefaultConfig()
	pc.MaxConns = orDefault(c.MaxConns, def.MaxConns)
	pc.MinConns = orDefault(c.MinConns, def.MinConns)
	pc.MaxConnLifetime = orDefault(c.MaxConnLifetime, def.MaxConnLifetime)
	pc.MaxConnIdleTime = orDefault(c.MaxConnIdleTime, def.MaxConnIdleTime)
	pc.HealthCheckPeriod = orDefault(c.HealthCheckPeriod, def.HealthCheckPeriod)
	return pc, nil
}

func orDefault[T int32 | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION
// ══════════════════════════════════════════════════════════════════════════════

// Connection is the pool shared by the participant backend, the sweep
// history and the migrator. Every call fails with ErrConnectionClosed after
// Close.
type Connection struct {
	pool    *pgxpool.Pool
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewConnection opens the pool and pings the server once.
func NewConnection(ctx context.Context, cfg Config) (*Connection, error) {
	poolConfig, err := cfg.PoolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().QueryTimeout
	}
	return &Connection{pool: pool, timeout: timeout}, nil
}

// Close releases the pool. It is safe to call more than once.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.pool.Close()
	}
}

// pooled runs fn with the pool unless the connection is closed.
func (c *Connection) pooled(fn func(*pgxpool.Pool) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnectionClosed
	}
	return fn(c.pool)
}

// Check is the database health check. The server must answer and the pool
// must have a connection left for the next sweep commit.
func (c *Connection) Check(ctx context.Context) error {
	return c.pooled(func(p *pgxpool.Pool) error {
		if err := p.Ping(ctx); err != nil {
			return err
		}
		stat := p.Stat()
		return poolError(stat.AcquiredConns(), stat.MaxConns())
	})
}

func poolError(acquired, limit int32) error {
	if limit > 0 && acquired >= limit {
		return fmt.Errorf("%w: %d of %d connections in use", ErrPoolExhausted, acquired, limit)
	}
	return nil
}

// queryContext applies the per-statement timeout.
func (c *Connection) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// Exec runs a statement that returns no rows.
func (c *Connection) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	var tag pgconn.CommandTag
	err := c.pooled(func(p *pgxpool.Pool) error {
		var err error
		tag, err = p.Exec(ctx, sql, args...)
		return err
	})
	return tag, err
}

// Query runs a statement that returns rows. The caller closes them.
func (c *Connection) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	var rows pgx.Rows
	err := c.pooled(func(p *pgxpool.Pool) error {
		var err error
		rows, err = p.Query(ctx, sql, args...)
		return err
	})
	return rows, err
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTIONS
// ══════════════════════════════════════════════════════════════════════════════

// WithTx runs fn in a read-committed transaction, committing when fn
// returns nil and rolling back on an error or panic.
func (c *Connection) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	var tx pgx.Tx
	err := c.pooled(func(p *pgxpool.Pool) error {
		var err error
		tx, err = p.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
		return err
	})
	if errors.Is(err, ErrConnectionClosed) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// IsUndefinedTable reports a query against a table that does not exist yet.
func IsUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
