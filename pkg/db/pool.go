// Package db opens database/sql pools for the drivers fluxpool ships with:
// sqlite3, postgres (lib/pq) and pgx.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported driver names
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
)

// PoolConfig configures a database connection pool
type PoolConfig struct {
	// DriverName is one of DriverSQLite, DriverPostgres or DriverPgx.
	DriverName string
	DSN        string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// PingTimeout bounds the connectivity check in NewPool. Default 5s.
	PingTimeout time.Duration
}

// DefaultPoolConfig returns a small pool suited to an access-log writer
func DefaultPoolConfig(driverName, dsn string) PoolConfig {
	return PoolConfig{
		DriverName:      driverName,
		DSN:             dsn,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// Error is a configuration or state error
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func invalidConfig(msg string) error {
	return &Error{Code: "INVALID_CONFIG", Message: msg}
}

func (c PoolConfig) validate() error {
	switch c.DriverName {
	case DriverSQLite, DriverPostgres, DriverPgx:
	case "":
		return invalidConfig("DriverName cannot be empty")
	default:
		return invalidConfig("unsupported driver " + strconv.Quote(c.DriverName))
	}
	if c.DSN == "" {
		return invalidConfig("DSN cannot be empty")
	}
	if c.MaxOpenConns <= 0 {
		return invalidConfig("MaxOpenConns must be positive")
	}
	if c.MaxIdleConns < 0 {
		return invalidConfig("MaxIdleConns cannot be negative")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return invalidConfig("MaxIdleConns cannot exceed MaxOpenConns")
	}
	if c.ConnMaxLifetime < 0 || c.ConnMaxIdleTime < 0 {
		return invalidConfig("connection lifetimes cannot be negative")
	}
	return nil
}

// Pool wraps a *sql.DB with the driver it was opened with
type Pool struct {
	db     *sql.DB
	config PoolConfig
}

// NewPool validates config, opens the pool and pings it
func NewPool(config PoolConfig) (*Pool, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(config.DriverName, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", config.DriverName, err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	timeout := config.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", config.DriverName, err)
	}

	return &Pool{db: db, config: config}, nil
}

// DB returns the underlying *sql.DB
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Driver returns the driver name the pool was opened with
func (p *Pool) Driver() string {
	return p.config.DriverName
}

// Placeholder returns the bind parameter for the n-th (1-based) argument
func (p *Pool) Placeholder(n int) string {
	if p.config.DriverName == DriverSQLite {
		return "?"
	}
	return "$" + strconv.Itoa(n)
}

func (p *Pool) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if query == "" {
		return nil, &Error{Code: "INVALID_INPUT", Message: "query cannot be empty"}
	}
	return p.db.ExecContext(ctx, query, args...)
}

func (p *Pool) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return p.db.QueryRowContext(ctx, query, args...)
}

func (p *Pool) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Stats returns pool statistics
func (p *Pool) Stats() sql.DBStats {
	return p.db.Stats()
}

// Close closes the pool
func (p *Pool) Close() error {
	return p.db.Close()
}
