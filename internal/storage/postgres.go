// Package storage provides database connections and repository implementations.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/usdt-market/internal/config"
	"github.com/usdt-market/internal/retry"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when an insert violates a unique constraint
var ErrDuplicate = errors.New("duplicate record")

// postgresFatalCodes are SQLSTATEs that no amount of reconnecting fixes
var postgresFatalCodes = map[string]bool{
	"28000": true, // invalid_authorization_specification
	"28P01": true, // invalid_password
	"3D000": true, // invalid_catalog_name
}

// PostgresDB holds the pool behind every marketplace repository
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgresDB opens the pool and pings it. Credential and unknown
// database errors are marked permanent so startup fails fast.
func NewPostgresDB(ctx context.Context, cfg *config.PostgresConfig) (*PostgresDB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("invalid postgres settings: %w", err))
	}

	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 10
	}
	poolConfig.MaxConns = int32(maxConns) // #nosec G115 - bounded by config validation
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 15 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "usdt-market"

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(dialCtx, poolConfig)
	if err != nil {
		return nil, classifyPostgresError(fmt.Errorf("postgres pool: %w", err))
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, classifyPostgresError(fmt.Errorf("postgres ping %s:%s: %w", cfg.Host, cfg.Port, err))
	}

	return &PostgresDB{pool: pool}, nil
}

func classifyPostgresError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && postgresFatalCodes[pgErr.Code] {
		return retry.Permanent(err)
	}
	return err
}

// Close closes the database connection pool
func (db *PostgresDB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Pool returns the underlying connection pool
func (db *PostgresDB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks if the database is reachable
func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// notFound maps pgx.ErrNoRows to ErrNotFound and wraps anything else
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

// isUniqueViolation reports whether err is a Postgres unique_violation
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
