package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/usdt-market/internal/config"
	"github.com/usdt-market/internal/retry"
)

// clickHouseFatalCodes are server exception codes that reconnecting will not fix
var clickHouseFatalCodes = map[int32]bool{
	81:  true, // UNKNOWN_DATABASE
	192: true, // UNKNOWN_USER
	193: true, // WRONG_PASSWORD
	516: true, // AUTHENTICATION_FAILED
}

// ClickHouseDB is the append-only store for allowance snapshots
type ClickHouseDB struct {
	conn     driver.Conn
	database string
}

// NewClickHouseDB dials ClickHouse and pings it. History writes are small
// batches from the watcher, so the pool stays narrow.
func NewClickHouseDB(ctx context.Context, cfg *config.ClickHouseConfig) (*ClickHouseDB, error) {
	opts := &clickhouse.Options{
		Addr: []string{cfg.Host + ":" + cfg.Port},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 15,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout:     5 * time.Second,
		MaxOpenConns:    4,
		MaxIdleConns:    1,
		ConnMaxLifetime: 30 * time.Minute,
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("invalid clickhouse settings: %w", err))
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := conn.Ping(pingCtx); err != nil {
		_ = conn.Close()
		return nil, classifyClickHouseError(fmt.Errorf("clickhouse ping %s:%s: %w", cfg.Host, cfg.Port, err))
	}

	return &ClickHouseDB{conn: conn, database: cfg.Database}, nil
}

func classifyClickHouseError(err error) error {
	var ex *clickhouse.Exception
	if errors.As(err, &ex) && clickHouseFatalCodes[ex.Code] {
		return retry.Permanent(err)
	}
	return err
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// Conn returns the underlying driver connection
func (db *ClickHouseDB) Conn() driver.Conn {
	return db.conn
}

// Database names the database snapshots are written to
func (db *ClickHouseDB) Database() string {
	return db.database
}

// Ping checks if the database is reachable
func (db *ClickHouseDB) Ping(ctx context.Context) error {
	return db.conn.Ping(ctx)
}

// Exec runs a DDL or write statement
func (db *ClickHouseDB) Exec(ctx context.Context, query string, args ...interface{}) error {
	return db.conn.Exec(ctx, query, args...)
}
