package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/walletradar/internal/config"
)

// ClickHouseDB wraps the ClickHouse connection used for analysis history
type ClickHouseDB struct {
	conn driver.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(cfg *config.ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:      10 * time.Second,
		MaxOpenConns:     10,
		MaxIdleConns:     5,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying ClickHouse connection
func (db *ClickHouseDB) Conn() driver.Conn {
	return db.conn
}

// Ping checks if the database is reachable
func (db *ClickHouseDB) Ping(ctx context.Context) error {
	return db.conn.Ping(ctx)
}

// EnsureSchema creates the analysis history table if it does not exist
func (db *ClickHouseDB) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS wallet_analysis_history (
			address String,
			analyzed_at DateTime64(3),
			run_id String,
			realized_pnl Float64,
			unrealized_pnl Float64,
			win_rate Float64,
			avg_trade_size Float64,
			trade_count UInt32,
			open_positions UInt32,
			portfolio_value Float64,
			pnl_1d Float64,
			pnl_7d Float64,
			pnl_30d Float64,
			pnl_180d Float64,
			pnl_365d Float64,
			smart_score Float64,
			consistency Float64
		) ENGINE = MergeTree()
		ORDER BY (address, analyzed_at)
	`
	if err := db.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create wallet_analysis_history table: %w", err)
	}
	return nil
}
