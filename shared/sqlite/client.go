// Package sqlite opens an embedded SQLite database for single-node
// deployments and tests.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

func init() {
	// sqlx only knows "sqlite3"; teach it the bindvar style of this driver.
	sqlx.BindDriver(DriverName, sqlx.QUESTION)
}

// Config holds SQLite configuration
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// Client represents a SQLite database client
type Client struct {
	db     *sqlx.DB
	path   string
	logger *slog.Logger
}

// NewClient opens (or creates) the database file at config.Path.
//
// SQLite allows a single writer, so the pool is capped at one connection;
// this also keeps ":memory:" databases from splitting across connections.
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	busy := config.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", config.Path, busy.Milliseconds())

	logger.Info("Opening SQLite database",
		slog.String("path", config.Path),
	)

	db, err := sqlx.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite: %w", err)
	}

	if config.Path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	return &Client{
		db:     db,
		path:   config.Path,
		logger: logger,
	}, nil
}

// GetDB returns the underlying sqlx.DB instance
func (c *Client) GetDB() *sqlx.DB {
	return c.db
}

// Dialect names the SQL flavour spoken by this client.
func (c *Client) Dialect() string {
	return DriverName
}

// HealthCheck runs a trivial query against the database.
func (c *Client) HealthCheck(ctx context.Context) error {
	var result int
	if err := c.db.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Close closes the database.
func (c *Client) Close() error {
	c.logger.Info("Closing SQLite database", slog.String("path", c.path))
	return c.db.Close()
}
