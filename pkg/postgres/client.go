package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/lib/pq"

	"github.com/saaga0h/jeeves-wordclock/pkg/config"
)

// ErrNotConnected is returned by Exec before Connect or after Disconnect
var ErrNotConnected = errors.New("postgres client not connected")

// PostgresClient is the lib/pq-backed Client. The journal writer is its only
// caller, so the pool is kept small.
type PostgresClient struct {
	config *config.Config
	logger *slog.Logger

	mu sync.RWMutex
	db *sql.DB
}

// NewClient creates an unconnected client
func NewClient(cfg *config.Config, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresClient{config: cfg, logger: logger}
}

// Connect opens the pool and verifies it with a ping
func (c *PostgresClient) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to Postgres",
		"host", c.config.PostgresHost,
		"port", c.config.PostgresPort,
		"database", c.config.PostgresDB)

	dsn := fmt.Sprintf("%s application_name=%s", c.config.PostgresConnectionString(), c.config.ServiceName)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(c.config.PostgresMaxConnections)
	db.SetMaxIdleConns(c.config.PostgresMaxIdleConnections)
	db.SetConnMaxLifetime(c.config.PostgresConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	c.mu.Lock()
	c.db = db
	c.mu.Unlock()

	c.logger.Info("Connected to Postgres successfully")
	return nil
}

// Disconnect closes the pool; calling it twice is harmless
func (c *PostgresClient) Disconnect() error {
	c.mu.Lock()
	db := c.db
	c.db = nil
	c.mu.Unlock()

	if db == nil {
		return nil
	}

	c.logger.Info("Disconnecting from Postgres")
	if err := db.Close(); err != nil {
		return fmt.Errorf("failed to close postgres connection: %w", err)
	}
	return nil
}

// IsConnected reports whether a pool is open
func (c *PostgresClient) IsConnected() bool {
	return c.pool() != nil
}

// Exec runs a statement that returns no rows
func (c *PostgresClient) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	db := c.pool()
	if db == nil {
		return nil, ErrNotConnected
	}
	return db.ExecContext(ctx, query, args...)
}

func (c *PostgresClient) pool() *sql.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}
