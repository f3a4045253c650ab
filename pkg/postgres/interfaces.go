package postgres

import (
	"context"
	"database/sql"
)

// Client is the Postgres access used by the render journal
type Client interface {
	Connect(ctx context.Context) error
	Disconnect() error

	// Exec runs a statement that returns no rows; ErrNotConnected before Connect
	Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error)

	IsConnected() bool

	// HealthCheck reports connectivity and whether the journal table exists
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}
