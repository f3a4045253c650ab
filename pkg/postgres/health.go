package postgres

import (
	"context"
	"fmt"
	"time"
)

// HealthStatus describes the journal database
type HealthStatus struct {
	Connected     bool      `json:"connected"`
	Database      string    `json:"database"`
	ServerVersion string    `json:"server_version,omitempty"`
	JournalReady  bool      `json:"journal_ready"`
	Error         string    `json:"error,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}

// HealthCheck pings the database and reports whether the render journal
// table exists. Problems are reported in the status, not as an error.
func (c *PostgresClient) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	status := &HealthStatus{
		Database:  c.config.PostgresDB,
		CheckedAt: time.Now(),
	}

	db := c.pool()
	if db == nil {
		status.Error = "not connected"
		return status, nil
	}

	if err := db.PingContext(ctx); err != nil {
		status.Error = fmt.Sprintf("ping failed: %v", err)
		return status, nil
	}
	status.Connected = true

	var table *string
	row := db.QueryRowContext(ctx, "SELECT version(), to_regclass('wordclock_renders')::text")
	if err := row.Scan(&status.ServerVersion, &table); err != nil {
		status.Error = fmt.Sprintf("failed to inspect server: %v", err)
		return status, nil
	}
	status.JournalReady = table != nil

	return status, nil
}
