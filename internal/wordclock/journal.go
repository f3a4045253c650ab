package wordclock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saaga0h/jeeves-wordclock/pkg/postgres"
)

// RenderEvent describes one dispatch attempt
type RenderEvent struct {
	ID         uuid.UUID
	Display    string
	RenderedAt time.Time
	Hour       int
	Minute     int
	Bucket     int
	Brightness float64
	Forced     bool
	Err        error
}

// Journal records render events. Record must not block the caller.
type Journal interface {
	Record(ev RenderEvent)
	Close() error
}

// NopJournal discards events
type NopJournal struct{}

func (NopJournal) Record(RenderEvent) {}
func (NopJournal) Close() error       { return nil }

const createRendersTable = `
CREATE TABLE IF NOT EXISTS wordclock_renders (
	id          UUID PRIMARY KEY,
	display     TEXT NOT NULL,
	rendered_at TIMESTAMPTZ NOT NULL,
	hour        SMALLINT NOT NULL,
	minute      SMALLINT NOT NULL,
	bucket      SMALLINT NOT NULL,
	brightness  DOUBLE PRECISION NOT NULL,
	forced      BOOLEAN NOT NULL,
	success     BOOLEAN NOT NULL,
	error       TEXT
)`

const insertRender = `
INSERT INTO wordclock_renders
	(id, display, rendered_at, hour, minute, bucket, brightness, forced, success, error)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// journalQueueSize bounds the events waiting for the writer
const journalQueueSize = 64

// PostgresJournal writes events to wordclock_renders from a background goroutine
type PostgresJournal struct {
	db     postgres.Client
	logger *slog.Logger
	events chan RenderEvent
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPostgresJournal ensures the table exists and starts the writer
func NewPostgresJournal(ctx context.Context, db postgres.Client, logger *slog.Logger) (*PostgresJournal, error) {
	if _, err := db.Exec(ctx, createRendersTable); err != nil {
		return nil, fmt.Errorf("failed to create wordclock_renders: %w", err)
	}

	j := &PostgresJournal{
		db:     db,
		logger: logger,
		events: make(chan RenderEvent, journalQueueSize),
	}
	j.wg.Add(1)
	go j.run()
	return j, nil
}

// Record queues an event, dropping it when the writer is behind
func (j *PostgresJournal) Record(ev RenderEvent) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}

	select {
	case j.events <- ev:
	default:
		j.logger.Warn("Render journal queue full, dropping event", "display", ev.Display, "bucket", ev.Bucket)
	}
}

func (j *PostgresJournal) run() {
	defer j.wg.Done()
	for ev := range j.events {
		var errText *string
		if ev.Err != nil {
			s := ev.Err.Error()
			errText = &s
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := j.db.Exec(ctx, insertRender,
			ev.ID, ev.Display, ev.RenderedAt, ev.Hour, ev.Minute, ev.Bucket,
			ev.Brightness, ev.Forced, ev.Err == nil, errText)
		cancel()
		if err != nil {
			j.logger.Error("Failed to record render event", "display", ev.Display, "error", err)
		}
	}
}

// Close drains queued events and stops the writer
func (j *PostgresJournal) Close() error {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.events)
	}
	j.mu.Unlock()

	j.wg.Wait()
	return nil
}
