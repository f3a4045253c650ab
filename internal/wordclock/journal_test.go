package wordclock

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/jeeves-wordclock/pkg/postgres"
)

type execCall struct {
	query string
	args  []interface{}
}

type fakePostgres struct {
	mu      sync.Mutex
	calls   []execCall
	execErr error
	block   chan struct{}
}

func (f *fakePostgres) Connect(ctx context.Context) error { return nil }
func (f *fakePostgres) Disconnect() error                 { return nil }
func (f *fakePostgres) IsConnected() bool                 { return true }

func (f *fakePostgres) HealthCheck(ctx context.Context) (*postgres.HealthStatus, error) {
	return &postgres.HealthStatus{Connected: true}, nil
}

func (f *fakePostgres) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if f.block != nil && strings.Contains(query, "INSERT") {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, execCall{query: query, args: args})
	return nil, f.execErr
}

func (f *fakePostgres) inserts() []execCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []execCall
	for _, c := range f.calls {
		if strings.Contains(c.query, "INSERT") {
			out = append(out, c)
		}
	}
	return out
}

func TestPostgresJournal_RecordsEvents(t *testing.T) {
	db := &fakePostgres{}
	j, err := NewPostgresJournal(context.Background(), db, testLogger())
	require.NoError(t, err)
	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].query, "CREATE TABLE IF NOT EXISTS wordclock_renders")

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	j.Record(RenderEvent{Display: "hall", RenderedAt: at, Hour: 3, Minute: 4, Bucket: 5, Brightness: 0.5})
	j.Record(RenderEvent{Display: "hall", RenderedAt: at, Forced: true, Err: errDispatch})
	require.NoError(t, j.Close())

	inserts := db.inserts()
	require.Len(t, inserts, 2)

	ok := inserts[0].args
	assert.NotEqual(t, uuid.Nil, ok[0])
	assert.Equal(t, "hall", ok[1])
	assert.Equal(t, at, ok[2])
	assert.Equal(t, true, ok[8])
	assert.Nil(t, ok[9])

	failed := inserts[1].args
	assert.Equal(t, false, failed[8])
	require.NotNil(t, failed[9])
	assert.Equal(t, errDispatch.Error(), *failed[9].(*string))

	// recording after close is a no-op
	j.Record(RenderEvent{Display: "hall"})
	assert.Len(t, db.inserts(), 2)
}

func TestPostgresJournal_CreateTableFailure(t *testing.T) {
	db := &fakePostgres{execErr: errors.New("permission denied")}
	_, err := NewPostgresJournal(context.Background(), db, testLogger())
	assert.Error(t, err)
}

func TestPostgresJournal_DropsWhenFull(t *testing.T) {
	db := &fakePostgres{block: make(chan struct{})}
	j, err := NewPostgresJournal(context.Background(), db, testLogger())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < journalQueueSize*2; i++ {
			j.Record(RenderEvent{Display: "hall", Bucket: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	close(db.block)
	require.NoError(t, j.Close())

	n := len(db.inserts())
	assert.Less(t, n, journalQueueSize*2)
	assert.GreaterOrEqual(t, n, journalQueueSize)
}
