package notification

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const initSchema = `
CREATE TABLE notifications (
    id           UUID PRIMARY KEY,
    recipient    TEXT NOT NULL,
    message      TEXT NOT NULL,
    status       TEXT NOT NULL DEFAULT 'pending',
    channel_used TEXT,
    idempotency_key TEXT UNIQUE,
    metadata     JSONB NOT NULL DEFAULT '{}',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE notification_attempts (
    id              BIGSERIAL PRIMARY KEY,
    notification_id UUID NOT NULL REFERENCES notifications (id) ON DELETE CASCADE,
    channel         TEXT NOT NULL,
    timestamp       TIMESTAMPTZ NOT NULL DEFAULT now(),
    success         BOOLEAN NOT NULL,
    error_message   TEXT,
    duration_ms     BIGINT NOT NULL DEFAULT 0
);
`

// startPostgresContainer starts a disposable Postgres instance and applies
// the notification schema, mirroring the Redis container helper's shape.
func startPostgresContainer(ctx context.Context) (db *sql.DB, terminate func(), err error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "notify",
			"POSTGRES_PASSWORD": "notify",
			"POSTGRES_DB":       "notify",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, nil, err
	}
	terminate = func() { _ = container.Terminate(ctx) }

	host, err := container.Host(ctx)
	if err != nil {
		terminate()
		return nil, nil, err
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		terminate()
		return nil, nil, err
	}

	dsn := fmt.Sprintf("postgres://notify:notify@%s:%s/notify?sslmode=disable", host, port.Port())

	db, err = sql.Open("postgres", dsn)
	if err != nil {
		terminate()
		return nil, nil, err
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		if pingErr := db.Ping(); pingErr == nil {
			break
		} else if time.Now().After(deadline) {
			terminate()
			return nil, nil, fmt.Errorf("postgres never became ready: %w", pingErr)
		}
		time.Sleep(200 * time.Millisecond)
	}

	if _, err := db.ExecContext(ctx, initSchema); err != nil {
		terminate()
		return nil, nil, fmt.Errorf("apply schema: %w", err)
	}

	return db, terminate, nil
}

func TestPostgresStore_CreateLoadAppendMarkSent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, terminate, err := startPostgresContainer(ctx)
	require.NoError(t, err)
	defer terminate()
	defer func() { _ = db.Close() }()

	store := NewPostgresStore(db)

	n, err := store.Create(ctx, CreateRequest{
		Recipient: "a@example.com",
		Message:   "hello",
		Metadata:  map[string]string{"source": "integration-test"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, n.Status)

	require.NoError(t, store.AppendAttempt(ctx, n.ID, Attempt{
		Channel:      ChannelEmail,
		Timestamp:    time.Now().UTC(),
		Success:      false,
		ErrorMessage: Ptr("smtp down"),
		DurationMs:   12,
	}))

	require.NoError(t, store.MarkSent(ctx, n.ID, ChannelSMS, Attempt{
		Channel:    ChannelSMS,
		Timestamp:  time.Now().UTC(),
		Success:    true,
		DurationMs: 7,
	}))

	loaded, err := store.Load(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, loaded.Status)
	require.NotNil(t, loaded.ChannelUsed)
	assert.Equal(t, ChannelSMS, *loaded.ChannelUsed)
	require.Len(t, loaded.Attempts, 2)
	assert.False(t, loaded.Attempts[0].Success)
	assert.True(t, loaded.Attempts[1].Success)
	assert.Equal(t, "integration-test", loaded.Metadata["source"])
}

func TestPostgresStore_MarkFailedAndMarkPendingRefuseToDowngradeSent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, terminate, err := startPostgresContainer(ctx)
	require.NoError(t, err)
	defer terminate()
	defer func() { _ = db.Close() }()

	store := NewPostgresStore(db)

	n, err := store.Create(ctx, CreateRequest{Recipient: "a@example.com", Message: "hello"})
	require.NoError(t, err)

	require.NoError(t, store.MarkSent(ctx, n.ID, ChannelEmail, Attempt{
		Channel:   ChannelEmail,
		Timestamp: time.Now().UTC(),
		Success:   true,
	}))

	require.NoError(t, store.MarkFailed(ctx, n.ID))
	loaded, err := store.Load(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, loaded.Status)

	require.NoError(t, store.MarkPending(ctx, n.ID))
	loaded, err = store.Load(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, loaded.Status)
}

func TestPostgresStore_CreateRejectsDuplicateIdempotencyKey(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, terminate, err := startPostgresContainer(ctx)
	require.NoError(t, err)
	defer terminate()
	defer func() { _ = db.Close() }()

	store := NewPostgresStore(db)
	key := "idem-key-1"

	_, err = store.Create(ctx, CreateRequest{Recipient: "a@example.com", Message: "hi", IdempotencyKey: &key})
	require.NoError(t, err)

	_, err = store.Create(ctx, CreateRequest{Recipient: "a@example.com", Message: "hi again", IdempotencyKey: &key})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPostgresStore_LoadMissingReturnsNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, terminate, err := startPostgresContainer(ctx)
	require.NoError(t, err)
	defer terminate()
	defer func() { _ = db.Close() }()

	store := NewPostgresStore(db)
	_, err = store.Load(ctx, uuid.MustParse("00000000-0000-0000-0000-000000000000"))
	assert.ErrorIs(t, err, ErrNotFound)
}
