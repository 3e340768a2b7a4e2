package notification

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startRedisContainer starts a disposable Redis instance for the retry
// queue's stream/consumer-group semantics to run against.
func startRedisContainer(ctx context.Context) (redisURL string, terminate func(), err error) {
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", nil, err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", nil, err
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		return "", nil, err
	}

	terminate = func() { _ = container.Terminate(ctx) }
	return fmt.Sprintf("redis://%s:%s/0", host, port.Port()), terminate, nil
}

func TestRedisStreamQueue_EnqueueReadAck(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	redisURL, terminate, err := startRedisContainer(ctx)
	require.NoError(t, err)
	defer terminate()

	queue, err := NewRedisStreamQueue(redisURL, "notification:retry:test", "notification-workers-test")
	require.NoError(t, err)
	defer func() { _ = queue.Close() }()

	record := RetryRecord{
		NotificationID: uuid.New(),
		Channels:       []Channel{ChannelEmail, ChannelSMS},
		Attempt:        1,
	}
	require.NoError(t, queue.Enqueue(ctx, record))

	msg, err := queue.Read(ctx, "consumer-a", 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, record.NotificationID, msg.Record.NotificationID)
	assert.Equal(t, record.Channels, msg.Record.Channels)

	stats, err := queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.StreamLength)
	assert.Equal(t, int64(1), stats.PendingCount)

	require.NoError(t, queue.Ack(ctx, msg.EntryID))

	stats, err = queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.PendingCount)
}

func TestRedisStreamQueue_ReadTimesOutWithNoMessages(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	redisURL, terminate, err := startRedisContainer(ctx)
	require.NoError(t, err)
	defer terminate()

	queue, err := NewRedisStreamQueue(redisURL, "notification:retry:empty", "notification-workers-empty")
	require.NoError(t, err)
	defer func() { _ = queue.Close() }()

	msg, err := queue.Read(ctx, "consumer-a", 200*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, msg)
}
