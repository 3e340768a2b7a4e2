package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RetryMessage pairs a RetryRecord with the Redis stream entry ID needed to
// acknowledge it once the retry round finishes.
type RetryMessage struct {
	EntryID string
	Record  RetryRecord
}

// RetryQueue is the durable at-least-once retry queue. It is backed by a
// Redis stream and consumer group: an entry a crashed worker never
// acknowledged stays in the group's pending entries list instead of being
// lost, which a plain sorted set can't express but a consumer group can.
// Read does not reclaim such entries.
type RetryQueue interface {
	// Enqueue appends a retry record to the stream.
	Enqueue(ctx context.Context, record RetryRecord) error

	// Read blocks for up to blockFor for the next undelivered message in
	// the consumer group, returning nil, nil on timeout.
	Read(ctx context.Context, consumerName string, blockFor time.Duration) (*RetryMessage, error)

	// Ack acknowledges a successfully processed stream entry.
	Ack(ctx context.Context, entryID string) error

	// Stats reports the queue's current backlog for observability.
	Stats(ctx context.Context) (*QueueStats, error)

	// Close releases the underlying client.
	Close() error
}

// QueueStats holds retry queue statistics.
type QueueStats struct {
	StreamLength int64 `json:"stream_length"`
	PendingCount int64 `json:"pending_count"`
}

const retryField = "payload"

// RedisStreamQueue implements RetryQueue over a Redis stream consumer group.
type RedisStreamQueue struct {
	client      *redis.Client
	stream      string
	consumerGrp string
}

// NewRedisStreamQueue parses a redis:// URL and pings the server once at
// construction.
func NewRedisStreamQueue(redisURL, stream, consumerGroup string) (*RedisStreamQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	q := &RedisStreamQueue{client: client, stream: stream, consumerGrp: consumerGroup}
	if err := q.ensureGroup(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

// ensureGroup creates the consumer group idempotently. XGROUP CREATE with
// MKSTREAM both creates the stream if absent and is safe to call on every
// startup: a BUSYGROUP reply just means the group already exists.
func (q *RedisStreamQueue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.consumerGrp, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Enqueue implements RetryQueue.
func (q *RedisStreamQueue) Enqueue(ctx context.Context, record RetryRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal retry record: %w", err)
	}

	err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{retryField: payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd: %w", err)
	}
	return nil
}

// Read implements RetryQueue. It blocks for up to blockFor waiting for a new
// message; undelivered messages claimed by a dead consumer are not
// reclaimed here — that is the worker pool's XCLAIM sweep, left for a
// future iteration (see DESIGN.md).
func (q *RedisStreamQueue) Read(ctx context.Context, consumerName string, blockFor time.Duration) (*RetryMessage, error) {
	res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.consumerGrp,
		Consumer: consumerName,
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    blockFor,
	}).Result()

	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return nil, nil
	}

	msg := res[0].Messages[0]
	raw, ok := msg.Values[retryField].(string)
	if !ok {
		return nil, fmt.Errorf("retry message %s missing %s field", msg.ID, retryField)
	}

	var record RetryRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("unmarshal retry record %s: %w", msg.ID, err)
	}

	return &RetryMessage{EntryID: msg.ID, Record: record}, nil
}

// Ack implements RetryQueue.
func (q *RedisStreamQueue) Ack(ctx context.Context, entryID string) error {
	if err := q.client.XAck(ctx, q.stream, q.consumerGrp, entryID).Err(); err != nil {
		return fmt.Errorf("xack %s: %w", entryID, err)
	}
	return nil
}

// Stats implements RetryQueue.
func (q *RedisStreamQueue) Stats(ctx context.Context) (*QueueStats, error) {
	length, err := q.client.XLen(ctx, q.stream).Result()
	if err != nil {
		return nil, fmt.Errorf("xlen: %w", err)
	}

	pending, err := q.client.XPending(ctx, q.stream, q.consumerGrp).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xpending: %w", err)
	}
	var pendingCount int64
	if pending != nil {
		pendingCount = pending.Count
	}

	return &QueueStats{StreamLength: length, PendingCount: pendingCount}, nil
}

// Close implements RetryQueue.
func (q *RedisStreamQueue) Close() error {
	return q.client.Close()
}
