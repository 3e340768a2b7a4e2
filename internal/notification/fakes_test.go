package notification

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// fakeStore is an in-memory Store double shared by engine_test.go,
// worker_test.go, and service_test.go.
type fakeStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*Notification
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[uuid.UUID]*Notification)}
}

func (s *fakeStore) put(n *Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[n.ID] = n
}

func (s *fakeStore) Create(ctx context.Context, req CreateRequest) (*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := &Notification{
		ID:        uuid.New(),
		Recipient: req.Recipient,
		Message:   req.Message,
		Status:    StatusPending,
		Metadata:  req.Metadata,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	s.rows[n.ID] = n
	cp := *n
	return &cp, nil
}

func (s *fakeStore) Load(ctx context.Context, id uuid.UUID) (*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *n
	cp.Attempts = append([]Attempt(nil), n.Attempts...)
	return &cp, nil
}

func (s *fakeStore) AppendAttempt(ctx context.Context, id uuid.UUID, attempt Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	n.Attempts = append(n.Attempts, attempt)
	return nil
}

func (s *fakeStore) MarkSent(ctx context.Context, id uuid.UUID, channel Channel, attempt Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	n.Attempts = append(n.Attempts, attempt)
	n.Status = StatusSent
	n.ChannelUsed = &channel
	return nil
}

func (s *fakeStore) MarkFailed(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	if n.Status == StatusSent {
		return nil
	}
	n.Status = StatusFailed
	return nil
}

func (s *fakeStore) MarkPending(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	if n.Status == StatusSent {
		return nil
	}
	n.Status = StatusPending
	return nil
}

// fakeProvider lets each test script a fixed outcome per channel.
type fakeProvider struct {
	channel Channel
	result  SendResult
	calls   int
}

func (p *fakeProvider) ChannelTag() Channel { return p.channel }

func (p *fakeProvider) Send(ctx context.Context, recipient, body string) SendResult {
	p.calls++
	return p.result
}

// fakeQueue is an in-memory RetryQueue double.
type fakeQueue struct {
	mu       sync.Mutex
	enqueued []RetryRecord
}

func (q *fakeQueue) Enqueue(ctx context.Context, record RetryRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, record)
	return nil
}

func (q *fakeQueue) Read(ctx context.Context, consumer string, blockFor time.Duration) (*RetryMessage, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (q *fakeQueue) Ack(ctx context.Context, entryID string) error { return nil }

func (q *fakeQueue) Stats(ctx context.Context) (*QueueStats, error) {
	return &QueueStats{}, nil
}

func (q *fakeQueue) Close() error { return nil }

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
