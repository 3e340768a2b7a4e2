package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cascadehub/notify/internal/logging"
)

// Service is the facade orchestrating the store and delivery engine for
// the two client-facing operations: create-and-send, and get-by-id.
type Service struct {
	store  Store
	queue  RetryQueue
	engine *Engine
	logger *logrus.Logger
}

// NewService builds the facade.
func NewService(store Store, queue RetryQueue, engine *Engine, logger *logrus.Logger) *Service {
	return &Service{store: store, queue: queue, engine: engine, logger: logger}
}

// CreateAndSend persists a pending notification, runs one synchronous
// delivery round, and returns the reloaded row with its attempts. On total
// failure it enqueues the first retry record before returning.
func (s *Service) CreateAndSend(ctx context.Context, req CreateRequest) (*Notification, error) {
	n, err := s.store.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	status, err := s.engine.Deliver(ctx, n, req.Channels)
	if err != nil {
		return nil, fmt.Errorf("deliver notification %s: %w", n.ID, err)
	}

	if status == StatusFailed {
		record := RetryRecord{NotificationID: n.ID, Channels: req.Channels, Attempt: 1}
		if err := s.queue.Enqueue(ctx, record); err != nil {
			// Logged, not raised: the notification remains failed in the
			// store and is simply lost from the retry pipeline.
			logging.Entry(s.logger, ctx).WithError(err).WithField("notification_id", n.ID).
				Error("failed to enqueue retry record after total delivery failure")
		}
	}

	return s.store.Load(ctx, n.ID)
}

// GetByID reads a notification with its attempts, or ErrNotFound.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Notification, error) {
	return s.store.Load(ctx, id)
}
