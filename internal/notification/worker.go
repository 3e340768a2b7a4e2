package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// errExceptionDuringProcessing marks a processing failure that must not be
// acked: the message becomes a pending entry the consumer group can
// redeliver.
type errExceptionDuringProcessing struct{ cause error }

func (e *errExceptionDuringProcessing) Error() string { return e.cause.Error() }
func (e *errExceptionDuringProcessing) Unwrap() error { return e.cause }

// Worker is the long-running retry consumer. One Worker is one competing
// consumer; run several against the same stream and group to scale out,
// since consumer-group semantics already guarantee each message reaches
// exactly one live consumer at a time.
type Worker struct {
	queue      RetryQueue
	store      Store
	engine     *Engine
	maxAttempt int
	backoff    func(attempt int) time.Duration
	consumer   string
	logger     *logrus.Logger
}

// NewWorker builds a retry worker bound to a unique consumer name.
func NewWorker(queue RetryQueue, store Store, engine *Engine, maxAttempt int, backoff func(int) time.Duration, logger *logrus.Logger) *Worker {
	return &Worker{
		queue:      queue,
		store:      store,
		engine:     engine,
		maxAttempt: maxAttempt,
		backoff:    backoff,
		consumer:   fmt.Sprintf("worker-%s", uuid.New().String()[:8]),
		logger:     logger,
	}
}

// Run blocks, processing retry records until ctx is cancelled. Cancellation
// is checked between reads, and ctx is also passed to the in-flight
// message's backoff sleep and its store, provider and queue calls; a message
// whose processing fails because of the cancellation is left unacked.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.WithField("consumer", w.consumer).Info("retry worker starting")

	for {
		select {
		case <-ctx.Done():
			w.logger.WithField("consumer", w.consumer).Info("retry worker shutting down")
			return ctx.Err()
		default:
		}

		msg, err := w.queue.Read(ctx, w.consumer, 1*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.WithError(err).Error("retry queue read failed")
			sleep(ctx, 1*time.Second)
			continue
		}
		if msg == nil {
			continue
		}

		if err := w.process(ctx, msg.Record); err != nil {
			w.logger.WithError(err).WithField("notification_id", msg.Record.NotificationID).
				Error("retry processing failed, leaving unacked for redelivery")
			sleep(ctx, 1*time.Second)
			continue
		}

		if err := w.queue.Ack(ctx, msg.EntryID); err != nil {
			w.logger.WithError(err).WithField("notification_id", msg.Record.NotificationID).
				Error("failed to ack retry message")
		}
	}
}

// process runs one retry round for a single record.
func (w *Worker) process(ctx context.Context, record RetryRecord) error {
	delay := w.backoff(record.Attempt)
	sleep(ctx, delay)

	n, err := w.store.Load(ctx, record.NotificationID)
	if err != nil {
		if err == ErrNotFound {
			w.logger.WithField("notification_id", record.NotificationID).Warn("retry target no longer exists, dropping")
			return nil
		}
		return &errExceptionDuringProcessing{cause: fmt.Errorf("load notification: %w", err)}
	}

	if n.Status == StatusSent {
		w.logger.WithField("notification_id", n.ID).Debug("notification already sent, dropping retry")
		return nil
	}

	if err := w.store.MarkPending(ctx, n.ID); err != nil {
		return &errExceptionDuringProcessing{cause: fmt.Errorf("mark pending: %w", err)}
	}
	n.Status = StatusPending

	status, err := w.engine.Deliver(ctx, n, record.Channels)
	if err != nil {
		return &errExceptionDuringProcessing{cause: fmt.Errorf("deliver: %w", err)}
	}

	if status == StatusFailed && record.Attempt < w.maxAttempt {
		next := RetryRecord{
			NotificationID: n.ID,
			Channels:       record.Channels,
			Attempt:        record.Attempt + 1,
		}
		if err := w.queue.Enqueue(ctx, next); err != nil {
			// Logged, not raised: the notification stays failed in the
			// store but drops out of the retry pipeline.
			w.logger.WithError(err).WithField("notification_id", n.ID).
				Error("failed to enqueue next retry record")
		}
	}

	return nil
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
