package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cascadehub/notify/internal/logging"
	"github.com/cascadehub/notify/internal/tracing"
)

// Engine drives a notification through its ordered channel list, appending
// one attempt per channel and terminating on first success.
type Engine struct {
	registry *Registry
	store    Store
	logger   *logrus.Logger
	attempts metric.Int64Counter
}

// NewEngine builds a delivery engine. The attempt counter records against
// whatever meter provider tracing.Setup installed; with tracing disabled
// this is the OpenTelemetry no-op meter and costs nothing.
func NewEngine(registry *Registry, store Store, logger *logrus.Logger) *Engine {
	counter, err := tracing.Meter("notify").Int64Counter(
		"notification_delivery_attempts_total",
		metric.WithDescription("provider send attempts by channel and outcome"),
	)
	if err != nil {
		logger.WithError(err).Warn("failed to create delivery attempt counter")
	}
	return &Engine{registry: registry, store: store, logger: logger, attempts: counter}
}

func (e *Engine) recordAttempt(ctx context.Context, channel Channel, success bool) {
	if e.attempts == nil {
		return
	}
	e.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", string(channel)),
		attribute.Bool("success", success),
	))
}

// Deliver runs one delivery round for notification over channels, in order,
// and returns the terminal status.
//
// On first success it records the success attempt and transitions the
// notification to sent. On total failure it records every failure attempt
// and transitions the notification to failed; enqueuing the retry record is
// the caller's responsibility (the service facade and the retry worker
// enqueue at different call sites with different channel sources).
func (e *Engine) Deliver(ctx context.Context, n *Notification, channels []Channel) (Status, error) {
	for _, channel := range channels {
		provider, ok := e.registry.Lookup(channel)
		if !ok {
			attempt := Attempt{
				NotificationID: n.ID,
				Channel:        channel,
				Timestamp:      time.Now().UTC(),
				Success:        false,
				ErrorMessage:   Ptr(fmt.Sprintf("no provider for %s", channel)),
			}
			if err := e.store.AppendAttempt(ctx, n.ID, attempt); err != nil {
				return "", fmt.Errorf("append attempt for unregistered channel %s: %w", channel, err)
			}
			n.Attempts = append(n.Attempts, attempt)
			continue
		}

		sendStart := time.Now()
		result := provider.Send(ctx, n.Recipient, n.Message)
		durationMs := time.Since(sendStart).Milliseconds()
		timestamp := time.Now().UTC()

		if result.Success {
			attempt := Attempt{
				NotificationID: n.ID,
				Channel:        channel,
				Timestamp:      timestamp,
				Success:        true,
				DurationMs:     durationMs,
			}
			if err := e.store.MarkSent(ctx, n.ID, channel, attempt); err != nil {
				return "", fmt.Errorf("mark sent via %s: %w", channel, err)
			}
			e.recordAttempt(ctx, channel, true)
			n.Attempts = append(n.Attempts, attempt)
			n.Status = StatusSent
			n.ChannelUsed = Ptr(channel)
			return StatusSent, nil
		}

		errMsg := "unknown provider error"
		if result.Cause != nil {
			errMsg = result.Cause.Error()
		}
		attempt := Attempt{
			NotificationID: n.ID,
			Channel:        channel,
			Timestamp:      timestamp,
			Success:        false,
			ErrorMessage:   Ptr(errMsg),
			DurationMs:     durationMs,
		}
		if err := e.store.AppendAttempt(ctx, n.ID, attempt); err != nil {
			return "", fmt.Errorf("append failure attempt for %s: %w", channel, err)
		}
		e.recordAttempt(ctx, channel, false)
		n.Attempts = append(n.Attempts, attempt)

		logging.Entry(e.logger, ctx).WithFields(logrus.Fields{
			"notification_id": n.ID,
			"channel":         channel,
			"duration_ms":     durationMs,
		}).Warn("provider send failed, cascading to next channel")
	}

	if err := e.store.MarkFailed(ctx, n.ID); err != nil {
		return "", fmt.Errorf("mark failed: %w", err)
	}
	n.Status = StatusFailed
	return StatusFailed, nil
}
