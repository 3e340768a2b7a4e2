// Package notification implements the cascading delivery engine and durable
// retry pipeline described by the service's design: a notification carries
// an ordered channel preference list, the engine attempts each channel in
// turn until one succeeds, and total failure enqueues a retry record that a
// worker pool drains with exponential backoff up to a configured cap.
//
// Architecture:
//
//	Facade → Engine → Provider (email/sms/telegram)
//	   ↓         ↓
//	 Store    Retry Queue (Redis stream) → Worker → Engine (retry mode)
package notification

import (
	"time"

	"github.com/google/uuid"
)

// Channel is a logical delivery route bound to one Provider.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelTelegram Channel = "telegram"
)

// Status is the lifecycle state of a Notification.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Notification is one persisted client request, mutated only by the
// delivery engine and the retry worker; never deleted by the core.
type Notification struct {
	ID           uuid.UUID         `json:"id" db:"id"`
	Recipient    string            `json:"recipient" db:"recipient"`
	Message      string            `json:"message" db:"message"`
	Status       Status            `json:"status" db:"status"`
	ChannelUsed  *Channel          `json:"channel_used" db:"channel_used"`
	Metadata     map[string]string `json:"metadata" db:"metadata"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at" db:"updated_at"`
	Attempts     []Attempt         `json:"attempts"`
}

// Attempt is one append-only record of a single provider invocation,
// ordered by insertion.
type Attempt struct {
	ID             int64     `json:"-" db:"id"`
	NotificationID uuid.UUID `json:"-" db:"notification_id"`
	Channel        Channel   `json:"channel" db:"channel"`
	Timestamp      time.Time `json:"timestamp" db:"timestamp"`
	Success        bool      `json:"success" db:"success"`
	ErrorMessage   *string   `json:"error_message" db:"error_message"`
	DurationMs     int64     `json:"duration_ms" db:"duration_ms"`
}

// RetryRecord is a message inside the durable retry queue.
type RetryRecord struct {
	NotificationID uuid.UUID `json:"notification_id"`
	Channels       []Channel `json:"channels"`
	Attempt        int       `json:"attempt"`
}

// CreateRequest is used by the service facade to create a notification.
// IdempotencyKey is optional; when set, Create rejects a second request
// bearing the same key.
type CreateRequest struct {
	Recipient      string
	Message        string
	Channels       []Channel
	Metadata       map[string]string
	IdempotencyKey *string
}

// SendResult is returned by a Provider after attempting delivery.
type SendResult struct {
	Success bool
	Cause   error // opaque to the engine; stringified into Attempt.ErrorMessage
}

// Ptr is a small helper for building pointer fields in tests and handlers.
func Ptr[T any](v T) *T { return &v }
