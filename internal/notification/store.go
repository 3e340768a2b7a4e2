package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ErrConflict is returned when a CreateRequest's idempotency key collides
// with an existing notification.
var ErrConflict = errors.New("notification: idempotency key conflict")

// ErrNotFound is returned when a notification does not exist.
var ErrNotFound = errors.New("notification: not found")

// Store is the audit-trail persistence layer. Every status transition that
// pairs with a delivery attempt is committed in one transaction, so a
// reader observing Status == StatusSent always also observes the Attempt
// that succeeded.
type Store interface {
	// Create inserts a new pending notification. If req.IdempotencyKey is
	// set and already present, Create returns ErrConflict.
	Create(ctx context.Context, req CreateRequest) (*Notification, error)

	// Load fetches a notification together with its attempts, ordered by
	// insertion.
	Load(ctx context.Context, id uuid.UUID) (*Notification, error)

	// AppendAttempt records one provider invocation without changing the
	// notification's status.
	AppendAttempt(ctx context.Context, id uuid.UUID, attempt Attempt) error

	// MarkSent records the successful attempt and transitions the
	// notification to sent in a single transaction.
	MarkSent(ctx context.Context, id uuid.UUID, channel Channel, attempt Attempt) error

	// MarkFailed transitions the notification to failed at the end of a
	// delivery round in which every channel failed. A sent notification is
	// left as it is.
	MarkFailed(ctx context.Context, id uuid.UUID) error

	// MarkPending transitions a failed notification back to pending ahead
	// of a retry round.
	MarkPending(ctx context.Context, id uuid.UUID) error
}

// PostgresStore implements Store over database/sql with the lib/pq driver.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open *sql.DB.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, req CreateRequest) (*Notification, error) {
	id := uuid.New()
	now := time.Now().UTC()

	metadataJSON, err := json.Marshal(req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	const query = `
		INSERT INTO notifications (id, recipient, message, status, metadata, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.db.ExecContext(ctx, query,
		id, req.Recipient, req.Message, StatusPending, metadataJSON, req.IdempotencyKey, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert notification: %w", err)
	}

	return &Notification{
		ID:        id,
		Recipient: req.Recipient,
		Message:   req.Message,
		Status:    StatusPending,
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, id uuid.UUID) (*Notification, error) {
	const query = `
		SELECT id, recipient, message, status, channel_used, metadata, created_at, updated_at
		FROM notifications
		WHERE id = $1
	`

	var n Notification
	var channelUsed sql.NullString
	var metadataJSON []byte

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&n.ID, &n.Recipient, &n.Message, &n.Status, &channelUsed, &metadataJSON, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load notification: %w", err)
	}
	if channelUsed.Valid {
		ch := Channel(channelUsed.String)
		n.ChannelUsed = &ch
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &n.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	attempts, err := s.loadAttempts(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	n.Attempts = attempts

	return &n, nil
}

func (s *PostgresStore) loadAttempts(ctx context.Context, q queryer, id uuid.UUID) ([]Attempt, error) {
	const query = `
		SELECT id, notification_id, channel, timestamp, success, error_message, duration_ms
		FROM notification_attempts
		WHERE notification_id = $1
		ORDER BY id ASC
	`
	rows, err := q.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("load attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.NotificationID, &a.Channel, &a.Timestamp, &a.Success, &a.ErrorMessage, &a.DurationMs); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

// AppendAttempt implements Store.
func (s *PostgresStore) AppendAttempt(ctx context.Context, id uuid.UUID, attempt Attempt) error {
	return insertAttempt(ctx, s.db, id, attempt)
}

// MarkSent implements Store.
func (s *PostgresStore) MarkSent(ctx context.Context, id uuid.UUID, channel Channel, attempt Attempt) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertAttempt(ctx, tx, id, attempt); err != nil {
		return err
	}

	const query = `
		UPDATE notifications
		SET status = $2, channel_used = $3, updated_at = $4
		WHERE id = $1
	`
	res, err := tx.ExecContext(ctx, query, id, StatusSent, channel, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	return tx.Commit()
}

// MarkFailed implements Store.
func (s *PostgresStore) MarkFailed(ctx context.Context, id uuid.UUID) error {
	return s.setStatus(ctx, id, StatusFailed)
}

// MarkPending implements Store.
func (s *PostgresStore) MarkPending(ctx context.Context, id uuid.UUID) error {
	return s.setStatus(ctx, id, StatusPending)
}

// setStatus transitions id to status, refusing to move a notification out of
// sent (Data Model Invariant 5: a sent notification never transitions back).
// A concurrent MarkSent racing this call must win, so the guard lives in the
// UPDATE itself rather than in a prior read.
func (s *PostgresStore) setStatus(ctx context.Context, id uuid.UUID, status Status) error {
	const query = `
		UPDATE notifications
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status <> $4
	`
	res, err := s.db.ExecContext(ctx, query, id, status, time.Now().UTC(), StatusSent)
	if err != nil {
		return fmt.Errorf("update status to %s: %w", status, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// Zero rows means either the notification doesn't exist, or it does
	// and the guard correctly refused to downgrade it out of sent. Tell
	// those apart so the already-sent case can be treated as a no-op
	// instead of a false ErrNotFound.
	var current Status
	err = s.db.QueryRowContext(ctx, `SELECT status FROM notifications WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check status after no-op update: %w", err)
	}
	if current == StatusSent {
		return nil
	}
	return ErrNotFound
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertAttempt(ctx context.Context, e execer, id uuid.UUID, attempt Attempt) error {
	const query = `
		INSERT INTO notification_attempts (notification_id, channel, timestamp, success, error_message, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := e.ExecContext(ctx, query, id, attempt.Channel, attempt.Timestamp, attempt.Success, attempt.ErrorMessage, attempt.DurationMs)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func requireRow(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation
// (code 23505), the only constraint the notifications table enforces
// beyond its primary key.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
