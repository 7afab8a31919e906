package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrLeaseLost is returned when settling a message the caller no longer
// holds: the lease expired and the message was reclaimed, or it was already
// settled.
var ErrLeaseLost = errors.New("lease lost")

// Message is a queued message as seen by a consumer.
type Message struct {
	ID         int64
	Queue      string
	Body       []byte
	EnqueuedAt time.Time
	ExpiresAt  time.Time // zero when the message never expires
	Deliveries int       // including the current one
}

// Redelivered reports whether the message was delivered before.
func (m Message) Redelivered() bool {
	return m.Deliveries > 1
}

// Depth summarizes a queue at one instant.
type Depth struct {
	Ready  int64 // waiting for a consumer
	Leased int64 // delivered and not yet settled
	Dead   int64 // dropped
}

// DeadLetter is a message settled with a drop.
type DeadLetter struct {
	ID         int64
	MessageID  int64
	Queue      string
	Body       []byte
	Reason     string
	Deliveries int
	DeadAt     time.Time
}

// Enqueue appends body to queue. A positive ttl discards the message if no
// consumer claims it before now+ttl.
func (s *Store) Enqueue(ctx context.Context, queue string, body []byte, now time.Time, ttl time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (queue, body, enqueued_at, expires_at)
		VALUES (?, ?, ?, ?)
	`, queue, body, millis(now), expiry(now, ttl))
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", queue, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: last insert id: %w", queue, err)
	}
	return id, nil
}

// Claim leases the oldest ready message of queue to owner until now+lease.
// Returns ok=false when the queue has nothing ready.
//
// Expired messages are discarded as a side effect.
func (s *Store) Claim(ctx context.Context, queue, owner string, now time.Time, lease time.Duration) (msg Message, ok bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, false, fmt.Errorf("claim %s: begin tx: %w", queue, err)
	}
	defer tx.Rollback()

	nowMS := millis(now)
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM messages
		WHERE queue = ? AND expires_at IS NOT NULL AND expires_at <= ?
		  AND (lease_owner IS NULL OR lease_until <= ?)
	`, queue, nowMS, nowMS); err != nil {
		return Message{}, false, fmt.Errorf("claim %s: discard expired: %w", queue, err)
	}

	var expires sql.NullInt64
	var enqueued int64
	err = tx.QueryRowContext(ctx, `
		SELECT id, body, enqueued_at, expires_at, deliveries
		FROM messages
		WHERE queue = ? AND (lease_owner IS NULL OR lease_until <= ?)
		ORDER BY id ASC
		LIMIT 1
	`, queue, nowMS).Scan(&msg.ID, &msg.Body, &enqueued, &expires, &msg.Deliveries)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, fmt.Errorf("claim %s: select: %w", queue, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE messages
		SET lease_owner = ?, lease_until = ?, deliveries = deliveries + 1
		WHERE id = ?
	`, owner, millis(now.Add(lease)), msg.ID); err != nil {
		return Message{}, false, fmt.Errorf("claim %s: lease: %w", queue, err)
	}

	if err := tx.Commit(); err != nil {
		return Message{}, false, fmt.Errorf("claim %s: commit: %w", queue, err)
	}

	msg.Queue = queue
	msg.EnqueuedAt = time.UnixMilli(enqueued)
	msg.ExpiresAt = fromMillis(expires)
	msg.Deliveries++
	return msg, true, nil
}

// Ack deletes a message held by owner.
func (s *Store) Ack(ctx context.Context, id int64, owner string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM messages WHERE id = ? AND lease_owner = ?
	`, id, owner)
	if err != nil {
		return fmt.Errorf("ack %d: %w", id, err)
	}
	return settled(res, "ack", id)
}

// Release clears owner's lease so the message is redelivered in its
// original position.
func (s *Store) Release(ctx context.Context, id int64, owner string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET lease_owner = NULL, lease_until = NULL
		WHERE id = ? AND lease_owner = ?
	`, id, owner)
	if err != nil {
		return fmt.Errorf("release %d: %w", id, err)
	}
	return settled(res, "release", id)
}

// DeadLetter moves a message held by owner to dead_letters with reason.
func (s *Store) DeadLetter(ctx context.Context, id int64, owner, reason string, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dead letter %d: begin tx: %w", id, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO dead_letters (message_id, queue, body, reason, deliveries, dead_at)
		SELECT id, queue, body, ?, deliveries, ?
		FROM messages WHERE id = ? AND lease_owner = ?
	`, reason, millis(now), id, owner)
	if err != nil {
		return fmt.Errorf("dead letter %d: insert: %w", id, err)
	}
	if err := settled(res, "dead letter", id); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("dead letter %d: delete: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dead letter %d: commit: %w", id, err)
	}
	return nil
}

// Purge deletes every message of queue, leased or not, and returns how many
// were removed.
func (s *Store) Purge(ctx context.Context, queue string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE queue = ?`, queue)
	if err != nil {
		return 0, fmt.Errorf("purge %s: %w", queue, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge %s: rows affected: %w", queue, err)
	}
	return n, nil
}

// Depth counts ready, leased and dead messages of queue at now. Expired
// messages that have not been discarded yet are not counted.
func (s *Store) Depth(ctx context.Context, queue string, now time.Time) (Depth, error) {
	var d Depth
	nowMS := millis(now)
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN lease_owner IS NULL OR lease_until <= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN lease_owner IS NOT NULL AND lease_until > ? THEN 1 ELSE 0 END), 0)
		FROM messages
		WHERE queue = ? AND (expires_at IS NULL OR expires_at > ? OR (lease_owner IS NOT NULL AND lease_until > ?))
	`, nowMS, nowMS, queue, nowMS, nowMS).Scan(&d.Ready, &d.Leased)
	if err != nil {
		return Depth{}, fmt.Errorf("depth %s: %w", queue, err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM dead_letters WHERE queue = ?
	`, queue).Scan(&d.Dead)
	if err != nil {
		return Depth{}, fmt.Errorf("depth %s: dead letters: %w", queue, err)
	}
	return d, nil
}

// DeadLetters returns up to limit dead letters of queue, oldest first.
// Returns empty slice (not nil) if there are none.
func (s *Store) DeadLetters(ctx context.Context, queue string, limit int) ([]DeadLetter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, queue, body, reason, deliveries, dead_at
		FROM dead_letters
		WHERE queue = ?
		ORDER BY id ASC
		LIMIT ?
	`, queue, limit)
	if err != nil {
		return nil, fmt.Errorf("query dead letters: %w", err)
	}
	defer rows.Close()

	letters := []DeadLetter{}
	for rows.Next() {
		var dl DeadLetter
		var deadAt int64
		if err := rows.Scan(&dl.ID, &dl.MessageID, &dl.Queue, &dl.Body, &dl.Reason, &dl.Deliveries, &deadAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		dl.DeadAt = time.UnixMilli(deadAt)
		letters = append(letters, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dead letters: %w", err)
	}
	return letters, nil
}

// settled maps a zero-row settlement to ErrLeaseLost.
func settled(res sql.Result, op string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %d: rows affected: %w", op, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", op, id, ErrLeaseLost)
	}
	return nil
}
