package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Slot is the current value of a named broadcast slot.
type Slot struct {
	Name        string
	Version     int64
	Payload     []byte
	PublishedAt time.Time
	ExpiresAt   time.Time // zero when the value never expires
}

// Live reports whether the slot value is still valid at now.
func (s Slot) Live(now time.Time) bool {
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// PutSlot replaces the value of slot name with payload. The new version is
// one more than any version the slot has held, including cleared values.
func (s *Store) PutSlot(ctx context.Context, name string, payload []byte, now time.Time, ttl time.Duration) (Slot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Slot{}, fmt.Errorf("put slot %s: begin tx: %w", name, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO slots (name, version, payload, published_at, expires_at)
		VALUES (?, 1, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			version      = version + 1,
			payload      = excluded.payload,
			published_at = excluded.published_at,
			expires_at   = excluded.expires_at
	`, name, payload, millis(now), expiry(now, ttl))
	if err != nil {
		return Slot{}, fmt.Errorf("put slot %s: upsert: %w", name, err)
	}

	var version int64
	if err := tx.QueryRowContext(ctx, `SELECT version FROM slots WHERE name = ?`, name).Scan(&version); err != nil {
		return Slot{}, fmt.Errorf("put slot %s: select version: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return Slot{}, fmt.Errorf("put slot %s: commit: %w", name, err)
	}

	return Slot{
		Name:        name,
		Version:     version,
		Payload:     payload,
		PublishedAt: time.UnixMilli(millis(now)),
		ExpiresAt:   fromMillis(expiry(now, ttl)),
	}, nil
}

// GetSlot returns the live value of slot name at now. Returns ok=false when
// the slot was never written, was cleared, or its value expired. Reading
// never modifies the slot.
func (s *Store) GetSlot(ctx context.Context, name string, now time.Time) (slot Slot, ok bool, err error) {
	var published int64
	var expires sql.NullInt64
	err = s.db.QueryRowContext(ctx, `
		SELECT version, payload, published_at, expires_at
		FROM slots
		WHERE name = ? AND payload IS NOT NULL
	`, name).Scan(&slot.Version, &slot.Payload, &published, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return Slot{}, false, nil
	}
	if err != nil {
		return Slot{}, false, fmt.Errorf("get slot %s: %w", name, err)
	}

	slot.Name = name
	slot.PublishedAt = time.UnixMilli(published)
	slot.ExpiresAt = fromMillis(expires)
	if !slot.Live(now) {
		return Slot{}, false, nil
	}
	return slot, true, nil
}

// ClearSlot removes the value of slot name. The version is kept.
func (s *Store) ClearSlot(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE slots SET payload = NULL, expires_at = NULL WHERE name = ?
	`, name)
	if err != nil {
		return fmt.Errorf("clear slot %s: %w", name, err)
	}
	return nil
}
