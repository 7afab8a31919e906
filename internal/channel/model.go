package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/domain"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/store"
)

// DefaultModelTTL is how long a published model stays parked.
const DefaultModelTTL = 300000 * time.Millisecond

// ErrNoModel is returned by commands that need a parked model when none is.
// Peek itself reports an empty slot as (nil, nil).
var ErrNoModel = errors.New("no model parked")

// PeekEntry is a parked model together with its slot metadata.
type PeekEntry struct {
	Model       domain.Model
	Version     int64
	PublishedAt time.Time
	ExpiresAt   time.Time
}

// ModelSlot is the model distribution channel.
//
// Thread-safety: safe for concurrent use; all state lives in the store.
type ModelSlot struct {
	store  *store.Store
	name   string
	ttl    time.Duration
	clock  Clock
	logger *slog.Logger
}

// ModelSlotOption configures a ModelSlot.
type ModelSlotOption func(*ModelSlot)

// WithModelTTL sets the TTL applied on publish. Zero parks forever.
func WithModelTTL(ttl time.Duration) ModelSlotOption {
	return func(m *ModelSlot) { m.ttl = ttl }
}

// WithModelClock sets the clock used for TTLs.
func WithModelClock(c Clock) ModelSlotOption {
	return func(m *ModelSlot) { m.clock = c }
}

// WithModelLogger sets the logger.
func WithModelLogger(l *slog.Logger) ModelSlotOption {
	return func(m *ModelSlot) { m.logger = l }
}

// NewModelSlot returns the model channel stored under name.
func NewModelSlot(s *store.Store, name string, opts ...ModelSlotOption) *ModelSlot {
	m := &ModelSlot{
		store:  s,
		name:   name,
		ttl:    DefaultModelTTL,
		clock:  SystemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("queue", name)
	return m
}

// Name returns the channel name.
func (m *ModelSlot) Name() string { return m.name }

// Publish parks model, replacing whatever was parked. Clearing the previous
// model is best-effort: a failure is logged and the new model is still
// written.
func (m *ModelSlot) Publish(ctx context.Context, model domain.Model) (PeekEntry, error) {
	payload, err := domain.Encode(model)
	if err != nil {
		return PeekEntry{}, &domain.PublishError{Channel: m.name, Err: err}
	}

	if err := m.store.ClearSlot(ctx, m.name); err != nil {
		m.logger.Warn("failed to clear parked model", "error", err)
	}

	slot, err := m.store.PutSlot(ctx, m.name, payload, m.clock.Now(), m.ttl)
	if err != nil {
		return PeekEntry{}, &domain.PublishError{Channel: m.name, Err: err}
	}

	m.logger.Info("model published",
		"model_id", model.ID,
		"version", slot.Version,
		"ttl", m.ttl,
	)
	return PeekEntry{
		Model:       model,
		Version:     slot.Version,
		PublishedAt: slot.PublishedAt,
		ExpiresAt:   slot.ExpiresAt,
	}, nil
}

// Peek returns a copy of the parked model without removing it, or nil when
// nothing is parked or the parked model has expired.
func (m *ModelSlot) Peek(ctx context.Context) (*domain.Model, error) {
	e, err := m.PeekEntry(ctx)
	if err != nil || e == nil {
		return nil, err
	}
	return &e.Model, nil
}

// PeekEntry is Peek with slot metadata.
func (m *ModelSlot) PeekEntry(ctx context.Context) (*PeekEntry, error) {
	slot, ok, err := m.store.GetSlot(ctx, m.name, m.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("peek %s: %w", m.name, err)
	}
	if !ok {
		return nil, nil
	}

	model, err := domain.DecodeModel(slot.Payload)
	if err != nil {
		return nil, fmt.Errorf("peek %s: %w", m.name, err)
	}
	return &PeekEntry{
		Model:       model,
		Version:     slot.Version,
		PublishedAt: slot.PublishedAt,
		ExpiresAt:   slot.ExpiresAt,
	}, nil
}

// Clear removes the parked model.
func (m *ModelSlot) Clear(ctx context.Context) error {
	return m.store.ClearSlot(ctx, m.name)
}
