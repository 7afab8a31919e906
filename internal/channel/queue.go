package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/domain"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/store"
)

// Default queue names shared by producer, workers and monitor.
const (
	ScenarioQueue = "montecarlo_scenarios"
	ModelQueue    = "montecarlo_model"
	ResultQueue   = "montecarlo_results"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultLease        = 5 * time.Minute
)

// Handler processes one delivery. It should settle the delivery; a delivery
// left unsettled when the handler returns is requeued.
type Handler func(ctx context.Context, d Delivery)

// Delivery is one message handed to a consumer. Exactly one settlement
// takes effect; later calls return ErrAlreadySettled.
type Delivery interface {
	Body() []byte
	Redelivered() bool

	// Ack permanently removes the message.
	Ack() error
	// Requeue returns the message for redelivery to any consumer.
	Requeue() error
	// Drop permanently removes the message without processing it and
	// records reason with the dead letter.
	Drop(reason string) error
}

// ErrAlreadySettled is returned by a second settlement of one delivery.
var ErrAlreadySettled = errors.New("delivery already settled")

// Queue is a durable competing-consumers queue.
//
// Thread-safety: safe for concurrent use. Any number of goroutines may
// Publish and Consume; each Consume call has at most one delivery in flight.
type Queue struct {
	store        *store.Store
	name         string
	clock        Clock
	logger       *slog.Logger
	pollInterval time.Duration
	lease        time.Duration
	ttl          time.Duration

	// signal wakes local consumers after a publish or requeue (buffered, size 1)
	signal chan struct{}
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithPollInterval sets how often an idle consumer checks for messages.
func WithPollInterval(d time.Duration) QueueOption {
	return func(q *Queue) { q.pollInterval = d }
}

// WithLease sets how long a delivery may stay unsettled before the broker
// hands it to another consumer.
func WithLease(d time.Duration) QueueOption {
	return func(q *Queue) { q.lease = d }
}

// WithMessageTTL discards messages not claimed within d. Zero keeps them.
func WithMessageTTL(d time.Duration) QueueOption {
	return func(q *Queue) { q.ttl = d }
}

// WithClock sets the clock used for leases and expiry.
func WithClock(c Clock) QueueOption {
	return func(q *Queue) { q.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) QueueOption {
	return func(q *Queue) { q.logger = l }
}

// NewQueue returns the queue stored under name.
func NewQueue(s *store.Store, name string, opts ...QueueOption) *Queue {
	q := &Queue{
		store:        s,
		name:         name,
		clock:        SystemClock{},
		logger:       slog.Default(),
		pollInterval: DefaultPollInterval,
		lease:        DefaultLease,
		signal:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With("queue", name)
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Publish enqueues body. Failures are returned as *domain.PublishError.
func (q *Queue) Publish(ctx context.Context, body []byte) error {
	if _, err := q.store.Enqueue(ctx, q.name, body, q.clock.Now(), q.ttl); err != nil {
		return &domain.PublishError{Channel: q.name, Err: err}
	}
	q.notify()
	return nil
}

// PublishJSON encodes v and enqueues it.
func (q *Queue) PublishJSON(ctx context.Context, v any) error {
	body, err := domain.Encode(v)
	if err != nil {
		return &domain.PublishError{Channel: q.name, Err: err}
	}
	return q.Publish(ctx, body)
}

// PublishScenario enqueues a scenario.
func (q *Queue) PublishScenario(ctx context.Context, sc domain.Scenario) error {
	return q.PublishJSON(ctx, sc)
}

// PublishResult enqueues a result.
func (q *Queue) PublishResult(ctx context.Context, r domain.Result) error {
	return q.PublishJSON(ctx, r)
}

// Consume delivers messages to handler one at a time under the lease owner
// tag until ctx is cancelled, then returns ctx.Err().
//
// Claim errors are logged and retried after the poll interval. A settlement
// started before cancellation still completes.
func (q *Queue) Consume(ctx context.Context, tag string, handler Handler) error {
	logger := q.logger.With("consumer", tag)
	logger.Debug("consumer started")
	defer logger.Debug("consumer stopped")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, ok, err := q.store.Claim(ctx, q.name, tag, q.clock.Now(), q.lease)
		if err != nil && ctx.Err() == nil {
			logger.Error("claim failed", "error", err)
		}
		if err == nil && ok {
			q.deliver(ctx, logger, tag, msg, handler)
			continue
		}

		timer.Reset(q.pollInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.signal:
		case <-timer.C:
		}
	}
}

func (q *Queue) deliver(ctx context.Context, logger *slog.Logger, tag string, msg store.Message, handler Handler) {
	d := &delivery{
		ctx:    context.WithoutCancel(ctx),
		queue:  q,
		msg:    msg,
		owner:  tag,
		logger: logger,
	}

	handler(ctx, d)

	if !d.isSettled() {
		logger.Warn("delivery not settled by handler, requeueing", "message_id", msg.ID)
		if err := d.Requeue(); err != nil {
			logger.Error("requeue failed", "message_id", msg.ID, "error", err)
		}
	}
}

// Depth returns the ready, leased and dead counts.
func (q *Queue) Depth(ctx context.Context) (store.Depth, error) {
	return q.store.Depth(ctx, q.name, q.clock.Now())
}

// Purge removes every message and returns how many were removed.
func (q *Queue) Purge(ctx context.Context) (int64, error) {
	return q.store.Purge(ctx, q.name)
}

// DeadLetters returns up to limit dropped messages, oldest first.
func (q *Queue) DeadLetters(ctx context.Context, limit int) ([]store.DeadLetter, error) {
	return q.store.DeadLetters(ctx, q.name, limit)
}

// notify wakes one local consumer (non-blocking - buffer of 1 coalesces signals)
func (q *Queue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// delivery settles a claimed message through the store.
type delivery struct {
	ctx    context.Context
	queue  *Queue
	msg    store.Message
	owner  string
	logger *slog.Logger

	mu      sync.Mutex
	settled bool
}

func (d *delivery) Body() []byte      { return d.msg.Body }
func (d *delivery) Redelivered() bool { return d.msg.Redelivered() }

func (d *delivery) Ack() error {
	return d.settle("ack", func() error {
		return d.queue.store.Ack(d.ctx, d.msg.ID, d.owner)
	})
}

func (d *delivery) Requeue() error {
	return d.settle("requeue", func() error {
		if err := d.queue.store.Release(d.ctx, d.msg.ID, d.owner); err != nil {
			return err
		}
		d.queue.notify()
		return nil
	})
}

func (d *delivery) Drop(reason string) error {
	return d.settle("drop", func() error {
		return d.queue.store.DeadLetter(d.ctx, d.msg.ID, d.owner, reason, d.queue.clock.Now())
	})
}

// settle runs fn once. A failed settlement still counts: the lease expires
// and the broker redelivers.
func (d *delivery) settle(op string, fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.settled {
		return ErrAlreadySettled
	}
	d.settled = true

	if err := fn(); err != nil {
		return fmt.Errorf("%s message %d: %w", op, d.msg.ID, err)
	}
	d.logger.Debug("delivery settled", "op", op, "message_id", d.msg.ID)
	return nil
}

func (d *delivery) isSettled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settled
}
