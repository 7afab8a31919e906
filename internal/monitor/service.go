package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/channel"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/domain"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/store"
)

// DefaultInterval is the depth polling period.
const DefaultInterval = 2 * time.Second

// ResultSource delivers result messages. Implemented by *channel.Queue.
type ResultSource interface {
	Consume(ctx context.Context, tag string, handler channel.Handler) error
}

// DepthSource reports the depth of one queue. Implemented by *channel.Queue.
type DepthSource interface {
	Name() string
	Depth(ctx context.Context) (store.Depth, error)
}

// Service feeds an Aggregator from the results queue and queue depths.
type Service struct {
	agg      *Aggregator
	results  ResultSource
	queues   []DepthSource
	tag      string
	interval time.Duration
	onTick   func(Summary)
	logger   *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithInterval sets the depth polling period.
func WithInterval(d time.Duration) ServiceOption {
	return func(s *Service) { s.interval = d }
}

// WithConsumerTag sets the lease owner used on the results queue.
func WithConsumerTag(tag string) ServiceOption {
	return func(s *Service) { s.tag = tag }
}

// OnTick registers fn to receive a snapshot after every depth poll.
func OnTick(fn func(Summary)) ServiceOption {
	return func(s *Service) { s.onTick = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates a service that records results from results and polls
// the depth of each of queues.
func NewService(agg *Aggregator, results ResultSource, queues []DepthSource, opts ...ServiceOption) *Service {
	s := &Service{
		agg:      agg,
		results:  results,
		queues:   queues,
		interval: DefaultInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tag == "" {
		s.tag = domain.ShortIDGenerator{Prefix: "monitor_"}.Generate()
	}
	s.logger = s.logger.With("component", "monitor", "consumer", s.tag)
	return s
}

// Run consumes results and polls depths until ctx is cancelled.
// Returns nil on cancellation.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.results.Consume(gctx, s.tag, s.handle)
	})
	g.Go(func() error {
		return s.poll(gctx)
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func (s *Service) handle(_ context.Context, d channel.Delivery) {
	r, err := domain.DecodeResult(d.Body())
	if err != nil {
		s.logger.Warn("dropping undecodable result", "error", err)
		s.agg.Reject()
		if err := d.Drop(err.Error()); err != nil {
			s.logger.Error("drop failed", "error", err)
		}
		return
	}
	s.agg.Record(r)
	if err := d.Ack(); err != nil {
		s.logger.Error("ack failed", "scenario_id", r.ScenarioID, "error", err)
	}
}

func (s *Service) poll(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.PollDepths(ctx)
		if s.onTick != nil {
			s.onTick(s.agg.Snapshot())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PollDepths refreshes every queue depth once. Failures are logged and the
// previous depth is kept.
func (s *Service) PollDepths(ctx context.Context) {
	for _, q := range s.queues {
		d, err := q.Depth(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error("queue depth failed", "queue", q.Name(), "error", err)
			}
			continue
		}
		s.agg.SetDepth(q.Name(), d)
	}
}
