// Package producer publishes a model and floods the scenario channel with
// scenarios sampled from it.
package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/channel"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/domain"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/sampling"
)

// DefaultProgressEvery is how many scenarios pass between progress logs.
const DefaultProgressEvery = 100

// ErrNoModel is returned by GenerateAndPublish before a model is set.
var ErrNoModel = errors.New("no model loaded: publish a model first")

// ModelPublisher parks a model for workers. Implemented by *channel.ModelSlot.
type ModelPublisher interface {
	Publish(ctx context.Context, m domain.Model) (channel.PeekEntry, error)
}

// ScenarioPublisher enqueues scenarios. Implemented by *channel.Queue.
type ScenarioPublisher interface {
	PublishScenario(ctx context.Context, sc domain.Scenario) error
}

// SequenceStore persists the next scenario sequence number per model.
// Implemented by *store.Store.
type SequenceStore interface {
	NextSequence(ctx context.Context, modelID string) (int64, error)
	SaveSequence(ctx context.Context, modelID string, next int64) error
}

// BatchReport summarizes one GenerateAndPublish call.
type BatchReport struct {
	ModelID   string        `json:"model_id"`
	Requested int           `json:"requested"`
	Published int           `json:"published"`
	Failed    int           `json:"failed"`
	FirstSeq  int64         `json:"first_seq"`
	NextSeq   int64         `json:"next_seq"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

// Producer drives model publication and scenario generation.
//
// Thread-safety: methods are serialized on an internal mutex; publishing
// is single-threaded and synchronous.
type Producer struct {
	models        ModelPublisher
	scenarios     ScenarioPublisher
	seqs          SequenceStore
	seed          int64
	progressEvery int
	logger        *slog.Logger

	mu    sync.Mutex
	model *domain.Model
	gen   *sampling.Generator
}

// Option configures a Producer.
type Option func(*Producer)

// WithSeed makes sampling reproducible. Zero seeds randomly.
func WithSeed(seed int64) Option {
	return func(p *Producer) { p.seed = seed }
}

// WithProgressEvery sets the progress log interval in scenarios. Zero
// disables progress logs.
func WithProgressEvery(n int) Option {
	return func(p *Producer) { p.progressEvery = n }
}

// WithSequences persists scenario sequence numbers so ids stay unique
// across producer sessions for the same model.
func WithSequences(s SequenceStore) Option {
	return func(p *Producer) { p.seqs = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Producer) { p.logger = l }
}

// New creates a producer.
func New(models ModelPublisher, scenarios ScenarioPublisher, opts ...Option) *Producer {
	p := &Producer{
		models:        models,
		scenarios:     scenarios,
		progressEvery: DefaultProgressEvery,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "producer")
	return p
}

// PublishModel parks m on the model channel and makes it the model future
// scenarios are sampled from.
func (p *Producer) PublishModel(ctx context.Context, m domain.Model) (channel.PeekEntry, error) {
	if err := m.Validate(); err != nil {
		return channel.PeekEntry{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.useLocked(ctx, m); err != nil {
		return channel.PeekEntry{}, err
	}
	entry, err := p.models.Publish(ctx, m)
	if err != nil {
		p.model, p.gen = nil, nil
		return channel.PeekEntry{}, fmt.Errorf("publish model %s: %w", m.ID, err)
	}
	return entry, nil
}

// UseModel makes m the sampling model without publishing it, for a model
// that is already parked.
func (p *Producer) UseModel(ctx context.Context, m domain.Model) error {
	if err := m.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.useLocked(ctx, m)
}

func (p *Producer) useLocked(ctx context.Context, m domain.Model) error {
	var start int64
	if p.seqs != nil {
		next, err := p.seqs.NextSequence(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("load sequence for %s: %w", m.ID, err)
		}
		start = next
	}

	gen, err := sampling.NewGenerator(m, sampling.NewSource(p.seed, m.ID), start)
	if err != nil {
		return err
	}
	p.model = &m
	p.gen = gen
	return nil
}

// Model returns the current sampling model, or nil.
func (p *Producer) Model() *domain.Model {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return nil
	}
	m := *p.model
	return &m
}

// GenerateAndPublish samples and publishes count scenarios for the current
// model. A scenario that fails to generate or publish is logged and
// skipped; the batch continues. Cancelling ctx stops the batch early and
// returns the partial report with ctx.Err().
func (p *Producer) GenerateAndPublish(ctx context.Context, count int) (BatchReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.gen == nil {
		return BatchReport{}, ErrNoModel
	}

	began := time.Now()
	report := BatchReport{
		ModelID:   p.model.ID,
		Requested: count,
		FirstSeq:  p.gen.NextSeq(),
	}
	logger := p.logger.With("model_id", p.model.ID)
	logger.Info("generating scenarios", "count", count, "first_seq", report.FirstSeq)

	var err error
	for i := 0; i < count; i++ {
		if err = ctx.Err(); err != nil {
			logger.Warn("batch cancelled", "published", report.Published)
			break
		}

		sc, genErr := p.gen.Next()
		if genErr != nil {
			logger.Error("scenario generation failed, skipping", "error", genErr)
			report.Failed++
			continue
		}
		if pubErr := p.scenarios.PublishScenario(ctx, sc); pubErr != nil {
			logger.Error("scenario publish failed, skipping", "scenario_id", sc.ID, "error", pubErr)
			report.Failed++
			continue
		}
		report.Published++

		if p.progressEvery > 0 && report.Published%p.progressEvery == 0 {
			logger.Info("scenarios published", "published", report.Published, "count", count)
		}
	}
	report.NextSeq = p.gen.NextSeq()
	report.Elapsed = time.Since(began)

	if p.seqs != nil {
		if saveErr := p.seqs.SaveSequence(context.WithoutCancel(ctx), p.model.ID, report.NextSeq); saveErr != nil {
			logger.Error("failed to save sequence", "next_seq", report.NextSeq, "error", saveErr)
		}
	}

	logger.Info("batch complete",
		"published", report.Published,
		"failed", report.Failed,
		"elapsed", report.Elapsed,
	)
	return report, err
}
