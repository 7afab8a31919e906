package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/channel"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/domain"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/formula"
)

// Default timings.
const (
	DefaultStartupRetryDelay = 2 * time.Second
	DefaultModelRetryDelay   = 1 * time.Second
	DefaultInactiveAfter     = 30 * time.Second
)

// ModelSource returns the currently parked model, or nil when none is.
// Implemented by *channel.ModelSlot.
type ModelSource interface {
	Peek(ctx context.Context) (*domain.Model, error)
}

// ScenarioSource delivers scenarios one at a time until ctx is cancelled.
// Implemented by *channel.Queue.
type ScenarioSource interface {
	Consume(ctx context.Context, tag string, handler channel.Handler) error
}

// ResultSink receives evaluated results. Implemented by *channel.Queue.
type ResultSink interface {
	PublishResult(ctx context.Context, r domain.Result) error
}

// Clock supplies wall-clock time for statistics.
type Clock interface {
	Now() time.Time
}

// Worker evaluates scenarios against the currently parked model.
//
// Thread-safety model:
//   - Run(): must be called from exactly one goroutine
//   - Snapshot(), State(): safe from any goroutine
type Worker struct {
	id        string
	models    ModelSource
	scenarios ScenarioSource
	results   ResultSink
	eval      *formula.Evaluator
	clock     Clock
	logger    *slog.Logger

	startupRetryDelay time.Duration
	modelRetryDelay   time.Duration
	inactiveAfter     time.Duration
	statsInterval     time.Duration

	mu      sync.Mutex
	state   State
	model   *domain.Model
	program *formula.Program
	// compileErr is set when the loaded model's formula does not compile;
	// every scenario for that model is then dropped.
	compileErr error
	loadedAt   time.Time
	stats      counters
}

// Option configures a Worker.
type Option func(*Worker)

// WithID sets the worker id. Default: a fresh "worker_xxxxxxxx".
func WithID(id string) Option {
	return func(w *Worker) { w.id = id }
}

// WithEvaluator sets the formula evaluator.
func WithEvaluator(e *formula.Evaluator) Option {
	return func(w *Worker) { w.eval = e }
}

// WithClock sets the clock used for statistics.
func WithClock(c Clock) Option {
	return func(w *Worker) { w.clock = c }
}

// WithLogger sets the logger. The worker id is added to every record.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithStartupRetryDelay sets the wait between the two startup peeks.
func WithStartupRetryDelay(d time.Duration) Option {
	return func(w *Worker) { w.startupRetryDelay = d }
}

// WithModelRetryDelay sets the back-off after requeueing a scenario
// because no model was parked.
func WithModelRetryDelay(d time.Duration) Option {
	return func(w *Worker) { w.modelRetryDelay = d }
}

// WithInactiveAfter sets the idle time after which Snapshot reports the
// worker inactive.
func WithInactiveAfter(d time.Duration) Option {
	return func(w *Worker) { w.inactiveAfter = d }
}

// WithStatsInterval logs a snapshot every d while running. Zero disables.
func WithStatsInterval(d time.Duration) Option {
	return func(w *Worker) { w.statsInterval = d }
}

// New creates a worker reading models from models, scenarios from
// scenarios and writing results to results.
func New(models ModelSource, scenarios ScenarioSource, results ResultSink, opts ...Option) *Worker {
	w := &Worker{
		models:            models,
		scenarios:         scenarios,
		results:           results,
		clock:             channel.SystemClock{},
		logger:            slog.Default(),
		startupRetryDelay: DefaultStartupRetryDelay,
		modelRetryDelay:   DefaultModelRetryDelay,
		inactiveAfter:     DefaultInactiveAfter,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.id == "" {
		w.id = domain.NewWorkerID()
	}
	if w.eval == nil {
		w.eval = formula.NewEvaluator(nil)
	}
	w.logger = w.logger.With("worker_id", w.id)

	now := w.clock.Now()
	w.stats.startedAt = now
	w.stats.lastActivity = now
	return w
}

// ID returns the worker id.
func (w *Worker) ID() string { return w.id }

// State returns the current state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Run loads the parked model if there is one, then processes scenarios until
// ctx is cancelled. The in-flight scenario is settled before Run returns.
//
// Returns nil on cancellation and the consumer's error otherwise.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker starting")

	w.startup(ctx)

	if w.statsInterval > 0 {
		statsCtx, stop := context.WithCancel(ctx)
		defer stop()
		go w.logStatsEvery(statsCtx, w.statsInterval)
	}

	err := w.scenarios.Consume(ctx, w.id, w.handle)

	snap := w.Snapshot()
	w.logger.Info("worker stopped", snap.LogAttrs()...)

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("worker %s: %w", w.id, err)
	}
	return nil
}

// startup peeks for a model, waits once and peeks again. An empty channel
// is not an error: the worker consumes anyway and reloads on demand.
func (w *Worker) startup(ctx context.Context) {
	if w.tryLoad(ctx) {
		return
	}
	w.logger.Info("no model parked, waiting", "delay", w.startupRetryDelay)
	if sleep(ctx, w.startupRetryDelay) != nil {
		return
	}
	if !w.tryLoad(ctx) {
		w.logger.Info("no model parked, consuming without a model")
	}
}

// tryLoad peeks the model channel and loads what it finds.
func (w *Worker) tryLoad(ctx context.Context) bool {
	m, err := w.models.Peek(ctx)
	if err != nil {
		w.logger.Error("peek model failed", "error", err)
		return false
	}
	if m == nil {
		return false
	}
	w.load(*m)
	return true
}

// load makes m the current model. Loading the model already loaded is a
// no-op.
func (w *Worker) load(m domain.Model) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.model != nil && w.model.ID == m.ID {
		w.state = StateModelReady
		return
	}

	prog, err := w.eval.Compile(m.Formula, m.VariableNames())
	w.model = &m
	w.program = prog
	w.compileErr = err
	w.loadedAt = w.clock.Now()
	w.state = StateModelReady
	w.stats.reloads++

	if err != nil {
		w.logger.Error("model formula does not compile, its scenarios will be dropped",
			"model_id", m.ID,
			"error", err,
		)
		return
	}
	w.logger.Info("model loaded",
		"model_id", m.ID,
		"variables", len(m.Variables),
		"iterations", m.Iterations,
	)
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = s
}

// loaded returns the current model and its compiled program.
func (w *Worker) loaded() (*domain.Model, *formula.Program, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.model, w.program, w.compileErr
}

// handle processes one scenario delivery.
// CRITICAL: every return path settles d exactly once.
func (w *Worker) handle(ctx context.Context, d channel.Delivery) {
	w.setState(StateProcessing)
	defer w.settleState()

	sc, err := domain.DecodeScenario(d.Body())
	if err != nil {
		w.logger.Warn("dropping undecodable scenario", "error", err, "redelivered", d.Redelivered())
		w.count(func(c *counters) { c.decodeFailures++; c.dropped++ })
		w.settle(d.Drop(err.Error()), "drop", "")
		return
	}
	logger := w.logger.With("scenario_id", sc.ID, "model_id", sc.ModelID)

	model, prog, compileErr := w.loaded()
	if model == nil || model.ID != sc.ModelID {
		w.setState(StateReloading)
		logger.Info("reloading model for scenario")

		if !w.tryLoad(ctx) {
			logger.Info("model not available, requeueing", "delay", w.modelRetryDelay)
			w.count(func(c *counters) { c.requeued++ })
			w.settle(d.Requeue(), "requeue", sc.ID)
			_ = sleep(ctx, w.modelRetryDelay)
			return
		}

		model, prog, compileErr = w.loaded()
		if model.ID != sc.ModelID {
			reason := fmt.Sprintf("model %s is no longer parked (parked: %s)", sc.ModelID, model.ID)
			logger.Warn("dropping orphaned scenario", "parked_model_id", model.ID)
			w.count(func(c *counters) { c.orphaned++; c.dropped++ })
			w.settle(d.Drop(reason), "drop", sc.ID)
			return
		}
		w.setState(StateProcessing)
	}

	if compileErr != nil {
		w.count(func(c *counters) { c.evalFailures++; c.dropped++ })
		w.settle(d.Drop(compileErr.Error()), "drop", sc.ID)
		return
	}

	start := w.clock.Now()
	value, err := w.eval.Run(ctx, prog, sc.Parameters)
	elapsed := w.clock.Now().Sub(start)
	if err != nil {
		logger.Warn("dropping scenario, evaluation failed", "error", err)
		w.count(func(c *counters) { c.evalFailures++; c.dropped++ })
		w.settle(d.Drop(err.Error()), "drop", sc.ID)
		return
	}

	res := domain.Result{
		ScenarioID: sc.ID,
		ModelID:    sc.ModelID,
		Value:      value,
		WorkerID:   w.id,
	}
	publishErr := w.results.PublishResult(context.WithoutCancel(ctx), res)
	if publishErr != nil {
		// The scenario is still acked: the result is lost, not retried.
		logger.Error("result publish failed, scenario acked anyway", "error", publishErr)
	}

	w.count(func(c *counters) {
		c.processed++
		c.processing += elapsed
		if publishErr != nil {
			c.publishFailures++
		} else {
			c.published++
		}
	})
	w.settle(d.Ack(), "ack", sc.ID)
	logger.Debug("scenario completed", "result", value, "elapsed", elapsed)
}

// settleState leaves Processing/Reloading for the resting state. Every
// delivery counts as activity, whatever its outcome.
func (w *Worker) settleState() {
	now := w.clock.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.lastActivity = now
	if w.model != nil {
		w.state = StateModelReady
	} else {
		w.state = StateNoModel
	}
}

// settle logs a failed settlement. The broker redelivers after the lease
// expires, so there is nothing else to do.
func (w *Worker) settle(err error, op, scenarioID string) {
	if err != nil {
		w.logger.Error("settlement failed", "op", op, "scenario_id", scenarioID, "error", err)
	}
}

func (w *Worker) count(fn func(*counters)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(&w.stats)
}

func (w *Worker) logStatsEvery(ctx context.Context, d time.Duration) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.logger.Info("worker stats", w.Snapshot().LogAttrs()...)
		}
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
