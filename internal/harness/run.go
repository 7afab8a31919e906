package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/channel"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/domain"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/formula"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/modelfile"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/monitor"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/producer"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/sampling"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/store"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/worker"
)

// ErrTimeout is returned when a drill does not drain before its timeout.
var ErrTimeout = errors.New("drill timed out")

// Drill timings. Short enough that a drill of a few hundred scenarios
// finishes in well under a second.
const (
	pollInterval  = 5 * time.Millisecond
	settleCheck   = 10 * time.Millisecond
	modelRetry    = 10 * time.Millisecond
	collectorName = "drill_collector"
)

// Report is the outcome of a drill.
type Report struct {
	Drill     string `json:"drill"`
	ModelID   string `json:"model_id"`
	Published int    `json:"published"`
	Malformed int    `json:"malformed"`

	// Results counts result messages; Unique counts distinct scenario ids.
	Results    int `json:"results"`
	Unique     int `json:"unique"`
	Duplicates int `json:"duplicates"`

	// Dropped counts dead-lettered scenario messages, malformed included.
	Dropped int `json:"dropped"`

	PerWorker map[string]int       `json:"per_worker"`
	Stats     monitor.ModelSummary `json:"stats"`
	Workers   []worker.Snapshot    `json:"workers"`
	Failures  []*ExpectationError  `json:"failures,omitempty"`
	Elapsed   time.Duration        `json:"elapsed_ns"`
}

// Pass reports whether every expectation held.
func (r *Report) Pass() bool { return len(r.Failures) == 0 }

// Option configures Run.
type Option func(*runner)

// WithLogger sets the logger shared by every component of the drill.
// Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(r *runner) { r.logger = l }
}

// WithDir places the broker database in dir instead of a temporary
// directory removed after the run.
func WithDir(dir string) Option {
	return func(r *runner) { r.dir = dir }
}

type runner struct {
	logger *slog.Logger
	dir    string
}

// drillID hands out the drill name as the model id.
type drillID string

func (d drillID) Generate() string { return string(d) }

// Run executes d and evaluates its expectations into Report.Failures.
// The error is non-nil only when the drill could not run to completion.
func Run(ctx context.Context, d *Drill, opts ...Option) (*Report, error) {
	r := &runner{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(r)
	}

	dir := r.dir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "montecarlo-drill-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create drill directory: %w", err)
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}

	st, err := store.Open(filepath.Join(dir, d.Name+".db"))
	if err != nil {
		return nil, &domain.ConnectionError{Target: dir, Err: err}
	}
	defer st.Close()

	return r.run(ctx, st, d)
}

func (r *runner) run(ctx context.Context, st *store.Store, d *Drill) (*Report, error) {
	began := time.Now()
	ctx, cancelAll := context.WithTimeout(ctx, d.timeout())
	defer cancelAll()

	m, err := modelfile.ParseLines(strings.NewReader(d.Model), d.Name, drillID(d.Name))
	if err != nil {
		return nil, err
	}

	slot := channel.NewModelSlot(st, channel.ModelQueue, channel.WithModelLogger(r.logger))
	scenarios := channel.NewQueue(st, channel.ScenarioQueue,
		channel.WithPollInterval(pollInterval), channel.WithLogger(r.logger))
	results := channel.NewQueue(st, channel.ResultQueue,
		channel.WithPollInterval(pollInterval), channel.WithLogger(r.logger))

	prod := producer.New(slot, scenarios,
		producer.WithSeed(d.Seed),
		producer.WithSequences(st),
		producer.WithProgressEvery(0),
		producer.WithLogger(r.logger),
	)
	if _, err := prod.PublishModel(ctx, m); err != nil {
		return nil, err
	}
	for i := range d.Malformed {
		if err := scenarios.Publish(ctx, fmt.Appendf(nil, `{"malformed": %d}`, i)); err != nil {
			return nil, err
		}
	}
	batch, err := prod.GenerateAndPublish(ctx, d.Scenarios)
	if err != nil {
		return nil, err
	}

	col := &collector{
		agg:       monitor.NewAggregator(),
		seen:      make(map[string]int),
		perWorker: make(map[string]int),
		logger:    r.logger,
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	var (
		g       errgroup.Group
		workers []*worker.Worker
	)
	g.Go(func() error {
		return results.Consume(runCtx, collectorName, col.handle)
	})
	g.Go(func() error {
		ws, err := worker.RunReplicas(runCtx, d.workers(), func(i int) *worker.Worker {
			id := fmt.Sprintf("%s_w%d", d.Name, i+1)
			return worker.New(slot, scenarios, results,
				worker.WithID(id),
				worker.WithEvaluator(formula.NewEvaluator(sampling.NewSource(d.Seed, id))),
				worker.WithStartupRetryDelay(0),
				worker.WithModelRetryDelay(modelRetry),
				worker.WithLogger(r.logger),
			)
		})
		workers = ws
		return err
	})

	dropped, waitErr := waitDrained(ctx, scenarios, results)
	stop()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	if waitErr != nil {
		return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, d.Name, d.timeout())
	}

	report := col.report()
	report.Drill = d.Name
	report.ModelID = m.ID
	report.Published = batch.Published
	report.Malformed = d.Malformed
	report.Dropped = dropped
	report.Stats, _ = col.agg.Model(m.ID)
	for _, w := range workers {
		report.Workers = append(report.Workers, w.Snapshot())
	}
	report.Elapsed = time.Since(began)
	report.Failures = Check(report, d.Expect)
	return report, nil
}

// waitDrained blocks until neither queue has ready or leased messages and
// returns the dead-letter count of the scenario queue.
func waitDrained(ctx context.Context, scenarios, results *channel.Queue) (int, error) {
	ticker := time.NewTicker(settleCheck)
	defer ticker.Stop()
	for {
		sd, err := scenarios.Depth(ctx)
		if err == nil && sd.Ready == 0 && sd.Leased == 0 {
			rd, err := results.Depth(ctx)
			if err == nil && rd.Ready == 0 && rd.Leased == 0 {
				return int(sd.Dead), nil
			}
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// collector records every result message it is handed.
type collector struct {
	agg    *monitor.Aggregator
	logger *slog.Logger

	mu        sync.Mutex
	total     int
	seen      map[string]int
	perWorker map[string]int
}

func (c *collector) handle(_ context.Context, d channel.Delivery) {
	res, err := domain.DecodeResult(d.Body())
	if err != nil {
		c.agg.Reject()
		if err := d.Drop(err.Error()); err != nil {
			c.logger.Error("drop failed", "error", err)
		}
		return
	}

	c.mu.Lock()
	c.total++
	c.seen[res.ScenarioID]++
	c.perWorker[res.WorkerID]++
	c.mu.Unlock()
	c.agg.Record(res)

	if err := d.Ack(); err != nil {
		c.logger.Error("ack failed", "scenario_id", res.ScenarioID, "error", err)
	}
}

func (c *collector) report() *Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	return &Report{
		Results:    c.total,
		Unique:     len(c.seen),
		Duplicates: c.total - len(c.seen),
		PerWorker:  maps.Clone(c.perWorker),
	}
}
