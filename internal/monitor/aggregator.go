package monitor

import (
	"maps"
	"math"
	"slices"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/channel"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/domain"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/store"
)

// Defaults.
const (
	DefaultMaxSamples   = 100000
	DefaultActiveWindow = 30 * time.Second
)

// Summary is a point-in-time view of everything the aggregator has seen.
type Summary struct {
	At       time.Time       `json:"at"`
	Results  int64           `json:"results"`
	Rejected int64           `json:"rejected"`
	Queues   []QueueSummary  `json:"queues"`
	Models   []ModelSummary  `json:"models"`
	Workers  []WorkerSummary `json:"workers"`
}

// QueueSummary is the last polled depth of one queue.
type QueueSummary struct {
	Queue  string `json:"queue"`
	Ready  int64  `json:"ready"`
	Leased int64  `json:"leased"`
	Dead   int64  `json:"dead"`
}

// ModelSummary describes the result distribution of one model.
type ModelSummary struct {
	ModelID string  `json:"model_id"`
	Count   int64   `json:"count"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"stddev"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	P05     float64 `json:"p05"`
	P50     float64 `json:"p50"`
	P95     float64 `json:"p95"`
}

// WorkerSummary counts the results one worker produced.
type WorkerSummary struct {
	WorkerID string        `json:"worker_id"`
	Results  int64         `json:"results"`
	LastSeen time.Time     `json:"last_seen"`
	Idle     time.Duration `json:"idle_ns"`
	Active   bool          `json:"active"`
}

type modelStats struct {
	count    int64
	min, max float64
	// samples is a ring of the most recent values.
	samples []float64
	next    int
}

func (m *modelStats) add(v float64, limit int) {
	if m.count == 0 || v < m.min {
		m.min = v
	}
	if m.count == 0 || v > m.max {
		m.max = v
	}
	m.count++

	if len(m.samples) < limit {
		m.samples = append(m.samples, v)
		return
	}
	m.samples[m.next] = v
	m.next = (m.next + 1) % limit
}

func (m *modelStats) summary(id string) ModelSummary {
	xs := slices.Clone(m.samples)
	slices.Sort(xs)

	s := ModelSummary{ModelID: id, Count: m.count, Min: m.min, Max: m.max}
	if len(xs) == 0 {
		return s
	}
	s.Mean = stat.Mean(xs, nil)
	if len(xs) > 1 {
		s.StdDev = stat.StdDev(xs, nil)
	}
	s.P05 = stat.Quantile(0.05, stat.Empirical, xs, nil)
	s.P50 = stat.Quantile(0.50, stat.Empirical, xs, nil)
	s.P95 = stat.Quantile(0.95, stat.Empirical, xs, nil)
	return s
}

type workerStats struct {
	results  int64
	lastSeen time.Time
}

// Aggregator accumulates results. Safe for concurrent use.
type Aggregator struct {
	clock        channel.Clock
	maxSamples   int
	activeWindow time.Duration

	mu       sync.Mutex
	results  int64
	rejected int64
	models   map[string]*modelStats
	workers  map[string]*workerStats
	depths   map[string]store.Depth
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithMaxSamples bounds the values kept per model for mean and quantiles.
func WithMaxSamples(n int) AggregatorOption {
	return func(a *Aggregator) { a.maxSamples = n }
}

// WithActiveWindow sets how recently a worker must have produced a result
// to be reported active.
func WithActiveWindow(d time.Duration) AggregatorOption {
	return func(a *Aggregator) { a.activeWindow = d }
}

// WithAggregatorClock sets the clock used for last-seen times.
func WithAggregatorClock(c channel.Clock) AggregatorOption {
	return func(a *Aggregator) { a.clock = c }
}

// NewAggregator returns an empty aggregator.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		clock:        channel.SystemClock{},
		maxSamples:   DefaultMaxSamples,
		activeWindow: DefaultActiveWindow,
		models:       make(map[string]*modelStats),
		workers:      make(map[string]*workerStats),
		depths:       make(map[string]store.Depth),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.maxSamples < 1 {
		a.maxSamples = 1
	}
	return a
}

// Record adds one result. Non-finite values are counted as rejected.
func (a *Aggregator) Record(r domain.Result) {
	now := a.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		a.rejected++
		return
	}
	a.results++

	m := a.models[r.ModelID]
	if m == nil {
		m = &modelStats{}
		a.models[r.ModelID] = m
	}
	m.add(r.Value, a.maxSamples)

	w := a.workers[r.WorkerID]
	if w == nil {
		w = &workerStats{}
		a.workers[r.WorkerID] = w
	}
	w.results++
	w.lastSeen = now
}

// Reject counts a payload that could not be decoded as a result.
func (a *Aggregator) Reject() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejected++
}

// SetDepth stores the latest depth of queue.
func (a *Aggregator) SetDepth(queue string, d store.Depth) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.depths[queue] = d
}

// Snapshot returns the current summary. Queues, models and workers are
// sorted by name.
func (a *Aggregator) Snapshot() Summary {
	now := a.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{
		At:       now,
		Results:  a.results,
		Rejected: a.rejected,
		Queues:   make([]QueueSummary, 0, len(a.depths)),
		Models:   make([]ModelSummary, 0, len(a.models)),
		Workers:  make([]WorkerSummary, 0, len(a.workers)),
	}
	for _, name := range slices.Sorted(maps.Keys(a.depths)) {
		d := a.depths[name]
		s.Queues = append(s.Queues, QueueSummary{Queue: name, Ready: d.Ready, Leased: d.Leased, Dead: d.Dead})
	}
	for _, id := range slices.Sorted(maps.Keys(a.models)) {
		s.Models = append(s.Models, a.models[id].summary(id))
	}
	for _, id := range slices.Sorted(maps.Keys(a.workers)) {
		w := a.workers[id]
		idle := now.Sub(w.lastSeen)
		s.Workers = append(s.Workers, WorkerSummary{
			WorkerID: id,
			Results:  w.results,
			LastSeen: w.lastSeen,
			Idle:     idle,
			Active:   idle < a.activeWindow,
		})
	}
	return s
}

// Model returns the summary of one model.
func (a *Aggregator) Model(id string) (ModelSummary, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.models[id]
	if !ok {
		return ModelSummary{}, false
	}
	return m.summary(id), true
}
