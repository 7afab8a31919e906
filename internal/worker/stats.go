package worker

import (
	"time"
)

// Status is the derived liveness of a worker.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// counters is the mutable statistics block guarded by Worker.mu.
type counters struct {
	startedAt time.Time
	// lastActivity is when the last delivery was settled, or startedAt.
	lastActivity time.Time

	processed       int64
	processing      time.Duration
	published       int64
	publishFailures int64
	evalFailures    int64
	decodeFailures  int64
	orphaned        int64
	dropped         int64
	requeued        int64
	reloads         int64
}

// Snapshot is a point-in-time view of a worker's statistics.
type Snapshot struct {
	WorkerID string `json:"worker_id"`
	State    State  `json:"state"`
	Status   Status `json:"status"`

	ModelID       string        `json:"model_id,omitempty"`
	ModelLoadedAt time.Time     `json:"model_loaded_at,omitzero"`
	ModelAge      time.Duration `json:"model_age_ns"`

	Processed       int64         `json:"scenarios_processed"`
	TotalProcessing time.Duration `json:"total_processing_ns"`
	AvgProcessing   time.Duration `json:"avg_processing_ns"`
	Idle            time.Duration `json:"idle_ns"`
	Uptime          time.Duration `json:"uptime_ns"`

	Published       int64 `json:"results_published"`
	PublishFailures int64 `json:"publish_failures"`
	EvalFailures    int64 `json:"evaluation_failures"`
	DecodeFailures  int64 `json:"decode_failures"`
	Orphaned        int64 `json:"orphaned"`
	Dropped         int64 `json:"dropped"`
	Requeued        int64 `json:"requeued"`
	Reloads         int64 `json:"model_reloads"`
}

// Snapshot returns the worker's statistics at the clock's current time.
func (w *Worker) Snapshot() Snapshot {
	now := w.clock.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	c := w.stats
	s := Snapshot{
		WorkerID:        w.id,
		State:           w.state,
		Processed:       c.processed,
		TotalProcessing: c.processing,
		Idle:            now.Sub(c.lastActivity),
		Uptime:          now.Sub(c.startedAt),
		Published:       c.published,
		PublishFailures: c.publishFailures,
		EvalFailures:    c.evalFailures,
		DecodeFailures:  c.decodeFailures,
		Orphaned:        c.orphaned,
		Dropped:         c.dropped,
		Requeued:        c.requeued,
		Reloads:         c.reloads,
	}
	if c.processed > 0 {
		s.AvgProcessing = c.processing / time.Duration(c.processed)
	}
	if w.model != nil {
		s.ModelID = w.model.ID
		s.ModelLoadedAt = w.loadedAt
		s.ModelAge = now.Sub(w.loadedAt)
	}
	s.Status = status(s.Idle, w.inactiveAfter)
	return s
}

// status derives liveness from idle time.
func status(idle, inactiveAfter time.Duration) Status {
	if idle >= inactiveAfter {
		return StatusInactive
	}
	return StatusActive
}

// LogAttrs flattens the snapshot into slog key-value pairs.
func (s Snapshot) LogAttrs() []any {
	return []any{
		"state", s.State.String(),
		"status", string(s.Status),
		"model_id", s.ModelID,
		"model_age", s.ModelAge.Round(time.Second),
		"processed", s.Processed,
		"total_processing", s.TotalProcessing,
		"avg_processing", s.AvgProcessing,
		"idle", s.Idle.Round(100 * time.Millisecond),
		"dropped", s.Dropped,
		"requeued", s.Requeued,
		"publish_failures", s.PublishFailures,
	}
}
