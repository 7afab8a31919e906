package monitor

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Render writes s as plain text. Counts are grouped for tag.
func Render(w io.Writer, s Summary, tag language.Tag) error {
	p := message.NewPrinter(tag)
	ew := &errWriter{w: w}

	ew.printf("Monte Carlo monitor  %s\n", s.At.UTC().Format(time.RFC3339))
	ew.print(p.Sprintf("results: %d  rejected: %d\n", s.Results, s.Rejected))

	if len(s.Queues) > 0 {
		ew.printf("\n")
	}
	for _, q := range s.Queues {
		ew.print(p.Sprintf("queue %s  ready %d  leased %d  dead %d\n", q.Queue, q.Ready, q.Leased, q.Dead))
	}

	for _, m := range s.Models {
		ew.printf("\nmodel %s\n", m.ModelID)
		ew.print(p.Sprintf("  %-8s %d\n", "count", m.Count))
		for _, row := range []struct {
			label string
			v     float64
		}{
			{"mean", m.Mean},
			{"stddev", m.StdDev},
			{"min", m.Min},
			{"p05", m.P05},
			{"p50", m.P50},
			{"p95", m.P95},
			{"max", m.Max},
		} {
			ew.printf("  %-8s %s\n", row.label, strconv.FormatFloat(row.v, 'f', 4, 64))
		}
	}

	if len(s.Workers) > 0 {
		ew.printf("\n")
	}
	for _, wk := range s.Workers {
		status := "active"
		if !wk.Active {
			status = "inactive"
		}
		ew.print(p.Sprintf("worker %s  results %d  last seen %s ago  %s\n",
			wk.WorkerID, wk.Results, wk.Idle.Round(time.Second).String(), status))
	}
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) print(s string) {
	if e.err == nil {
		_, e.err = io.WriteString(e.w, s)
	}
}

func (e *errWriter) printf(format string, args ...any) {
	e.print(fmt.Sprintf(format, args...))
}
