package harness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// WriteSummary writes the deterministic part of r: counts and value
// statistics, but not timings or the per-worker split.
func WriteSummary(w io.Writer, r *Report) error {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
	status := "pass"
	if !r.Pass() {
		status = fmt.Sprintf("fail (%d)", len(r.Failures))
	}
	_, err := fmt.Fprintf(w,
		"drill %s\nmodel %s\npublished %d malformed %d\nresults %d unique %d duplicates %d\ndropped %d\nmean %s stddev %s min %s max %s\nexpectations %s\n",
		r.Drill, r.ModelID,
		r.Published, r.Malformed,
		r.Results, r.Unique, r.Duplicates,
		r.Dropped,
		f(r.Stats.Mean), f(r.Stats.StdDev), f(r.Stats.Min), f(r.Stats.Max),
		status,
	)
	return err
}

// RunWithGolden runs the drill and compares its summary against
// testdata/golden/{drill.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, d *Drill) (*Report, error) {
	t.Helper()

	report, err := Run(context.Background(), d)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := WriteSummary(&buf, report); err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, d.Name, buf.Bytes())
	return report, nil
}
