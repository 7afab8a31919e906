package harness

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadDrill(t *testing.T, name string) *Drill {
	t.Helper()
	d, err := LoadDrill("testdata/drills/" + name + ".yaml")
	require.NoError(t, err)
	return d
}

func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"constant", "bad_formula"} {
		t.Run(name, func(t *testing.T) {
			report, err := RunWithGolden(t, loadDrill(t, name))
			require.NoError(t, err)
			assert.True(t, report.Pass(), "failures: %v", report.Failures)
		})
	}
}

func TestRun_TwoWorkersNoDuplicates(t *testing.T) {
	d := loadDrill(t, "two_workers")

	report, err := Run(context.Background(), d)
	require.NoError(t, err)
	require.True(t, report.Pass(), "failures: %v", report.Failures)

	assert.Equal(t, 100, report.Published)
	assert.Equal(t, 100, report.Results)
	assert.Equal(t, 100, report.Unique)
	assert.Zero(t, report.Duplicates)

	total := 0
	for _, n := range report.PerWorker {
		total += n
	}
	assert.Equal(t, 100, total)

	require.Len(t, report.Workers, 2)
	var processed int64
	for _, snap := range report.Workers {
		processed += snap.Processed
		assert.Contains(t, snap.WorkerID, "two_workers_w")
	}
	assert.Equal(t, int64(100), processed)
}

func TestRun_WithDirKeepsDatabase(t *testing.T) {
	dir := t.TempDir()
	d := loadDrill(t, "bad_formula")
	_, err := Run(context.Background(), d, WithDir(dir))
	require.NoError(t, err)
	assert.FileExists(t, dir+"/bad_formula.db")
}

func TestRun_FailedExpectationsAreReported(t *testing.T) {
	d := loadDrill(t, "bad_formula")
	five := 5
	d.Expect = []Expectation{{Type: ExpectResults, Count: &five}}

	report, err := Run(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, report.Pass())
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "5", report.Failures[0].Expected)
	assert.Equal(t, "0", report.Failures[0].Actual)
}

func TestRun_InvalidModel(t *testing.T) {
	d := &Drill{Name: "broken", Model: "VAR: x,poisson", Scenarios: 1}
	_, err := Run(context.Background(), d)
	assert.Error(t, err)
}

func TestRun_Timeout(t *testing.T) {
	d := &Drill{
		Name:      "slow",
		Model:     "FUNCTION: resultado = x\nVAR: x,uniform",
		Scenarios: 10,
		Timeout:   time.Nanosecond,
	}
	_, err := Run(context.Background(), d)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestParseDrill_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		msg  string
	}{
		{"unknown field", "name: a\nmodel: x\nscenarios: 1\nworkerz: 2", "workerz"},
		{"missing name", "model: x\nscenarios: 1", "name"},
		{"bad name", "name: 1a\nmodel: x\nscenarios: 1", "name"},
		{"missing model", "name: a\nscenarios: 1", "model is required"},
		{"no scenarios", "name: a\nmodel: x", "scenarios"},
		{"negative workers", "name: a\nmodel: x\nscenarios: 1\nworkers: -1", "negative"},
		{"expectation without type", "name: a\nmodel: x\nscenarios: 1\nexpect:\n  - count: 1", "type is required"},
		{"count missing", "name: a\nmodel: x\nscenarios: 1\nexpect:\n  - type: results", "count is required"},
		{"empty range", "name: a\nmodel: x\nscenarios: 1\nexpect:\n  - type: value_range", "min or max"},
		{"inverted range", "name: a\nmodel: x\nscenarios: 1\nexpect:\n  - type: value_range\n    min: 2\n    max: 1", "max < min"},
		{"unknown type", "name: a\nmodel: x\nscenarios: 1\nexpect:\n  - type: latency", "unknown expectation type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDrill([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestParseDrill_Defaults(t *testing.T) {
	d, err := ParseDrill([]byte("name: a\nmodel: x\nscenarios: 1"))
	require.NoError(t, err)
	assert.Equal(t, 1, d.workers())
	assert.Equal(t, DefaultTimeout, d.timeout())
}

func TestCheck(t *testing.T) {
	n := func(v int) *int { return &v }
	f := func(v float64) *float64 { return &v }

	r := &Report{Results: 10, Unique: 9, Duplicates: 1, Dropped: 2, PerWorker: map[string]int{"w1": 6, "w2": 4}}
	r.Stats.Count = 10
	r.Stats.Min, r.Stats.Max = 0.5, 1.5

	failures := Check(r, []Expectation{
		{Type: ExpectResults, Count: n(10)},
		{Type: ExpectUnique, Count: n(10)},
		{Type: ExpectDuplicates, Count: n(1)},
		{Type: ExpectDropped, Count: n(2)},
		{Type: ExpectWorkersUsed, Count: n(2)},
		{Type: ExpectWorkersUsed, Count: n(3)},
		{Type: ExpectValueRange, Min: f(0), Max: f(2)},
		{Type: ExpectValueRange, Max: f(1)},
	})

	var types []string
	for _, fl := range failures {
		types = append(types, fl.Type)
	}
	assert.Equal(t, []string{ExpectUnique, ExpectWorkersUsed, ExpectValueRange}, types)
	assert.Contains(t, failures[2].Error(), "every result in [-inf, 1]")
}

func TestWriteSummary_Failing(t *testing.T) {
	r := &Report{Drill: "d", ModelID: "d", Failures: []*ExpectationError{{Type: ExpectResults}}}
	var buf strings.Builder
	require.NoError(t, WriteSummary(&buf, r))
	assert.True(t, strings.HasSuffix(buf.String(), "expectations fail (1)\n"))
}
