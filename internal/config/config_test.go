package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Minute, cfg.ModelTTL)
	assert.Equal(t, "montecarlo_scenarios", cfg.Queues.Scenarios)
	assert.Equal(t, "montecarlo_model", cfg.Queues.Model)
	assert.Equal(t, "montecarlo_results", cfg.Queues.Results)
	assert.Equal(t, 2*time.Second, cfg.Worker.StartupRetryDelay)
	assert.Equal(t, 100, cfg.Producer.ProgressEvery)
}

func TestLoad_Full(t *testing.T) {
	t.Setenv(EnvDatabase, "")
	t.Setenv(EnvLogLevel, "")

	cfg, err := Load("testdata/full.yaml")
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/montecarlo/broker.db", cfg.Database)
	assert.Equal(t, 10*time.Minute, cfg.ModelTTL)
	assert.Equal(t, Queues{Scenarios: "mc_scenarios", Model: "mc_model", Results: "mc_results"}, cfg.Queues)
	assert.Equal(t, Worker{
		StartupRetryDelay: 500 * time.Millisecond,
		ModelRetryDelay:   250 * time.Millisecond,
		PollInterval:      50 * time.Millisecond,
		LeaseTimeout:      time.Minute,
		InactiveAfter:     time.Minute,
		StatsInterval:     10 * time.Second,
		EvalTimeout:       2 * time.Second,
	}, cfg.Worker)
	assert.Equal(t, Producer{ModelsDir: "./defs", ProgressEvery: 50, Seed: 42}, cfg.Producer)
	assert.Equal(t, Monitor{Interval: time.Second, MaxSamples: 5000}, cfg.Monitor)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	cfg, err := Load("testdata/partial.yaml")
	require.NoError(t, err)

	want := Default()
	want.Worker.ModelRetryDelay = 3 * time.Second
	want.ApplyEnv(os.LookupEnv)
	assert.Equal(t, want, cfg)
}

func TestLoad_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	t.Setenv(EnvDatabase, "")
	t.Setenv(EnvLogLevel, "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load("testdata/typo.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model_retry_dealy")

	_, err = Load("testdata/absent.yaml")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvDatabase, "/tmp/env.db")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load("testdata/full.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.db", cfg.Database)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}

func TestApplyEnv_EmptyValueIgnored(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(func(key string) (string, bool) { return "", true })
	assert.Equal(t, Default(), cfg)

	cfg.ApplyEnv(noEnv)
	assert.Equal(t, Default(), cfg)
}

func TestValidate_ReportsEveryKey(t *testing.T) {
	cfg := Default()
	cfg.Database = " "
	cfg.LogLevel = "loud"
	cfg.ModelTTL = 0
	cfg.Queues.Results = cfg.Queues.Scenarios
	cfg.Queues.Model = ""
	cfg.Worker.ModelRetryDelay = -time.Second
	cfg.Worker.PollInterval = 0
	cfg.Producer.ProgressEvery = -1
	cfg.Monitor.MaxSamples = 0

	err := cfg.Validate()
	require.Error(t, err)
	for _, key := range []string{
		"database",
		"log_level",
		"model_ttl",
		"queues.results",
		"queues.model",
		"worker.model_retry_delay",
		"worker.poll_interval",
		"producer.progress_every",
		"monitor.max_samples",
	} {
		assert.Contains(t, err.Error(), key)
	}
}
