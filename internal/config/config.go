// Package config loads the montecarlo configuration: defaults, then an
// optional YAML file, then environment overrides. Command-line flags are
// applied on top by the cli package.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/channel"
)

// Environment variables that override file values.
const (
	EnvDatabase = "MONTECARLO_DB"
	EnvLogLevel = "MONTECARLO_LOG_LEVEL"
)

// Config is the full configuration. Every section must be listed here for
// strict decoding to accept it.
type Config struct {
	Database string        `yaml:"database"`
	LogLevel string        `yaml:"log_level"`
	ModelTTL time.Duration `yaml:"model_ttl"`
	Queues   Queues        `yaml:"queues"`
	Worker   Worker        `yaml:"worker"`
	Producer Producer      `yaml:"producer"`
	Monitor  Monitor       `yaml:"monitor"`
}

// Queues names the three channels.
type Queues struct {
	Scenarios string `yaml:"scenarios"`
	Model     string `yaml:"model"`
	Results   string `yaml:"results"`
}

// Worker holds worker timings.
type Worker struct {
	StartupRetryDelay time.Duration `yaml:"startup_retry_delay"`
	ModelRetryDelay   time.Duration `yaml:"model_retry_delay"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	LeaseTimeout      time.Duration `yaml:"lease_timeout"`
	InactiveAfter     time.Duration `yaml:"inactive_after"`
	StatsInterval     time.Duration `yaml:"stats_interval"`
	EvalTimeout       time.Duration `yaml:"eval_timeout"`
}

// Producer holds producer settings. Seed 0 draws from a random seed.
type Producer struct {
	ModelsDir     string `yaml:"models_dir"`
	ProgressEvery int    `yaml:"progress_every"`
	Seed          int64  `yaml:"seed"`
}

// Monitor holds monitor settings.
type Monitor struct {
	Interval   time.Duration `yaml:"interval"`
	MaxSamples int           `yaml:"max_samples"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: "montecarlo.db",
		LogLevel: "info",
		ModelTTL: 300000 * time.Millisecond,
		Queues: Queues{
			Scenarios: channel.ScenarioQueue,
			Model:     channel.ModelQueue,
			Results:   channel.ResultQueue,
		},
		Worker: Worker{
			StartupRetryDelay: 2 * time.Second,
			ModelRetryDelay:   time.Second,
			PollInterval:      channel.DefaultPollInterval,
			LeaseTimeout:      channel.DefaultLease,
			InactiveAfter:     30 * time.Second,
		},
		Producer: Producer{
			ModelsDir:     "models",
			ProgressEvery: 100,
		},
		Monitor: Monitor{
			Interval:   2 * time.Second,
			MaxSamples: 100000,
		},
	}
}

// Load returns the defaults overlaid with the file at path (when path is not
// empty) and the environment, validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// decode overlays YAML onto c. Keys absent from data keep their value.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv applies the environment overrides found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDatabase); ok && v != "" {
		c.Database = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// Validate reports every invalid key.
func (c Config) Validate() error {
	var errs []error
	bad := func(key, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s: "+format, append([]any{key}, args...)...))
	}

	if strings.TrimSpace(c.Database) == "" {
		bad("database", "must not be empty")
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.ModelTTL <= 0 {
		bad("model_ttl", "must be positive, got %s", c.ModelTTL)
	}

	names := map[string]string{
		"queues.scenarios": c.Queues.Scenarios,
		"queues.model":     c.Queues.Model,
		"queues.results":   c.Queues.Results,
	}
	seen := map[string]string{}
	for _, key := range []string{"queues.scenarios", "queues.model", "queues.results"} {
		name := names[key]
		if name == "" {
			bad(key, "must not be empty")
			continue
		}
		if other, dup := seen[name]; dup {
			bad(key, "same name as %s (%q)", other, name)
		}
		seen[name] = key
	}

	for key, d := range map[string]time.Duration{
		"worker.startup_retry_delay": c.Worker.StartupRetryDelay,
		"worker.model_retry_delay":   c.Worker.ModelRetryDelay,
		"worker.stats_interval":      c.Worker.StatsInterval,
		"worker.eval_timeout":        c.Worker.EvalTimeout,
	} {
		if d < 0 {
			bad(key, "must not be negative, got %s", d)
		}
	}
	for key, d := range map[string]time.Duration{
		"worker.poll_interval":  c.Worker.PollInterval,
		"worker.lease_timeout":  c.Worker.LeaseTimeout,
		"worker.inactive_after": c.Worker.InactiveAfter,
		"monitor.interval":      c.Monitor.Interval,
	} {
		if d <= 0 {
			bad(key, "must be positive, got %s", d)
		}
	}

	if c.Producer.ProgressEvery < 0 {
		bad("producer.progress_every", "must not be negative, got %d", c.Producer.ProgressEvery)
	}
	if c.Monitor.MaxSamples < 1 {
		bad("monitor.max_samples", "must be at least 1, got %d", c.Monitor.MaxSamples)
	}
	return errors.Join(errs...)
}
