package harness

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTimeout bounds a drill that does not set timeout.
const DefaultTimeout = 30 * time.Second

// drillName keeps the name usable as a model id.
var drillName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// Drill describes one end-to-end run.
type Drill struct {
	// Name identifies the drill and is used as the model id.
	Name string `yaml:"name"`

	Description string `yaml:"description,omitempty"`

	// Model is a model definition in line format.
	Model string `yaml:"model"`

	// Scenarios is how many scenarios the producer publishes.
	Scenarios int `yaml:"scenarios"`

	// Workers is how many worker replicas consume them. Zero means one.
	Workers int `yaml:"workers,omitempty"`

	// Malformed payloads are enqueued ahead of the scenarios; workers must
	// drop them without stopping.
	Malformed int `yaml:"malformed,omitempty"`

	// Seed makes sampling reproducible. Zero seeds randomly.
	Seed int64 `yaml:"seed,omitempty"`

	// Timeout bounds the whole run. Zero means DefaultTimeout.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	Expect []Expectation `yaml:"expect,omitempty"`
}

// Expectation is one check applied to a Report.
type Expectation struct {
	Type  string   `yaml:"type"`
	Count *int     `yaml:"count,omitempty"`
	Min   *float64 `yaml:"min,omitempty"`
	Max   *float64 `yaml:"max,omitempty"`
}

// Expectation types.
const (
	ExpectResults     = "results"
	ExpectUnique      = "unique"
	ExpectDuplicates  = "duplicates"
	ExpectDropped     = "dropped"
	ExpectWorkersUsed = "workers_used"
	ExpectValueRange  = "value_range"
)

// LoadDrill reads and validates a drill YAML file. Unknown fields are
// rejected.
func LoadDrill(path string) (*Drill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read drill file: %w", err)
	}
	return ParseDrill(data)
}

// ParseDrill decodes and validates a drill.
func ParseDrill(data []byte) (*Drill, error) {
	var d Drill
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateDrill(&d); err != nil {
		return nil, fmt.Errorf("invalid drill: %w", err)
	}
	return &d, nil
}

func validateDrill(d *Drill) error {
	if !drillName.MatchString(d.Name) {
		return fmt.Errorf("name %q must start with a letter and contain only letters, digits, '_' or '-'", d.Name)
	}
	if d.Model == "" {
		return fmt.Errorf("model is required")
	}
	if d.Scenarios < 1 {
		return fmt.Errorf("scenarios must be at least 1")
	}
	if d.Workers < 0 || d.Malformed < 0 || d.Timeout < 0 {
		return fmt.Errorf("workers, malformed and timeout must not be negative")
	}
	for i := range d.Expect {
		if err := validateExpectation(i, &d.Expect[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateExpectation(index int, e *Expectation) error {
	switch e.Type {
	case "":
		return fmt.Errorf("expect[%d]: type is required", index)
	case ExpectResults, ExpectUnique, ExpectDuplicates, ExpectDropped, ExpectWorkersUsed:
		if e.Count == nil || *e.Count < 0 {
			return fmt.Errorf("expect[%d]: non-negative count is required for %s", index, e.Type)
		}
	case ExpectValueRange:
		if e.Min == nil && e.Max == nil {
			return fmt.Errorf("expect[%d]: min or max is required for value_range", index)
		}
		if e.Min != nil && e.Max != nil && *e.Max < *e.Min {
			return fmt.Errorf("expect[%d]: max < min", index)
		}
	default:
		return fmt.Errorf("expect[%d]: unknown expectation type %q", index, e.Type)
	}
	return nil
}

func (d *Drill) workers() int {
	return max(d.Workers, 1)
}

func (d *Drill) timeout() time.Duration {
	if d.Timeout == 0 {
		return DefaultTimeout
	}
	return d.Timeout
}
