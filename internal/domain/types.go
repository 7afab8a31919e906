package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Distribution names the probability distribution a variable is drawn from.
// The set is closed: any other value is rejected at construction time.
type Distribution string

const (
	Uniform     Distribution = "uniform"
	Normal      Distribution = "normal"
	Exponential Distribution = "exponential"
)

// Distributions lists the supported distributions in declaration order.
var Distributions = []Distribution{Uniform, Normal, Exponential}

// distributionDefaults holds the parameter keys accepted by each
// distribution and the value used when a key is omitted.
var distributionDefaults = map[Distribution]map[string]float64{
	Uniform:     {"min": 0, "max": 1},
	Normal:      {"mean": 0, "std": 1},
	Exponential: {"scale": 1},
}

// ParseDistribution converts a case-insensitive name into a Distribution.
func ParseDistribution(s string) (Distribution, error) {
	d := Distribution(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("%w %q", ErrUnknownDistribution, s)
	}
	return d, nil
}

// Valid reports whether d is one of the supported distributions.
func (d Distribution) Valid() bool {
	_, ok := distributionDefaults[d]
	return ok
}

// ParamKeys returns the parameter keys d understands, sorted.
func (d Distribution) ParamKeys() []string {
	return slices.Sorted(maps.Keys(distributionDefaults[d]))
}

// DefaultParam returns the value used for key when a variable omits it.
func (d Distribution) DefaultParam(key string) float64 {
	return distributionDefaults[d][key]
}

func (d *Distribution) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("distribution must be a string: %w", err)
	}
	parsed, err := ParseDistribution(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Variable declares one stochastic input of a model.
type Variable struct {
	Name         string             `json:"name"`
	Distribution Distribution       `json:"distribution"`
	Parameters   map[string]float64 `json:"parameters,omitzero"`
}

// NewVariable builds a validated Variable. The name is NFC-normalized and the
// parameter map is copied, so later changes to params are not observed.
func NewVariable(name string, dist Distribution, params map[string]float64) (Variable, error) {
	v := Variable{
		Name:         NormalizeName(name),
		Distribution: dist,
	}
	if len(params) > 0 {
		v.Parameters = maps.Clone(params)
	}
	if err := v.Validate(); err != nil {
		return Variable{}, err
	}
	return v, nil
}

// Param returns the parameter value for key, falling back to the
// distribution default when the variable does not set it.
func (v Variable) Param(key string) float64 {
	if val, ok := v.Parameters[key]; ok {
		return val
	}
	return v.Distribution.DefaultParam(key)
}

// Validate checks the name, the distribution and the parameter values.
func (v Variable) Validate() error {
	if !IsIdentifier(v.Name) {
		return fmt.Errorf("%w: variable name %q is not an identifier", ErrInvalidModel, v.Name)
	}
	if !v.Distribution.Valid() {
		return fmt.Errorf("%w: variable %s: %w %q", ErrInvalidModel, v.Name, ErrUnknownDistribution, v.Distribution)
	}
	for key := range v.Parameters {
		if _, ok := distributionDefaults[v.Distribution][key]; !ok {
			return fmt.Errorf("%w: variable %s: %s does not accept parameter %q (want %s)",
				ErrInvalidModel, v.Name, v.Distribution, key, strings.Join(v.Distribution.ParamKeys(), ", "))
		}
	}

	switch v.Distribution {
	case Uniform:
		if v.Param("max") < v.Param("min") {
			return fmt.Errorf("%w: variable %s: max %g < min %g", ErrInvalidModel, v.Name, v.Param("max"), v.Param("min"))
		}
	case Normal:
		if v.Param("std") < 0 {
			return fmt.Errorf("%w: variable %s: negative std %g", ErrInvalidModel, v.Name, v.Param("std"))
		}
	case Exponential:
		if v.Param("scale") <= 0 {
			return fmt.Errorf("%w: variable %s: scale must be positive, got %g", ErrInvalidModel, v.Name, v.Param("scale"))
		}
	}
	return nil
}

// Model is a formula plus the variables it is evaluated over.
//
// ID correlates the model with the scenarios and results derived from it.
// A published model is never modified; publishing a new one replaces it.
type Model struct {
	ID         string     `json:"model_id"`
	Formula    string     `json:"formula"`
	Variables  []Variable `json:"variables"`
	Iterations int        `json:"iterations"`
}

// DefaultIterations is used when a model definition omits ITERATIONS.
const DefaultIterations = 1000

// NewModel builds a validated Model. The variables slice is copied.
func NewModel(id, formula string, vars []Variable, iterations int) (Model, error) {
	m := Model{
		ID:         id,
		Formula:    strings.TrimSpace(formula),
		Variables:  slices.Clone(vars),
		Iterations: iterations,
	}
	if err := m.Validate(); err != nil {
		return Model{}, err
	}
	return m, nil
}

// Validate enforces the invariants a model must satisfy before publication.
func (m Model) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: model_id is required", ErrInvalidModel)
	}
	if strings.TrimSpace(m.Formula) == "" {
		return fmt.Errorf("%w: formula is required", ErrInvalidModel)
	}
	if m.Iterations < 1 {
		return fmt.Errorf("%w: iterations must be >= 1, got %d", ErrInvalidModel, m.Iterations)
	}
	seen := make(map[string]bool, len(m.Variables))
	for _, v := range m.Variables {
		if err := v.Validate(); err != nil {
			return err
		}
		if seen[v.Name] {
			return fmt.Errorf("%w: duplicate variable %q", ErrInvalidModel, v.Name)
		}
		seen[v.Name] = true
	}
	return nil
}

// VariableNames returns the variable names in declaration order.
func (m Model) VariableNames() []string {
	names := make([]string, len(m.Variables))
	for i, v := range m.Variables {
		names[i] = v.Name
	}
	return names
}

// Scenario is one sampled input configuration for a model.
type Scenario struct {
	ID         string             `json:"scenario_id"`
	ModelID    string             `json:"model_id"`
	Parameters map[string]float64 `json:"parameters"`
}

// ScenarioID derives the scenario id for the seq-th scenario of a model.
// The zero-padded suffix keeps ids of one model lexically ordered.
func ScenarioID(modelID string, seq int64) string {
	return fmt.Sprintf("%s_%06d", modelID, seq)
}

// ParseScenarioID splits a scenario id into its model id and sequence.
func ParseScenarioID(id string) (modelID string, seq int64, ok bool) {
	i := strings.LastIndexByte(id, '_')
	if i <= 0 || i == len(id)-1 {
		return "", 0, false
	}
	seq, err := strconv.ParseInt(id[i+1:], 10, 64)
	if err != nil || seq < 0 {
		return "", 0, false
	}
	return id[:i], seq, true
}

// Result is the terminal output of evaluating one scenario.
type Result struct {
	ScenarioID string  `json:"scenario_id"`
	ModelID    string  `json:"model_id"`
	Value      float64 `json:"result"`
	WorkerID   string  `json:"worker_id"`
}

// NormalizeName trims and NFC-normalizes a variable or binding name.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// IsIdentifier reports whether s can be referenced by name from a formula:
// a letter or underscore followed by letters, digits or underscores.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}
