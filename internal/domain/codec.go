package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Wire structs use pointer fields so that a missing key can be told apart
// from a zero value. Every decode goes through decodeStrict.

type variableWire struct {
	Name         *string            `json:"name"`
	Distribution *Distribution      `json:"distribution"`
	Parameters   map[string]float64 `json:"parameters"`
}

type modelWire struct {
	ID         *string     `json:"model_id"`
	Formula    *string     `json:"formula"`
	Variables  *[]Variable `json:"variables"`
	Iterations *int        `json:"iterations"`
}

type scenarioWire struct {
	ID         *string             `json:"scenario_id"`
	ModelID    *string             `json:"model_id"`
	Parameters *map[string]float64 `json:"parameters"`
}

type resultWire struct {
	ScenarioID *string  `json:"scenario_id"`
	ModelID    *string  `json:"model_id"`
	Value      *float64 `json:"result"`
	WorkerID   *string  `json:"worker_id"`
}

// decodeStrict decodes exactly one JSON value into v, rejecting unknown
// fields and trailing data.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

func missing(fields ...string) error {
	return fmt.Errorf("missing required field(s): %v", fields)
}

// UnmarshalJSON requires name and distribution. Parameters may be omitted:
// missing keys take the distribution defaults (see Variable.Param). An
// omitted object decodes as nil and an empty one as an empty map, mirroring
// how a Variable encodes.
func (v *Variable) UnmarshalJSON(data []byte) error {
	var w variableWire
	if err := decodeStrict(data, &w); err != nil {
		return err
	}
	var absent []string
	if w.Name == nil {
		absent = append(absent, "name")
	}
	if w.Distribution == nil {
		absent = append(absent, "distribution")
	}
	if len(absent) > 0 {
		return missing(absent...)
	}
	*v = Variable{Name: NormalizeName(*w.Name), Distribution: *w.Distribution, Parameters: w.Parameters}
	return nil
}

func (m Model) MarshalJSON() ([]byte, error) {
	type alias Model
	a := alias(m)
	if a.Variables == nil {
		a.Variables = []Variable{}
	}
	return json.Marshal(a)
}

// UnmarshalJSON requires every field. Structural decoding does not apply
// Model.Validate, so a zero iteration count survives a round trip; callers
// that are about to use the model validate it themselves. Variables is never
// nil after a decode: a nil slice encodes as [] and comes back empty.
func (m *Model) UnmarshalJSON(data []byte) error {
	var w modelWire
	if err := decodeStrict(data, &w); err != nil {
		return err
	}
	var absent []string
	if w.ID == nil {
		absent = append(absent, "model_id")
	}
	if w.Formula == nil {
		absent = append(absent, "formula")
	}
	if w.Variables == nil {
		absent = append(absent, "variables")
	}
	if w.Iterations == nil {
		absent = append(absent, "iterations")
	}
	if len(absent) > 0 {
		return missing(absent...)
	}
	*m = Model{ID: *w.ID, Formula: *w.Formula, Variables: *w.Variables, Iterations: *w.Iterations}
	return nil
}

func (s Scenario) MarshalJSON() ([]byte, error) {
	type alias Scenario
	a := alias(s)
	if a.Parameters == nil {
		a.Parameters = map[string]float64{}
	}
	return json.Marshal(a)
}

// UnmarshalJSON requires every field. Like Model.Variables, Parameters is
// never nil after a decode.
func (s *Scenario) UnmarshalJSON(data []byte) error {
	var w scenarioWire
	if err := decodeStrict(data, &w); err != nil {
		return err
	}
	var absent []string
	if w.ID == nil {
		absent = append(absent, "scenario_id")
	}
	if w.ModelID == nil {
		absent = append(absent, "model_id")
	}
	if w.Parameters == nil {
		absent = append(absent, "parameters")
	}
	if len(absent) > 0 {
		return missing(absent...)
	}
	*s = Scenario{ID: *w.ID, ModelID: *w.ModelID, Parameters: *w.Parameters}
	return nil
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var w resultWire
	if err := decodeStrict(data, &w); err != nil {
		return err
	}
	var absent []string
	if w.ScenarioID == nil {
		absent = append(absent, "scenario_id")
	}
	if w.ModelID == nil {
		absent = append(absent, "model_id")
	}
	if w.Value == nil {
		absent = append(absent, "result")
	}
	if w.WorkerID == nil {
		absent = append(absent, "worker_id")
	}
	if len(absent) > 0 {
		return missing(absent...)
	}
	*r = Result{ScenarioID: *w.ScenarioID, ModelID: *w.ModelID, Value: *w.Value, WorkerID: *w.WorkerID}
	return nil
}

// DecodeModel parses a Model payload.
func DecodeModel(data []byte) (Model, error) {
	var m Model
	if err := decodeStrict(data, &m); err != nil {
		return Model{}, &DecodeError{Entity: "model", Err: err}
	}
	return m, nil
}

// DecodeScenario parses a Scenario payload.
func DecodeScenario(data []byte) (Scenario, error) {
	var s Scenario
	if err := decodeStrict(data, &s); err != nil {
		return Scenario{}, &DecodeError{Entity: "scenario", Err: err}
	}
	if s.ID == "" || s.ModelID == "" {
		return Scenario{}, &DecodeError{Entity: "scenario", Err: errors.New("scenario_id and model_id must be non-empty")}
	}
	return s, nil
}

// DecodeResult parses a Result payload.
func DecodeResult(data []byte) (Result, error) {
	var r Result
	if err := decodeStrict(data, &r); err != nil {
		return Result{}, &DecodeError{Entity: "result", Err: err}
	}
	return r, nil
}

// Encode serializes a domain value to its wire form.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return data, nil
}
