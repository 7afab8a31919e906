package sampling

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/domain"
)

// Generator produces successive scenarios for one model by sampling every
// declared variable once per scenario.
//
// Scenario ids are "{model_id}_{seq:06d}" with seq strictly increasing from
// the start value, so ids from one generator are unique and ordered. A
// failed draw still consumes its sequence number.
//
// Thread-safety: NOT thread-safe. The producer drives it from one goroutine.
type Generator struct {
	model    domain.Model
	samplers []Sampler
	seq      int64
}

// NewGenerator builds a generator for m whose first scenario has sequence
// number start. Every sampler is constructed up front, so an invalid
// variable fails here rather than on the first draw.
func NewGenerator(m domain.Model, src rand.Source, start int64) (*Generator, error) {
	samplers := make([]Sampler, len(m.Variables))
	for i, v := range m.Variables {
		s, err := NewSampler(v, src)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", m.ID, err)
		}
		samplers[i] = s
	}
	return &Generator{model: m, samplers: samplers, seq: start}, nil
}

// Next samples the next scenario.
func (g *Generator) Next() (domain.Scenario, error) {
	seq := g.seq
	g.seq++

	params := make(map[string]float64, len(g.samplers))
	for i, s := range g.samplers {
		val := s.Rand()
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return domain.Scenario{}, fmt.Errorf("scenario %s: variable %s sampled non-finite value %v",
				domain.ScenarioID(g.model.ID, seq), g.model.Variables[i].Name, val)
		}
		params[g.model.Variables[i].Name] = val
	}
	if len(params) == 0 {
		params = nil
	}

	return domain.Scenario{
		ID:         domain.ScenarioID(g.model.ID, seq),
		ModelID:    g.model.ID,
		Parameters: params,
	}, nil
}

// NextSeq returns the sequence number the next scenario will use.
func (g *Generator) NextSeq() int64 {
	return g.seq
}

// Model returns the model this generator samples.
func (g *Generator) Model() domain.Model {
	return g.model
}
