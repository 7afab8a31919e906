package sampling

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/domain"
)

// Sampler draws one value per call.
type Sampler = distuv.Rander

// NewSampler creates the Sampler for a variable specification.
//
//   - uniform:     [min, max)
//   - normal:      mean, std
//   - exponential: scale (mean of the distribution; rate = 1/scale)
//
// Missing parameters take the distribution defaults. The variable is
// validated first so a sampler is never built over invalid parameters.
func NewSampler(v domain.Variable, src rand.Source) (Sampler, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}

	switch v.Distribution {
	case domain.Uniform:
		return distuv.Uniform{Min: v.Param("min"), Max: v.Param("max"), Src: src}, nil

	case domain.Normal:
		return distuv.Normal{Mu: v.Param("mean"), Sigma: v.Param("std"), Src: src}, nil

	case domain.Exponential:
		return distuv.Exponential{Rate: 1 / v.Param("scale"), Src: src}, nil

	default:
		return nil, fmt.Errorf("%w %q", domain.ErrUnknownDistribution, v.Distribution)
	}
}
