package formula

import (
	"fmt"
	"math"
	"slices"

	"github.com/expr-lang/expr"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// functions returns the host functions a formula may call. Names already
// provided by expr builtins (abs, floor, ceil, round, min, max, sum, mean,
// median) are not redefined.
func (e *Evaluator) functions() []expr.Option {
	return []expr.Option{
		unary("sqrt", math.Sqrt),
		unary("exp", math.Exp),
		unary("log", math.Log),
		unary("log10", math.Log10),
		unary("sin", math.Sin),
		unary("cos", math.Cos),
		unary("tan", math.Tan),
		expr.Function("pow", func(params ...any) (any, error) {
			xs, err := floats("pow", params, 2)
			if err != nil {
				return nil, err
			}
			return math.Pow(xs[0], xs[1]), nil
		}),

		expr.Function("random", func(params ...any) (any, error) {
			if len(params) != 0 {
				return nil, fmt.Errorf("random: want 0 arguments, got %d", len(params))
			}
			return e.rng.Float64(), nil
		}),
		expr.Function("uniform", func(params ...any) (any, error) {
			xs, err := floats("uniform", params, 2)
			if err != nil {
				return nil, err
			}
			if xs[1] < xs[0] {
				return nil, fmt.Errorf("uniform: max %v < min %v", xs[1], xs[0])
			}
			return distuv.Uniform{Min: xs[0], Max: xs[1], Src: e.src}.Rand(), nil
		}),
		expr.Function("normal", func(params ...any) (any, error) {
			xs, err := floats("normal", params, 2)
			if err != nil {
				return nil, err
			}
			if xs[1] < 0 {
				return nil, fmt.Errorf("normal: negative std %v", xs[1])
			}
			return distuv.Normal{Mu: xs[0], Sigma: xs[1], Src: e.src}.Rand(), nil
		}),
		expr.Function("exponential", func(params ...any) (any, error) {
			xs, err := floats("exponential", params, 1)
			if err != nil {
				return nil, err
			}
			if xs[0] <= 0 {
				return nil, fmt.Errorf("exponential: scale must be positive, got %v", xs[0])
			}
			return distuv.Exponential{Rate: 1 / xs[0], Src: e.src}.Rand(), nil
		}),

		sample("stddev", stat.StdDev),
		sample("variance", stat.Variance),
		expr.Function("quantile", func(params ...any) (any, error) {
			if len(params) != 2 {
				return nil, fmt.Errorf("quantile: want 2 arguments, got %d", len(params))
			}
			xs, err := array("quantile", params[0])
			if err != nil {
				return nil, err
			}
			p, err := toFloat(params[1])
			if err != nil {
				return nil, fmt.Errorf("quantile: %w", err)
			}
			if p < 0 || p > 1 {
				return nil, fmt.Errorf("quantile: p %v outside [0, 1]", p)
			}
			if len(xs) == 0 {
				return nil, fmt.Errorf("quantile: empty array")
			}
			slices.Sort(xs)
			return stat.Quantile(p, stat.Empirical, xs, nil), nil
		}),
	}
}

func unary(name string, fn func(float64) float64) expr.Option {
	return expr.Function(name, func(params ...any) (any, error) {
		xs, err := floats(name, params, 1)
		if err != nil {
			return nil, err
		}
		return fn(xs[0]), nil
	})
}

func sample(name string, fn func(x, weights []float64) float64) expr.Option {
	return expr.Function(name, func(params ...any) (any, error) {
		if len(params) != 1 {
			return nil, fmt.Errorf("%s: want 1 argument, got %d", name, len(params))
		}
		xs, err := array(name, params[0])
		if err != nil {
			return nil, err
		}
		if len(xs) < 2 {
			return nil, fmt.Errorf("%s: need at least 2 values, got %d", name, len(xs))
		}
		return fn(xs, nil), nil
	})
}

func floats(name string, params []any, n int) ([]float64, error) {
	if len(params) != n {
		return nil, fmt.Errorf("%s: want %d arguments, got %d", name, n, len(params))
	}
	xs := make([]float64, n)
	for i, p := range params {
		f, err := toFloat(p)
		if err != nil {
			return nil, fmt.Errorf("%s: argument %d: %w", name, i+1, err)
		}
		xs[i] = f
	}
	return xs, nil
}

func array(name string, v any) ([]float64, error) {
	switch vs := v.(type) {
	case []float64:
		return slices.Clone(vs), nil
	case []any:
		xs := make([]float64, len(vs))
		for i, item := range vs {
			f, err := toFloat(item)
			if err != nil {
				return nil, fmt.Errorf("%s: element %d: %w", name, i, err)
			}
			xs[i] = f
		}
		return xs, nil
	default:
		return nil, fmt.Errorf("%s: want an array, got %T", name, v)
	}
}

// toFloat converts a numeric expr value to float64.
func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("non-numeric value %v (%T)", v, v)
	}
}
