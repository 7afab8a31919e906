package formula

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"math/rand/v2"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Output bindings, in order of precedence.
const (
	OutputName       = "result"
	LegacyOutputName = "resultado"
)

// maxCachedPrograms bounds the compiled-program cache. Workers hold one
// model at a time, so the cache normally has a single entry.
const maxCachedPrograms = 64

// EvaluationError reports a formula that failed to compile or run.
// Evaluation errors are deterministic: the same formula and bindings fail
// the same way on every attempt.
type EvaluationError struct {
	Formula string
	Cause   error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate formula %q: %v", e.Formula, e.Cause)
}

func (e *EvaluationError) Unwrap() error { return e.Cause }

// IsEvaluationError reports whether err wraps an EvaluationError.
func IsEvaluationError(err error) bool {
	var ee *EvaluationError
	return errors.As(err, &ee)
}

var assignment = regexp.MustCompile(`^([\p{L}_][\p{L}\p{N}_]*)\s*=([^=].*)$`)

// step is one compiled statement of a formula.
type step struct {
	target string
	prog   *vm.Program
}

// Program is a formula compiled for a fixed set of binding names.
type Program struct {
	formula string
	steps   []step
	output  string
}

// Evaluator compiles and runs formulas.
//
// Thread-safety: safe for concurrent use; evaluations are serialized on an
// internal mutex because the random surface shares one source.
type Evaluator struct {
	// Timeout bounds a single evaluation. Zero means no limit.
	//
	// expr programs cannot be interrupted, so a timed-out evaluation keeps
	// running in the background until it finishes and holds the evaluator
	// until then; the caller is released immediately with an EvaluationError.
	Timeout time.Duration

	mu    sync.Mutex
	src   rand.Source
	rng   *rand.Rand
	cache map[string]*Program
}

// NewEvaluator creates an Evaluator whose random functions draw from src.
// A nil src uses a freshly seeded source.
func NewEvaluator(src rand.Source) *Evaluator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Evaluator{
		src:   src,
		rng:   rand.New(src),
		cache: make(map[string]*Program),
	}
}

// Compile compiles formula for bindings with the given names. Programs are
// cached, so compiling the same formula for the same names is cheap.
func (e *Evaluator) Compile(formula string, names []string) (*Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compileLocked(formula, names)
}

func (e *Evaluator) compileLocked(formula string, names []string) (*Program, error) {
	sorted := slices.Sorted(slices.Values(names))
	key := formula + "\x00" + strings.Join(sorted, "\x00")
	if p, ok := e.cache[key]; ok {
		return p, nil
	}

	p, err := e.compile(formula, sorted)
	if err != nil {
		return nil, &EvaluationError{Formula: formula, Cause: err}
	}

	if len(e.cache) >= maxCachedPrograms {
		clear(e.cache)
	}
	e.cache[key] = p
	return p, nil
}

func (e *Evaluator) compile(formula string, names []string) (*Program, error) {
	env := constants()
	for _, n := range names {
		env[n] = 0.0
	}
	p := &Program{formula: formula}
	assigned := make(map[string]bool)
	for i, stmt := range statements(formula) {
		target, body := OutputName, stmt
		if m := assignment.FindStringSubmatch(stmt); m != nil {
			target, body = m[1], strings.TrimSpace(m[2])
		}

		opts := append(e.functions(), expr.Env(maps.Clone(env)))
		prog, err := expr.Compile(body, opts...)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i+1, err)
		}
		p.steps = append(p.steps, step{target: target, prog: prog})

		// Later statements may reference what this one assigns.
		env[target] = 0.0
		assigned[target] = true
	}
	if len(p.steps) == 0 {
		return nil, errors.New("formula has no statements")
	}

	switch {
	case assigned[OutputName]:
		p.output = OutputName
	case assigned[LegacyOutputName]:
		p.output = LegacyOutputName
	}
	return p, nil
}

// Evaluate compiles (or reuses) formula for the binding names and runs it.
func (e *Evaluator) Evaluate(ctx context.Context, formula string, bindings map[string]float64) (float64, error) {
	names := make([]string, 0, len(bindings))
	for n := range bindings {
		names = append(names, n)
	}
	p, err := e.Compile(formula, names)
	if err != nil {
		return 0, err
	}
	return e.Run(ctx, p, bindings)
}

// Run executes a compiled program against bindings.
func (e *Evaluator) Run(ctx context.Context, p *Program, bindings map[string]float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, &EvaluationError{Formula: p.formula, Cause: err}
	}
	if e.Timeout <= 0 {
		return e.run(p, bindings)
	}

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	type outcome struct {
		val float64
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		val, err := e.run(p, bindings)
		done <- outcome{val, err}
	}()

	select {
	case o := <-done:
		return o.val, o.err
	case <-ctx.Done():
		return 0, &EvaluationError{Formula: p.formula, Cause: ctx.Err()}
	}
}

func (e *Evaluator) run(p *Program, bindings map[string]float64) (val float64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Host functions are plain Go; a panic in one must not take the worker down.
	defer func() {
		if r := recover(); r != nil {
			val, err = 0, &EvaluationError{Formula: p.formula, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	env := constants()
	for k, v := range bindings {
		env[k] = v
	}
	for i, s := range p.steps {
		out, err := expr.Run(s.prog, env)
		if err != nil {
			return 0, &EvaluationError{Formula: p.formula, Cause: fmt.Errorf("statement %d: %w", i+1, err)}
		}
		f, err := toFloat(out)
		if err != nil {
			return 0, &EvaluationError{Formula: p.formula, Cause: fmt.Errorf("statement %d: %w", i+1, err)}
		}
		env[s.target] = f
	}

	if p.output == "" {
		return 0, nil
	}
	result := env[p.output].(float64)
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, &EvaluationError{Formula: p.formula, Cause: fmt.Errorf("%s is not finite: %v", p.output, result)}
	}
	return result, nil
}

// statements splits a formula into statements at ";" and newlines that sit
// outside string literals, brackets and comments. "//" and "/* */" comments
// are removed; a top-level line whose first non-blank character is "#" is
// a comment line. Any other "#" is left to expr, where it is the closure
// argument.
func statements(formula string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote rune // open string delimiter, 0 outside strings
		depth int
	)
	flush := func() {
		if stmt := strings.TrimSpace(cur.String()); stmt != "" {
			out = append(out, stmt)
		}
		cur.Reset()
	}

	src := []rune(formula)
	lineStart := true
	for i := 0; i < len(src); i++ {
		c := src[i]

		if quote != 0 {
			cur.WriteRune(c)
			switch {
			case c == '\\' && quote != '`' && i+1 < len(src):
				i++
				cur.WriteRune(src[i])
			case c == quote:
				quote = 0
			}
			continue
		}

		if lineStart && depth == 0 && c == '#' {
			for i < len(src) && src[i] != '\n' {
				i++
			}
			i--
			continue
		}
		if c != ' ' && c != '\t' && c != '\r' {
			lineStart = false
		}

		switch {
		case c == '"' || c == '\'' || c == '`':
			quote = c
			cur.WriteRune(c)
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			i--
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			i += 2
			for i < len(src) && !(src[i] == '*' && i+1 < len(src) && src[i+1] == '/') {
				i++
			}
			i++ // on the closing '/', or past the end when unterminated
			cur.WriteRune(' ')
		case c == '(' || c == '[' || c == '{':
			depth++
			cur.WriteRune(c)
		case c == ')' || c == ']' || c == '}':
			depth = max(depth-1, 0)
			cur.WriteRune(c)
		case c == '\n':
			lineStart = true
			if depth == 0 {
				flush()
			} else {
				cur.WriteRune(' ')
			}
		case c == ';' && depth == 0:
			flush()
		default:
			cur.WriteRune(c)
		}
	}
	flush()
	return out
}

func constants() map[string]any {
	return map[string]any{
		"PI": math.Pi,
		"E":  math.E,
	}
}
