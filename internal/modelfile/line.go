package modelfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/domain"
)

const (
	directiveFunction   = "FUNCTION:"
	directiveIterations = "ITERATIONS:"
	directiveVar        = "VAR:"
)

// ParseLines reads a line-format definition from r. name is used in error
// messages only.
func ParseLines(r io.Reader, name string, ids domain.IDGenerator) (domain.Model, error) {
	var (
		statements []string
		variables  []domain.Variable
		iterations = domain.DefaultIterations
	)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fail := func(err error) (domain.Model, error) {
			return domain.Model{}, &ParseError{File: name, Line: lineNo, Err: err}
		}

		switch {
		case strings.HasPrefix(line, directiveFunction):
			stmt := strings.TrimSpace(strings.TrimPrefix(line, directiveFunction))
			if stmt == "" {
				return fail(errors.New("empty FUNCTION"))
			}
			statements = append(statements, stmt)

		case strings.HasPrefix(line, directiveIterations):
			raw := strings.TrimSpace(strings.TrimPrefix(line, directiveIterations))
			n, err := strconv.Atoi(raw)
			if err != nil {
				return fail(fmt.Errorf("ITERATIONS: %q is not an integer", raw))
			}
			iterations = n

		case strings.HasPrefix(line, directiveVar):
			v, err := parseVar(strings.TrimPrefix(line, directiveVar))
			if err != nil {
				return fail(err)
			}
			variables = append(variables, v)

		default:
			return fail(fmt.Errorf("unknown directive in %q", line))
		}
	}
	if err := scanner.Err(); err != nil {
		return domain.Model{}, &ParseError{File: name, Err: err}
	}

	m, err := domain.NewModel(ids.Generate(), strings.Join(statements, "\n"), variables, iterations)
	if err != nil {
		return domain.Model{}, &ParseError{File: name, Err: err}
	}
	return m, nil
}

// parseVar parses "name,distribution,key=value,...".
func parseVar(spec string) (domain.Variable, error) {
	parts := strings.Split(spec, ",")
	if len(parts) < 2 {
		return domain.Variable{}, fmt.Errorf("VAR: want name,distribution[,key=value...], got %q", strings.TrimSpace(spec))
	}

	dist, err := domain.ParseDistribution(strings.TrimSpace(parts[1]))
	if err != nil {
		return domain.Variable{}, fmt.Errorf("VAR %s: %w", strings.TrimSpace(parts[0]), err)
	}

	var params map[string]float64
	for _, p := range parts[2:] {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		key, raw, ok := strings.Cut(p, "=")
		if !ok {
			return domain.Variable{}, fmt.Errorf("VAR %s: parameter %q is not key=value", strings.TrimSpace(parts[0]), p)
		}
		key = strings.TrimSpace(key)
		val, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return domain.Variable{}, fmt.Errorf("VAR %s: parameter %s: %q is not a number", strings.TrimSpace(parts[0]), key, strings.TrimSpace(raw))
		}
		if params == nil {
			params = make(map[string]float64)
		}
		if _, dup := params[key]; dup {
			return domain.Variable{}, fmt.Errorf("VAR %s: duplicate parameter %s", strings.TrimSpace(parts[0]), key)
		}
		params[key] = val
	}

	return domain.NewVariable(parts[0], dist, params)
}
