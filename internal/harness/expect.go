package harness

import (
	"fmt"
	"strings"
)

// ExpectationError is one expectation that did not hold.
type ExpectationError struct {
	Type     string `json:"type"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

func (e *ExpectationError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "expectation failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// Check evaluates every expectation against r and returns the failures in
// declaration order.
func Check(r *Report, expectations []Expectation) []*ExpectationError {
	var failures []*ExpectationError
	for _, e := range expectations {
		if err := check(r, e); err != nil {
			failures = append(failures, err)
		}
	}
	return failures
}

func check(r *Report, e Expectation) *ExpectationError {
	exact := func(actual int) *ExpectationError {
		if actual == *e.Count {
			return nil
		}
		return &ExpectationError{
			Type:     e.Type,
			Expected: fmt.Sprintf("%d", *e.Count),
			Actual:   fmt.Sprintf("%d", actual),
		}
	}

	switch e.Type {
	case ExpectResults:
		return exact(r.Results)
	case ExpectUnique:
		return exact(r.Unique)
	case ExpectDuplicates:
		return exact(r.Duplicates)
	case ExpectDropped:
		return exact(r.Dropped)
	case ExpectWorkersUsed:
		if len(r.PerWorker) >= *e.Count {
			return nil
		}
		return &ExpectationError{
			Type:     e.Type,
			Expected: fmt.Sprintf("at least %d workers with results", *e.Count),
			Actual:   fmt.Sprintf("%d (%v)", len(r.PerWorker), r.PerWorker),
		}
	case ExpectValueRange:
		return checkRange(r, e)
	default:
		return &ExpectationError{Type: e.Type, Expected: "a known expectation type", Actual: e.Type}
	}
}

func checkRange(r *Report, e Expectation) *ExpectationError {
	if r.Stats.Count == 0 {
		return &ExpectationError{Type: e.Type, Expected: "results to check", Actual: "no results"}
	}
	lo, hi := "-inf", "+inf"
	ok := true
	if e.Min != nil {
		lo = fmt.Sprintf("%g", *e.Min)
		ok = ok && r.Stats.Min >= *e.Min
	}
	if e.Max != nil {
		hi = fmt.Sprintf("%g", *e.Max)
		ok = ok && r.Stats.Max <= *e.Max
	}
	if ok {
		return nil
	}
	return &ExpectationError{
		Type:     e.Type,
		Expected: fmt.Sprintf("every result in [%s, %s]", lo, hi),
		Actual:   fmt.Sprintf("min %g, max %g", r.Stats.Min, r.Stats.Max),
	}
}
