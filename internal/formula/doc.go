// Package formula evaluates model formulas against sampled bindings.
//
// A formula is a short sequence of statements separated by ";" or newlines:
//
//	margin = price - cost
//	result = margin * units
//
// "name = expression" assigns; a bare expression assigns to result. A
// statement may span lines inside brackets. Comments are "//", "/* */" and
// whole lines starting with "#"; elsewhere "#" is the closure argument, as
// in sum(map(xs, # * 2)).
// Expressions use the expr-lang syntax (arithmetic, comparisons, "cond ? a : b",
// "**" for powers) and can call a fixed function surface: math (sqrt, exp,
// log, log10, pow, sin, cos, tan plus the expr builtins abs, floor, ceil,
// round, min, max), randomness (random, uniform, normal, exponential) and
// statistics over arrays (the expr builtins sum, mean, median plus stddev,
// variance, quantile). PI and E are predefined.
//
// The output is the value of result, or resultado when only that name is
// assigned, or 0 when neither is.
//
// Formulas are operator-supplied. Nothing outside the function surface is
// reachable from a formula: there is no I/O, no reflection into host values
// and no unbounded loop construct. A wall-clock limit can be set with
// Evaluator.Timeout.
package formula
