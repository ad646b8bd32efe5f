// Package errkind defines the EQL engine's error taxonomy (spec.md §7)
// using the parameterised-kind error style from the dolthub-go-mysql-server
// example pack's auth package (`errors.NewKind("...")`, `Kind.New(args...)`,
// `Kind.Is(err)`). Each Kind below is built-time or evaluation-time
// dispatchable by identity, while still carrying a formatted message with
// the expression path from root to failure site, as §7 requires.
package errkind

import (
	goerrors "gopkg.in/src-d/go-errors.v1"
)

var (
	// QueryStructureFrozen: mutation attempted after build().
	QueryStructureFrozen = goerrors.NewKind("query structure frozen after build: %s")

	// QueryStructureInvalid: aggregator in where, dangling selectable,
	// missing quantifier, or a cycle detected at attach time.
	QueryStructureInvalid = goerrors.NewKind("invalid query structure: %s")

	// SymbolicResolutionError: attribute/index/call failed during
	// evaluation of a MappedVariable.
	SymbolicResolutionError = goerrors.NewKind("symbolic resolution failed at %s: %s")

	// NoSolutionFound: the() quantifier observed zero results.
	NoSolutionFound = goerrors.NewKind("no solution found for %s")

	// MoreThanOneSolutionFound: the() quantifier observed a second result.
	MoreThanOneSolutionFound = goerrors.NewKind("more than one solution found for %s")

	// UserCallableError: an embedded Predicate/SymbolicFunction raised and
	// no branch absorbed the failure.
	UserCallableError = goerrors.NewKind("user callable at %s raised: %s")
)

// WithPath renders a node-identity path (root -> failure site) the way
// all surfaced errors must, per §7 ("all surfaced errors carry the
// expression path ... for diagnostics").
func WithPath(path []string) string {
	if len(path) == 0 {
		return "<root>"
	}
	out := path[0]
	for _, p := range path[1:] {
		out += " -> " + p
	}
	return out
}
