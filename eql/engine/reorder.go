// Package engine implements the combinators built atop eql/expr's node
// model: the AND cartesian-product node, OR/NOT, GroupedBy and its
// aggregators, result-shaping (ordered_by/limit/distinct), quantifiers,
// and the rule-tree/inference mechanism of spec.md §4.3-§4.11.
//
// Structurally this generalises the teacher's datalog/planner (phase
// reordering) and datalog/executor (relation combinators, aggregation)
// packages from Tuple/Relation streams to the expr.Node/OperationResult
// model.
package engine

import (
	"sort"

	"github.com/eqlang/eql"
	"github.com/eqlang/eql/expr"
)

// producesVars reports the VarIDs a node introduces into the binding when
// it succeeds, used by reorder to rank "pure truth test" children (zero
// new vars) ahead of variable-introducing ones (§4.3 child reordering).
func producesVars(n expr.Node) []eql.VarID {
	switch t := n.(type) {
	case *expr.Variable:
		return []eql.VarID{t.VarID}
	case *expr.MappedVariable:
		return []eql.VarID{t.VarID}
	case *expr.SymbolicFunction:
		return []eql.VarID{t.VarID}
	case *expr.Predicate, *expr.Comparator, *expr.HasType, *expr.In:
		return nil
	default:
		// Unknown node kinds (OR/NOT/combinators nested as children):
		// conservatively treat as variable-introducing by walking children.
		var out []eql.VarID
		for _, c := range n.Children() {
			out = append(out, producesVars(c)...)
		}
		return out
	}
}

// reorderChildren stably sorts children by ascending count of newly
// produced variables, breaking ties by original attachment order — a
// structural, one-time computation per combinator node (§4.3), not a
// per-binding optimisation.
func reorderChildren(children []expr.Node) []expr.Node {
	type entry struct {
		node  expr.Node
		count int
		order int
	}
	entries := make([]entry, len(children))
	for i, c := range children {
		entries[i] = entry{node: c, count: len(producesVars(c)), order: i}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].count < entries[j].count
	})
	out := make([]expr.Node, len(entries))
	for i, e := range entries {
		out[i] = e.node
	}
	return out
}
