package engine

import (
	"github.com/eqlang/eql"
	"github.com/eqlang/eql/expr"
)

// And is the binary/multi-arity conjunction node of §4.3/§4.4: a
// cartesian product over its (reordered) children with short-circuit on
// the first false emission per branch.
type And struct {
	expr.Base

	ordered  []expr.Node
	original []expr.Node
}

// NewAnd reorders children once at construction (§4.3's "structural, not
// per-binding" reordering) and attaches them under a fresh base node.
func NewAnd(state *expr.BuildState, children []expr.Node) (*And, error) {
	a := &And{Base: expr.NewBase(state, expr.MultiArity, expr.Flags{TruthValued: true}, "and_"), original: children}
	for _, c := range children {
		if err := a.Base.Attach(a, c); err != nil {
			return nil, err
		}
	}
	a.ordered = reorderChildren(children)
	return a, nil
}

func (a *And) String() string { return a.Label() }

func (a *And) Step(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	return expr.NewProduct(ctx, in, a.ordered)
}

func (a *And) Evaluate(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	return a.Step(ctx, in)
}
