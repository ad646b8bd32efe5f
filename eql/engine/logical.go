package engine

import (
	"github.com/eqlang/eql"
	"github.com/eqlang/eql/expr"
)

// Or is the binary logical node of §4.4: for each source binding,
// evaluate Left; pass through any true emission, otherwise evaluate
// Right. Short-circuits on first true from either side.
type Or struct {
	expr.Base

	Left, Right expr.Node
}

// NewOr attaches left and right under a fresh base node.
func NewOr(state *expr.BuildState, left, right expr.Node) (*Or, error) {
	o := &Or{Base: expr.NewBase(state, expr.Binary, expr.Flags{TruthValued: true}, "or_"), Left: left, Right: right}
	if err := o.Base.Attach(o, left); err != nil {
		return nil, err
	}
	if err := o.Base.Attach(o, right); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Or) String() string { return o.Label() }

func (o *Or) Step(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	return &orIter{o: o, ctx: ctx, in: in, left: o.Left.Evaluate(ctx, in)}
}

func (o *Or) Evaluate(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	return o.Step(ctx, in)
}

type orIter struct {
	o    *Or
	ctx  *expr.EvalContext
	in   eql.Binding
	left expr.ResultIter

	leftTrue     bool
	rightStarted bool
	right        expr.ResultIter

	current eql.OperationResult
}

func (it *orIter) Next() bool {
	if !it.rightStarted {
		for it.left.Next() {
			r := it.left.Result()
			if r.Truth {
				it.leftTrue = true
				it.current = r
				return true
			}
		}
		leftErr := errOf(it.left)
		it.left.Close()
		if leftErr != nil {
			// Left aborted rather than merely failing; don't fall through
			// to Right as if Left had exhausted normally.
			return false
		}
		it.rightStarted = true
		if it.leftTrue {
			// Left already passed a true emission through; Right is not
			// evaluated for this source binding.
			it.right = newSliceIterExported(nil)
			return false
		}
		it.right = it.o.Right.Evaluate(it.ctx, it.in)
	}
	for it.right.Next() {
		r := it.right.Result()
		if r.Truth {
			it.current = r
			return true
		}
	}
	return false
}

func (it *orIter) Result() eql.OperationResult { return it.current }

func (it *orIter) Close() error {
	it.left.Close()
	if it.right != nil {
		it.right.Close()
	}
	return nil
}

// Err reports whichever side aborted; §4.4 evaluates Left to exhaustion
// before starting Right, so a Left failure always takes precedence.
func (it *orIter) Err() error {
	if err := errOf(it.left); err != nil {
		return err
	}
	if it.right != nil {
		return errOf(it.right)
	}
	return nil
}

// Not is the unary negation node of §4.4: evaluate Child; emit
// (binding, true) iff Child produced no true emission for that binding,
// else (binding, false). Not does not introduce new variables into the
// outer scope, so it always emits exactly one result per input binding.
type Not struct {
	expr.Base

	Child expr.Node
}

// NewNot attaches child under a fresh base node.
func NewNot(state *expr.BuildState, child expr.Node) (*Not, error) {
	n := &Not{Base: expr.NewBase(state, expr.Unary, expr.Flags{TruthValued: true}, "not_"), Child: child}
	if err := n.Base.Attach(n, child); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Not) String() string { return n.Label() }

// Step always absorbs the child's resolution/callable failures (§4.2/§4.6:
// "NOT always absorbs, so a negated failing predicate may succeed"): it
// runs Child with ctx.Absorbing set so mappedIter/Predicate/SymbolicFunction
// fold any failure into an ordinary false rather than recording it for
// the root to see, then restores the prior Absorbing value for siblings.
func (n *Not) Step(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	prev := ctx.Absorbing
	ctx.Absorbing = true
	child := n.Child.Evaluate(ctx, in)
	anyTrue := false
	for child.Next() {
		if child.Result().Truth {
			anyTrue = true
			break
		}
	}
	child.Close()
	ctx.Absorbing = prev
	return newOneShotIter(eql.Result(in, !anyTrue))
}

func (n *Not) Evaluate(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	return n.Step(ctx, in)
}

// oneShotIter yields a single OperationResult then ends.
type oneShotIter struct {
	r    eql.OperationResult
	done bool
}

func newOneShotIter(r eql.OperationResult) *oneShotIter { return &oneShotIter{r: r} }

func (it *oneShotIter) Next() bool {
	if it.done {
		return false
	}
	it.done = true
	return true
}

func (it *oneShotIter) Result() eql.OperationResult { return it.r }
func (it *oneShotIter) Close() error                { return nil }
