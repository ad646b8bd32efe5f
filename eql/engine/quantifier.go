package engine

import (
	"fmt"

	"github.com/eqlang/eql"
	"github.com/eqlang/eql/errkind"
	"github.com/eqlang/eql/expr"
)

// QuantKind enumerates the §4.10 quantifiers wrapping a query root.
type QuantKind int

const (
	An QuantKind = iota
	The
	Exactly
	AtLeast
	AtMost
)

// Quantifier wraps the query root and enforces the cardinality contract
// the kind names. an() is a pass-through; the() must pull exactly two
// elements before deciding (§5); Exactly/AtMost buffer up to one past the
// required count, AtLeast buffers the whole stream.
type Quantifier struct {
	expr.Base

	Source expr.Node
	Kind   QuantKind
	K      int // used by Exactly/AtLeast/AtMost

	path []string // node-identity path for error diagnostics (§7)
}

// NewQuantifier attaches source.
func NewQuantifier(state *expr.BuildState, source expr.Node, kind QuantKind, k int, path []string) (*Quantifier, error) {
	q := &Quantifier{
		Base:   expr.NewBase(state, expr.Unary, expr.Flags{TruthValued: true, Selectable: true}, quantLabel(kind)),
		Source: source,
		Kind:   kind,
		K:      k,
		path:   path,
	}
	if err := q.Base.Attach(q, source); err != nil {
		return nil, err
	}
	return q, nil
}

func quantLabel(k QuantKind) string {
	switch k {
	case An:
		return "an"
	case The:
		return "the"
	case Exactly:
		return "Exactly"
	case AtLeast:
		return "AtLeast"
	case AtMost:
		return "AtMost"
	default:
		return "quantifier"
	}
}

func (q *Quantifier) String() string { return q.Label() }

// Step is a no-op pass-through; the cardinality contract is enforced by
// Evaluate once per call.
func (q *Quantifier) Step(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	return q.Source.Evaluate(ctx, in)
}

// Evaluate drives the cardinality checks described in §4.10/§5. For `an`,
// it is a transparent pass-through of truthy emissions. For `the`, it
// pulls exactly two truthy elements before deciding, raising
// NoSolutionFound or MoreThanOneSolutionFound as appropriate. For
// Exactly/AtMost it buffers up to K+1 truthy elements, for AtLeast every
// truthy element, and then raises or releases.
func (q *Quantifier) Evaluate(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	switch q.Kind {
	case An:
		return newTruthyFilterIter(q.Source.Evaluate(ctx, in))
	case The:
		return q.evaluateThe(ctx, in)
	case Exactly, AtLeast, AtMost:
		return q.evaluateBounded(ctx, in)
	default:
		return newTruthyFilterIter(q.Source.Evaluate(ctx, in))
	}
}

func (q *Quantifier) evaluateThe(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	src := newTruthyFilterIter(q.Source.Evaluate(ctx, in))
	if !src.Next() {
		err := errOf(src)
		src.Close()
		if err == nil {
			err = errkind.NoSolutionFound.New(errkind.WithPath(q.path))
		}
		return newErrorIter(err)
	}
	first := src.Result()
	if src.Next() {
		src.Close()
		return newErrorIter(errkind.MoreThanOneSolutionFound.New(errkind.WithPath(q.path)))
	}
	if err := errOf(src); err != nil {
		src.Close()
		return newErrorIter(err)
	}
	src.Close()
	return newOneShotIter(first)
}

func (q *Quantifier) evaluateBounded(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	src := newTruthyFilterIter(q.Source.Evaluate(ctx, in))
	var buf []eql.OperationResult
	for (q.Kind == AtLeast || len(buf) <= q.K) && src.Next() {
		buf = append(buf, src.Result())
	}
	err := errOf(src)
	src.Close()
	if err != nil {
		return newErrorIter(err)
	}

	switch q.Kind {
	case Exactly:
		if len(buf) != q.K {
			return newErrorIter(errkind.QueryStructureInvalid.New(fmt.Sprintf("%s: expected exactly %d, observed %d", errkind.WithPath(q.path), q.K, len(buf))))
		}
	case AtLeast:
		if len(buf) < q.K {
			return newErrorIter(errkind.QueryStructureInvalid.New(fmt.Sprintf("%s: expected at least %d, observed %d", errkind.WithPath(q.path), q.K, len(buf))))
		}
	case AtMost:
		if len(buf) > q.K {
			buf = buf[:q.K]
		}
	}
	return newSliceIterExported(buf)
}

// truthyFilterIter passes through only true emissions, as the() and an()
// deal exclusively in successful results.
type truthyFilterIter struct {
	src     expr.ResultIter
	current eql.OperationResult
}

func newTruthyFilterIter(src expr.ResultIter) *truthyFilterIter { return &truthyFilterIter{src: src} }

func (it *truthyFilterIter) Next() bool {
	for it.src.Next() {
		r := it.src.Result()
		if r.Truth {
			it.current = r
			return true
		}
	}
	return false
}

func (it *truthyFilterIter) Result() eql.OperationResult { return it.current }
func (it *truthyFilterIter) Close() error                { return it.src.Close() }

// Err delegates to the wrapped source, surfacing whatever resolution or
// callable error aborted the upstream stream.
func (it *truthyFilterIter) Err() error { return errOf(it.src) }

// errorIter surfaces a build/evaluation error on the first Next() call,
// per §7's "quantifier breaches are raised from the first pull".
type errorIter struct {
	err  error
	done bool
}

func newErrorIter(err error) *errorIter { return &errorIter{err: err} }

func (it *errorIter) Next() bool                 { return false }
func (it *errorIter) Result() eql.OperationResult { return eql.OperationResult{} }
func (it *errorIter) Close() error                { return nil }

// Err returns the error this iterator was constructed to surface, checked
// by the query façade's evaluate()/tolist()/first() drivers.
func (it *errorIter) Err() error { return it.err }
