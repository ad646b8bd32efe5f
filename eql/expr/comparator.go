package expr

import (
	"fmt"

	"github.com/eqlang/eql"
	"github.com/eqlang/eql/host"
)

// CompareOp enumerates the §4.5 Comparator subclasses.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
)

func (op CompareOp) String() string {
	switch op {
	case OpEq:
		return "=="
	case OpNeq:
		return "!="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	default:
		return "?"
	}
}

func (op CompareOp) apply(a, b interface{}) bool {
	switch op {
	case OpEq:
		return eql.ValuesEqual(a, b)
	case OpNeq:
		return !eql.ValuesEqual(a, b)
	case OpLt:
		return eql.CompareValues(a, b) < 0
	case OpLte:
		return eql.CompareValues(a, b) <= 0
	case OpGt:
		return eql.CompareValues(a, b) > 0
	case OpGte:
		return eql.CompareValues(a, b) >= 0
	default:
		return false
	}
}

// Comparator is a binary node comparing two symbolic value-producing
// sub-DAGs (§4.5). Left and Right are evaluated via the shared cartesian
// product schema (so either side may itself introduce new variables), then
// compared by host semantics once both values are bound.
type Comparator struct {
	Base

	Op          CompareOp
	Left, Right Node
}

// NewComparator attaches left and right as children.
func NewComparator(state *BuildState, op CompareOp, left, right Node) (*Comparator, error) {
	c := &Comparator{
		Base: newBase(state, Binary, Flags{TruthValued: true}, fmt.Sprintf("Comparator(%s)", op)),
		Op:   op,
		Left: left, Right: right,
	}
	if err := c.Base.attach(c, left); err != nil {
		return nil, err
	}
	if err := c.Base.attach(c, right); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Comparator) String() string { return c.Label() }

func (c *Comparator) Step(ctx *EvalContext, in eql.Binding) ResultIter {
	leftID, rightID := argVarID(c.Left), argVarID(c.Right)
	prod := newProductIter(ctx, in, []Node{c.Left, c.Right})
	return &comparatorIter{op: c.Op, leftID: leftID, rightID: rightID, prod: prod}
}

func (c *Comparator) Evaluate(ctx *EvalContext, in eql.Binding) ResultIter {
	return c.Step(ctx, in)
}

type comparatorIter struct {
	op             CompareOp
	leftID, rightID eql.VarID
	prod           *productIter
	current        eql.OperationResult
}

func (it *comparatorIter) Next() bool {
	if !it.prod.Next() {
		return false
	}
	r := it.prod.Result()
	lv, _ := r.Binding.Get(it.leftID)
	rv, _ := r.Binding.Get(it.rightID)
	it.current = eql.Result(r.Binding, it.op.apply(lv, rv))
	return true
}

func (it *comparatorIter) Result() eql.OperationResult { return it.current }
func (it *comparatorIter) Close() error                { return it.prod.Close() }

// In builds `in_(x, C)`: truth iff x's value equals some element of the
// (possibly symbolic) collection C. If C is concrete, membership is a
// direct scan; if C is symbolic, it is cartesian-producted per element
// before comparison (§4.5).
type In struct {
	Base

	X Node
	// Exactly one of ConcreteSet or CollectionNode is set.
	ConcreteSet    []interface{}
	CollectionNode Node // a symbolic node whose bound value is a Go slice
}

// NewInConcrete builds in_(x, C) over a concrete host collection.
func NewInConcrete(state *BuildState, x Node, set []interface{}) (*In, error) {
	n := &In{Base: newBase(state, Unary, Flags{TruthValued: true}, "in_"), X: x, ConcreteSet: set}
	if err := n.Base.attach(n, x); err != nil {
		return nil, err
	}
	return n, nil
}

// NewInSymbolic builds in_(x, C) where C is itself a symbolic value
// producer (e.g. a MappedVariable Attribute resolving to a slice field).
func NewInSymbolic(state *BuildState, x Node, collection Node) (*In, error) {
	n := &In{Base: newBase(state, Binary, Flags{TruthValued: true}, "in_"), X: x, CollectionNode: collection}
	if err := n.Base.attach(n, x); err != nil {
		return nil, err
	}
	if err := n.Base.attach(n, collection); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *In) String() string { return n.Label() }

func (n *In) Step(ctx *EvalContext, in eql.Binding) ResultIter {
	xID := argVarID(n.X)
	var children []Node
	if n.CollectionNode != nil {
		children = []Node{n.X, n.CollectionNode}
	} else {
		children = []Node{n.X}
	}
	prod := newProductIter(ctx, in, children)
	collID := argVarID(n.CollectionNode)
	return &inIter{n: n, xID: xID, collID: collID, prod: prod}
}

func (n *In) Evaluate(ctx *EvalContext, in eql.Binding) ResultIter { return n.Step(ctx, in) }

type inIter struct {
	n       *In
	xID     eql.VarID
	collID  eql.VarID
	prod    *productIter
	current eql.OperationResult
}

func (it *inIter) Next() bool {
	if !it.prod.Next() {
		return false
	}
	r := it.prod.Result()
	xv, _ := r.Binding.Get(it.xID)
	set := it.n.ConcreteSet
	if it.n.CollectionNode != nil {
		if cv, ok := r.Binding.Get(it.collID); ok {
			set = toInterfaceSlice(cv)
		}
	}
	truth := false
	for _, e := range set {
		if eql.ValuesEqual(xv, e) {
			truth = true
			break
		}
	}
	it.current = eql.Result(r.Binding, truth)
	return true
}

func (it *inIter) Result() eql.OperationResult { return it.current }
func (it *inIter) Close() error                { return it.prod.Close() }

// Contains builds `contains(C, x)`, the dual of in_ (§4.5).
func NewContains(state *BuildState, collection Node, x Node) (*In, error) {
	return NewInSymbolic(state, x, collection)
}

func toInterfaceSlice(v interface{}) []interface{} {
	if s, ok := v.([]interface{}); ok {
		return s
	}
	elems, err := host.Flatten(v)
	if err != nil {
		return nil
	}
	return elems
}
