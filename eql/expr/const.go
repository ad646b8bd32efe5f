package expr

import (
	"fmt"

	"github.com/eqlang/eql"
)

// Const is a leaf node binding a single fixed value to its own identity,
// used by structural match builders (§4.9) to compare an attribute
// against a literal without inventing a one-element Variable domain.
type Const struct {
	Base

	VarID eql.VarID
	Value interface{}
}

// NewConst builds a literal-value leaf.
func NewConst(state *BuildState, value interface{}) *Const {
	return &Const{
		Base:  newBase(state, Nullary, Flags{TruthValued: true, Selectable: true}, fmt.Sprintf("Const(%v)", value)),
		VarID: eql.NewVarID(),
		Value: value,
	}
}

func (c *Const) String() string { return c.Label() }

func (c *Const) Step(ctx *EvalContext, in eql.Binding) ResultIter {
	return newSliceIter([]eql.OperationResult{eql.Result(in.With(c.VarID, c.Value), true)})
}

func (c *Const) Evaluate(ctx *EvalContext, in eql.Binding) ResultIter {
	return c.Step(ctx, in)
}
