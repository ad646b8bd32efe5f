package expr

import (
	"fmt"
	"reflect"

	"github.com/eqlang/eql"
	"github.com/eqlang/eql/errkind"
	"github.com/eqlang/eql/host"
)

// Callable is a user-supplied pure function wrapped by Predicate or
// SymbolicFunction (§4.6). Args arrive already resolved from the current
// binding, in argument order.
type Callable func(args []interface{}) (interface{}, error)

// Predicate is an n-ary node wrapping a user callable returning bool (§4.6).
// If the callable raises, Predicate emits a false result rather than
// propagating immediately; the iterator it returns records the failure
// and surfaces a UserCallableError through Err() once every branch over
// the current binding has failed, unless Absorbing is set (an "optional"
// predicate) or the enclosing context is already absorbing (inside NOT).
type Predicate struct {
	Base

	Fn       Callable
	ArgNodes []Node

	// Absorbing marks this predicate as optional per §4.6/§7: a raised
	// callable error is folded into an ordinary false result and never
	// surfaced, the same way NOT always absorbs its child.
	Absorbing bool

	lastErr error
}

// MarkAbsorbing marks p as an optional predicate: callable errors never
// surface past it, matching NOT's absorption.
func (p *Predicate) MarkAbsorbing() { p.Absorbing = true }

// NewPredicate attaches each arg node as a child and wraps fn.
func NewPredicate(state *BuildState, fn Callable, args []Node, label string) (*Predicate, error) {
	if label == "" {
		label = "Predicate"
	}
	p := &Predicate{
		Base:     newBase(state, MultiArity, Flags{TruthValued: true}, label),
		Fn:       fn,
		ArgNodes: args,
	}
	for _, a := range args {
		if err := p.Base.attach(p, a); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Predicate) String() string { return p.Label() }

func (p *Predicate) Step(ctx *EvalContext, in eql.Binding) ResultIter {
	return newProductThenCallIter(ctx, in, p.ArgNodes, p.Label(), p.Absorbing, func(b eql.Binding, args []interface{}) (eql.OperationResult, error) {
		v, err := p.Fn(args)
		if err != nil {
			p.lastErr = err
			return eql.Result(b, false), err
		}
		truth, _ := v.(bool)
		return eql.Result(b, truth), nil
	})
}

func (p *Predicate) Evaluate(ctx *EvalContext, in eql.Binding) ResultIter {
	return p.Step(ctx, in)
}

// LastError returns the most recent callable error this predicate
// observed, or nil if none has been raised.
func (p *Predicate) LastError() error { return p.lastErr }

// SymbolicFunction wraps a user callable returning a value rather than a
// boolean (§4.6); it is TruthValued and Selectable. A successful call
// emits true with the value bound; a call whose callable raises emits
// false, like Predicate.
type SymbolicFunction struct {
	Base

	VarID    eql.VarID
	Fn       Callable
	ArgNodes []Node

	lastErr error
}

// NewSymbolicFunction attaches each arg node and wraps fn.
func NewSymbolicFunction(state *BuildState, fn Callable, args []Node, label string) (*SymbolicFunction, error) {
	if label == "" {
		label = "SymbolicFunction"
	}
	f := &SymbolicFunction{
		Base:     newBase(state, MultiArity, Flags{TruthValued: true, Selectable: true}, label),
		VarID:    eql.NewVarID(),
		Fn:       fn,
		ArgNodes: args,
	}
	for _, a := range args {
		if err := f.Base.attach(f, a); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *SymbolicFunction) String() string { return f.Label() }

func (f *SymbolicFunction) Step(ctx *EvalContext, in eql.Binding) ResultIter {
	return newProductThenCallIter(ctx, in, f.ArgNodes, f.Label(), false, func(b eql.Binding, args []interface{}) (eql.OperationResult, error) {
		v, err := f.Fn(args)
		if err != nil {
			f.lastErr = err
			return eql.Result(b, false), err
		}
		return eql.Result(b.With(f.VarID, v), true), nil
	})
}

func (f *SymbolicFunction) Evaluate(ctx *EvalContext, in eql.Binding) ResultIter {
	return f.Step(ctx, in)
}

func (f *SymbolicFunction) LastError() error { return f.lastErr }

// HasType builds the §4.6 special-cased built-in: truth iff
// is_a(binding[v], T). It is implemented directly rather than as a
// Predicate over a Go closure so that it carries no ArgNodes of its own
// (v is read straight from the incoming binding by VarID, not evaluated
// as a sub-DAG) — this mirrors how the source language special-cases it.
type HasType struct {
	Base

	Target eql.VarID
	Type   reflect.Type
}

// NewHasType constructs the built-in; target must already be bound by the
// time this node steps (it introduces no children).
func NewHasType(state *BuildState, target eql.VarID, t reflect.Type) *HasType {
	return &HasType{
		Base:   newBase(state, Nullary, Flags{TruthValued: true}, fmt.Sprintf("HasType(%s)", t)),
		Target: target,
		Type:   t,
	}
}

func (h *HasType) String() string { return h.Label() }

func (h *HasType) Step(ctx *EvalContext, in eql.Binding) ResultIter {
	v, ok := in.Get(h.Target)
	if !ok {
		return newSliceIter([]eql.OperationResult{eql.Result(in, false)})
	}
	return newSliceIter([]eql.OperationResult{eql.Result(in, host.IsA(v, h.Type))})
}

func (h *HasType) Evaluate(ctx *EvalContext, in eql.Binding) ResultIter {
	return h.Step(ctx, in)
}

// Length builds the §4.6 `length(c)` symbolic function over a
// value-producing child node c.
func NewLength(state *BuildState, cache *Cache, child Node) (*SymbolicFunction, error) {
	fn := func(args []interface{}) (interface{}, error) {
		return host.Length(args[0])
	}
	return NewSymbolicFunction(state, fn, []Node{child}, "length")
}

// productThenCallIter evaluates argNodes left-to-right via the §4.3
// cartesian-product schema, resolving each argument's bound value by its
// own VarID, then calls apply once per fully-merged binding. It tracks
// how many calls raised versus how many were attempted so Err() can
// implement §4.6's "propagates the exception only if every branch fails".
type productThenCallIter struct {
	ctx       *EvalContext
	argIDs    []eql.VarID
	prod      *productIter
	apply     func(b eql.Binding, args []interface{}) (eql.OperationResult, error)
	current   eql.OperationResult
	label     string
	absorbing bool

	attempts int
	failures int
	lastErr  error
	err      error
}

func newProductThenCallIter(ctx *EvalContext, in eql.Binding, argNodes []Node, label string, absorbing bool, apply func(eql.Binding, []interface{}) (eql.OperationResult, error)) ResultIter {
	ids := make([]eql.VarID, len(argNodes))
	for i, n := range argNodes {
		ids[i] = argVarID(n)
	}
	return &productThenCallIter{
		ctx:       ctx,
		argIDs:    ids,
		prod:      newProductIter(ctx, in, argNodes),
		apply:     apply,
		label:     label,
		absorbing: absorbing,
	}
}

func (it *productThenCallIter) Next() bool {
	if it.absorbing && !it.ctx.Absorbing {
		// An absorbing predicate folds its arguments' resolution failures
		// into false results, the same way NOT does for its child.
		it.ctx.Absorbing = true
		defer func() { it.ctx.Absorbing = false }()
	}
	if !it.prod.Next() {
		if err := errOf(it.prod); err != nil {
			// An argument node raised a resolution error; that always
			// propagates (absorption, if any, happened inside the arg's
			// own evaluation via ctx.Absorbing, not here).
			it.err = err
			return false
		}
		if it.attempts > 0 && it.failures == it.attempts && !it.absorbing && !it.ctx.Absorbing {
			it.err = errkind.UserCallableError.New(errkind.WithPath([]string{it.label}), it.lastErr.Error())
		}
		return false
	}
	r := it.prod.Result()
	args := make([]interface{}, len(it.argIDs))
	for i, id := range it.argIDs {
		v, _ := r.Binding.Get(id)
		args[i] = v
	}
	res, err := it.apply(r.Binding, args)
	it.attempts++
	if err != nil {
		it.failures++
		it.lastErr = err
	}
	it.current = res
	return true
}

func (it *productThenCallIter) Result() eql.OperationResult { return it.current }
func (it *productThenCallIter) Close() error                { return it.prod.Close() }

// Err reports an argument resolution failure (always) or, if every call
// to the wrapped callable over this binding's argument stream raised and
// neither this node nor the enclosing context is absorbing, a
// UserCallableError (§4.6/§7).
func (it *productThenCallIter) Err() error { return it.err }
