package engine

import (
	"reflect"

	"github.com/eqlang/eql"
	"github.com/eqlang/eql/expr"
	"github.com/eqlang/eql/host"
	"github.com/mitchellh/hashstructure"
)

// DeducedVariable is a Variable-like leaf whose domain is the set of
// conclusions of type T accumulated so far in the current evaluation
// (§4.11), read fresh on every pull (unlike Variable's pinned snapshot —
// a rule tree must see conclusions added by rules that fired earlier in
// the same pass).
type DeducedVariable struct {
	expr.Base

	VarID eql.VarID
	Type  reflect.Type
}

// NewDeducedVariable constructs a leaf deduced_variable(T) node.
func NewDeducedVariable(state *expr.BuildState, t reflect.Type) *DeducedVariable {
	return &DeducedVariable{
		Base:  expr.NewBase(state, expr.Nullary, expr.Flags{TruthValued: true, Selectable: true}, "deduced_variable"),
		VarID: eql.NewVarID(),
		Type:  t,
	}
}

func (d *DeducedVariable) String() string { return d.Label() }

// ResultVarID lets expr.Comparator/Predicate read a deduced_variable's
// bound instance without the expr package importing engine.
func (d *DeducedVariable) ResultVarID() eql.VarID { return d.VarID }

func (d *DeducedVariable) Step(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	var domain []interface{}
	if ctx != nil {
		domain = ctx.Accumulator.Snapshot(d.Type)
	}
	out := make([]eql.OperationResult, 0, len(domain))
	for _, v := range domain {
		out = append(out, eql.Result(in.With(d.VarID, v), true))
	}
	return newSliceIterExported(out)
}

func (d *DeducedVariable) Evaluate(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	return d.Step(ctx, in)
}

// Inference constructs a fresh instance of T with evaluated kwargs,
// lazily and once per firing binding (§4.11). Construction itself is a
// host operation, supplied as Constructor since the engine cannot
// reflectively build arbitrary host structs from a kwarg map.
type Inference struct {
	expr.Base

	VarID       eql.VarID
	Type        reflect.Type
	Kwargs      map[string]expr.Node
	Constructor func(kwargs map[string]interface{}) (interface{}, error)
}

// NewInference attaches each kwarg node as a child.
func NewInference(state *expr.BuildState, t reflect.Type, kwargs map[string]expr.Node, ctor func(map[string]interface{}) (interface{}, error)) (*Inference, error) {
	inf := &Inference{
		Base:        expr.NewBase(state, expr.MultiArity, expr.Flags{TruthValued: true, Selectable: true}, "inference"),
		VarID:       eql.NewVarID(),
		Type:        t,
		Kwargs:      kwargs,
		Constructor: ctor,
	}
	for _, n := range kwargs {
		if err := inf.Base.Attach(inf, n); err != nil {
			return nil, err
		}
	}
	return inf, nil
}

func (inf *Inference) String() string { return inf.Label() }

// ResultVarID lets expr.Comparator/Predicate read an inference's
// constructed instance without the expr package importing engine.
func (inf *Inference) ResultVarID() eql.VarID { return inf.VarID }

func (inf *Inference) Step(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	kw := make(map[string]interface{}, len(inf.Kwargs))
	for name, n := range inf.Kwargs {
		v, ok := evalScalar(ctx, n, in)
		if !ok {
			return newSliceIterExported(nil)
		}
		kw[name] = v
	}
	if ctx != nil {
		if h, herr := hashstructure.Hash(kw, nil); herr == nil {
			if ctx.Accumulator.SeenOrRecord(inf.Type, h) {
				return newSliceIterExported(nil)
			}
		}
	}
	instance, err := inf.Constructor(kw)
	if err != nil {
		return newSliceIterExported(nil)
	}
	if ctx != nil {
		ctx.Accumulator.Add(instance)
	}
	return newSliceIterExported([]eql.OperationResult{eql.Result(in.With(inf.VarID, instance), true)})
}

func (inf *Inference) Evaluate(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	return inf.Step(ctx, in)
}

// ScopeKind enumerates the §4.11 rule-tree scope types.
type ScopeKind int

const (
	DefaultScope ScopeKind = iota
	Refinement
	Alternative
	NextRule
)

// Conclusion is one `add(target, value)` clause within a scope: target is
// a node resolving to a host pointer-to-slice, value the (possibly
// Inference) node to append to it.
type Conclusion struct {
	Target expr.Node
	Value  expr.Node
}

// RuleScope is one node of the rule tree (§4.11): a conjunctive condition
// (nil for the unconditional default scope) guarding a list of
// conclusions and nested child scopes, evaluated outer-to-inner,
// earlier-sibling-first.
type RuleScope struct {
	expr.Base

	Kind        ScopeKind
	Cond        expr.Node // nil for DefaultScope/NextRule
	Conclusions []Conclusion
	Nested      []*RuleScope

	// preceding is the ordered list of earlier sibling scopes this
	// Alternative checks before firing (set by the builder via
	// SetPreceding once sibling order is known).
	preceding []*RuleScope

	// firedFor tracks, per outer binding, whether this scope (or an
	// earlier sibling under the same Alternative chain) already fired —
	// the per-outer-binding semantics the rule tree's alternative clause
	// demands (SPEC_FULL.md Open Question decision): a sibling's firing
	// for outer binding B1 must not suppress alternatives for a
	// different outer binding B2 evaluated in the same pass.
	firedFor map[string]bool
}

// SetPreceding records the earlier siblings (in attachment order) this
// Alternative scope must check before firing.
func (s *RuleScope) SetPreceding(siblings []*RuleScope) {
	s.preceding = siblings
}

// NewRuleScope constructs a scope. An Alternative scope's earlier siblings
// (already-built scopes at the same nesting level, in order) are given
// separately through SetPreceding and consulted to find "did any earlier
// sibling fire for this outer binding."
func NewRuleScope(state *expr.BuildState, kind ScopeKind, cond expr.Node) (*RuleScope, error) {
	s := &RuleScope{
		Base:     expr.NewBase(state, expr.MultiArity, expr.Flags{TruthValued: true}, scopeLabel(kind)),
		Kind:     kind,
		Cond:     cond,
		firedFor: make(map[string]bool),
	}
	if cond != nil {
		if err := s.Base.Attach(s, cond); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func scopeLabel(k ScopeKind) string {
	switch k {
	case Refinement:
		return "refinement"
	case Alternative:
		return "alternative"
	case NextRule:
		return "next_rule"
	default:
		return "rule"
	}
}

// AddConclusion attaches target/value and records the conclusion.
func (s *RuleScope) AddConclusion(target, value expr.Node) error {
	if err := s.Base.Attach(s, target); err != nil {
		return err
	}
	if err := s.Base.Attach(s, value); err != nil {
		return err
	}
	s.Conclusions = append(s.Conclusions, Conclusion{Target: target, Value: value})
	return nil
}

// AddNested attaches a child scope under this one.
func (s *RuleScope) AddNested(child *RuleScope) error {
	if err := s.Base.Attach(s, child); err != nil {
		return err
	}
	s.Nested = append(s.Nested, child)
	return nil
}

func (s *RuleScope) String() string { return s.Label() }

// Step evaluates this scope (and its nested scopes, recursively) for one
// outer binding: if Cond holds (or Cond is nil), runs each conclusion's
// add and recurses into Nested; records firing under the outer binding's
// key for any sibling Alternative scope to consult.
func (s *RuleScope) Step(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	key := in.String()

	holds := true
	if s.Cond != nil {
		it := s.Cond.Evaluate(ctx, in)
		holds = false
		for it.Next() {
			if it.Result().Truth {
				holds = true
				break
			}
		}
		it.Close()
	}
	if s.Kind == Alternative && s.precedingFired(key) {
		holds = false
	}

	if holds {
		s.firedFor[key] = true
		for _, c := range s.Conclusions {
			if err := runConclusion(ctx, in, c); err != nil {
				ctx.RecordSideEffectError(err)
			}
		}
	}
	for _, child := range s.Nested {
		if holds || child.Kind == NextRule {
			child.Step(ctx, in)
		}
	}
	return newOneShotIter(eql.Result(in, holds))
}

func (s *RuleScope) Evaluate(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	return s.Step(ctx, in)
}

// precedingFired reports whether an earlier sibling in this Alternative's
// chain already fired for outer binding key. Populated by the builder via
// SetPreceding, since sibling order is a builder-time concept.
func (s *RuleScope) precedingFired(key string) bool {
	for _, p := range s.preceding {
		if p.firedFor[key] {
			return true
		}
	}
	return false
}

// runConclusion fires one add(target, value) conclusion, appending every
// value the Value subtree produces onto every target the Target subtree
// produces. It returns the first host.AppendTo failure encountered (e.g.
// a type-mismatched target) rather than dropping the inferred value
// silently; callers decide whether that's fatal for the enclosing query.
func runConclusion(ctx *expr.EvalContext, in eql.Binding, c Conclusion) error {
	targetIt := c.Target.Evaluate(ctx, in)
	defer targetIt.Close()
	var firstErr error
	for targetIt.Next() {
		tr := targetIt.Result()
		if !tr.Truth {
			continue
		}
		targetVal, ok := tr.Binding.Get(nodeVarID(c.Target))
		if !ok {
			continue
		}
		valueIt := c.Value.Evaluate(ctx, tr.Binding)
		for valueIt.Next() {
			vr := valueIt.Result()
			if !vr.Truth {
				continue
			}
			v, ok := vr.Binding.Get(nodeVarID(c.Value))
			if !ok {
				continue
			}
			if err := host.AppendTo(targetVal, v); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		valueIt.Close()
	}
	return firstErr
}
