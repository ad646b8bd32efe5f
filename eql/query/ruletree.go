package query

import (
	"github.com/eqlang/eql/engine"
	"github.com/eqlang/eql/expr"
)

// Scope is the builder-stack replacement for the source language's `with`
// block rule-tree scopes (§9 Design Note: "Context-managed rule-tree
// scopes -> builder stack"). Each Scope wraps one *engine.RuleScope and
// knows its own siblings, so Alternative can wire up the "did an earlier
// sibling fire" check at build time rather than via dynamic context
// managers.
type Scope struct {
	builder  *Builder
	raw      *engine.RuleScope
	parent   *Scope
	siblings []*Scope // earlier siblings under the same parent, in order
}

// Root returns (creating if necessary) the query's top-level rule scope.
func (q *Query) RootScope() (*Scope, error) {
	raw, err := q.RuleRoot()
	if err != nil {
		return nil, err
	}
	return &Scope{builder: q.builder, raw: raw}, nil
}

// Add records `add(target, value)`: for every binding reaching this
// scope, value is evaluated and appended to target (§4.11).
func (s *Scope) Add(target, value expr.Node) error {
	return s.raw.AddConclusion(target, value)
}

// Refinement opens a nested scope whose conclusions apply only when cond
// holds in addition to the outer scope's conditions (§4.11): conjunction.
func (s *Scope) Refinement(cond expr.Node) (*Scope, error) {
	raw, err := engine.NewRuleScope(s.builder.state, engine.Refinement, cond)
	if err != nil {
		return nil, err
	}
	if err := s.raw.AddNested(raw); err != nil {
		return nil, err
	}
	child := &Scope{builder: s.builder, raw: raw, parent: s}
	return child, nil
}

// Alternative opens a nested scope that fires iff no sibling scope above
// it (within the same parent, in attachment order) fired for the current
// outer binding (§4.11): encodes else-if. siblings must be passed in
// attachment order so far.
func (s *Scope) Alternative(cond expr.Node, siblings ...*Scope) (*Scope, error) {
	raw, err := engine.NewRuleScope(s.builder.state, engine.Alternative, cond)
	if err != nil {
		return nil, err
	}
	if err := s.raw.AddNested(raw); err != nil {
		return nil, err
	}
	rawSiblings := make([]*engine.RuleScope, len(siblings))
	for i, sib := range siblings {
		rawSiblings[i] = sib.raw
	}
	raw.SetPreceding(rawSiblings)
	child := &Scope{builder: s.builder, raw: raw, parent: s, siblings: siblings}
	return child, nil
}

// NextRule opens a sibling scope evaluated unconditionally after the
// previous rule, regardless of firing (§4.11). If s is itself the root
// scope (no parent to attach a sibling under), the new scope nests under
// s directly — the tree still evaluates it outer-to-inner, which is
// observationally identical to a root-level sibling for a single-level
// rule tree.
func (s *Scope) NextRule() (*Scope, error) {
	raw, err := engine.NewRuleScope(s.builder.state, engine.NextRule, nil)
	if err != nil {
		return nil, err
	}
	parent := s.parent
	if parent == nil {
		parent = s
	}
	if err := parent.raw.AddNested(raw); err != nil {
		return nil, err
	}
	return &Scope{builder: s.builder, raw: raw, parent: parent}, nil
}
