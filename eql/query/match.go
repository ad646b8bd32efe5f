package query

import (
	"reflect"
	"sort"

	"github.com/eqlang/eql/expr"
)

// MatchSpec is the kwargs map passed to Match/MatchVariable: each value is
// either a concrete literal or a nested *MatchSpec introducing a fresh
// anonymous variable (§4.9).
type MatchSpec struct {
	Type   reflect.Type
	Fields map[string]interface{} // value is a literal, or *MatchSpec for a nested match
}

// Match builds `match(T)(k=v, …)`: HasType(target, T) ∧ target.k==v ∧ …,
// against a fresh anonymous variable. Returns the target and the
// conjunction condition; callers attach the condition into their where().
func (b *Builder) Match(spec *MatchSpec) (expr.Node, expr.Node, error) {
	target := b.Variable(spec.Type)
	cond, err := b.matchConjunction(target, spec)
	if err != nil {
		return nil, nil, err
	}
	return target, cond, nil
}

// MatchVariable builds `match_variable(T, domain=D)(…)`, additionally
// binding the anonymous target to an explicit domain.
func (b *Builder) MatchVariable(spec *MatchSpec, domain []interface{}) (expr.Node, expr.Node, error) {
	target := b.Variable(spec.Type, domain...)
	cond, err := b.matchConjunction(target, spec)
	if err != nil {
		return nil, nil, err
	}
	return target, cond, nil
}

func (b *Builder) matchConjunction(target expr.Node, spec *MatchSpec) (expr.Node, error) {
	var conjuncts []expr.Node

	keys := make([]string, 0, len(spec.Fields))
	for k := range spec.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := spec.Fields[k]
		attr, err := b.Attribute(target, k)
		if err != nil {
			return nil, err
		}
		if nested, ok := v.(*MatchSpec); ok {
			nestedTarget, nestedCond, err := b.Match(nested)
			if err != nil {
				return nil, err
			}
			conjuncts = append(conjuncts, nestedCond)
			eqNode, err := b.Eq(attr, nestedTarget)
			if err != nil {
				return nil, err
			}
			conjuncts = append(conjuncts, eqNode)
			continue
		}
		lit := expr.NewConst(b.state, v)
		eqNode, err := b.Eq(attr, lit)
		if err != nil {
			return nil, err
		}
		conjuncts = append(conjuncts, eqNode)
	}

	// HasType reads target from the binding and And steps zero-variable
	// conjuncts in attachment order, so it goes after the field equalities
	// that bind target.
	conjuncts = append(conjuncts, b.HasType(target, spec.Type))
	return b.And_(conjuncts...)
}
