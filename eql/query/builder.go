// Package query is the public façade: the Builder factories and fluent
// Query type of spec.md §4.12/§6, lowering clause slots into the
// eql/expr and eql/engine node graph and driving evaluation.
//
// Structurally this plays the role of the teacher's datalog/query package
// (the user-facing clause collector that hands off to
// datalog/planner+executor), generalised from Datalog pattern clauses to
// symbolic expression builders.
package query

import (
	"reflect"

	"github.com/eqlang/eql"
	"github.com/eqlang/eql/engine"
	"github.com/eqlang/eql/expr"
)

// Builder is the query-build-time context: one BuildState (the arena that
// freezes at build()), one SymbolRegistry, and the MappedVariable cache
// enforcing invariant I4 for the lifetime of a single Query build.
type Builder struct {
	state    *expr.BuildState
	registry *eql.SymbolRegistry
	mvCache  *expr.Cache
}

// NewBuilder starts a fresh build context. registry may be nil, meaning
// "use eql.DefaultRegistry() for any implicit-domain Variable."
func NewBuilder(registry *eql.SymbolRegistry) *Builder {
	state := expr.NewBuildState()
	return &Builder{state: state, registry: registry, mvCache: expr.NewCache(state)}
}

// Variable builds a leaf variable(T, domain?) (§6). With no domain it
// resolves from the builder's registry at first evaluation (I5).
func (b *Builder) Variable(t reflect.Type, domain ...interface{}) *expr.Variable {
	var d []interface{}
	if len(domain) > 0 {
		d = domain
	}
	return expr.NewVariable(b.state, t, d, b.registry)
}

// Attribute builds (or returns the cached) v.name MappedVariable (§3 I4).
func (b *Builder) Attribute(v expr.Node, name string) (*expr.MappedVariable, error) {
	return b.mvCache.GetOrCreate(v, rootVarID(v), expr.OpAttribute, name, nil, nil)
}

// Index builds (or returns the cached) v[key] MappedVariable.
func (b *Builder) Index(v expr.Node, key interface{}) (*expr.MappedVariable, error) {
	return b.mvCache.GetOrCreate(v, rootVarID(v), expr.OpIndex, "", key, nil)
}

// Call builds (or returns the cached) v.method(args...) MappedVariable;
// args are symbolic nodes resolved from the binding at evaluation time.
func (b *Builder) Call(v expr.Node, method string, args ...expr.Node) (*expr.MappedVariable, error) {
	ids := make([]string, len(args))
	for i, a := range args {
		ids[i] = a.ID().String()
	}
	return b.mvCache.GetOrCreate(v, rootVarID(v), expr.OpCall, method, ids, args)
}

// Flat builds (or returns the cached) flat_variable(v) MappedVariable.
func (b *Builder) Flat(v expr.Node) (*expr.MappedVariable, error) {
	return b.mvCache.GetOrCreate(v, rootVarID(v), expr.OpFlat, "", nil, nil)
}

// rootVarID extracts the identity a leaf/mapped node binds, used as the
// cache key's root component.
func rootVarID(n expr.Node) eql.VarID {
	switch t := n.(type) {
	case *expr.Variable:
		return t.VarID
	case *expr.MappedVariable:
		return t.VarID
	}
	return eql.VarID{}
}

// And_ builds a conjunction of children (§4.4).
func (b *Builder) And_(children ...expr.Node) (*engine.And, error) {
	return engine.NewAnd(b.state, children)
}

// Or_ builds a disjunction of left/right (§4.4).
func (b *Builder) Or_(left, right expr.Node) (*engine.Or, error) {
	return engine.NewOr(b.state, left, right)
}

// Not_ builds a negation of child (§4.4).
func (b *Builder) Not_(child expr.Node) (*engine.Not, error) {
	return engine.NewNot(b.state, child)
}

// Eq/Neq/Lt/Lte/Gt/Gte build Comparator subclasses (§4.5).
func (b *Builder) Eq(left, right expr.Node) (*expr.Comparator, error) {
	return expr.NewComparator(b.state, expr.OpEq, left, right)
}
func (b *Builder) Neq(left, right expr.Node) (*expr.Comparator, error) {
	return expr.NewComparator(b.state, expr.OpNeq, left, right)
}
func (b *Builder) Lt(left, right expr.Node) (*expr.Comparator, error) {
	return expr.NewComparator(b.state, expr.OpLt, left, right)
}
func (b *Builder) Lte(left, right expr.Node) (*expr.Comparator, error) {
	return expr.NewComparator(b.state, expr.OpLte, left, right)
}
func (b *Builder) Gt(left, right expr.Node) (*expr.Comparator, error) {
	return expr.NewComparator(b.state, expr.OpGt, left, right)
}
func (b *Builder) Gte(left, right expr.Node) (*expr.Comparator, error) {
	return expr.NewComparator(b.state, expr.OpGte, left, right)
}

// In_ builds `in_(x, C)` over a concrete collection.
func (b *Builder) In_(x expr.Node, set []interface{}) (*expr.In, error) {
	return expr.NewInConcrete(b.state, x, set)
}

// InSymbolic builds `in_(x, C)` where C is itself a symbolic producer.
func (b *Builder) InSymbolic(x expr.Node, collection expr.Node) (*expr.In, error) {
	return expr.NewInSymbolic(b.state, x, collection)
}

// Contains builds `contains(C, x)`, the dual of in_.
func (b *Builder) Contains(collection, x expr.Node) (*expr.In, error) {
	return expr.NewContains(b.state, collection, x)
}

// Predicate builds an n-ary user-callable truth node (§4.6).
func (b *Builder) Predicate(fn expr.Callable, label string, args ...expr.Node) (*expr.Predicate, error) {
	return expr.NewPredicate(b.state, fn, args, label)
}

// SymbolicFunction builds an n-ary user-callable value node (§4.6).
func (b *Builder) SymbolicFunction(fn expr.Callable, label string, args ...expr.Node) (*expr.SymbolicFunction, error) {
	return expr.NewSymbolicFunction(b.state, fn, args, label)
}

// HasType builds the built-in HasType(v, T) (§4.6).
func (b *Builder) HasType(target expr.Node, t reflect.Type) *expr.HasType {
	return expr.NewHasType(b.state, rootVarID(target), t)
}

// Length builds the built-in length(c) symbolic function (§4.6).
func (b *Builder) Length(c expr.Node) (*expr.SymbolicFunction, error) {
	return expr.NewLength(b.state, b.mvCache, c)
}

// Count/Sum/Average/Min/Max build the §4.7 aggregators. source should be
// a *engine.GroupedBy to fold per-group, or any other node to fold the
// entire upstream as a single implicit group.
func (b *Builder) Count(source, value expr.Node) (*engine.Aggregator, error) {
	return engine.NewAggregator(b.state, engine.Count, source, value, nil, nil, false, false)
}
func (b *Builder) Sum(source, value expr.Node) (*engine.Aggregator, error) {
	return engine.NewAggregator(b.state, engine.Sum, source, value, nil, nil, false, false)
}
func (b *Builder) Average(source, value expr.Node) (*engine.Aggregator, error) {
	return engine.NewAggregator(b.state, engine.Average, source, value, nil, nil, false, false)
}
func (b *Builder) Min(source, value, key expr.Node) (*engine.Aggregator, error) {
	return engine.NewAggregator(b.state, engine.Min, source, value, key, nil, false, false)
}
func (b *Builder) Max(source, value, key expr.Node) (*engine.Aggregator, error) {
	return engine.NewAggregator(b.state, engine.Max, source, value, key, nil, false, false)
}

// GroupedBy builds the §4.7 partitioning node.
func (b *Builder) GroupedBy(source expr.Node, keys ...expr.Node) (*engine.GroupedBy, error) {
	return engine.NewGroupedBy(b.state, source, keys)
}

// Having builds the §4.7 post-aggregation group filter.
func (b *Builder) Having(source, cond expr.Node) (*engine.Having, error) {
	return engine.NewHaving(b.state, source, cond)
}

// OrderedBy/Limit/Distinct build the §4.8 result-shaping nodes.
func (b *Builder) OrderedBy(source, exprNode expr.Node, descending bool) (*engine.OrderedBy, error) {
	return engine.NewOrderedBy(b.state, source, exprNode, descending)
}
func (b *Builder) Limit(source expr.Node, n int) (*engine.Limit, error) {
	return engine.NewLimit(b.state, source, n)
}
func (b *Builder) Distinct(source expr.Node, project ...expr.Node) (*engine.Distinct, error) {
	return engine.NewDistinct(b.state, source, project)
}

// An/The/ExactlyN/AtLeastN/AtMostN build the §4.10 quantifiers.
func (b *Builder) An(source expr.Node, path []string) (*engine.Quantifier, error) {
	return engine.NewQuantifier(b.state, source, engine.An, 0, path)
}
func (b *Builder) The(source expr.Node, path []string) (*engine.Quantifier, error) {
	return engine.NewQuantifier(b.state, source, engine.The, 0, path)
}
func (b *Builder) ExactlyN(source expr.Node, k int, path []string) (*engine.Quantifier, error) {
	return engine.NewQuantifier(b.state, source, engine.Exactly, k, path)
}
func (b *Builder) AtLeastN(source expr.Node, k int, path []string) (*engine.Quantifier, error) {
	return engine.NewQuantifier(b.state, source, engine.AtLeast, k, path)
}
func (b *Builder) AtMostN(source expr.Node, k int, path []string) (*engine.Quantifier, error) {
	return engine.NewQuantifier(b.state, source, engine.AtMost, k, path)
}

// DeducedVariable builds the rule-tree leaf ranging over accumulated
// conclusions of type T (§4.11).
func (b *Builder) DeducedVariable(t reflect.Type) *engine.DeducedVariable {
	return engine.NewDeducedVariable(b.state, t)
}

// Inference builds `inference(T)(kwargs...)` (§4.11).
func (b *Builder) Inference(t reflect.Type, kwargs map[string]expr.Node, ctor func(map[string]interface{}) (interface{}, error)) (*engine.Inference, error) {
	return engine.NewInference(b.state, t, kwargs, ctor)
}

// Freeze seals the builder's arena; called once by Query.Build().
func (b *Builder) Freeze() { b.state.Freeze() }

// State exposes the underlying BuildState to callers (e.g. the rule-tree
// scope builder) that must attach nodes outside this file.
func (b *Builder) State() *expr.BuildState { return b.state }
