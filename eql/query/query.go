package query

import (
	"fmt"

	"github.com/eqlang/eql"
	"github.com/eqlang/eql/engine"
	"github.com/eqlang/eql/errkind"
	"github.com/eqlang/eql/expr"
	"github.com/eqlang/eql/trace"
)

// orderedByClause is one attachment-ordered ordered_by(expr, descending)
// entry; multiple clauses compose lexicographically (§4.8).
type orderedByClause struct {
	expr       expr.Node
	descending bool
}

// Query is the façade of §4.12: a MultiArity root collecting clause slots
// while *building*, then a frozen DAG rooted in its quantifier once
// *built*. Clause mutation after Build() fails with QueryStructureFrozen.
type Query struct {
	builder *Builder

	selects      []expr.Node
	wheres       []expr.Node
	groupKeys    []expr.Node
	havingConds  []expr.Node
	orderClauses []orderedByClause
	limitN       *int
	distinctOn   []expr.Node
	distinctAll  bool

	quantKind engine.QuantKind
	quantK    int

	ruleRoot *engine.RuleScope

	built bool
	root  expr.Node

	registry    *eql.SymbolRegistry
	accumulator *eql.Accumulator
	collector   *trace.Collector

	label string
}

// New starts a building Query against builder, selecting sel (reachable
// from the where-conjunction). Defaults to the `an` quantifier per §4.12.
func New(builder *Builder, sel ...expr.Node) *Query {
	return &Query{
		builder:     builder,
		selects:     sel,
		quantKind:   engine.An,
		registry:    builder.registry,
		accumulator: eql.NewAccumulator(),
		label:       "Query",
	}
}

// Entity is the `entity(v…)` builder factory (§6): a Query selecting one
// or more variables, defaulting to `an`.
func Entity(builder *Builder, vars ...expr.Node) *Query { return New(builder, vars...) }

// SetOf is `set_of(v…)`: identical to Entity but conventionally paired
// with .distinct() by callers — the engine makes no semantic distinction.
func SetOf(builder *Builder, vars ...expr.Node) *Query { return New(builder, vars...) }

func (q *Query) mustNotBeBuilt() error {
	if q.built {
		return errkind.QueryStructureFrozen.New(fmt.Sprintf("%s: clause mutation after build()", q.label))
	}
	return nil
}

// Where adds where-conjunction conditions (§4.12).
func (q *Query) Where(conds ...expr.Node) (*Query, error) {
	if err := q.mustNotBeBuilt(); err != nil {
		return q, err
	}
	q.wheres = append(q.wheres, conds...)
	return q, nil
}

// GroupedBy sets the grouping keys (§4.7).
func (q *Query) GroupedBy(keys ...expr.Node) (*Query, error) {
	if err := q.mustNotBeBuilt(); err != nil {
		return q, err
	}
	q.groupKeys = append(q.groupKeys, keys...)
	return q, nil
}

// Having adds post-aggregation group filters (§4.7).
func (q *Query) Having(conds ...expr.Node) (*Query, error) {
	if err := q.mustNotBeBuilt(); err != nil {
		return q, err
	}
	q.havingConds = append(q.havingConds, conds...)
	return q, nil
}

// OrderedBy adds a lexicographic ordering clause (§4.8); earlier calls
// take priority as the primary sort key.
func (q *Query) OrderedBy(e expr.Node, descending bool) (*Query, error) {
	if err := q.mustNotBeBuilt(); err != nil {
		return q, err
	}
	q.orderClauses = append(q.orderClauses, orderedByClause{expr: e, descending: descending})
	return q, nil
}

// Limit sets the §4.8 result cap.
func (q *Query) Limit(n int) (*Query, error) {
	if err := q.mustNotBeBuilt(); err != nil {
		return q, err
	}
	q.limitN = &n
	return q, nil
}

// Distinct enables §4.8 deduplication by the tuple of project (or, if
// project is empty, by the tuple of selected values).
func (q *Query) Distinct(project ...expr.Node) (*Query, error) {
	if err := q.mustNotBeBuilt(); err != nil {
		return q, err
	}
	q.distinctOn = project
	q.distinctAll = true
	return q, nil
}

// An/The/ExactlyN/AtLeastN/AtMostN set the §4.10 quantifier.
func (q *Query) An() *Query                { q.quantKind = engine.An; return q }
func (q *Query) The() *Query                { q.quantKind = engine.The; return q }
func (q *Query) ExactlyN(k int) *Query      { q.quantKind, q.quantK = engine.Exactly, k; return q }
func (q *Query) AtLeastN(k int) *Query      { q.quantKind, q.quantK = engine.AtLeast, k; return q }
func (q *Query) AtMostN(k int) *Query       { q.quantKind, q.quantK = engine.AtMost, k; return q }

// RuleRoot returns the rule-tree root scope, creating the default
// (unconditional) scope on first access, for .Add()/.Refinement()/etc.
// builders that operate on a Query used as a scoped inference context
// (§4.11).
func (q *Query) RuleRoot() (*engine.RuleScope, error) {
	if q.ruleRoot == nil {
		s, err := engine.NewRuleScope(q.builder.state, engine.DefaultScope, nil)
		if err != nil {
			return nil, err
		}
		q.ruleRoot = s
	}
	return q.ruleRoot, nil
}

// Build lowers every clause slot into the expression/engine node graph,
// attaches them under a root and freezes the builder's arena. When where
// clauses exist, selected Variables and MappedVariables are conjoined with
// them so every result binds them. Build rejects an aggregator in where
// and always installs a quantifier (defaulting to `an`); selected nodes of
// other kinds are not checked for reachability.
func (q *Query) Build() error {
	if q.built {
		return nil
	}
	if err := q.validateAggregatorPlacement(); err != nil {
		return err
	}

	var source expr.Node
	if len(q.wheres) > 0 {
		conj := append([]expr.Node{}, q.wheres...)
		for _, s := range q.selects {
			switch s.(type) {
			case *expr.Variable, *expr.MappedVariable:
				conj = append(conj, s)
			}
		}
		and, err := q.builder.And_(conj...)
		if err != nil {
			return err
		}
		source = and
	} else if len(q.selects) > 0 {
		source = q.selects[0]
	} else {
		return errkind.QueryStructureInvalid.New("query has no where clauses and no selects")
	}

	if q.ruleRoot != nil {
		// Drive rule-tree conclusions once per binding reaching this scope,
		// threading the resolved upstream binding through Step at evaluate
		// time; wrap source so every upstream binding also runs the tree.
		source = &ruleTreeDriver{Base: expr.NewBase(q.builder.state, expr.Unary, expr.Flags{TruthValued: true}, "rule_tree"), Source: source, Root: q.ruleRoot}
	}

	if len(q.groupKeys) > 0 {
		g, err := q.builder.GroupedBy(source, q.groupKeys...)
		if err != nil {
			return err
		}
		source = g
	}

	if len(q.havingConds) > 0 {
		havingCond, err := q.builder.And_(q.havingConds...)
		if err != nil {
			return err
		}
		h, err := q.builder.Having(source, havingCond)
		if err != nil {
			return err
		}
		source = h
	}

	// The outermost stable sort decides the primary key, so clauses are
	// wrapped in reverse attachment order.
	for i := len(q.orderClauses) - 1; i >= 0; i-- {
		oc := q.orderClauses[i]
		ob, err := q.builder.OrderedBy(source, oc.expr, oc.descending)
		if err != nil {
			return err
		}
		source = ob
	}

	if q.distinctAll {
		proj := q.distinctOn
		if len(proj) == 0 {
			proj = q.selects
		}
		d, err := q.builder.Distinct(source, proj...)
		if err != nil {
			return err
		}
		source = d
	}

	if q.limitN != nil {
		l, err := q.builder.Limit(source, *q.limitN)
		if err != nil {
			return err
		}
		source = l
	}

	path := []string{q.label}
	var quant expr.Node
	var err error
	switch q.quantKind {
	case engine.The:
		quant, err = q.builder.The(source, path)
	case engine.Exactly:
		quant, err = q.builder.ExactlyN(source, q.quantK, path)
	case engine.AtLeast:
		quant, err = q.builder.AtLeastN(source, q.quantK, path)
	case engine.AtMost:
		quant, err = q.builder.AtMostN(source, q.quantK, path)
	default:
		quant, err = q.builder.An(source, path)
	}
	if err != nil {
		return err
	}

	q.root = quant
	q.builder.Freeze()
	q.built = true
	return nil
}

// validateAggregatorPlacement enforces "an aggregator appearing in where
// is a build-time error" (§4.7).
func (q *Query) validateAggregatorPlacement() error {
	for _, w := range q.wheres {
		if containsAggregator(w) {
			return errkind.QueryStructureInvalid.New(fmt.Sprintf("%s: aggregator not allowed in where()", q.label))
		}
	}
	return nil
}

func containsAggregator(n expr.Node) bool {
	if _, ok := n.(*engine.Aggregator); ok {
		return true
	}
	for _, c := range n.Children() {
		if containsAggregator(c) {
			return true
		}
	}
	return false
}

// EvalContext builds a fresh per-evaluation context carrying this query's
// registry, a new empty accumulator for this evaluation's rule-tree
// conclusions, plus an optional trace collector (set via EnableTrace,
// consumed by Explain()).
func (q *Query) evalContext() *expr.EvalContext {
	q.accumulator = eql.NewAccumulator()
	return &expr.EvalContext{
		Trace:       trace.NewContext(q.collector),
		Registry:    q.registry,
		Accumulator: q.accumulator,
	}
}

// EnableTrace turns on event collection for this query's subsequent
// Evaluate()/ToList()/First() calls, consumed by Explain().
func (q *Query) EnableTrace() {
	q.collector = trace.NewCollector(nil)
}

// Evaluate drives the frozen root against an empty source binding,
// returning the lazy result sequence (§6 `.evaluate()`). Build() must
// have succeeded first.
func (q *Query) Evaluate() (expr.ResultIter, error) {
	if !q.built {
		if err := q.Build(); err != nil {
			return nil, err
		}
	}
	ctx := q.evalContext()
	ctx.Trace.QueryBeginEvt(q.label)
	it := q.root.Evaluate(ctx, eql.Binding{})
	if err := errOf(it); err != nil {
		ctx.Trace.QueryCompleteEvt(0, err)
		return nil, err
	}
	return &countingIter{inner: it, ctx: ctx}, nil
}

type countingIter struct {
	inner expr.ResultIter
	ctx   *expr.EvalContext
	count int
	err   error
}

func (c *countingIter) Next() bool {
	ok := c.inner.Next()
	if ok {
		c.count++
		return true
	}
	if c.err == nil {
		c.err = errOf(c.inner)
	}
	if c.err == nil {
		c.err = c.ctx.SideEffectError()
	}
	c.ctx.Trace.QueryCompleteEvt(c.count, c.err)
	return false
}
func (c *countingIter) Result() eql.OperationResult { return c.inner.Result() }
func (c *countingIter) Close() error                { return c.inner.Close() }
func (c *countingIter) Err() error                   { return c.err }

// errOf checks whether it opportunistically exposes an Err() method (the
// duck-typed extension used throughout this tree by iterators that can
// abort the stream for a reason other than ordinary exhaustion) and, if
// so, returns whatever it reports.
func errOf(it expr.ResultIter) error {
	if e, ok := it.(interface{ Err() error }); ok {
		return e.Err()
	}
	return nil
}

// ToList pulls the full result sequence and projects each truthy emission
// onto the select slot: a single value if len(selects)==1, else a tuple
// (§6 `.tolist()`).
func (q *Query) ToList() ([]interface{}, error) {
	it, err := q.Evaluate()
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []interface{}
	for it.Next() {
		r := it.Result()
		if !r.Truth {
			continue
		}
		out = append(out, q.project(r.Binding))
	}
	if err := errOf(it); err != nil {
		return nil, err
	}
	return out, nil
}

// First pulls exactly one result, raising the same NoSolutionFound a
// the() quantifier would if the stream is empty (§6 `.first()`).
func (q *Query) First() (interface{}, error) {
	it, err := q.Evaluate()
	if err != nil {
		return nil, err
	}
	defer it.Close()
	for it.Next() {
		r := it.Result()
		if r.Truth {
			return q.project(r.Binding), nil
		}
	}
	if err := errOf(it); err != nil {
		return nil, err
	}
	return nil, errkind.NoSolutionFound.New(errkind.WithPath([]string{q.label, "first()"}))
}

func (q *Query) project(b eql.Binding) interface{} {
	if len(q.selects) == 0 {
		return b
	}
	if len(q.selects) == 1 {
		v, _ := b.Get(selectVarID(q.selects[0]))
		return v
	}
	out := make([]interface{}, len(q.selects))
	for i, s := range q.selects {
		v, _ := b.Get(selectVarID(s))
		out[i] = v
	}
	return out
}

func selectVarID(n expr.Node) eql.VarID {
	switch t := n.(type) {
	case *expr.Variable:
		return t.VarID
	case *expr.MappedVariable:
		return t.VarID
	case *expr.SymbolicFunction:
		return t.VarID
	case *expr.Const:
		return t.VarID
	case *engine.Aggregator:
		return t.VarID
	case *engine.DeducedVariable:
		return t.VarID
	case *engine.Inference:
		return t.VarID
	}
	return eql.VarID{}
}

// ruleTreeDriver runs the rule tree once per upstream binding, passing
// each through unchanged (truth preserved) — conclusions are a side
// effect on host state, not a filter on the stream (§4.11).
type ruleTreeDriver struct {
	expr.Base

	Source expr.Node
	Root   *engine.RuleScope
}

func (d *ruleTreeDriver) String() string { return "rule_tree" }

func (d *ruleTreeDriver) Step(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	src := d.Source.Evaluate(ctx, in)
	var out []eql.OperationResult
	for src.Next() {
		r := src.Result()
		if r.Truth {
			d.Root.Step(ctx, r.Binding)
		}
		out = append(out, r)
	}
	srcErr := errOf(src)
	src.Close()
	if srcErr == nil {
		srcErr = ctx.SideEffectError()
	}
	if srcErr != nil {
		return newErrorIterLocal(srcErr)
	}
	return newResultIterLocal(out)
}

func (d *ruleTreeDriver) Evaluate(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	return d.Step(ctx, in)
}

type resultIterLocal struct {
	results []eql.OperationResult
	pos     int
}

func newResultIterLocal(results []eql.OperationResult) expr.ResultIter {
	return &resultIterLocal{results: results, pos: -1}
}
func (it *resultIterLocal) Next() bool {
	it.pos++
	return it.pos < len(it.results)
}
func (it *resultIterLocal) Result() eql.OperationResult {
	if it.pos < 0 || it.pos >= len(it.results) {
		return eql.OperationResult{}
	}
	return it.results[it.pos]
}
func (it *resultIterLocal) Close() error { return nil }

// errorIterLocal is a one-shot ResultIter that yields nothing and reports
// err via the Err() duck-typed extension, mirroring engine.errorIter.
type errorIterLocal struct{ err error }

func newErrorIterLocal(err error) expr.ResultIter { return &errorIterLocal{err: err} }
func (it *errorIterLocal) Next() bool                 { return false }
func (it *errorIterLocal) Result() eql.OperationResult { return eql.OperationResult{} }
func (it *errorIterLocal) Close() error                { return nil }
func (it *errorIterLocal) Err() error                  { return it.err }
