package engine

import (
	"sort"

	"github.com/eqlang/eql"
	"github.com/eqlang/eql/expr"
)

// OrderedBy materialises the upstream stream and stably sorts it by the
// value of Expr (§4.8). Multiple OrderedBy clauses compose lexicographically
// when chained: each wraps the previous one's output as its Source, and a
// stable sort preserves the prior ordering as the tie-break.
type OrderedBy struct {
	expr.Base

	Source     expr.Node
	Expr       expr.Node
	Descending bool
}

// NewOrderedBy attaches source and expr.
func NewOrderedBy(state *expr.BuildState, source, exprNode expr.Node, descending bool) (*OrderedBy, error) {
	o := &OrderedBy{
		Base:       expr.NewBase(state, expr.Binary, expr.Flags{TruthValued: true, Derived: true}, "ordered_by"),
		Source:     source,
		Expr:       exprNode,
		Descending: descending,
	}
	if err := o.Base.Attach(o, source); err != nil {
		return nil, err
	}
	if err := o.Base.Attach(o, exprNode); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *OrderedBy) String() string { return o.Label() }

func (o *OrderedBy) Step(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	src := o.Source.Evaluate(ctx, in)
	defer src.Close()

	type keyed struct {
		r   eql.OperationResult
		key interface{}
	}
	items := make([]keyed, 0)
	for src.Next() {
		r := src.Result()
		if !r.Truth {
			continue
		}
		k, _ := evalScalar(ctx, o.Expr, r.Binding)
		items = append(items, keyed{r: r, key: k})
	}
	if err := errOf(src); err != nil {
		return newErrorIter(err)
	}
	sort.SliceStable(items, func(i, j int) bool {
		c := eql.CompareValues(items[i].key, items[j].key)
		if o.Descending {
			return c > 0
		}
		return c < 0
	})
	out := make([]eql.OperationResult, len(items))
	for i, it := range items {
		out[i] = it.r
	}
	return newSliceIterExported(out)
}

func (o *OrderedBy) Evaluate(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	return o.Step(ctx, in)
}

// Limit emits at most N results from Source, closing the underlying stream
// after the Nth (§4.8): O(1) extra memory, no buffering required.
type Limit struct {
	expr.Base

	Source expr.Node
	N      int
}

// NewLimit attaches source.
func NewLimit(state *expr.BuildState, source expr.Node, n int) (*Limit, error) {
	l := &Limit{Base: expr.NewBase(state, expr.Unary, expr.Flags{TruthValued: true}, "limit"), Source: source, N: n}
	if err := l.Base.Attach(l, source); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Limit) String() string { return l.Label() }

func (l *Limit) Step(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	return &limitIter{src: l.Source.Evaluate(ctx, in), remaining: l.N}
}

func (l *Limit) Evaluate(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	return l.Step(ctx, in)
}

type limitIter struct {
	src       expr.ResultIter
	remaining int
	current   eql.OperationResult
	err       error
}

func (it *limitIter) Next() bool {
	if it.remaining <= 0 {
		it.src.Close()
		return false
	}
	for it.src.Next() {
		r := it.src.Result()
		if !r.Truth {
			continue
		}
		it.current = r
		it.remaining--
		if it.remaining == 0 {
			// Finalise upstream now: no further pulls will happen, per the
			// cancellation contract (§5): downstream stopping must close
			// the generator immediately, not lazily on the next Next().
			it.src.Close()
		}
		return true
	}
	it.err = errOf(it.src)
	return false
}

func (it *limitIter) Result() eql.OperationResult { return it.current }
func (it *limitIter) Close() error                { return it.src.Close() }
func (it *limitIter) Err() error                  { return it.err }

// Distinct deduplicates by the tuple of selected values (§4.8).
type Distinct struct {
	expr.Base

	Source  expr.Node
	Project []expr.Node // the selected nodes whose bound values define the dedup tuple
}

// NewDistinct attaches source and each projection node.
func NewDistinct(state *expr.BuildState, source expr.Node, project []expr.Node) (*Distinct, error) {
	d := &Distinct{Base: expr.NewBase(state, expr.MultiArity, expr.Flags{TruthValued: true, Derived: true}, "distinct"), Source: source, Project: project}
	if err := d.Base.Attach(d, source); err != nil {
		return nil, err
	}
	for _, p := range project {
		if err := d.Base.Attach(d, p); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Distinct) String() string { return d.Label() }

func (d *Distinct) Step(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	src := d.Source.Evaluate(ctx, in)
	defer src.Close()

	seen := make(map[uint64][][]interface{})
	var out []eql.OperationResult
	for src.Next() {
		r := src.Result()
		if !r.Truth {
			continue
		}
		tuple := make([]interface{}, len(d.Project))
		for i, p := range d.Project {
			v, _ := r.Binding.Get(nodeVarID(p))
			tuple[i] = v
		}
		h := groupKeyHash(tuple)
		dup := false
		for _, s := range seen[h] {
			if sameKeyTuple(s, tuple) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		seen[h] = append(seen[h], tuple)
		out = append(out, r)
	}
	if err := errOf(src); err != nil {
		return newErrorIter(err)
	}
	return newSliceIterExported(out)
}

func (d *Distinct) Evaluate(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	return d.Step(ctx, in)
}
