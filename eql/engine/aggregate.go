package engine

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/eqlang/eql"
	"github.com/eqlang/eql/expr"
)

// GroupedBy partitions the upstream stream by the tuple of key values
// under the current binding (§4.7). Order of groups is insertion order of
// first occurrence of each key tuple; within a group the contributor
// bindings are preserved in arrival order. This is a DerivedExpression —
// it must buffer the full upstream before it can emit its first group.
type GroupedBy struct {
	expr.Base

	Child expr.Node
	Keys  []expr.Node

	// ContributorsVar is a synthetic identity this node binds, per
	// emitted group, to that group's []eql.Binding contributor list so
	// an Aggregator attached downstream can fold over exactly that group.
	ContributorsVar eql.VarID
}

// NewGroupedBy attaches child and each key node.
func NewGroupedBy(state *expr.BuildState, child expr.Node, keys []expr.Node) (*GroupedBy, error) {
	g := &GroupedBy{
		Base:            expr.NewBase(state, expr.MultiArity, expr.Flags{TruthValued: true, Derived: true}, "grouped_by"),
		Child:           child,
		Keys:            keys,
		ContributorsVar: eql.NewVarID(),
	}
	if err := g.Base.Attach(g, child); err != nil {
		return nil, err
	}
	for _, k := range keys {
		if err := g.Base.Attach(g, k); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *GroupedBy) String() string { return g.Label() }

type groupBucket struct {
	keyVals      []interface{}
	keyBinding   map[eql.VarID]interface{}
	contributors []eql.Binding
}

// groupKeyHash is a first-pass bucketing hash over the key tuple's string
// rendering (cespare/xxhash/v2, replacing a hand-rolled FNV): collisions
// are resolved by an exact ValuesEqual walk, so hashing never affects
// correctness, only how fast a matching bucket is found.
func groupKeyHash(vals []interface{}) uint64 {
	var s string
	for _, v := range vals {
		s += fmt.Sprintf("\x1f%v", v)
	}
	return xxhash.Sum64String(s)
}

func (g *GroupedBy) Step(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	if _, ok := in.Get(g.ContributorsVar); ok {
		// in is already one of this node's groups (an Aggregator or Having
		// re-entering under a group binding): pass it through unchanged.
		return newOneShotIter(eql.Result(in, true))
	}
	child := g.Child.Evaluate(ctx, in)
	defer child.Close()

	keyIDs := make([]eql.VarID, len(g.Keys))
	for i, k := range g.Keys {
		keyIDs[i] = nodeVarID(k)
	}

	buckets := map[uint64][]*groupBucket{}
	var order []*groupBucket

	for child.Next() {
		r := child.Result()
		if !r.Truth {
			continue
		}
		vals := make([]interface{}, len(keyIDs))
		for i := range keyIDs {
			v, _ := evalScalar(ctx, g.Keys[i], r.Binding)
			vals[i] = v
		}
		h := groupKeyHash(vals)
		var found *groupBucket
		for _, b := range buckets[h] {
			if sameKeyTuple(b.keyVals, vals) {
				found = b
				break
			}
		}
		if found == nil {
			kb := make(map[eql.VarID]interface{}, len(keyIDs))
			for i, id := range keyIDs {
				kb[id] = vals[i]
			}
			found = &groupBucket{keyVals: vals, keyBinding: kb}
			buckets[h] = append(buckets[h], found)
			order = append(order, found)
		}
		found.contributors = append(found.contributors, r.Binding)
	}
	if err := errOf(child); err != nil {
		return newErrorIter(err)
	}

	results := make([]eql.OperationResult, 0, len(order))
	for _, b := range order {
		out := in
		for id, v := range b.keyBinding {
			out = out.With(id, v)
		}
		out = out.With(g.ContributorsVar, b.contributors)
		results = append(results, eql.Result(out, true))
	}
	return newSliceIterExported(results)
}

func sameKeyTuple(a, b []interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !eql.ValuesEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (g *GroupedBy) Evaluate(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	return g.Step(ctx, in)
}

// AggKind enumerates the §4.7 aggregators.
type AggKind int

const (
	Count AggKind = iota
	Sum
	Average
	Min
	Max
)

// Aggregator is a Unary node over a value-producing child, parameterised
// by an optional key transform, default, and distinct flag (§4.7). If
// Source is a *GroupedBy, the aggregator folds once per group; otherwise
// it folds the entirety of Source's stream as a single implicit group.
type Aggregator struct {
	expr.Base

	VarID  eql.VarID
	Kind   AggKind
	Source expr.Node // either a *GroupedBy or the raw where-conjunction root
	Value  expr.Node // value-producing child evaluated per contributor
	Key    expr.Node // optional; for min/max "return the element" semantics
	Default interface{}
	HasDefault bool
	Distinct bool
}

// NewAggregator attaches source and value (and key, if present).
func NewAggregator(state *expr.BuildState, kind AggKind, source, value, key expr.Node, def interface{}, hasDefault, distinct bool) (*Aggregator, error) {
	a := &Aggregator{
		Base:   expr.NewBase(state, expr.Unary, expr.Flags{TruthValued: true, Selectable: true}, aggLabel(kind)),
		VarID:  eql.NewVarID(),
		Kind:   kind,
		Source: source,
		Value:  value,
		Key:    key,
		Default: def,
		HasDefault: hasDefault,
		Distinct: distinct,
	}
	if err := a.Base.Attach(a, source); err != nil {
		return nil, err
	}
	if err := a.Base.Attach(a, value); err != nil {
		return nil, err
	}
	if key != nil {
		if err := a.Base.Attach(a, key); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func aggLabel(k AggKind) string {
	switch k {
	case Count:
		return "count"
	case Sum:
		return "sum"
	case Average:
		return "average"
	case Min:
		return "min"
	case Max:
		return "max"
	default:
		return "aggregate"
	}
}

func (a *Aggregator) String() string { return a.Label() }

// ResultVarID lets expr.Comparator/Predicate read an aggregator's folded
// value without the expr package importing engine.
func (a *Aggregator) ResultVarID() eql.VarID { return a.VarID }

func (a *Aggregator) Step(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	if _, ok := in.Get(a.VarID); ok {
		// Already folded upstream (e.g. a Having condition evaluated against
		// a group binding that carries this aggregate): reuse that value.
		return newOneShotIter(eql.Result(in, true))
	}
	grouped, isGrouped := a.Source.(*GroupedBy)
	src := a.Source.Evaluate(ctx, in)
	defer src.Close()

	var out []eql.OperationResult
	if isGrouped {
		for src.Next() {
			r := src.Result()
			if !r.Truth {
				continue
			}
			cvRaw, _ := r.Binding.Get(grouped.ContributorsVar)
			contributors, _ := cvRaw.([]eql.Binding)
			val, ok := a.fold(ctx, contributors)
			if !ok {
				if !a.HasDefault {
					continue
				}
				val = a.Default
			}
			out = append(out, eql.Result(r.Binding.With(a.VarID, val), true))
		}
		if err := errOf(src); err != nil {
			return newErrorIter(err)
		}
	} else {
		// Ungrouped: the entire upstream stream is a single implicit group.
		var contributors []eql.Binding
		for src.Next() {
			r := src.Result()
			if r.Truth {
				contributors = append(contributors, r.Binding)
			}
		}
		if err := errOf(src); err != nil {
			return newErrorIter(err)
		}
		val, ok := a.fold(ctx, contributors)
		if !ok {
			if !a.HasDefault {
				return newSliceIterExported(nil)
			}
			val = a.Default
		}
		out = append(out, eql.Result(in.With(a.VarID, val), true))
	}
	return newSliceIterExported(out)
}

func (a *Aggregator) Evaluate(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	return a.Step(ctx, in)
}

// StreamingAggregationThreshold is the minimum contributor-set size at
// which fold switches from batch to streaming evaluation. Below it, the
// batch path materialises every (value, key) sample before reducing,
// which is simplest and cheap enough to not matter. At or above it, the
// streaming path folds contributors one at a time and never holds more
// than the running accumulator plus, for Distinct, a hash set of values
// seen so far.
const StreamingAggregationThreshold = 100

// fold evaluates Value (and Key, if present) against each contributor
// binding and reduces according to Kind.
func (a *Aggregator) fold(ctx *expr.EvalContext, contributors []eql.Binding) (interface{}, bool) {
	if len(contributors) >= StreamingAggregationThreshold {
		return a.foldStreaming(ctx, contributors)
	}
	return a.foldBatch(ctx, contributors)
}

func (a *Aggregator) foldBatch(ctx *expr.EvalContext, contributors []eql.Binding) (interface{}, bool) {
	type sample struct {
		value interface{}
		key   interface{}
		full  eql.Binding
	}
	samples := make([]sample, 0, len(contributors))
	var seen []interface{}

	for _, b := range contributors {
		v, ok := evalScalar(ctx, a.Value, b)
		if !ok {
			continue
		}
		if a.Distinct {
			dup := false
			for _, s := range seen {
				if eql.ValuesEqual(s, v) {
					dup = true
					break
				}
			}
			if dup {
				continue
			}
			seen = append(seen, v)
		}
		sm := sample{value: v, full: b}
		if a.Key != nil {
			kv, ok := evalScalar(ctx, a.Key, b)
			if ok {
				sm.key = kv
			}
		}
		samples = append(samples, sm)
	}

	if a.Kind == Count {
		return len(samples), true
	}
	if len(samples) == 0 {
		return nil, false
	}

	switch a.Kind {
	case Sum:
		var total float64
		for _, s := range samples {
			total += toFloat(s.value)
		}
		return total, true
	case Average:
		var total float64
		for _, s := range samples {
			total += toFloat(s.value)
		}
		return total / float64(len(samples)), true
	case Min, Max:
		best := samples[0]
		for _, s := range samples[1:] {
			bestKey, sKey := best.value, s.value
			if a.Key != nil {
				bestKey, sKey = best.key, s.key
			}
			cmp := eql.CompareValues(sKey, bestKey)
			if (a.Kind == Min && cmp < 0) || (a.Kind == Max && cmp > 0) {
				best = s
			}
		}
		if a.Key != nil {
			return best.value, true // the element achieving the extremum
		}
		return best.value, true
	}
	return nil, false
}

// foldStreaming computes the same reduction as foldBatch in one pass,
// without retaining the per-contributor sample list. Distinct still needs
// to remember values seen so far; it does so in a xxhash-bucketed set
// rather than the batch path's linear scan, since large contributor sets
// are exactly when that scan would start to show up.
func (a *Aggregator) foldStreaming(ctx *expr.EvalContext, contributors []eql.Binding) (interface{}, bool) {
	var (
		count            int
		total            float64
		haveBest         bool
		bestVal, bestKey interface{}
	)
	seen := map[uint64][]interface{}{}

	sawAny := false
	for _, b := range contributors {
		v, ok := evalScalar(ctx, a.Value, b)
		if !ok {
			continue
		}
		if a.Distinct {
			h := groupKeyHash([]interface{}{v})
			dup := false
			for _, sv := range seen[h] {
				if eql.ValuesEqual(sv, v) {
					dup = true
					break
				}
			}
			if dup {
				continue
			}
			seen[h] = append(seen[h], v)
		}

		sawAny = true
		count++
		switch a.Kind {
		case Sum, Average:
			total += toFloat(v)
		case Min, Max:
			key := v
			if a.Key != nil {
				if kv, ok := evalScalar(ctx, a.Key, b); ok {
					key = kv
				} else {
					key = nil
				}
			}
			if !haveBest {
				haveBest, bestVal, bestKey = true, v, key
				continue
			}
			cmp := eql.CompareValues(key, bestKey)
			if (a.Kind == Min && cmp < 0) || (a.Kind == Max && cmp > 0) {
				bestVal, bestKey = v, key
			}
		}
	}

	if a.Kind == Count {
		return count, true
	}
	if !sawAny {
		return nil, false
	}
	switch a.Kind {
	case Sum:
		return total, true
	case Average:
		return total / float64(count), true
	case Min, Max:
		return bestVal, true
	}
	return nil, false
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

// evalScalar evaluates n against binding b and returns the value bound at
// n's own VarID, for nodes (Variable, MappedVariable, SymbolicFunction)
// that produce exactly one scalar per binding.
func evalScalar(ctx *expr.EvalContext, n expr.Node, b eql.Binding) (interface{}, bool) {
	id := nodeVarID(n)
	if v, ok := b.Get(id); ok {
		return v, true
	}
	it := n.Evaluate(ctx, b)
	defer it.Close()
	for it.Next() {
		r := it.Result()
		if r.Truth {
			if v, ok := r.Binding.Get(id); ok {
				return v, true
			}
		}
	}
	return nil, false
}

// nodeVarID extracts the VarID a leaf/mapped/function node binds.
func nodeVarID(n expr.Node) eql.VarID {
	switch t := n.(type) {
	case *expr.Variable:
		return t.VarID
	case *expr.MappedVariable:
		return t.VarID
	case *expr.SymbolicFunction:
		return t.VarID
	case *expr.Const:
		return t.VarID
	case *Aggregator:
		return t.VarID
	case *DeducedVariable:
		return t.VarID
	case *Inference:
		return t.VarID
	}
	return eql.VarID{}
}

// Having filters whole groups after aggregation (§4.7): a predicate node
// that may reference aggregators and group keys only. It is implemented
// as a thin Unary wrapper since the predicate itself is an ordinary truth-
// valued sub-DAG evaluated against the group's already-merged binding.
type Having struct {
	expr.Base

	Source expr.Node
	Cond   expr.Node
}

// NewHaving attaches source and cond.
func NewHaving(state *expr.BuildState, source, cond expr.Node) (*Having, error) {
	h := &Having{Base: expr.NewBase(state, expr.Binary, expr.Flags{TruthValued: true}, "having"), Source: source, Cond: cond}
	if err := h.Base.Attach(h, source); err != nil {
		return nil, err
	}
	if err := h.Base.Attach(h, cond); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Having) String() string { return h.Label() }

func (h *Having) Step(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	src := h.Source.Evaluate(ctx, in)
	var out []eql.OperationResult
	var condErr error
	for src.Next() {
		r := src.Result()
		if !r.Truth {
			continue
		}
		cond := h.Cond.Evaluate(ctx, r.Binding)
		pass := false
		for cond.Next() {
			if cond.Result().Truth {
				pass = true
				break
			}
		}
		if err := errOf(cond); err != nil && condErr == nil {
			condErr = err
		}
		cond.Close()
		if pass {
			out = append(out, r)
		}
	}
	srcErr := errOf(src)
	src.Close()
	if srcErr != nil {
		return newErrorIter(srcErr)
	}
	if condErr != nil {
		return newErrorIter(condErr)
	}
	return newSliceIterExported(out)
}

func (h *Having) Evaluate(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	return h.Step(ctx, in)
}
