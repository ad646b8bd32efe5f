package engine

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eqlang/eql"
	"github.com/eqlang/eql/expr"
)

func drain(t *testing.T, it expr.ResultIter) []eql.OperationResult {
	t.Helper()
	var out []eql.OperationResult
	for it.Next() {
		out = append(out, it.Result())
	}
	require.NoError(t, it.Close())
	return out
}

func TestAndCartesianProductWithReordering(t *testing.T) {
	state := expr.NewBuildState()
	registry := eql.NewSymbolRegistry()
	x := expr.NewVariable(state, reflect.TypeOf(0), []interface{}{1, 2}, registry)
	y := expr.NewVariable(state, reflect.TypeOf(""), []interface{}{"a", "b"}, registry)

	a, err := NewAnd(state, []expr.Node{x, y})
	require.NoError(t, err)

	ctx := &expr.EvalContext{Registry: registry}
	results := drain(t, a.Evaluate(ctx, eql.Binding{}))

	require.Len(t, results, 4, "2 x 2 domain must yield 4 combinations regardless of reordering")
	seen := map[string]bool{}
	for _, r := range results {
		require.True(t, r.Truth)
		xv, _ := r.Binding.Get(x.VarID)
		yv, _ := r.Binding.Get(y.VarID)
		seen[reflect.ValueOf(xv).String()+reflect.ValueOf(yv).String()] = true
	}
	assert.Len(t, seen, 4, "all four combinations must be distinct bindings")
}

func TestAndFiltersOnChildTruth(t *testing.T) {
	state := expr.NewBuildState()
	registry := eql.NewSymbolRegistry()
	x := expr.NewVariable(state, reflect.TypeOf(0), []interface{}{1, 2, 3}, registry)
	threshold := expr.NewConst(state, 1)
	cmp, err := expr.NewComparator(state, expr.OpGt, x, threshold)
	require.NoError(t, err)

	a, err := NewAnd(state, []expr.Node{x, cmp})
	require.NoError(t, err)

	ctx := &expr.EvalContext{Registry: registry}
	results := drain(t, a.Evaluate(ctx, eql.Binding{}))

	var trueCount int
	for _, r := range results {
		if r.Truth {
			trueCount++
		}
	}
	assert.Equal(t, 2, trueCount, "only x=2 and x=3 satisfy x>1")
}
