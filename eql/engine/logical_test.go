package engine

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eqlang/eql"
	"github.com/eqlang/eql/expr"
)

func TestOrPassesThroughLeftTruthWithoutEvaluatingRight(t *testing.T) {
	state := expr.NewBuildState()
	registry := eql.NewSymbolRegistry()
	left := expr.NewVariable(state, reflect.TypeOf(0), []interface{}{1}, registry)
	right := expr.NewVariable(state, reflect.TypeOf(0), []interface{}{2}, registry)

	o, err := NewOr(state, left, right)
	require.NoError(t, err)

	ctx := &expr.EvalContext{Registry: registry}
	results := drain(t, o.Evaluate(ctx, eql.Binding{}))
	require.Len(t, results, 1)
	assert.True(t, results[0].Truth)
	v, _ := results[0].Binding.Get(left.VarID)
	assert.Equal(t, 1, v)
}

func TestOrFallsBackToRightWhenLeftAllFalse(t *testing.T) {
	state := expr.NewBuildState()
	registry := eql.NewSymbolRegistry()
	left := expr.NewVariable(state, reflect.TypeOf(0), []interface{}{1}, registry)
	threshold := expr.NewConst(state, 100)
	leftFalse, err := expr.NewComparator(state, expr.OpGt, left, threshold)
	require.NoError(t, err)

	right := expr.NewVariable(state, reflect.TypeOf(0), []interface{}{2}, registry)

	o, err := NewOr(state, leftFalse, right)
	require.NoError(t, err)

	ctx := &expr.EvalContext{Registry: registry}
	results := drain(t, o.Evaluate(ctx, eql.Binding{}))
	require.Len(t, results, 1)
	assert.True(t, results[0].Truth)
	v, _ := results[0].Binding.Get(right.VarID)
	assert.Equal(t, 2, v)
}

func TestNotNegatesChildTruth(t *testing.T) {
	state := expr.NewBuildState()
	registry := eql.NewSymbolRegistry()
	x := expr.NewVariable(state, reflect.TypeOf(0), []interface{}{1, 2}, registry)
	threshold := expr.NewConst(state, 1)
	cmp, err := expr.NewComparator(state, expr.OpGt, x, threshold)
	require.NoError(t, err)

	n, err := NewNot(state, cmp)
	require.NoError(t, err)

	ctx := &expr.EvalContext{Registry: registry}
	results := drain(t, n.Evaluate(ctx, eql.Binding{}))
	require.Len(t, results, 1, "Not introduces no new variables, so exactly one result per input binding")
	assert.False(t, results[0].Truth, "child had at least one true emission (x=2), so Not must report false")
}

func TestNotTrueWhenChildNeverTrue(t *testing.T) {
	state := expr.NewBuildState()
	registry := eql.NewSymbolRegistry()
	x := expr.NewVariable(state, reflect.TypeOf(0), []interface{}{1}, registry)
	threshold := expr.NewConst(state, 100)
	cmp, err := expr.NewComparator(state, expr.OpGt, x, threshold)
	require.NoError(t, err)

	n, err := NewNot(state, cmp)
	require.NoError(t, err)

	ctx := &expr.EvalContext{Registry: registry}
	results := drain(t, n.Evaluate(ctx, eql.Binding{}))
	require.Len(t, results, 1)
	assert.True(t, results[0].Truth)
}
