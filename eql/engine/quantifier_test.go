package engine

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eqlang/eql"
	"github.com/eqlang/eql/errkind"
	"github.com/eqlang/eql/expr"
)

func TestAnPassesThroughAllTruthyEmissions(t *testing.T) {
	state := expr.NewBuildState()
	registry := eql.NewSymbolRegistry()
	x := expr.NewVariable(state, reflect.TypeOf(0), []interface{}{1, 2, 3}, registry)

	q, err := NewQuantifier(state, x, An, 0, nil)
	require.NoError(t, err)

	ctx := &expr.EvalContext{Registry: registry}
	results := drain(t, q.Evaluate(ctx, eql.Binding{}))
	assert.Len(t, results, 3)
}

func TestTheSucceedsWithExactlyOneSolution(t *testing.T) {
	state := expr.NewBuildState()
	registry := eql.NewSymbolRegistry()
	x := expr.NewVariable(state, reflect.TypeOf(0), []interface{}{42}, registry)

	q, err := NewQuantifier(state, x, The, 0, []string{"the(x)"})
	require.NoError(t, err)

	ctx := &expr.EvalContext{Registry: registry}
	it := q.Evaluate(ctx, eql.Binding{})
	require.True(t, it.Next())
	v, _ := it.Result().Binding.Get(x.VarID)
	assert.Equal(t, 42, v)
	assert.False(t, it.Next())
	require.NoError(t, it.Close())
}

func TestTheRaisesNoSolutionFound(t *testing.T) {
	state := expr.NewBuildState()
	registry := eql.NewSymbolRegistry()
	x := expr.NewVariable(state, reflect.TypeOf(0), nil, registry)

	q, err := NewQuantifier(state, x, The, 0, []string{"the(x)"})
	require.NoError(t, err)

	ctx := &expr.EvalContext{Registry: registry}
	it := q.Evaluate(ctx, eql.Binding{})
	assert.False(t, it.Next())

	errIt, ok := it.(interface{ Err() error })
	require.True(t, ok, "the() must surface its failure via the Err() accessor")
	assert.True(t, errkind.NoSolutionFound.Is(errIt.Err()))
}

func TestTheRaisesMoreThanOneSolutionFound(t *testing.T) {
	state := expr.NewBuildState()
	registry := eql.NewSymbolRegistry()
	x := expr.NewVariable(state, reflect.TypeOf(0), []interface{}{1, 2}, registry)

	q, err := NewQuantifier(state, x, The, 0, []string{"the(x)"})
	require.NoError(t, err)

	ctx := &expr.EvalContext{Registry: registry}
	it := q.Evaluate(ctx, eql.Binding{})
	assert.False(t, it.Next())

	errIt, ok := it.(interface{ Err() error })
	require.True(t, ok)
	assert.True(t, errkind.MoreThanOneSolutionFound.Is(errIt.Err()))
}

func TestExactlyRejectsWrongCount(t *testing.T) {
	state := expr.NewBuildState()
	registry := eql.NewSymbolRegistry()
	x := expr.NewVariable(state, reflect.TypeOf(0), []interface{}{1, 2}, registry)

	q, err := NewQuantifier(state, x, Exactly, 3, []string{"exactly(3, x)"})
	require.NoError(t, err)

	ctx := &expr.EvalContext{Registry: registry}
	it := q.Evaluate(ctx, eql.Binding{})
	assert.False(t, it.Next())

	errIt, ok := it.(interface{ Err() error })
	require.True(t, ok)
	assert.True(t, errkind.QueryStructureInvalid.Is(errIt.Err()))
}

func TestAtLeastSatisfiedPassesThrough(t *testing.T) {
	state := expr.NewBuildState()
	registry := eql.NewSymbolRegistry()
	x := expr.NewVariable(state, reflect.TypeOf(0), []interface{}{1, 2, 3}, registry)

	q, err := NewQuantifier(state, x, AtLeast, 2, nil)
	require.NoError(t, err)

	ctx := &expr.EvalContext{Registry: registry}
	results := drain(t, q.Evaluate(ctx, eql.Binding{}))
	assert.Len(t, results, 3)
}

func TestAtMostTruncatesToK(t *testing.T) {
	state := expr.NewBuildState()
	registry := eql.NewSymbolRegistry()
	x := expr.NewVariable(state, reflect.TypeOf(0), []interface{}{1, 2, 3, 4}, registry)

	q, err := NewQuantifier(state, x, AtMost, 2, nil)
	require.NoError(t, err)

	ctx := &expr.EvalContext{Registry: registry}
	results := drain(t, q.Evaluate(ctx, eql.Binding{}))
	assert.Len(t, results, 2)
}
