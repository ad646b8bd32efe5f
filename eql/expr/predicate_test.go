package expr

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eqlang/eql"
)

func TestPredicateAppliesCallableOverProduct(t *testing.T) {
	state := NewBuildState()
	registry := eql.NewSymbolRegistry()
	x := NewVariable(state, reflect.TypeOf(0), []interface{}{1, 2, 3, 4}, registry)

	even, err := NewPredicate(state, func(args []interface{}) (interface{}, error) {
		return args[0].(int)%2 == 0, nil
	}, []Node{x}, "even")
	require.NoError(t, err)

	ctx := &EvalContext{Registry: registry}
	results := drain(t, even.Evaluate(ctx, eql.Binding{}))

	var trueCount int
	for _, r := range results {
		if r.Truth {
			trueCount++
		}
	}
	assert.Equal(t, 2, trueCount)
}

func TestPredicateCallableErrorEmitsFalseAndRecordsLastError(t *testing.T) {
	state := NewBuildState()
	registry := eql.NewSymbolRegistry()
	x := NewVariable(state, reflect.TypeOf(0), []interface{}{1}, registry)

	boom := fmt.Errorf("boom")
	p, err := NewPredicate(state, func(args []interface{}) (interface{}, error) {
		return nil, boom
	}, []Node{x}, "boom")
	require.NoError(t, err)

	ctx := &EvalContext{Registry: registry}
	results := drain(t, p.Evaluate(ctx, eql.Binding{}))
	require.Len(t, results, 1)
	assert.False(t, results[0].Truth)
	assert.ErrorIs(t, p.LastError(), boom)
}

func TestHasTypeFiltersDomainByDynamicType(t *testing.T) {
	state := NewBuildState()
	registry := eql.NewSymbolRegistry()

	type a struct{}
	type b struct{}
	av, bv := &a{}, &b{}
	v := NewVariable(state, reflect.TypeOf((*interface{})(nil)).Elem(), []interface{}{av, bv}, registry)

	ht := NewHasType(state, v.VarID, reflect.TypeOf(av))

	ctx := &EvalContext{Registry: registry}
	// HasType reads Target directly from the incoming binding, so drive it
	// once per variable emission via NewProduct the way And would.
	results := drain(t, NewProduct(ctx, eql.Binding{}, []Node{v, ht}))

	var trueCount int
	for _, r := range results {
		if r.Truth {
			trueCount++
		}
	}
	assert.Equal(t, 1, trueCount, "only the *a instance should satisfy HasType(*a)")
}
