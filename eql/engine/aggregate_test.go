package engine

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eqlang/eql"
	"github.com/eqlang/eql/expr"
)

type sample struct {
	Kind    string
	Battery int
}

func buildSampleVars(t *testing.T, state *expr.BuildState, registry *eql.SymbolRegistry, samples []interface{}) (*expr.Variable, *expr.MappedVariable, *expr.MappedVariable) {
	t.Helper()
	s := expr.NewVariable(state, reflect.TypeOf(sample{}), samples, registry)
	kind, err := expr.NewMappedVariable(state, s, s.VarID, expr.OpAttribute, "Kind", nil, nil)
	require.NoError(t, err)
	battery, err := expr.NewMappedVariable(state, s, s.VarID, expr.OpAttribute, "Battery", nil, nil)
	require.NoError(t, err)
	return s, kind, battery
}

func TestGroupedByPartitionsByKeyTuple(t *testing.T) {
	state := expr.NewBuildState()
	registry := eql.NewSymbolRegistry()
	samples := []interface{}{
		sample{Kind: "astromech", Battery: 100},
		sample{Kind: "astromech", Battery: 80},
		sample{Kind: "protocol", Battery: 20},
	}
	_, kind, _ := buildSampleVars(t, state, registry, samples)

	grouped, err := NewGroupedBy(state, kind, []expr.Node{kind})
	require.NoError(t, err)

	ctx := &expr.EvalContext{Registry: registry}
	results := drain(t, grouped.Evaluate(ctx, eql.Binding{}))

	require.Len(t, results, 2, "two distinct kinds must yield two groups")
	var kinds []string
	for _, r := range results {
		v, _ := r.Binding.Get(kind.VarID)
		kinds = append(kinds, v.(string))
	}
	assert.ElementsMatch(t, []string{"astromech", "protocol"}, kinds)
}

func TestAggregatorSumPerGroup(t *testing.T) {
	state := expr.NewBuildState()
	registry := eql.NewSymbolRegistry()
	samples := []interface{}{
		sample{Kind: "astromech", Battery: 100},
		sample{Kind: "astromech", Battery: 80},
		sample{Kind: "protocol", Battery: 20},
	}
	_, kind, battery := buildSampleVars(t, state, registry, samples)

	grouped, err := NewGroupedBy(state, kind, []expr.Node{kind})
	require.NoError(t, err)

	sum, err := NewAggregator(state, Sum, grouped, battery, nil, nil, false, false)
	require.NoError(t, err)

	ctx := &expr.EvalContext{Registry: registry}
	results := drain(t, sum.Evaluate(ctx, eql.Binding{}))

	require.Len(t, results, 2)
	totals := map[string]float64{}
	for _, r := range results {
		k, _ := r.Binding.Get(kind.VarID)
		v, _ := r.Binding.Get(sum.VarID)
		totals[k.(string)] = v.(float64)
	}
	assert.Equal(t, 180.0, totals["astromech"])
	assert.Equal(t, 20.0, totals["protocol"])
}

func TestAggregatorCountUngrouped(t *testing.T) {
	state := expr.NewBuildState()
	registry := eql.NewSymbolRegistry()
	samples := []interface{}{
		sample{Kind: "astromech", Battery: 100},
		sample{Kind: "protocol", Battery: 20},
		sample{Kind: "security", Battery: 90},
	}
	s, _, _ := buildSampleVars(t, state, registry, samples)

	count, err := NewAggregator(state, Count, s, s, nil, nil, false, false)
	require.NoError(t, err)

	ctx := &expr.EvalContext{Registry: registry}
	results := drain(t, count.Evaluate(ctx, eql.Binding{}))

	require.Len(t, results, 1, "ungrouped aggregation folds the whole stream as one implicit group")
	v, _ := results[0].Binding.Get(count.VarID)
	assert.Equal(t, 3, v)
}

func TestAggregatorMaxWithKeyReturnsElementNotExtremum(t *testing.T) {
	state := expr.NewBuildState()
	registry := eql.NewSymbolRegistry()
	samples := []interface{}{
		sample{Kind: "R2D2", Battery: 100},
		sample{Kind: "BB8", Battery: 80},
	}
	s, kind, battery := buildSampleVars(t, state, registry, samples)

	max, err := NewAggregator(state, Max, s, kind, battery, nil, false, false)
	require.NoError(t, err)

	ctx := &expr.EvalContext{Registry: registry}
	results := drain(t, max.Evaluate(ctx, eql.Binding{}))

	require.Len(t, results, 1)
	v, _ := results[0].Binding.Get(max.VarID)
	assert.Equal(t, "R2D2", v, "max(kind) with key=battery must return the name of the highest-battery sample, not the battery value")
}

func TestHavingFiltersGroupsByAggregateCondition(t *testing.T) {
	state := expr.NewBuildState()
	registry := eql.NewSymbolRegistry()
	samples := []interface{}{
		sample{Kind: "astromech", Battery: 100},
		sample{Kind: "astromech", Battery: 80},
		sample{Kind: "protocol", Battery: 20},
		sample{Kind: "protocol", Battery: 10},
		sample{Kind: "security", Battery: 90},
	}
	_, kind, battery := buildSampleVars(t, state, registry, samples)

	grouped, err := NewGroupedBy(state, kind, []expr.Node{kind})
	require.NoError(t, err)
	sum, err := NewAggregator(state, Sum, grouped, battery, nil, nil, false, false)
	require.NoError(t, err)
	threshold := expr.NewConst(state, 50)
	cond, err := expr.NewComparator(state, expr.OpGt, sum, threshold)
	require.NoError(t, err)
	having, err := NewHaving(state, sum, cond)
	require.NoError(t, err)

	ctx := &expr.EvalContext{Registry: registry}
	results := drain(t, having.Evaluate(ctx, eql.Binding{}))

	var kinds []string
	for _, r := range results {
		v, _ := r.Binding.Get(kind.VarID)
		kinds = append(kinds, v.(string))
	}
	assert.ElementsMatch(t, []string{"astromech", "security"}, kinds, "protocol's total battery (30) must be excluded, falling below the >50 threshold")
}

func TestAggregatorStreamingPathMatchesBatchPath(t *testing.T) {
	state := expr.NewBuildState()
	registry := eql.NewSymbolRegistry()

	samples := make([]interface{}, 0, StreamingAggregationThreshold+5)
	for i := 0; i < StreamingAggregationThreshold+5; i++ {
		samples = append(samples, sample{Kind: "astromech", Battery: i % 7})
	}
	s, _, battery := buildSampleVars(t, state, registry, samples)

	sum, err := NewAggregator(state, Sum, s, battery, nil, nil, false, false)
	require.NoError(t, err)
	count, err := NewAggregator(state, Count, s, battery, nil, nil, false, true)
	require.NoError(t, err)

	ctx := &expr.EvalContext{Registry: registry}

	sumResults := drain(t, sum.Evaluate(ctx, eql.Binding{}))
	require.Len(t, sumResults, 1)
	sumVal, _ := sumResults[0].Binding.Get(sum.VarID)

	var want float64
	for i := 0; i < StreamingAggregationThreshold+5; i++ {
		want += float64(i % 7)
	}
	assert.Equal(t, want, sumVal, "folding above StreamingAggregationThreshold must use the streaming path and still sum correctly")

	countResults := drain(t, count.Evaluate(ctx, eql.Binding{}))
	require.Len(t, countResults, 1)
	countVal, _ := countResults[0].Binding.Get(count.VarID)
	assert.Equal(t, 7, countVal, "distinct count over the streaming path must dedupe the 7 distinct battery values modulo 7")
}
