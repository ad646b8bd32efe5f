package engine

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eqlang/eql"
	"github.com/eqlang/eql/expr"
)

type connection struct {
	ID   string
	Type string
}

type fixedView struct{ ConnID string }
type revoluteView struct{ ConnID string }
type defaultView struct{ ConnID string }

func TestDeducedVariableSeesEarlierFiredConclusions(t *testing.T) {
	acc := eql.NewAccumulator()
	acc.Add(fixedView{ConnID: "c1"})

	state := expr.NewBuildState()
	dv := NewDeducedVariable(state, reflect.TypeOf(fixedView{}))

	ctx := &expr.EvalContext{Accumulator: acc}
	results := drain(t, dv.Evaluate(ctx, eql.Binding{}))
	require.Len(t, results, 1)
	v, _ := results[0].Binding.Get(dv.VarID)
	assert.Equal(t, fixedView{ConnID: "c1"}, v)

	acc.Add(fixedView{ConnID: "c2"})
	results2 := drain(t, dv.Evaluate(ctx, eql.Binding{}))
	assert.Len(t, results2, 2, "a fresh pull must see conclusions added since the first pull")
}

func TestInferenceConstructsAndRecordsOnce(t *testing.T) {
	state := expr.NewBuildState()
	registry := eql.NewSymbolRegistry()
	c := expr.NewVariable(state, reflect.TypeOf(&connection{}), []interface{}{&connection{ID: "c1", Type: "Fixed"}}, registry)

	var built int
	inf, err := NewInference(state, reflect.TypeOf(fixedView{}), map[string]expr.Node{"Conn": c},
		func(kw map[string]interface{}) (interface{}, error) {
			built++
			return fixedView{ConnID: kw["Conn"].(*connection).ID}, nil
		})
	require.NoError(t, err)

	acc := eql.NewAccumulator()
	ctx := &expr.EvalContext{Registry: registry, Accumulator: acc}

	cIt := c.Evaluate(ctx, eql.Binding{})
	require.True(t, cIt.Next())
	binding := cIt.Result().Binding
	cIt.Close()

	results := drain(t, inf.Evaluate(ctx, binding))
	require.Len(t, results, 1)
	assert.Equal(t, 1, built)

	snap := acc.Snapshot(reflect.TypeOf(fixedView{}))
	require.Len(t, snap, 1)
}

func TestInferenceDedupesRepeatedKwargsUnderAccumulator(t *testing.T) {
	state := expr.NewBuildState()

	inf, err := NewInference(state, reflect.TypeOf(fixedView{}), map[string]expr.Node{"Tag": expr.NewConst(state, "same")},
		func(kw map[string]interface{}) (interface{}, error) {
			return fixedView{ConnID: kw["Tag"].(string)}, nil
		})
	require.NoError(t, err)

	acc := eql.NewAccumulator()
	ctx := &expr.EvalContext{Accumulator: acc}

	results1 := drain(t, inf.Evaluate(ctx, eql.Binding{}))
	require.Len(t, results1, 1)

	results2 := drain(t, inf.Evaluate(ctx, eql.Binding{}))
	assert.Len(t, results2, 0, "a second firing with identical kwargs must be suppressed")

	snap := acc.Snapshot(reflect.TypeOf(fixedView{}))
	assert.Len(t, snap, 1, "only one instance should have been recorded")
}

// TestRuleScopeAlternativeFiresOnlyWhenPrecedingDidNotFireForSameBinding
// exercises the §4.11 rule-tree "else" pattern: a trailing Alternative
// with an always-true condition must fire for each outer binding only
// when no earlier sibling fired for that same binding.
func TestRuleScopeAlternativeFiresOnlyWhenPrecedingDidNotFireForSameBinding(t *testing.T) {
	state := expr.NewBuildState()
	registry := eql.NewSymbolRegistry()
	conns := []interface{}{
		&connection{ID: "c1", Type: "Fixed"},
		&connection{ID: "c2", Type: "Revolute"},
		&connection{ID: "c3", Type: "Other"},
	}
	c := expr.NewVariable(state, reflect.TypeOf(&connection{}), conns, registry)
	typ, err := expr.NewMappedVariable(state, c, c.VarID, expr.OpAttribute, "Type", nil, nil)
	require.NoError(t, err)

	root, err := NewRuleScope(state, DefaultScope, nil)
	require.NoError(t, err)

	fixedCond, err := expr.NewComparator(state, expr.OpEq, typ, expr.NewConst(state, "Fixed"))
	require.NoError(t, err)
	fixedScope, err := NewRuleScope(state, Refinement, fixedCond)
	require.NoError(t, err)
	require.NoError(t, root.AddNested(fixedScope))

	var fired []string
	require.NoError(t, fixedScope.AddConclusion(
		mustConst(state, "target"),
		mustRecorder(state, &fired, "fixed")))

	revoluteCond, err := expr.NewComparator(state, expr.OpEq, typ, expr.NewConst(state, "Revolute"))
	require.NoError(t, err)
	revoluteScope, err := NewRuleScope(state, Alternative, revoluteCond)
	require.NoError(t, err)
	revoluteScope.SetPreceding([]*RuleScope{fixedScope})
	require.NoError(t, root.AddNested(revoluteScope))
	require.NoError(t, revoluteScope.AddConclusion(
		mustConst(state, "target"),
		mustRecorder(state, &fired, "revolute")))

	elseScope, err := NewRuleScope(state, Alternative, expr.NewConst(state, true))
	require.NoError(t, err)
	elseScope.SetPreceding([]*RuleScope{fixedScope, revoluteScope})
	require.NoError(t, root.AddNested(elseScope))
	require.NoError(t, elseScope.AddConclusion(
		mustConst(state, "target"),
		mustRecorder(state, &fired, "default")))

	ctx := &expr.EvalContext{Registry: registry}
	it := c.Evaluate(ctx, eql.Binding{})
	for it.Next() {
		r := it.Result()
		root.Step(ctx, r.Binding)
	}
	it.Close()

	assert.Equal(t, []string{"fixed", "revolute", "default"}, fired)
}

func mustConst(state *expr.BuildState, v interface{}) expr.Node {
	return expr.NewConst(state, v)
}

// mustRecorder builds a conclusion Value node that appends tag to fired
// when evaluated, standing in for a real host target so firing order can
// be observed without a pointer-to-slice target.
func mustRecorder(state *expr.BuildState, fired *[]string, tag string) expr.Node {
	return &recordingConst{Const: expr.NewConst(state, tag), fired: fired}
}

type recordingConst struct {
	*expr.Const
	fired *[]string
}

func (r *recordingConst) Evaluate(ctx *expr.EvalContext, in eql.Binding) expr.ResultIter {
	*r.fired = append(*r.fired, r.Const.Value.(string))
	return r.Const.Evaluate(ctx, in)
}
