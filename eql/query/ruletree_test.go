package query

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eqlang/eql"
	"github.com/eqlang/eql/expr"
)

type testConnection struct {
	ID   string
	Type string
}

func TestRuleScopeRefinementGatesConclusionOnCondition(t *testing.T) {
	registry := eql.NewSymbolRegistry()
	conns := []interface{}{
		testConnection{ID: "c1", Type: "fixed"},
		testConnection{ID: "c2", Type: "revolute"},
	}

	b := NewBuilder(registry)
	c := b.Variable(reflect.TypeOf(testConnection{}), conns...)
	typ, err := b.Attribute(c, "Type")
	require.NoError(t, err)
	id, err := b.Attribute(c, "ID")
	require.NoError(t, err)

	q := Entity(b, c)

	root, err := q.RootScope()
	require.NoError(t, err)
	isFixedCond, err := b.Eq(typ, expr.NewConst(b.State(), "fixed"))
	require.NoError(t, err)
	fixedScope, err := root.Refinement(isFixedCond)
	require.NoError(t, err)

	var fixedIDs []string
	require.NoError(t, fixedScope.Add(expr.NewConst(b.State(), &fixedIDs), id))

	_, err = q.ToList()
	require.NoError(t, err)

	assert.Equal(t, []string{"c1"}, fixedIDs)
}

func TestRuleScopeAlternativeChainFiresExactlyOncePerOuterBinding(t *testing.T) {
	registry := eql.NewSymbolRegistry()
	conns := []interface{}{
		testConnection{ID: "c1", Type: "fixed"},
		testConnection{ID: "c2", Type: "revolute"},
		testConnection{ID: "c3", Type: "ball"},
	}

	b := NewBuilder(registry)
	c := b.Variable(reflect.TypeOf(testConnection{}), conns...)
	typ, err := b.Attribute(c, "Type")
	require.NoError(t, err)
	id, err := b.Attribute(c, "ID")
	require.NoError(t, err)

	q := Entity(b, c)

	root, err := q.RootScope()
	require.NoError(t, err)

	isFixed, err := b.Eq(typ, expr.NewConst(b.State(), "fixed"))
	require.NoError(t, err)
	fixedScope, err := root.Refinement(isFixed)
	require.NoError(t, err)
	var fixedIDs []string
	require.NoError(t, fixedScope.Add(expr.NewConst(b.State(), &fixedIDs), id))

	isRevolute, err := b.Eq(typ, expr.NewConst(b.State(), "revolute"))
	require.NoError(t, err)
	revoluteScope, err := root.Alternative(isRevolute, fixedScope)
	require.NoError(t, err)
	var revoluteIDs []string
	require.NoError(t, revoluteScope.Add(expr.NewConst(b.State(), &revoluteIDs), id))

	elseScope, err := root.Alternative(expr.NewConst(b.State(), true), fixedScope, revoluteScope)
	require.NoError(t, err)
	var defaultIDs []string
	require.NoError(t, elseScope.Add(expr.NewConst(b.State(), &defaultIDs), id))

	_, err = q.ToList()
	require.NoError(t, err)

	assert.Equal(t, []string{"c1"}, fixedIDs)
	assert.Equal(t, []string{"c2"}, revoluteIDs)
	assert.Equal(t, []string{"c3"}, defaultIDs, "ball connections match neither fixed nor revolute, so the unconditional else scope must catch them")
}
