package query

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eqlang/eql"

	"github.com/eqlang/eql/examples/fixtures"
)

func TestMatchFiltersByTypeAndFields(t *testing.T) {
	registry := eql.NewSymbolRegistry()
	fixtures.NewRobot(registry, "R2D2", 100, fixtures.Astromech)
	fixtures.NewRobot(registry, "BB8", 80, fixtures.Astromech)
	fixtures.NewRobot(registry, "C3PO", 20, fixtures.Protocol)

	b := NewBuilder(registry)
	target, cond, err := b.Match(&MatchSpec{
		Type:   reflect.TypeOf(&fixtures.Robot{}),
		Fields: map[string]interface{}{"Kind": fixtures.Astromech},
	})
	require.NoError(t, err)

	q := Entity(b, target)
	_, err = q.Where(cond)
	require.NoError(t, err)

	results, err := q.ToList()
	require.NoError(t, err)

	var names []string
	for _, r := range results {
		names = append(names, r.(*fixtures.Robot).Name)
	}
	assert.ElementsMatch(t, []string{"R2D2", "BB8"}, names)
}

func TestMatchVariableBindsExplicitDomain(t *testing.T) {
	registry := eql.NewSymbolRegistry()
	one := &fixtures.Robot{Name: "R2D2", Battery: 100, Kind: fixtures.Astromech}
	two := &fixtures.Robot{Name: "C3PO", Battery: 20, Kind: fixtures.Protocol}

	b := NewBuilder(registry)
	target, cond, err := b.MatchVariable(&MatchSpec{
		Type:   reflect.TypeOf(&fixtures.Robot{}),
		Fields: map[string]interface{}{"Kind": fixtures.Protocol},
	}, []interface{}{one, two})
	require.NoError(t, err)

	q := Entity(b, target)
	_, err = q.Where(cond)
	require.NoError(t, err)

	results, err := q.ToList()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "C3PO", results[0].(*fixtures.Robot).Name)
}
