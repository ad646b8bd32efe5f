package query

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eqlang/eql"

	"github.com/eqlang/eql/examples/fixtures"
)

func TestTableRendersOneRowPerResult(t *testing.T) {
	registry := eql.NewSymbolRegistry()
	fixtures.NewRobot(registry, "R2D2", 100, fixtures.Astromech)
	fixtures.NewRobot(registry, "BB8", 80, fixtures.Astromech)

	b := NewBuilder(registry)
	r := b.Variable(reflect.TypeOf(&fixtures.Robot{}))
	name, err := b.Attribute(r, "Name")
	require.NoError(t, err)

	q := Entity(b, name)
	out, err := q.Table("Name")
	require.NoError(t, err)

	assert.Contains(t, out, "R2D2")
	assert.Contains(t, out, "BB8")
}

func TestExplainWithoutTraceEnabledReturnsPlaceholder(t *testing.T) {
	registry := eql.NewSymbolRegistry()
	b := NewBuilder(registry)
	r := b.Variable(reflect.TypeOf(&fixtures.Robot{}))
	q := Entity(b, r)
	assert.Contains(t, q.Explain(), "tracing not enabled")
}

func TestExplainAfterEnableTraceReportsEvents(t *testing.T) {
	registry := eql.NewSymbolRegistry()
	fixtures.NewRobot(registry, "R2D2", 100, fixtures.Astromech)

	b := NewBuilder(registry)
	r := b.Variable(reflect.TypeOf(&fixtures.Robot{}))
	q := Entity(b, r)
	q.EnableTrace()

	_, err := q.ToList()
	require.NoError(t, err)
	assert.NotEmpty(t, q.Explain())
}
