package eql

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

type widget struct{ ID int }

func TestRegistrySnapshotOrderAndIsolation(t *testing.T) {
	r := NewSymbolRegistry()
	a := &widget{ID: 1}
	b := &widget{ID: 2}
	r.Register(a)
	r.Register(b)

	t_ := reflect.TypeOf(a)
	snap := r.Snapshot(t_)
	assert.Equal(t, []interface{}{a, b}, snap)

	// Mutating the registry after a snapshot must not retroactively change it.
	r.Register(&widget{ID: 3})
	assert.Len(t, snap, 2, "snapshot must be isolated from later registrations")

	snap2 := r.Snapshot(t_)
	assert.Len(t, snap2, 3)
}

func TestRegistryUnregister(t *testing.T) {
	r := NewSymbolRegistry()
	a := &widget{ID: 1}
	b := &widget{ID: 2}
	r.Register(a)
	r.Register(b)
	r.Unregister(a)

	snap := r.Snapshot(reflect.TypeOf(a))
	assert.Equal(t, []interface{}{b}, snap)
}
