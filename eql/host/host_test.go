package host

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	Name  string
	Tags  []string
	Props map[string]int
}

func (w *widget) Greet(suffix string) string { return "hi " + w.Name + suffix }

func TestGetAttrStructField(t *testing.T) {
	w := &widget{Name: "bolt"}
	v, err := GetAttr(w, "Name")
	require.NoError(t, err)
	assert.Equal(t, "bolt", v)
}

func TestGetAttrRejectsMethodWithArgs(t *testing.T) {
	w := &widget{Name: "bolt"}
	v, err := GetAttr(w, "Greet")
	assert.Error(t, err, "Greet takes an argument; get_attr must refuse it")
	_ = v
}

func TestGetAttrMissing(t *testing.T) {
	w := &widget{}
	_, err := GetAttr(w, "DoesNotExist")
	assert.Error(t, err)
}

func TestIndexSliceAndMap(t *testing.T) {
	w := &widget{Tags: []string{"a", "b"}, Props: map[string]int{"x": 1}}
	v, err := Index(w.Tags, 1)
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	v2, err := Index(w.Props, "x")
	require.NoError(t, err)
	assert.Equal(t, 1, v2)

	_, err = Index(w.Tags, 5)
	assert.Error(t, err)
}

func TestInvoke(t *testing.T) {
	w := &widget{Name: "bolt"}
	v, err := Invoke(w, "Greet", []interface{}{"!"})
	require.NoError(t, err)
	assert.Equal(t, "hi bolt!", v)
}

func TestIsA(t *testing.T) {
	w := &widget{}
	assert.True(t, IsA(w, reflect.TypeOf(w)))
	assert.False(t, IsA(w, reflect.TypeOf(42)))
	assert.False(t, IsA(nil, reflect.TypeOf(w)))
}

func TestFlatten(t *testing.T) {
	out, err := Flatten([]string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b", "c"}, out)

	_, err = Flatten(42)
	assert.Error(t, err)
}

func TestLength(t *testing.T) {
	n, err := Length([]int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestAppendTo(t *testing.T) {
	var names []string
	require.NoError(t, AppendTo(&names, "a"))
	require.NoError(t, AppendTo(&names, "b"))
	assert.Equal(t, []string{"a", "b"}, names)

	err := AppendTo(names, "c")
	assert.Error(t, err, "target must be a pointer to a slice")

	var nums []int
	err = AppendTo(&nums, "not a number")
	assert.Error(t, err)
}
