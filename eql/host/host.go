// Package host implements the reflection bridge the EQL core consumes but
// does not specify (spec.md §6): get_attr, index, invoke, is_a. This is the
// one component in the repository built directly on the standard library —
// see DESIGN.md for why no third-party library in the retrieval pack fits
// general host-object introspection better than reflect.
package host

import (
	"fmt"
	"reflect"
)

// GetAttr reads a named field or zero-argument method from obj, mirroring
// attribute access on an arbitrary host object (MappedVariable Attribute,
// §3/§4.2). Struct fields are tried before methods.
func GetAttr(obj interface{}, name string) (interface{}, error) {
	if obj == nil {
		return nil, fmt.Errorf("get_attr %q: nil receiver", name)
	}
	v := reflect.ValueOf(obj)
	underlying := v
	for underlying.Kind() == reflect.Ptr || underlying.Kind() == reflect.Interface {
		if underlying.IsNil() {
			return nil, fmt.Errorf("get_attr %q: nil receiver", name)
		}
		underlying = underlying.Elem()
	}

	if underlying.Kind() == reflect.Struct {
		if f := underlying.FieldByName(name); f.IsValid() {
			return f.Interface(), nil
		}
	}
	if underlying.Kind() == reflect.Map {
		key := reflect.ValueOf(name)
		val := underlying.MapIndex(key)
		if val.IsValid() {
			return val.Interface(), nil
		}
	}

	if m := v.MethodByName(name); m.IsValid() {
		if m.Type().NumIn() != 0 {
			return nil, fmt.Errorf("get_attr %q: method requires arguments, use Call", name)
		}
		out := m.Call(nil)
		return unpackCallResult(out)
	}

	return nil, fmt.Errorf("get_attr: %T has no attribute %q", obj, name)
}

// Index reads obj[key], supporting slices/arrays (integer key) and maps
// (any hashable key), mirroring MappedVariable Index (§3/§4.2).
func Index(obj interface{}, key interface{}) (interface{}, error) {
	if obj == nil {
		return nil, fmt.Errorf("index: nil receiver")
	}
	v := reflect.ValueOf(obj)
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, fmt.Errorf("index: nil receiver")
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.String:
		i, err := toInt(key)
		if err != nil {
			return nil, fmt.Errorf("index: %w", err)
		}
		if i < 0 || i >= v.Len() {
			return nil, fmt.Errorf("index: %d out of range (len=%d)", i, v.Len())
		}
		return v.Index(i).Interface(), nil
	case reflect.Map:
		kv := reflect.ValueOf(key)
		if !kv.IsValid() {
			return nil, fmt.Errorf("index: nil key")
		}
		if kv.Type() != v.Type().Key() {
			if kv.Type().ConvertibleTo(v.Type().Key()) {
				kv = kv.Convert(v.Type().Key())
			} else {
				return nil, fmt.Errorf("index: key type %s does not match map key type %s", kv.Type(), v.Type().Key())
			}
		}
		val := v.MapIndex(kv)
		if !val.IsValid() {
			return nil, fmt.Errorf("index: key %v not present", key)
		}
		return val.Interface(), nil
	default:
		return nil, fmt.Errorf("index: %T is not indexable", obj)
	}
}

// Invoke calls a named method on obj with positional args, mirroring
// MappedVariable Call (§3/§4.2). kwargs are applied by matching parameter
// position is not attempted by reflection; host methods needing named
// parameters should accept a single struct argument instead.
func Invoke(obj interface{}, name string, args []interface{}) (interface{}, error) {
	if obj == nil {
		return nil, fmt.Errorf("invoke %q: nil receiver", name)
	}
	v := reflect.ValueOf(obj)
	m := v.MethodByName(name)
	if !m.IsValid() {
		return nil, fmt.Errorf("invoke: %T has no method %q", obj, name)
	}
	in := make([]reflect.Value, len(args))
	mt := m.Type()
	for i, a := range args {
		av := reflect.ValueOf(a)
		if mt.NumIn() > i && av.IsValid() && av.Type() != mt.In(i) && av.Type().ConvertibleTo(mt.In(i)) {
			av = av.Convert(mt.In(i))
		}
		in[i] = av
	}

	var out []reflect.Value
	var callErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				callErr = fmt.Errorf("invoke %q panicked: %v", name, r)
			}
		}()
		out = m.Call(in)
	}()
	if callErr != nil {
		return nil, callErr
	}
	return unpackCallResult(out)
}

// IsA reports whether obj's dynamic type is, or is assignable to, t.
// This backs the implicit HasType checks on Variable domains (§4.2) and
// the explicit HasType builtin (§4.6).
func IsA(obj interface{}, t reflect.Type) bool {
	if obj == nil {
		return false
	}
	ot := reflect.TypeOf(obj)
	if ot == t {
		return true
	}
	if t.Kind() == reflect.Interface {
		return ot.Implements(t)
	}
	return false
}

// Flatten returns the elements of obj if it is iterable (slice/array/map),
// mirroring MappedVariable Flat (§3/§4.2). Map iteration yields values.
func Flatten(obj interface{}) ([]interface{}, error) {
	if obj == nil {
		return nil, fmt.Errorf("flatten: nil receiver")
	}
	v := reflect.ValueOf(obj)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, v.Len())
		for i := 0; i < v.Len(); i++ {
			out[i] = v.Index(i).Interface()
		}
		return out, nil
	case reflect.Map:
		out := make([]interface{}, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out = append(out, iter.Value().Interface())
		}
		return out, nil
	default:
		return nil, fmt.Errorf("flatten: %T is not iterable", obj)
	}
}

// Length returns len(c) for any iterable/sized host value, backing the
// `length` symbolic function (§4.6).
func Length(c interface{}) (int, error) {
	if c == nil {
		return 0, fmt.Errorf("length: nil receiver")
	}
	v := reflect.ValueOf(c)
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String, reflect.Chan:
		return v.Len(), nil
	default:
		return 0, fmt.Errorf("length: %T has no length", c)
	}
}

// AppendTo appends value to the slice target points to, backing the rule
// tree's `add(target, value)` conclusion (§4.11). target must be a
// pointer to a slice (e.g. *[]Connection or *[]interface{}); this is the
// one place the engine mutates host state rather than merely reading it.
func AppendTo(target interface{}, value interface{}) error {
	if target == nil {
		return fmt.Errorf("append: nil target")
	}
	tv := reflect.ValueOf(target)
	if tv.Kind() != reflect.Ptr || tv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("append: target %T is not a pointer to a slice", target)
	}
	slice := tv.Elem()
	elemType := slice.Type().Elem()
	vv := reflect.ValueOf(value)
	if !vv.IsValid() {
		return fmt.Errorf("append: nil value")
	}
	if vv.Type() != elemType {
		if vv.Type().ConvertibleTo(elemType) {
			vv = vv.Convert(elemType)
		} else {
			return fmt.Errorf("append: value type %s does not match slice element type %s", vv.Type(), elemType)
		}
	}
	slice.Set(reflect.Append(slice, vv))
	return nil
}

func unpackCallResult(out []reflect.Value) (interface{}, error) {
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0].Interface(), nil
	default:
		// Conventionally (value, error): surface the error if present.
		last := out[len(out)-1]
		if errType := reflect.TypeOf((*error)(nil)).Elem(); last.Type().Implements(errType) {
			if !last.IsNil() {
				return nil, last.Interface().(error)
			}
			if len(out) == 2 {
				return out[0].Interface(), nil
			}
		}
		vals := make([]interface{}, len(out))
		for i, o := range out {
			vals[i] = o.Interface()
		}
		return vals, nil
	}
}

func toInt(key interface{}) (int, error) {
	switch k := key.(type) {
	case int:
		return k, nil
	case int32:
		return int(k), nil
	case int64:
		return int(k), nil
	default:
		return 0, fmt.Errorf("key %v (%T) is not an integer index", key, key)
	}
}
