package eql

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// CompareValues compares two host values and returns:
//
//	-1 if left < right
//	 0 if left == right
//	 1 if left > right
//
// Numeric comparisons use host-wide numeric ordering (§4.5); everything
// else defers to host equality, falling back to reflect.DeepEqual for
// values that are not Go-comparable (slices, maps, and user structs that
// embed them), and finally to string rendering so a deterministic total
// order always exists for sorting (§4.8 ordered_by, §8 P1 determinism).
func CompareValues(left, right interface{}) int {
	if left == nil && right == nil {
		return 0
	}
	if left == nil {
		return -1
	}
	if right == nil {
		return 1
	}

	switch l := left.(type) {
	case int:
		return compareNumeric(int64(l), right)
	case int8:
		return compareNumeric(int64(l), right)
	case int16:
		return compareNumeric(int64(l), right)
	case int32:
		return compareNumeric(int64(l), right)
	case int64:
		return compareNumeric(l, right)
	case uint:
		return compareUnsigned(uint64(l), right)
	case uint8:
		return compareUnsigned(uint64(l), right)
	case uint16:
		return compareUnsigned(uint64(l), right)
	case uint32:
		return compareUnsigned(uint64(l), right)
	case uint64:
		return compareUnsigned(l, right)
	case float32:
		return compareFloat(float64(l), right)
	case float64:
		return compareFloat(l, right)
	case string:
		if r, ok := right.(string); ok {
			return strings.Compare(l, r)
		}
		return strings.Compare(stringValue(left), stringValue(right))
	case bool:
		if r, ok := right.(bool); ok {
			if !l && r {
				return -1
			} else if l && !r {
				return 1
			}
			return 0
		}
		return -1
	case time.Time:
		if r, ok := right.(time.Time); ok {
			switch {
			case l.Before(r):
				return -1
			case l.After(r):
				return 1
			default:
				return 0
			}
		}
		return -1
	}

	if ValuesEqual(left, right) {
		return 0
	}
	return strings.Compare(stringValue(left), stringValue(right))
}

func compareNumeric(left int64, right interface{}) int {
	switch r := right.(type) {
	case int:
		return compareInt64s(left, int64(r))
	case int8:
		return compareInt64s(left, int64(r))
	case int16:
		return compareInt64s(left, int64(r))
	case int32:
		return compareInt64s(left, int64(r))
	case int64:
		return compareInt64s(left, r)
	case uint:
		return compareSignedUnsigned(left, uint64(r))
	case uint8:
		return compareSignedUnsigned(left, uint64(r))
	case uint16:
		return compareSignedUnsigned(left, uint64(r))
	case uint32:
		return compareSignedUnsigned(left, uint64(r))
	case uint64:
		return compareSignedUnsigned(left, r)
	case float32:
		return compareFloats(float64(left), float64(r))
	case float64:
		return compareFloats(float64(left), r)
	}
	return strings.Compare(stringValue(left), stringValue(right))
}

// compareFloat mirrors compareNumeric for a float64 left operand against
// an arbitrary right-hand numeric value.
func compareFloat(left float64, right interface{}) int {
	switch r := right.(type) {
	case int:
		return compareFloats(left, float64(r))
	case int8:
		return compareFloats(left, float64(r))
	case int16:
		return compareFloats(left, float64(r))
	case int32:
		return compareFloats(left, float64(r))
	case int64:
		return compareFloats(left, float64(r))
	case uint:
		return compareFloats(left, float64(r))
	case uint8:
		return compareFloats(left, float64(r))
	case uint16:
		return compareFloats(left, float64(r))
	case uint32:
		return compareFloats(left, float64(r))
	case uint64:
		return compareFloats(left, float64(r))
	case float32:
		return compareFloats(left, float64(r))
	case float64:
		return compareFloats(left, r)
	}
	return strings.Compare(stringValue(left), stringValue(right))
}

// compareUnsigned mirrors compareNumeric for a left operand too wide to
// carry as int64 without risking sign loss (uint64 and friends).
func compareUnsigned(left uint64, right interface{}) int {
	switch r := right.(type) {
	case int:
		return -compareSignedUnsigned(int64(r), left)
	case int8:
		return -compareSignedUnsigned(int64(r), left)
	case int16:
		return -compareSignedUnsigned(int64(r), left)
	case int32:
		return -compareSignedUnsigned(int64(r), left)
	case int64:
		return -compareSignedUnsigned(r, left)
	case uint:
		return compareUint64s(left, uint64(r))
	case uint8:
		return compareUint64s(left, uint64(r))
	case uint16:
		return compareUint64s(left, uint64(r))
	case uint32:
		return compareUint64s(left, uint64(r))
	case uint64:
		return compareUint64s(left, r)
	case float32:
		return compareFloats(float64(left), float64(r))
	case float64:
		return compareFloats(float64(left), r)
	}
	return strings.Compare(stringValue(left), stringValue(right))
}

// compareSignedUnsigned compares a signed int64 against an unsigned
// uint64 without an intermediate conversion that could flip a negative
// left value positive.
func compareSignedUnsigned(left int64, right uint64) int {
	if left < 0 {
		return -1
	}
	return compareUint64s(uint64(left), right)
}

func compareUint64s(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareInt64s(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ValuesEqual reports host equality between two arbitrary values. Plain
// comparable values use ==; slices/maps/structs containing them fall back
// to reflect.DeepEqual, matching the "host equality" contract referenced
// throughout §3/§4.5/§6 for arbitrary user object graphs.
func ValuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	av := reflect.ValueOf(a)
	bv := reflect.ValueOf(b)
	if av.Type() != bv.Type() {
		// Allow numeric cross-type equality (e.g. int vs int64).
		if isNumeric(av.Kind()) && isNumeric(bv.Kind()) {
			return CompareValues(a, b) == 0
		}
		return false
	}

	if av.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func stringValue(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
