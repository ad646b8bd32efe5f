// Package eql implements the core data model of the Entity Query Language
// engine: variable identity, bindings, and the (binding, truth) tuples that
// flow between expression nodes during evaluation.
package eql

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// VarID is the stable opaque identity of a Variable or MappedVariable.
// It is minted once at construction and never recomputed from a value or
// a name, so two variables built from the same Go literal name remain
// distinct unless the builder's caching invariant (I4) says otherwise.
type VarID struct {
	u uuid.UUID
}

// NewVarID mints a fresh, process-unique variable identity.
func NewVarID() VarID {
	return VarID{u: uuid.New()}
}

// String renders the identity for diagnostics. Not a stable name.
func (v VarID) String() string {
	return v.u.String()
}

// Binding is a finite mapping from variable identity to a concrete
// host-object value (§3). Bindings are treated as immutable once produced
// by a node; combinators build new bindings by merging, never mutating
// a binding another node may still be holding.
type Binding map[VarID]interface{}

// Get looks up the value bound to id.
func (b Binding) Get(id VarID) (interface{}, bool) {
	v, ok := b[id]
	return v, ok
}

// With returns a new Binding equal to b plus id -> value. b is not mutated.
func (b Binding) With(id VarID, value interface{}) Binding {
	out := make(Binding, len(b)+1)
	for k, v := range b {
		out[k] = v
	}
	out[id] = value
	return out
}

// Clone returns a shallow copy of b.
func (b Binding) Clone() Binding {
	out := make(Binding, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Compatible reports whether a and b agree on every identity they share.
// Agreement is host equality (CompareValues == 0), per §3's merge rule.
func Compatible(a, b Binding) bool {
	// Iterate the smaller map for speed.
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	for id, v := range small {
		if ov, ok := large[id]; ok {
			if CompareValues(v, ov) != 0 {
				return false
			}
		}
	}
	return true
}

// Merge produces the union of a and b, assuming Compatible(a, b) already
// holds. The result is a new Binding; a and b are left untouched.
func Merge(a, b Binding) Binding {
	out := make(Binding, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// TryMerge merges a and b, returning ok=false if they are incompatible.
func TryMerge(a, b Binding) (Binding, bool) {
	if !Compatible(a, b) {
		return nil, false
	}
	return Merge(a, b), true
}

// String renders a binding sorted by identity string, for deterministic
// diagnostics and trace output.
func (b Binding) String() string {
	ids := make([]string, 0, len(b))
	byID := make(map[string]interface{}, len(b))
	for id, v := range b {
		s := id.String()
		ids = append(ids, s)
		byID[s] = v
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, s := range ids {
		parts = append(parts, fmt.Sprintf("%s=%v", s[:8], byID[s]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// OperationResult is the (binding, truth) pair that flows between
// expression nodes (§3). A false result still carries its binding so
// logical composition can observe the context that failed.
type OperationResult struct {
	Binding Binding
	Truth   bool
}

// Result constructs an OperationResult. It is a small helper used pervasively
// by node Step() implementations.
func Result(b Binding, truth bool) OperationResult {
	return OperationResult{Binding: b, Truth: truth}
}
