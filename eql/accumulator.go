package eql

import (
	"reflect"
	"sync"
)

// Accumulator holds the conclusions a rule tree has deduced so far during
// one query evaluation, keyed by type (§4.11). It is distinct from
// SymbolRegistry: a SymbolRegistry is the host's process-wide instance
// index, while an Accumulator is scoped to a single rule-tree evaluation
// and exists so that a deduced_variable(T) can range over "instances
// inferred earlier in this same evaluation."
type Accumulator struct {
	mu       sync.Mutex
	byType   map[reflect.Type][]interface{}
	seenHash map[reflect.Type]map[uint64]bool
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		byType:   make(map[reflect.Type][]interface{}),
		seenHash: make(map[reflect.Type]map[uint64]bool),
	}
}

// Add records a freshly-constructed conclusion instance.
func (a *Accumulator) Add(v interface{}) {
	if a == nil || v == nil {
		return
	}
	t := reflect.TypeOf(v)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byType[t] = append(a.byType[t], v)
}

// SeenOrRecord reports whether hash h (the mitchellh/hashstructure digest
// of an inference(T)(kwargs...) call's argument set) has already fired for
// type t in this evaluation, recording it on first sight. inference uses
// this to dedupe repeated firings with identical kwargs, whichever outer
// binding they fire under, without requiring T to implement its own
// equality.
func (a *Accumulator) SeenOrRecord(t reflect.Type, h uint64) bool {
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	set := a.seenHash[t]
	if set == nil {
		set = make(map[uint64]bool)
		a.seenHash[t] = set
	}
	if set[h] {
		return true
	}
	set[h] = true
	return false
}

// Snapshot returns the accumulated instances of exactly type t, in
// insertion order, as of the call (read fresh each pull, unlike a
// Variable's pinned SymbolRegistry snapshot — deduced_variable must see
// conclusions added by earlier-firing rules within the same evaluation).
func (a *Accumulator) Snapshot(t reflect.Type) []interface{} {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	src := a.byType[t]
	out := make([]interface{}, len(src))
	copy(out, src)
	return out
}
