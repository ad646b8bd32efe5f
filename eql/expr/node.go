// Package expr implements the symbolic expression DAG: the two-phase
// builder/expression lifecycle, Variable/MappedVariable resolution,
// Predicate/SymbolicFunction, and Comparator nodes of spec.md §3-§4.
//
// Structurally this is the teacher's executor/query node model
// (datalog/query/predicate.go, datalog/query/function.go) generalised from
// column-indexed Tuples to identity-keyed Bindings, with the frozen-after-
// build DAG discipline of §4.1 layered on top as an arena-level flag
// (spec.md §9: "Cyclic parent/child references → arena + identity").
package expr

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/eqlang/eql"
	"github.com/eqlang/eql/errkind"
	"github.com/eqlang/eql/trace"
)

// NodeID is the stable identity of a DAG node, used for diagnostics and
// the expression-path carried by surfaced errors (§7).
type NodeID struct{ u uuid.UUID }

func newNodeID() NodeID { return NodeID{u: uuid.New()} }

func (n NodeID) String() string { return n.u.String()[:8] }

// Arity classifies a node's child count, per §3.
type Arity int

const (
	Nullary Arity = iota
	Unary
	Binary
	MultiArity
)

// Flags are the per-node capability flags of §3.
type Flags struct {
	TruthValued bool // node emits OperationResult.Truth meaningfully
	Derived     bool // node requires buffering upstream (sort/distinct/agg)
	Selectable  bool // node's value may appear in a :find / select clause
}

// EvalContext threads tracing and per-query evaluation state (e.g. a pinned
// SymbolRegistry snapshot cache) through Step calls.
type EvalContext struct {
	Trace       trace.Context
	Registry    *eql.SymbolRegistry
	Accumulator *eql.Accumulator

	// Absorbing is set around the evaluation of a subtree whose enclosing
	// node swallows resolution/callable failures into an ordinary false
	// result (Not always; a Predicate explicitly marked absorbing) per
	// §4.2/§4.6/§7. Leaf nodes consult it instead of each needing to know
	// their parent's kind.
	Absorbing bool

	sideEffectErr error
}

// RecordSideEffectError remembers the first non-truth-path failure seen
// during this context's evaluation pass (currently: a rule tree
// conclusion's add() failing to append into its target). Unlike
// resolution/callable errors it has no OperationResult to ride, so the
// query driver consults it once the pass completes instead.
func (ctx *EvalContext) RecordSideEffectError(err error) {
	if ctx.sideEffectErr == nil {
		ctx.sideEffectErr = err
	}
}

// SideEffectError returns the first error recorded via
// RecordSideEffectError, if any.
func (ctx *EvalContext) SideEffectError() error { return ctx.sideEffectErr }

// ResultIter is the lazy, pull-based sequence of OperationResult a node's
// Step produces, mirroring the teacher's executor.Iterator (Next/Tuple/
// Close) but over OperationResult instead of Tuple. See spec.md §9:
// "Generator-driven cartesian product -> explicit iterator."
type ResultIter interface {
	Next() bool
	Result() eql.OperationResult
	Close() error
}

// Node is a symbolic expression DAG node (§3 SymbolicExpression).
type Node interface {
	ID() NodeID
	Arity() Arity
	Flags() Flags
	Children() []Node
	Parents() []Node
	String() string

	// Step is the per-node algorithm; the only method node kinds implement
	// beyond bookkeeping (§4.1).
	Step(ctx *EvalContext, in eql.Binding) ResultIter

	// Evaluate is the public driver (§4.1). Node kinds implement it as a
	// direct call to Step, except Quantifier, which enforces its
	// cardinality contract here. Absorption (NOT, absorbing predicates) is
	// handled inside Step through EvalContext.Absorbing.
	Evaluate(ctx *EvalContext, in eql.Binding) ResultIter

	addParent(p Node)
}

// BuildState is the shared arena-level frozen flag for one Query build
// (§4.1, §9 "arena + identity"). All nodes built under one Query share a
// *BuildState; freezing it after build() rejects further attach/mutation.
// The query package owns one BuildState per Query and passes it to every
// node constructor in this package.
type BuildState struct {
	mu     sync.Mutex
	frozen bool
}

// NewBuildState creates the shared frozen-state arena for a new Query build.
func NewBuildState() *BuildState { return &BuildState{} }

// Freeze marks the arena frozen; called once by Query.build().
func (s *BuildState) Freeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = true
}

// Frozen reports whether the arena has been frozen.
func (s *BuildState) Frozen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frozen
}

// Base is embedded by every concrete node type; it carries identity,
// parent/child links, capability flags, and the shared frozen-state arena.
type Base struct {
	id       NodeID
	state    *BuildState
	arity    Arity
	children []Node
	parents  []Node
	flags    Flags
	label    string
}

func newBase(state *BuildState, arity Arity, flags Flags, label string) Base {
	return Base{id: newNodeID(), state: state, arity: arity, flags: flags, label: label}
}

// NewBase is the exported constructor for node kinds defined outside this
// package (engine's And/Or/Not/GroupedBy/quantifiers/rule-tree scopes).
func NewBase(state *BuildState, arity Arity, flags Flags, label string) Base {
	return newBase(state, arity, flags, label)
}

// Attach exposes attach() to node kinds in other packages; selfNode must
// be the Node embedding this Base.
func (b *Base) Attach(selfNode Node, child Node) error {
	return b.attach(selfNode, child)
}

func (b *Base) ID() NodeID       { return b.id }
func (b *Base) Arity() Arity     { return b.arity }
func (b *Base) Flags() Flags     { return b.flags }
func (b *Base) Children() []Node { return b.children }
func (b *Base) Parents() []Node  { return b.parents }
func (b *Base) addParent(p Node) { b.parents = append(b.parents, p) }
func (b *Base) Label() string    { return b.label }

// attach links child under self (self must embed Base and pass itself as
// selfNode), enforcing I1 (no mutation after build), I2 (parent back-
// reference), and I3 (acyclic) per §4.1's attach() contract.
func (b *Base) attach(selfNode Node, child Node) error {
	if b.state != nil && b.state.Frozen() {
		return errkind.QueryStructureFrozen.New(fmt.Sprintf("attach %s -> %s", selfNode, child))
	}
	if reaches(child, selfNode) {
		return errkind.QueryStructureInvalid.New(fmt.Sprintf("cycle detected attaching %s as child of %s", child, selfNode))
	}
	b.children = append(b.children, child)
	child.addParent(selfNode)
	return nil
}

// reaches reports whether target is reachable from start by following
// child edges (used for the I3 cycle check at attach time).
func reaches(start Node, target Node) bool {
	if start == nil {
		return false
	}
	if start.ID() == target.ID() {
		return true
	}
	for _, c := range start.Children() {
		if reaches(c, target) {
			return true
		}
	}
	return false
}

// sliceIter is a ResultIter over a pre-computed slice, used by node kinds
// whose Step naturally produces a small, eager result (e.g. HasType).
type sliceIter struct {
	results []eql.OperationResult
	pos     int
}

func newSliceIter(results []eql.OperationResult) *sliceIter {
	return &sliceIter{results: results, pos: -1}
}

func (it *sliceIter) Next() bool {
	it.pos++
	return it.pos < len(it.results)
}

func (it *sliceIter) Result() eql.OperationResult {
	if it.pos < 0 || it.pos >= len(it.results) {
		return eql.OperationResult{}
	}
	return it.results[it.pos]
}

func (it *sliceIter) Close() error { return nil }

// emptyIter is a ResultIter that yields nothing.
type emptyIter struct{}

func (emptyIter) Next() bool                 { return false }
func (emptyIter) Result() eql.OperationResult { return eql.OperationResult{} }
func (emptyIter) Close() error               { return nil }
