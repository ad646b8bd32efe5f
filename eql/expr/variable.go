package expr

import (
	"fmt"
	"reflect"

	"github.com/eqlang/eql"
	"github.com/eqlang/eql/errkind"
	"github.com/eqlang/eql/host"
)

// Variable is a leaf expression carrying (type T, domain D, identity id)
// per §3. With an explicit domain it enumerates D directly; with an
// implicit domain it reads the SymbolRegistry's slice for T, snapshotting
// once on first pull and pinning that snapshot for the query's lifetime
// (SPEC_FULL.md Open Question #1).
type Variable struct {
	Base

	VarID    eql.VarID
	Type     reflect.Type
	domain   []interface{} // explicit domain, if non-nil
	registry *eql.SymbolRegistry

	snapshotted bool
	snapshot    []interface{}
}

// NewVariable creates a Variable ranging over T. If domain is nil, the
// variable resolves its domain from registry at first evaluation (I5).
func NewVariable(state *BuildState, t reflect.Type, domain []interface{}, registry *eql.SymbolRegistry) *Variable {
	v := &Variable{
		Base:     newBase(state, Nullary, Flags{TruthValued: true, Selectable: true}, fmt.Sprintf("Variable(%s)", t)),
		VarID:    eql.NewVarID(),
		Type:     t,
		domain:   domain,
		registry: registry,
	}
	return v
}

func (v *Variable) String() string { return v.Label() + ":" + v.VarID.String()[:8] }

// Step emits, for each domain element d, a binding {VarID -> d} with
// truth=true, subject to an implicit HasType check (§4.2); elements
// failing the type check are suppressed rather than emitted false.
func (v *Variable) Step(ctx *EvalContext, in eql.Binding) ResultIter {
	domain := v.domain
	if domain == nil {
		domain = v.resolveImplicitDomain(ctx)
	}
	// If this variable is already bound in the incoming binding (nested
	// reuse across combinator children), only the existing value survives.
	if existing, ok := in.Get(v.VarID); ok {
		return newSliceIter([]eql.OperationResult{eql.Result(in, host.IsA(existing, v.Type) || v.domain == nil)})
	}
	results := make([]eql.OperationResult, 0, len(domain))
	for _, d := range domain {
		if !host.IsA(d, v.Type) {
			continue
		}
		results = append(results, eql.Result(in.With(v.VarID, d), true))
	}
	return newSliceIter(results)
}

func (v *Variable) resolveImplicitDomain(ctx *EvalContext) []interface{} {
	if v.snapshotted {
		return v.snapshot
	}
	var reg *eql.SymbolRegistry = v.registry
	if reg == nil && ctx != nil {
		reg = ctx.Registry
	}
	if reg == nil {
		reg = eql.DefaultRegistry()
	}
	snap := reg.SnapshotAssignable(v.Type)
	v.snapshot = snap
	v.snapshotted = true
	return snap
}

func (v *Variable) Evaluate(ctx *EvalContext, in eql.Binding) ResultIter {
	return v.Step(ctx, in)
}

// MappedOp distinguishes the four MappedVariable shapes of §3.
type MappedOp int

const (
	OpAttribute MappedOp = iota
	OpIndex
	OpCall
	OpFlat
)

// mappedKey is the caching key of invariant I4: the same symbolic path
// (root variable identity + operation + key) resolves to the same
// MappedVariable instance within one build().
type mappedKey struct {
	root eql.VarID
	op   MappedOp
	key  interface{}
}

// MappedVariable is a Unary node transforming its child variable's stream,
// per §3/§4.2. Flat is the only variant that multiplies bindings.
type MappedVariable struct {
	Base

	VarID eql.VarID
	Op    MappedOp
	Child Node
	Name  string        // Attribute name
	Key   interface{}   // Index key
	Args  []Node        // Call args (symbolic, resolved from binding)

	rootVar eql.VarID
}

// The mapped-variable cache lives on the query package's Builder (not
// here); callers that need cached nodes go through Cache.GetOrCreate.
// This type alone is the node shape.

// NewMappedVariable constructs a raw MappedVariable node (bypassing the
// cache — callers that must honour I4 should go through a *Cache below).
func NewMappedVariable(state *BuildState, child Node, rootVar eql.VarID, op MappedOp, name string, key interface{}, args []Node) (*MappedVariable, error) {
	label := fmt.Sprintf("Mapped(%v,%s,%v)", op, name, key)
	mv := &MappedVariable{
		Base:    newBase(state, Unary, Flags{TruthValued: true, Selectable: true}, label),
		VarID:   eql.NewVarID(),
		Op:      op,
		Child:   child,
		Name:    name,
		Key:     key,
		Args:    args,
		rootVar: rootVar,
	}
	if err := mv.Base.attach(mv, child); err != nil {
		return nil, err
	}
	for _, a := range args {
		if err := mv.Base.attach(mv, a); err != nil {
			return nil, err
		}
	}
	return mv, nil
}

func (m *MappedVariable) String() string { return m.Label() }

// Step pulls from Child's output stream; Attribute/Index/Call emit one
// output per child result, Flat emits one output per element (§4.2).
func (m *MappedVariable) Step(ctx *EvalContext, in eql.Binding) ResultIter {
	childIter := m.Child.Evaluate(ctx, in)
	return &mappedIter{mv: m, ctx: ctx, child: childIter}
}

func (m *MappedVariable) Evaluate(ctx *EvalContext, in eql.Binding) ResultIter {
	return m.Step(ctx, in)
}

type mappedIter struct {
	mv    *MappedVariable
	ctx   *EvalContext
	child ResultIter

	pending []eql.OperationResult // buffered Flat expansion for current child result
	pos     int
	err     error
}

// fail handles a host.GetAttr/Index/Invoke/Flatten failure for the
// current child binding. Inside an absorbing context (NOT, or an
// explicitly-marked-absorbing enclosing predicate) it folds the failure
// into an ordinary false result, matching the pre-existing behaviour the
// caller should `continue` on. Outside one, per §4.2/§7 the failure must
// propagate to the root rather than masquerade as an ordinary false: it
// records a SymbolicResolutionError and tells the caller to stop pulling
// (the caller should `return false`).
func (it *mappedIter) fail(b eql.Binding, cause error) (shouldContinue bool) {
	if it.ctx.Absorbing {
		it.pending = []eql.OperationResult{{Binding: b, Truth: false}}
		it.pos = 0
		return true
	}
	it.err = errkind.SymbolicResolutionError.New(errkind.WithPath([]string{it.mv.String()}), cause.Error())
	return false
}

func (it *mappedIter) Next() bool {
	for {
		if it.pos < len(it.pending) {
			it.pos++
			return it.pos <= len(it.pending)
		}
		if !it.child.Next() {
			return false
		}
		r := it.child.Result()
		if !r.Truth {
			// Absorbed upstream false: a failing child context still flows
			// through logical composition unchanged (§3); MappedVariable
			// itself does not resolve a value for a false context.
			it.pending = []eql.OperationResult{r}
			it.pos = 0
			continue
		}

		childVal, ok := r.Binding.Get(it.mv.rootVar)
		if !ok {
			// Root variable not bound in this branch: nothing to map.
			continue
		}

		switch it.mv.Op {
		case OpAttribute:
			v, err := host.GetAttr(childVal, it.mv.Name)
			if err != nil {
				if it.fail(r.Binding, err) {
					continue
				}
				return false
			}
			it.pending = []eql.OperationResult{eql.Result(r.Binding.With(it.mv.VarID, v), true)}
		case OpIndex:
			v, err := host.Index(childVal, it.mv.Key)
			if err != nil {
				if it.fail(r.Binding, err) {
					continue
				}
				return false
			}
			it.pending = []eql.OperationResult{eql.Result(r.Binding.With(it.mv.VarID, v), true)}
		case OpCall:
			args, err := resolveArgs(it.ctx, it.mv.Args, r.Binding)
			if err != nil {
				if it.fail(r.Binding, err) {
					continue
				}
				return false
			}
			v, err := host.Invoke(childVal, it.mv.Name, args)
			if err != nil {
				if it.fail(r.Binding, err) {
					continue
				}
				return false
			}
			it.pending = []eql.OperationResult{eql.Result(r.Binding.With(it.mv.VarID, v), true)}
		case OpFlat:
			elems, err := host.Flatten(childVal)
			if err != nil {
				if it.fail(r.Binding, err) {
					continue
				}
				return false
			}
			out := make([]eql.OperationResult, len(elems))
			for i, e := range elems {
				out[i] = eql.Result(r.Binding.With(it.mv.VarID, e), true)
			}
			it.pending = out
		}
		it.pos = 0
		if len(it.pending) == 0 {
			continue
		}
		it.pos = 1
		return true
	}
}

func (it *mappedIter) Result() eql.OperationResult {
	if it.pos <= 0 || it.pos > len(it.pending) {
		return eql.OperationResult{}
	}
	return it.pending[it.pos-1]
}

func (it *mappedIter) Close() error { return it.child.Close() }

// Err reports a resolution failure this node raised (when not absorbed)
// or, failing that, whatever aborted the child stream upstream.
func (it *mappedIter) Err() error {
	if it.err != nil {
		return it.err
	}
	return errOf(it.child)
}

func resolveArgs(ctx *EvalContext, args []Node, b eql.Binding) ([]interface{}, error) {
	out := make([]interface{}, 0, len(args))
	for _, a := range args {
		it := a.Evaluate(ctx, b)
		found := false
		for it.Next() {
			r := it.Result()
			if r.Truth {
				if v, ok := r.Binding.Get(argVarID(a)); ok {
					out = append(out, v)
					found = true
					break
				}
			}
		}
		it.Close()
		if !found {
			return nil, fmt.Errorf("call argument %s did not resolve", a)
		}
	}
	return out, nil
}

// selfBound is implemented by node kinds outside this package (engine's
// Aggregator, DeducedVariable, Inference) that bind exactly one scalar
// value to their own VarID, so Comparator/Predicate/resolveArgs can read
// their result without this package needing to import engine.
type selfBound interface {
	ResultVarID() eql.VarID
}

// argVarID extracts the VarID a leaf/mapped node binds, for resolving
// call arguments and comparator operands symbolically.
func argVarID(n Node) eql.VarID {
	switch t := n.(type) {
	case *Variable:
		return t.VarID
	case *MappedVariable:
		return t.VarID
	case *SymbolicFunction:
		return t.VarID
	case *Const:
		return t.VarID
	}
	if sb, ok := n.(selfBound); ok {
		return sb.ResultVarID()
	}
	return eql.VarID{}
}

// Cache enforces I4: within one build(), the same (root, op, key) resolves
// to the same MappedVariable instance, preserving variable identity for
// cross-constraint unification.
type Cache struct {
	state *BuildState
	nodes map[mappedKey]*MappedVariable
}

// NewCache creates a per-Query MappedVariable cache.
func NewCache(state *BuildState) *Cache {
	return &Cache{state: state, nodes: make(map[mappedKey]*MappedVariable)}
}

// GetOrCreate returns the cached MappedVariable for (root, op, name/key) if
// one exists, else builds and caches a new one.
func (c *Cache) GetOrCreate(child Node, rootVar eql.VarID, op MappedOp, name string, key interface{}, args []Node) (*MappedVariable, error) {
	k := mappedKey{root: rootVar, op: op, key: fmt.Sprintf("%s|%v", name, key)}
	if existing, ok := c.nodes[k]; ok {
		return existing, nil
	}
	mv, err := NewMappedVariable(c.state, child, rootVar, op, name, key, args)
	if err != nil {
		return nil, err
	}
	c.nodes[k] = mv
	return mv, nil
}
