package expr

import "github.com/eqlang/eql"

// productIter implements the §4.3 cartesian-product schema as an explicit,
// stateful recursive-descent iterator: a stack of per-level child iterators
// plus the accumulated binding at each level, advanced depth-first on each
// Next() call. This mirrors the teacher's datalog/executor ProductIterator
// (a nested-iterator "generator without goroutines") rather than spawning a
// stackful coroutine per spec.md §9's design note.
//
// Every real child (levels 0..k-1) is filtered uniformly on truth: a false
// emission never advances to the next level. Level k is the terminal,
// always-true yield once every real child has merged successfully.
type productIter struct {
	ctx      *EvalContext
	children []Node

	// stack[i] is the currently-open ResultIter at level i; bindings[i] is
	// the accumulated binding entering level i (bindings[0] is the source).
	stack    []ResultIter
	bindings []eql.Binding

	started     bool
	done        bool
	resumeLevel int
	current     eql.OperationResult
	err         error
}

// NewProduct exposes the cartesian-product schema to other packages (the
// engine package's AND reuses this rather than reimplement
// the same recursive-descent driver loop).
func NewProduct(ctx *EvalContext, in eql.Binding, children []Node) ResultIter {
	return newProductIter(ctx, in, children)
}

func newProductIter(ctx *EvalContext, in eql.Binding, children []Node) *productIter {
	p := &productIter{ctx: ctx, children: children, resumeLevel: 0}
	p.stack = make([]ResultIter, len(children))
	p.bindings = make([]eql.Binding, len(children)+1)
	p.bindings[0] = in
	return p
}

// Next performs one step of depth-first search over the product space,
// opening child iterators as it descends and closing them as it backtracks.
func (p *productIter) Next() bool {
	if p.done {
		return false
	}
	k := len(p.children)
	if k == 0 {
		// Nullary product: exactly one yield of the source binding.
		if p.started {
			p.done = true
			return false
		}
		p.started = true
		p.current = eql.Result(p.bindings[0], true)
		return true
	}

	level := p.currentLevel()
	for {
		if level < 0 {
			p.done = true
			return false
		}
		if p.stack[level] == nil {
			p.stack[level] = p.children[level].Evaluate(p.ctx, p.bindings[level])
		}
		if !p.stack[level].Next() {
			if err := errOf(p.stack[level]); err != nil {
				// A resolution/callable failure aborted this level rather
				// than exhausting normally (§4.2/§7): stop the whole
				// product instead of backtracking into earlier levels as
				// if nothing happened.
				p.stack[level].Close()
				p.stack[level] = nil
				p.err = err
				p.done = true
				return false
			}
			p.stack[level].Close()
			p.stack[level] = nil
			level--
			continue
		}
		e := p.stack[level].Result()
		if !e.Truth {
			continue // filtered at this level; try the next emission
		}
		merged, ok := eql.TryMerge(p.bindings[level], e.Binding)
		if !ok {
			continue
		}
		p.bindings[level+1] = merged
		if level == k-1 {
			p.setLevel(level)
			p.current = eql.Result(merged, true)
			return true
		}
		level++
	}
}

// currentLevel and setLevel track which level Next should resume
// descending/backtracking from across calls.
func (p *productIter) currentLevel() int {
	return p.resumeLevel
}

func (p *productIter) setLevel(l int) { p.resumeLevel = l }

func (p *productIter) Result() eql.OperationResult { return p.current }

func (p *productIter) Close() error {
	for _, it := range p.stack {
		if it != nil {
			it.Close()
		}
	}
	p.done = true
	return nil
}

// Err reports the failure, if any, that aborted this product rather than
// exhausting it normally.
func (p *productIter) Err() error { return p.err }

// errOf checks whether it opportunistically exposes an Err() method (the
// duck-typed extension mappedIter/productThenCallIter/productIter use to
// surface a stream-aborting failure) and, if so, returns whatever it
// reports.
func errOf(it ResultIter) error {
	if e, ok := it.(interface{ Err() error }); ok {
		return e.Err()
	}
	return nil
}
