package engine

import (
	"github.com/eqlang/eql"
	"github.com/eqlang/eql/expr"
)

// resultIter is a ResultIter over a pre-materialised slice, used by the
// Derived nodes in this package (GroupedBy, Having, ordered_by, distinct)
// whose Step necessarily buffers before it can emit (§4.8).
type resultIter struct {
	results []eql.OperationResult
	pos     int
}

func newSliceIterExported(results []eql.OperationResult) expr.ResultIter {
	return &resultIter{results: results, pos: -1}
}

func (it *resultIter) Next() bool {
	it.pos++
	return it.pos < len(it.results)
}

func (it *resultIter) Result() eql.OperationResult {
	if it.pos < 0 || it.pos >= len(it.results) {
		return eql.OperationResult{}
	}
	return it.results[it.pos]
}

func (it *resultIter) Close() error { return nil }

// errOf checks whether it opportunistically exposes an Err() method (the
// duck-typed extension errorIter/productIter/mappedIter use to surface a
// stream-aborting failure rather than an ordinary cardinality outcome)
// and, if so, returns whatever it reports.
func errOf(it expr.ResultIter) error {
	if e, ok := it.(interface{ Err() error }); ok {
		return e.Err()
	}
	return nil
}
