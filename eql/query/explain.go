package query

import (
	"strings"

	"github.com/eqlang/eql/trace"
)

// Explain renders the trace events collected during this query's most
// recent Evaluate()/ToList()/First() call, provided EnableTrace() was
// called first. This is a supplemented feature (not in the distilled
// spec) grounded in the teacher's Relation diagnostic rendering.
func (q *Query) Explain() string {
	if q.collector == nil {
		return "(tracing not enabled; call EnableTrace() before evaluating)"
	}
	events := q.collector.Events()
	lines := make([]string, 0, len(events))
	for _, e := range events {
		lines = append(lines, trace.FormatEvent(e))
	}
	return strings.Join(lines, "\n")
}
