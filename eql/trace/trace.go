// Package trace is the EQL engine's annotation/tracing layer, adapted from
// the teacher's datalog/annotations package: a low-overhead Event collector
// threaded through evaluation via a Context, rendered in colour for CLI
// diagnostics (Query.Explain()).
package trace

import (
	"fmt"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Event names, following the teacher's hierarchical-path convention.
const (
	QueryBegin       = "query/begin"
	QueryPlanCreated = "query/plan.created"
	QueryComplete    = "query/completed"
	NodeStep         = "node/step"
	RuleFired        = "rule/fired"
	AggregateRun     = "aggregate/run"
)

// Event is a single annotation emitted during query build or evaluation.
type Event struct {
	Name    string
	At      time.Time
	Data    map[string]interface{}
}

// Handler processes events as they occur.
type Handler func(Event)

// Collector accumulates events for later rendering (Query.Explain()).
type Collector struct {
	mu      sync.Mutex
	enabled bool
	handler Handler
	events  []Event
}

// NewCollector creates a collector. If handler is nil, events are only
// buffered for later retrieval via Events().
func NewCollector(handler Handler) *Collector {
	return &Collector{enabled: true, handler: handler}
}

// Add records an event, invoking the handler (if any) and buffering it.
func (c *Collector) Add(e Event) {
	if c == nil || !c.enabled {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	c.mu.Lock()
	c.events = append(c.events, e)
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(e)
	}
}

// Events returns a copy of the buffered events.
func (c *Collector) Events() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Context carries an optional Collector through Query evaluation, mirroring
// the teacher's executor.Context used to thread annotation collection
// through ExecuteWithContext.
type Context struct {
	collector *Collector
}

// NewContext wraps a collector (may be nil, meaning "no tracing").
func NewContext(c *Collector) Context {
	return Context{collector: c}
}

// Collector returns the context's collector, or nil.
func (c Context) Collector() *Collector { return c.collector }

// QueryBeginEvt emits a query/begin event with the query's rendered shape.
func (c Context) QueryBeginEvt(shape string) {
	if c.collector == nil {
		return
	}
	c.collector.Add(Event{Name: QueryBegin, Data: map[string]interface{}{"query": shape}})
}

// QueryCompleteEvt emits a query/completed event.
func (c Context) QueryCompleteEvt(count int, err error) {
	if c.collector == nil {
		return
	}
	data := map[string]interface{}{"count": count}
	if err != nil {
		data["error"] = err.Error()
	}
	c.collector.Add(Event{Name: QueryComplete, Data: data})
}

// FormatEvent renders an event the way the teacher's Relation.String()
// renders colour-coded diagnostics (fatih/color), used by Query.Explain().
func FormatEvent(e Event) string {
	name := color.CyanString(e.Name)
	ts := e.At.Format("15:04:05.000")
	return fmt.Sprintf("%s %s %v", color.BlueString(ts), name, e.Data)
}
