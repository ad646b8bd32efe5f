package main

import (
	"fmt"
	"reflect"

	"github.com/eqlang/eql"
	"github.com/eqlang/eql/expr"
	"github.com/eqlang/eql/query"
)

// robot is the CLI's own small host domain, independent of the
// examples/fixtures package (examples/ is a set of standalone go-run
// programs, not an importable library; the CLI needs its own fixtures to
// stay a single buildable binary).
type robot struct {
	Name    string
	Battery int
}

// demo is one named, runnable scenario: run builds its Query and hands it
// back for the caller to evaluate and render (table, list, or explain).
type demo struct {
	name string
	desc string
	run  func(registry *eql.SymbolRegistry) (*query.Query, error)
}

var demos = []demo{
	{
		name: "charged-robots",
		desc: "robots with battery > 50",
		run: func(registry *eql.SymbolRegistry) (*query.Query, error) {
			b := query.NewBuilder(registry)
			robotType := reflect.TypeOf(&robot{})
			r := b.Variable(robotType)
			battery, err := b.Attribute(r, "Battery")
			if err != nil {
				return nil, err
			}
			threshold := expr.NewConst(b.State(), 50)
			cond, err := b.Gt(battery, threshold)
			if err != nil {
				return nil, err
			}
			q := query.Entity(b, r)
			if _, err := q.Where(cond); err != nil {
				return nil, err
			}
			return q, nil
		},
	},
}

func seedRegistry() *eql.SymbolRegistry {
	registry := eql.NewSymbolRegistry()
	registry.Register(&robot{Name: "R2D2", Battery: 100})
	registry.Register(&robot{Name: "C3PO", Battery: 20})
	registry.Register(&robot{Name: "BB8", Battery: 80})
	return registry
}

func findDemo(name string) (*demo, error) {
	for i := range demos {
		if demos[i].name == name {
			return &demos[i], nil
		}
	}
	return nil, fmt.Errorf("no such scenario %q (run `eql run --list`)", name)
}
