package query

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
)

// Table renders ToList()'s results as a markdown table (olekukonko/
// tablewriter, matching the teacher's own result-rendering convention in
// datalog/executor/table_formatter.go), one row per result and one
// column per select slot. A supplemented feature grounded in that file.
func (q *Query) Table(headers ...string) (string, error) {
	rows, err := q.ToList()
	if err != nil {
		return "", err
	}

	sb := &strings.Builder{}
	table := tablewriter.NewTable(sb, tablewriter.WithRenderer(renderer.NewMarkdown()))
	if len(headers) > 0 {
		table.Header(headers)
	}
	for _, row := range rows {
		switch v := row.(type) {
		case []interface{}:
			cells := make([]string, len(v))
			for i, c := range v {
				cells[i] = formatCell(c)
			}
			table.Append(cells)
		default:
			table.Append([]string{formatCell(v)})
		}
	}
	table.Render()
	return sb.String(), nil
}

func formatCell(v interface{}) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%v", v)
}
