// Package format renders execution results as short chat replies.
package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/ldi/taskdesk/pkg/models"
)

// NoResults is the reply for a missing or action-inconsistent result.
const NoResults = "No results found or invalid query"

var cellStyle = lipgloss.NewStyle().Padding(0, 1)

type Formatter struct{}

func New() *Formatter { return &Formatter{} }

// Format renders res for action: a success count for writes, a Markdown
// table for reads.
func (f *Formatter) Format(action models.Action, res *models.Result) string {
	if res == nil {
		return NoResults
	}

	switch action {
	case models.ActionAdd, models.ActionUpdate:
		if res.Kind != models.ResultAffected {
			return NoResults
		}
		verb := "added"
		if action == models.ActionUpdate {
			verb = "updated"
		}
		return fmt.Sprintf("Successfully %s %d record(s)", verb, res.Affected)
	case models.ActionView:
		if res.Kind != models.ResultRows || len(res.Columns) == 0 {
			return NoResults
		}
		return fmt.Sprintf("Found %d results:\n\n%s", len(res.Rows), Table(res.Columns, res.Rows))
	}
	return NoResults
}

// Table renders columns and rows as a Markdown table.
func Table(columns []string, rows [][]any) string {
	t := table.New().
		Border(lipgloss.MarkdownBorder()).
		BorderTop(false).
		BorderBottom(false).
		StyleFunc(func(row, col int) lipgloss.Style { return cellStyle }).
		Headers(columns...)

	for _, r := range rows {
		cells := make([]string, len(r))
		for i, v := range r {
			cells[i] = Cell(v)
		}
		t.Row(cells...)
	}
	return t.String()
}

// Cell renders a single driver value. Newlines are flattened so one row
// stays on one line.
func Cell(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		s = x
	case []byte:
		s = string(x)
	case time.Time:
		s = x.Format("2006-01-02 15:04:05")
	case *time.Time:
		if x == nil {
			return ""
		}
		s = x.Format("2006-01-02 15:04:05")
	default:
		s = fmt.Sprint(x)
	}
	return strings.ReplaceAll(s, "\n", " ")
}
