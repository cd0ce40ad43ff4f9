package reconcile

import (
	"fmt"
	"strings"
)

// Issue is a per-row or per-cell problem found during an import. Line is the
// 1-based line of the input; Column is the 1-based column or 0 for row level
// issues. Line 0 marks a warning about the whole import.
type Issue struct {
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
	Reason string `json:"reason"`
}

func (i Issue) String() string {
	switch {
	case i.Line == 0:
		return i.Reason
	case i.Column == 0:
		return fmt.Sprintf("Line %d: %s", i.Line, i.Reason)
	default:
		return fmt.Sprintf("Line %d, col %d: %s", i.Line, i.Column, i.Reason)
	}
}

// ImportReport summarizes an import. Partial success is normal: some cells may
// be written while others are rejected.
type ImportReport struct {
	SectionID    int64   `json:"section_id"`
	RowsRead     int     `json:"rows_read"`
	RowsSkipped  int     `json:"rows_skipped"`
	CellsWritten int     `json:"cells_written"`
	Issues       []Issue `json:"issues"`
}

func (r *ImportReport) addRowIssue(line int, format string, args ...interface{}) {
	r.Issues = append(r.Issues, Issue{Line: line, Reason: fmt.Sprintf(format, args...)})
}

func (r *ImportReport) addCellIssue(line, column int, format string, args ...interface{}) {
	r.Issues = append(r.Issues, Issue{Line: line, Column: column, Reason: fmt.Sprintf(format, args...)})
	cellIssuesTotal.Inc()
}

func (r *ImportReport) addWarning(format string, args ...interface{}) {
	r.Issues = append(r.Issues, Issue{Reason: fmt.Sprintf(format, args...)})
}

// HasIssues reports whether anything was rejected or skipped
func (r *ImportReport) HasIssues() bool {
	return len(r.Issues) > 0
}

// Messages renders every issue on its own line
func (r *ImportReport) Messages() []string {
	out := make([]string, 0, len(r.Issues))
	for _, i := range r.Issues {
		out = append(out, i.String())
	}
	return out
}

// Summary is a one-paragraph description suitable for a CLI or a dialog
func (r *ImportReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d rows read, %d skipped, %d marks written", r.RowsRead, r.RowsSkipped, r.CellsWritten)
	if r.HasIssues() {
		b.WriteString("\nImport completed with warnings/errors:")
		for _, m := range r.Messages() {
			b.WriteString("\n")
			b.WriteString(m)
		}
	}
	return b.String()
}
