package style

import (
	"regexp"
	"strings"
)

// Alignment controls how cell text sits inside its column.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
	AlignCenter
)

// Column describes one table column. Width is the printable width;
// styled text is measured after stripping ANSI sequences.
type Column struct {
	Name  string
	Width int
	Align Alignment
}

// Table renders rows of fixed-width columns with a styled header.
// Builder methods return the table for chaining.
type Table struct {
	columns   []Column
	rows      [][]string
	indent    string
	headerSep bool
}

// colGap separates adjacent columns.
const colGap = "  "

// NewTable creates a table with the given columns, a two-space indent,
// and a header separator line.
func NewTable(columns ...Column) *Table {
	return &Table{
		columns:   columns,
		indent:    "  ",
		headerSep: true,
	}
}

// SetIndent changes the prefix prepended to every rendered line.
func (t *Table) SetIndent(indent string) *Table {
	t.indent = indent
	return t
}

// SetHeaderSeparator toggles the rule between header and rows.
func (t *Table) SetHeaderSeparator(on bool) *Table {
	t.headerSep = on
	return t
}

// AddRow appends a row. Missing trailing cells are padded with empty
// strings; extra cells are dropped.
func (t *Table) AddRow(values ...string) *Table {
	row := make([]string, len(t.columns))
	for i := range row {
		if i < len(values) {
			row[i] = values[i]
		}
	}
	t.rows = append(t.rows, row)
	return t
}

// Render produces the table as a newline-terminated string. A table
// with no columns renders as empty.
func (t *Table) Render() string {
	if len(t.columns) == 0 {
		return ""
	}

	var b strings.Builder

	header := make([]string, len(t.columns))
	for i, col := range t.columns {
		header[i] = t.pad(headerStyle.Render(col.Name), col.Name, col.Width, col.Align)
	}
	b.WriteString(t.indent + strings.Join(header, colGap) + "\n")

	if t.headerSep {
		sep := make([]string, len(t.columns))
		for i, col := range t.columns {
			sep[i] = sepStyle.Render(strings.Repeat("─", col.Width))
		}
		b.WriteString(t.indent + strings.Join(sep, colGap) + "\n")
	}

	for _, row := range t.rows {
		cells := make([]string, len(t.columns))
		for i, col := range t.columns {
			cell := row[i]
			plain := stripAnsi(cell)
			if len(plain) > col.Width && col.Width > 3 {
				cell = plain[:col.Width-3] + "..."
				plain = cell
			}
			cells[i] = t.pad(cell, plain, col.Width, col.Align)
		}
		b.WriteString(t.indent + strings.Join(cells, colGap) + "\n")
	}

	return b.String()
}

// pad aligns styled text within width using the plain text's length,
// so ANSI sequences don't count against the column. Text at or over
// the width passes through untouched.
func (t *Table) pad(styled, plain string, width int, align Alignment) string {
	extra := width - len(plain)
	if extra <= 0 {
		return styled
	}
	switch align {
	case AlignRight:
		return strings.Repeat(" ", extra) + styled
	case AlignCenter:
		left := extra / 2
		return strings.Repeat(" ", left) + styled + strings.Repeat(" ", extra-left)
	default:
		return styled + strings.Repeat(" ", extra)
	}
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// stripAnsi removes ANSI color sequences for width measurement.
func stripAnsi(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}
