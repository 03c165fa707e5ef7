package output

import (
	"io"
	"strings"
	"unicode/utf8"
)

const columnGap = "  "

// Table lays out rows in aligned columns for text output, such as the
// wallet list or a session's field/value pairs.
type Table struct {
	headers  []string
	rows     [][]string
	noHeader bool
}

// NewTable creates a table with the given column headers.
func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// AddRow appends a row. Missing cells render empty.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// SetNoHeader hides the header row and its underline.
func (t *Table) SetNoHeader(noHeader bool) {
	t.noHeader = noHeader
}

// Render writes the table to w. Trailing padding is trimmed from each line.
func (t *Table) Render(w io.Writer) error {
	lines := t.rows
	if !t.noHeader && len(t.headers) > 0 {
		lines = append([][]string{t.headers}, t.rows...)
	}
	if len(lines) == 0 {
		return nil
	}

	widths := columnWidths(lines)
	var sb strings.Builder
	for i, cells := range lines {
		writeLine(&sb, cells, widths)
		if i == 0 && !t.noHeader && len(t.headers) > 0 {
			rule := make([]string, len(widths))
			for c, n := range widths {
				rule[c] = strings.Repeat("-", n)
			}
			writeLine(&sb, rule, widths)
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// String returns the rendered table.
func (t *Table) String() string {
	var sb strings.Builder
	_ = t.Render(&sb)
	return sb.String()
}

func columnWidths(lines [][]string) []int {
	var widths []int
	for _, cells := range lines {
		for c, cell := range cells {
			if c == len(widths) {
				widths = append(widths, 0)
			}
			widths[c] = max(widths[c], utf8.RuneCountInString(cell))
		}
	}
	return widths
}

func writeLine(sb *strings.Builder, cells []string, widths []int) {
	var line strings.Builder
	for c, width := range widths {
		cell := ""
		if c < len(cells) {
			cell = cells[c]
		}
		if c > 0 {
			line.WriteString(columnGap)
		}
		line.WriteString(cell)
		line.WriteString(strings.Repeat(" ", width-utf8.RuneCountInString(cell)))
	}
	sb.WriteString(strings.TrimRight(line.String(), " "))
	sb.WriteByte('\n')
}
