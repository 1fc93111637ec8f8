package model

import (
	"fmt"
	"strings"
)

// Fmter formats the elements of one summary table column as strings.
// The label argument is the column header, provided so that values can
// be padded to at least the header width.
type Fmter func(col interface{}, label string) []string

// SummaryTable holds a textual summary of a fitted or pooled model.
type SummaryTable struct {

	// Title appears above the table.
	Title string

	// Top holds lines placed between the title and the column
	// header, usually fit dimensions and diagnostics.
	Top []string

	// ColNames are the column headers.
	ColNames []string

	// ColFmt[j] renders the values of column j.
	ColFmt []Fmter

	// Cols[j] holds the values of column j.  Its concrete type is a
	// slice, e.g. of numbers or strings, understood by ColFmt[j].
	Cols []interface{}

	// Msg holds lines placed below the table.
	Msg []string
}

// String returns the table as formatted text.
func (s *SummaryTable) String() string {

	fcols := make([][]string, len(s.Cols))
	for j, c := range s.Cols {
		fcols[j] = s.ColFmt[j](c, s.ColNames[j])
	}

	// Column widths cover the header and every value.
	widths := make([]int, len(fcols))
	nrow := 0
	for j, fc := range fcols {
		widths[j] = len(s.ColNames[j])
		for _, v := range fc {
			if len(v) > widths[j] {
				widths[j] = len(v)
			}
		}
		if len(fc) > nrow {
			nrow = len(fc)
		}
	}

	var b strings.Builder

	if s.Title != "" {
		b.WriteString(s.Title)
		b.WriteString("\n")
		b.WriteString(strings.Repeat("=", len(s.Title)))
		b.WriteString("\n")
	}

	for _, t := range s.Top {
		b.WriteString(t)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for j, h := range s.ColNames {
		fmt.Fprintf(&b, "%-*s", widths[j], h)
		if j != len(s.ColNames)-1 {
			b.WriteString("  ")
		}
	}
	b.WriteString("\n")

	rule := 0
	for j, w := range widths {
		rule += w
		if j != len(widths)-1 {
			rule += 2
		}
	}
	b.WriteString(strings.Repeat("-", rule))
	b.WriteString("\n")

	for i := 0; i < nrow; i++ {
		for j, fc := range fcols {
			v := ""
			if i < len(fc) {
				v = fc[i]
			}
			fmt.Fprintf(&b, "%-*s", widths[j], v)
			if j != len(fcols)-1 {
				b.WriteString("  ")
			}
		}
		b.WriteString("\n")
	}

	if len(s.Msg) > 0 {
		b.WriteString("\n")
	}
	for _, m := range s.Msg {
		b.WriteString(m)
		b.WriteString("\n")
	}

	return b.String()
}

// StringFmt left-justifies a column of strings, padded to a common
// width.  It can be used as a Fmter for label columns.
func StringFmt(col interface{}, label string) []string {

	y := col.([]string)

	w := len(label)
	for _, v := range y {
		if len(v) > w {
			w = len(v)
		}
	}

	z := make([]string, len(y))
	for i, v := range y {
		z[i] = fmt.Sprintf("%-*s", w, v)
	}

	return z
}

// NumberFmt formats a column of numbers in fixed decimal notation,
// right-justified.  It can be used as a Fmter for value columns.
func NumberFmt(col interface{}, label string) []string {

	y := col.([]float64)

	z := make([]string, len(y))
	for i, v := range y {
		z[i] = fmt.Sprintf("%12.4f", v)
	}

	return z
}
