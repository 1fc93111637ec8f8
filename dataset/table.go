// Package dataset provides the column-oriented data table that the
// imputation and fitting steps operate on.  Missingness is explicit: a
// cell is missing if and only if its mask entry is set, and the
// numeric value stored under a missing cell carries no information.
package dataset

import (
	"fmt"
	"math"
)

// Kind describes how a variable's values are interpreted.
type Kind uint8

// Continuous variables enter models numerically.  Categorical
// variables hold level codes; an ordered coding doubles as an ordinal
// outcome.
const (
	Continuous Kind = iota
	Categorical
)

// Column is one named variable.  Missing marks cells with no observed
// value; a nil mask means the column is complete.
type Column struct {
	Name    string
	Kind    Kind
	Values  []float64
	Missing []bool
}

// Observed returns the column's observed values in row order.
func (c *Column) Observed() []float64 {

	if c.Missing == nil {
		v := make([]float64, len(c.Values))
		copy(v, c.Values)
		return v
	}

	var v []float64
	for i, x := range c.Values {
		if !c.Missing[i] {
			v = append(v, x)
		}
	}
	return v
}

// CountMissing returns the number of missing cells in the column.
func (c *Column) CountMissing() int {
	var m int
	for _, b := range c.Missing {
		if b {
			m++
		}
	}
	return m
}

// Table is an ordered collection of equal-length named columns.  Rows
// are identified by index.  A table is immutable after construction.
type Table struct {
	cols []Column
	nobs int
}

// NewTable copies the given columns into a table.  Column names must
// be unique and nonempty and all columns must have the same length.
// Values under missing cells are normalized to NaN so that accidental
// use fails loudly.
func NewTable(cols []Column) (*Table, error) {

	if len(cols) == 0 {
		return nil, fmt.Errorf("dataset: a table needs at least one column")
	}

	nobs := len(cols[0].Values)
	seen := make(map[string]bool)
	tc := make([]Column, len(cols))

	for j, c := range cols {

		if c.Name == "" {
			return nil, fmt.Errorf("dataset: column %d has an empty name", j)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("dataset: duplicate column name '%s'", c.Name)
		}
		seen[c.Name] = true

		if len(c.Values) != nobs {
			return nil, fmt.Errorf("dataset: column '%s' has %d rows, want %d",
				c.Name, len(c.Values), nobs)
		}
		if c.Missing != nil && len(c.Missing) != nobs {
			return nil, fmt.Errorf("dataset: missingness mask of '%s' has %d entries, want %d",
				c.Name, len(c.Missing), nobs)
		}

		v := make([]float64, nobs)
		copy(v, c.Values)

		var m []bool
		if anyTrue(c.Missing) {
			m = make([]bool, nobs)
			copy(m, c.Missing)
			for i, b := range m {
				if b {
					v[i] = math.NaN()
				}
			}
		}

		tc[j] = Column{Name: c.Name, Kind: c.Kind, Values: v, Missing: m}
	}

	return &Table{cols: tc, nobs: nobs}, nil
}

func anyTrue(b []bool) bool {
	for _, v := range b {
		if v {
			return true
		}
	}
	return false
}

// NumObs returns the number of rows in the table.
func (t *Table) NumObs() int {
	return t.nobs
}

// Names returns the column names in table order.
func (t *Table) Names() []string {
	names := make([]string, len(t.cols))
	for j := range t.cols {
		names[j] = t.cols[j].Name
	}
	return names
}

// Columns returns the table's columns in order.  The returned slice
// and its contents are shared with the table and must be treated as
// read-only.
func (t *Table) Columns() []Column {
	return t.cols
}

// Column returns the named column, or false if it is not in the
// table.  The returned column is shared with the table and must be
// treated as read-only.
func (t *Table) Column(name string) (*Column, bool) {
	for j := range t.cols {
		if t.cols[j].Name == name {
			return &t.cols[j], true
		}
	}
	return nil, false
}

// HasMissing reports whether any cell of the table is missing.
func (t *Table) HasMissing() bool {
	for j := range t.cols {
		if t.cols[j].CountMissing() > 0 {
			return true
		}
	}
	return false
}

// Complete projects the table to a completed dataset, failing if any
// cell is missing.
func (t *Table) Complete() (*Completed, error) {

	names := make([]string, len(t.cols))
	kinds := make([]Kind, len(t.cols))
	data := make([][]float64, len(t.cols))

	for j := range t.cols {
		if t.cols[j].CountMissing() > 0 {
			return nil, fmt.Errorf("dataset: variable '%s' has missing values", t.cols[j].Name)
		}
		names[j] = t.cols[j].Name
		kinds[j] = t.cols[j].Kind
		v := make([]float64, t.nobs)
		copy(v, t.cols[j].Values)
		data[j] = v
	}

	return NewCompleted(names, kinds, data), nil
}

// Completed is a fully observed dataset: named columns with no missing
// cells, in a fixed order.  Completed datasets are produced by the
// imputation step, one per replicate, and consumed by the fitters.
type Completed struct {
	names []string
	kinds []Kind
	data  [][]float64
}

// NewCompleted wraps the given columns as a completed dataset.  The
// data is not copied.  NewCompleted panics if the slice lengths are
// inconsistent, since it is only called by code that has already
// validated its inputs.
func NewCompleted(names []string, kinds []Kind, data [][]float64) *Completed {

	if len(names) != len(data) || len(kinds) != len(data) {
		panic("dataset: inconsistent completed data dimensions")
	}
	for j := 1; j < len(data); j++ {
		if len(data[j]) != len(data[0]) {
			panic(fmt.Sprintf("dataset: completed column '%s' has length %d, want %d",
				names[j], len(data[j]), len(data[0])))
		}
	}

	return &Completed{names: names, kinds: kinds, data: data}
}

// Names returns the column names in order.
func (c *Completed) Names() []string {
	return c.names
}

// NumObs returns the number of rows.
func (c *Completed) NumObs() int {
	if len(c.data) == 0 {
		return 0
	}
	return len(c.data[0])
}

// Data returns the columns in order.  The returned slices are shared
// with the dataset and must be treated as read-only.
func (c *Completed) Data() [][]float64 {
	return c.data
}

// Pos returns the position of the named column, or -1 if it is not
// present.
func (c *Completed) Pos(name string) int {
	for j, n := range c.names {
		if n == name {
			return j
		}
	}
	return -1
}

// Kind returns the kind of the column at position j.
func (c *Completed) Kind(j int) Kind {
	return c.kinds[j]
}
