package formula

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/jenniferthompson/DelDepLTCI/dataset"
	"github.com/jenniferthompson/DelDepLTCI/model"
	"github.com/jenniferthompson/DelDepLTCI/spline"
)

// Builder expands completed datasets into design matrices for one
// formula.  The encodings derived from the source table (spline knots,
// categorical level sets, outcome levels) are frozen at construction,
// a Builder is immutable afterward and safe for concurrent use.
type Builder struct {
	f       Formula
	terms   []builtTerm
	ykind   dataset.Kind
	ylevels []float64
}

type builtTerm struct {
	term   Term
	basis  *spline.Basis
	levels []float64
}

// NewBuilder validates the formula against the table and freezes the
// derived encodings from the table's observed values.
func NewBuilder(t *dataset.Table, f Formula) (*Builder, error) {

	if f.Outcome == "" {
		return nil, &Error{Var: "", Problem: "no outcome variable"}
	}
	yc, ok := t.Column(f.Outcome)
	if !ok {
		return nil, &Error{Var: f.Outcome, Problem: "not in the data table"}
	}
	if len(f.Terms) == 0 {
		return nil, &Error{Var: f.Outcome, Problem: "no covariates"}
	}

	b := &Builder{f: f, ykind: yc.Kind}

	if yc.Kind == dataset.Categorical {
		b.ylevels = observedLevels(yc)
		if len(b.ylevels) < 2 {
			return nil, &Error{Var: f.Outcome, Problem: "fewer than two observed outcome levels"}
		}
	}

	seen := make(map[string]bool)
	for _, tm := range f.Terms {

		if tm.Name == f.Outcome {
			return nil, &Error{Var: tm.Name, Problem: "appears as both outcome and covariate"}
		}
		if seen[tm.Name] {
			return nil, &Error{Var: tm.Name, Problem: "appears more than once"}
		}
		seen[tm.Name] = true

		col, ok := t.Column(tm.Name)
		if !ok {
			return nil, &Error{Var: tm.Name, Problem: "not in the data table"}
		}

		bt := builtTerm{term: tm}
		switch {
		case tm.Spline:
			if col.Kind == dataset.Categorical {
				return nil, &Error{Var: tm.Name, Problem: "spline requested for a categorical variable"}
			}
			if tm.Knots < 3 {
				return nil, &Error{Var: tm.Name,
					Problem: fmt.Sprintf("a spline needs at least 3 knots, got %d", tm.Knots)}
			}
			basis, err := spline.New(tm.Name, col.Observed(), tm.Knots)
			if err != nil {
				return nil, err
			}
			bt.basis = basis
		case col.Kind == dataset.Categorical:
			bt.levels = observedLevels(col)
			if len(bt.levels) < 2 {
				return nil, &Error{Var: tm.Name, Problem: "fewer than two observed levels"}
			}
		}

		b.terms = append(b.terms, bt)
	}

	return b, nil
}

// observedLevels returns the distinct observed values in ascending
// order.
func observedLevels(c *dataset.Column) []float64 {

	obs := c.Observed()
	sort.Float64s(obs)

	var lv []float64
	for i, v := range obs {
		if i == 0 || v != obs[i-1] {
			lv = append(lv, v)
		}
	}
	return lv
}

// Outcome returns the outcome variable name.
func (b *Builder) Outcome() string {
	return b.f.Outcome
}

// OutcomeKind returns the outcome variable's kind.
func (b *Builder) OutcomeKind() dataset.Kind {
	return b.ykind
}

// OutcomeLevels returns the frozen ascending outcome level codes, or
// nil for a continuous outcome.
func (b *Builder) OutcomeLevels() []float64 {
	return b.ylevels
}

// Terms returns the formula's covariate terms in order.
func (b *Builder) Terms() []Term {
	tms := make([]Term, len(b.terms))
	for i := range b.terms {
		tms[i] = b.terms[i].term
	}
	return tms
}

// Basis returns the frozen spline basis of the named term, or nil if
// the term is not spline-expanded.
func (b *Builder) Basis(name string) *spline.Basis {
	for i := range b.terms {
		if b.terms[i].term.Name == name {
			return b.terms[i].basis
		}
	}
	return nil
}

// Design is the expanded design matrix for one completed dataset.
// Cols[j] holds the values of design column j, and Blocks locates each
// term's span of columns, in formula order.  The design does not
// include an intercept, the fitters prepend their own structural
// columns.
type Design struct {
	ColNames []string
	Cols     [][]float64
	Blocks   []model.Block
	NumObs   int
}

// Build expands a completed dataset with the frozen encodings.  The
// dataset must contain every formula variable, and categorical values
// must come from the levels observed in the builder's source table.
func (b *Builder) Build(c *dataset.Completed) (*Design, error) {

	n := c.NumObs()
	d := &Design{NumObs: n}

	for _, bt := range b.terms {

		pos := c.Pos(bt.term.Name)
		if pos < 0 {
			return nil, &Error{Var: bt.term.Name, Problem: "not in the completed dataset"}
		}
		vals := c.Data()[pos]

		blk := model.Block{Label: bt.term.Name, Kind: model.Covariate, Start: len(d.Cols)}

		switch {
		case bt.basis != nil:
			cols := bt.basis.Expand(vals)
			d.Cols = append(d.Cols, cols...)
			d.ColNames = append(d.ColNames, bt.basis.ColNames()...)
			blk.Len = len(cols)
			blk.NonlinStart = blk.Start + 1
			blk.NonlinLen = blk.Len - 1

		case bt.levels != nil:
			for i, v := range vals {
				if levelIndex(bt.levels, v) < 0 {
					return nil, &Error{Var: bt.term.Name,
						Problem: fmt.Sprintf("value %v at row %d is not an observed level", v, i)}
				}
			}
			for _, lv := range bt.levels[1:] {
				col := make([]float64, n)
				for i, v := range vals {
					if v == lv {
						col[i] = 1
					}
				}
				d.Cols = append(d.Cols, col)
				d.ColNames = append(d.ColNames, bt.term.Name+"="+FormatLevel(lv))
			}
			blk.Len = len(bt.levels) - 1
			blk.Levels = bt.levels

		default:
			col := make([]float64, n)
			copy(col, vals)
			d.Cols = append(d.Cols, col)
			d.ColNames = append(d.ColNames, bt.term.Name)
			blk.Len = 1
		}

		d.Blocks = append(d.Blocks, blk)
	}

	return d, nil
}

// levelIndex returns the position of v among the ascending levels, or
// -1 if v is not a level.
func levelIndex(levels []float64, v float64) int {
	for j, lv := range levels {
		if v == lv {
			return j
		}
	}
	return -1
}

// FormatLevel renders a level code compactly for labels.
func FormatLevel(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
