// Package spline builds restricted cubic spline bases for continuous
// variables.  A basis is piecewise cubic between its knots, has
// continuous first and second derivatives, and is constrained to be
// linear beyond the outer knots.  Knot locations are computed once
// from a variable's observed values and then frozen, so the same
// basis expands any later input identically.
package spline

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// InsufficientVariabilityError indicates that a variable does not have
// enough distinct observed values to place the requested knots.
type InsufficientVariabilityError struct {
	Var      string
	Distinct int
	Knots    int
}

func (e *InsufficientVariabilityError) Error() string {
	return fmt.Sprintf("spline: variable '%s' has %d distinct observed values, cannot place %d knots",
		e.Var, e.Distinct, e.Knots)
}

// Basis is a restricted cubic spline basis with frozen knots.  A basis
// is immutable and safe for concurrent use.
type Basis struct {
	name  string
	knots []float64
}

// New computes a k-knot basis for the named variable from its observed
// values.  Knots are placed at the j/(k+1) empirical quantiles for
// j = 1..k.  k must be at least 3.
func New(name string, values []float64, k int) (*Basis, error) {

	if k < 3 {
		return nil, fmt.Errorf("spline: variable '%s': need at least 3 knots, got %d", name, k)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("spline: variable '%s' has no observed values", name)
	}

	x := make([]float64, len(values))
	copy(x, values)
	sort.Float64s(x)

	nd := countDistinct(x)
	if nd < k {
		return nil, &InsufficientVariabilityError{Var: name, Distinct: nd, Knots: k}
	}

	knots := make([]float64, k)
	for j := 0; j < k; j++ {
		p := float64(j+1) / float64(k+1)
		knots[j] = stat.Quantile(p, stat.Empirical, x, nil)
	}

	// Heavily skewed data can collapse quantiles onto equal values
	// even when enough distinct values exist.
	for j := 1; j < k; j++ {
		if knots[j] <= knots[j-1] {
			return nil, &InsufficientVariabilityError{Var: name, Distinct: nd, Knots: k}
		}
	}

	return &Basis{name: name, knots: knots}, nil
}

// countDistinct returns the number of distinct values in sorted x.
func countDistinct(x []float64) int {
	n := 1
	for i := 1; i < len(x); i++ {
		if x[i] != x[i-1] {
			n++
		}
	}
	return n
}

// Name returns the variable name the basis was computed for.
func (b *Basis) Name() string {
	return b.name
}

// Knots returns a copy of the knot locations in ascending order.
func (b *Basis) Knots() []float64 {
	k := make([]float64, len(b.knots))
	copy(k, b.knots)
	return k
}

// NumCols returns the number of design columns the basis produces:
// one linear column followed by k-2 nonlinear columns.
func (b *Basis) NumCols() int {
	return len(b.knots) - 1
}

// ColNames returns the design column labels, the variable name for the
// linear column and the name with one prime appended per nonlinear
// column.
func (b *Basis) ColNames() []string {
	names := make([]string, b.NumCols())
	for j := range names {
		names[j] = b.name + strings.Repeat("'", j)
	}
	return names
}

// At evaluates the basis functions at a single point, returning
// NumCols values with the linear term first.
func (b *Basis) At(x float64) []float64 {
	row := make([]float64, b.NumCols())
	row[0] = x
	for j := 0; j < len(b.knots)-2; j++ {
		row[j+1] = b.term(j, x)
	}
	return row
}

// Expand applies the basis to a slice of values, producing NumCols
// design columns.  The expansion is deterministic given the frozen
// knots.
func (b *Basis) Expand(x []float64) [][]float64 {

	cols := make([][]float64, b.NumCols())
	for j := range cols {
		cols[j] = make([]float64, len(x))
	}

	for i, v := range x {
		cols[0][i] = v
		for j := 0; j < len(b.knots)-2; j++ {
			cols[j+1][i] = b.term(j, v)
		}
	}

	return cols
}

// Eval maps a coefficient block, one coefficient per basis column with
// the linear coefficient first, to the fitted smooth evaluated at xs.
func (b *Basis) Eval(coeff []float64, xs []float64) []float64 {

	if len(coeff) != b.NumCols() {
		panic(fmt.Sprintf("spline: got %d coefficients for a %d column basis",
			len(coeff), b.NumCols()))
	}

	y := make([]float64, len(xs))
	for i, x := range xs {
		row := b.At(x)
		var f float64
		for j, c := range coeff {
			f += c * row[j]
		}
		y[i] = f
	}

	return y
}

// term evaluates the j-th nonlinear basis function at x.  The two
// trailing truncated cubes cancel the quadratic and cubic growth
// beyond the last knot, and the normalization by the squared knot
// span keeps the columns on the scale of x.
func (b *Basis) term(j int, x float64) float64 {

	t := b.knots
	k := len(t)
	w := t[k-1] - t[0]

	u := cube(pos(x - t[j]))
	u -= cube(pos(x-t[k-2])) * (t[k-1] - t[j]) / (t[k-1] - t[k-2])
	u += cube(pos(x-t[k-1])) * (t[k-2] - t[j]) / (t[k-1] - t[k-2])

	return u / (w * w)
}

func pos(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

func cube(x float64) float64 {
	return x * x * x
}
