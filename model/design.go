package model

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// BlockKind classifies the role of a run of adjacent parameters.
type BlockKind uint8

// Covariate blocks hold the effect parameters of one model term.
// Intercept and Threshold blocks hold structural parameters (the least
// squares intercept, the per-level cut points of an ordinal model)
// that are not covariate effects.
const (
	Covariate BlockKind = iota
	Intercept
	Threshold
)

// Block locates the parameters belonging to one model term in the
// combined parameter vector.  A term expanded to several design
// columns (spline bases, indicator contrasts) owns a single block
// spanning all of them, so joint tests and report rows can be formed
// per term rather than per column.
type Block struct {

	// Label is the term's variable name, or a structural label for
	// intercept and threshold blocks.
	Label string

	Kind BlockKind

	// Start and Len delimit the block's positions in the parameter
	// vector.
	Start int
	Len   int

	// NonlinStart and NonlinLen delimit the nonlinear basis columns
	// of a spline-expanded term.  NonlinLen is zero for all other
	// terms.
	NonlinStart int
	NonlinLen   int

	// Levels holds the observed level codes of a categorical term in
	// ascending order.  Levels[0] is the reference level.  Levels is
	// nil for continuous terms.
	Levels []float64
}

// Nuisance reports whether the block holds structural parameters
// rather than covariate effects.
func (b Block) Nuisance() bool {
	return b.Kind != Covariate
}

// Spline reports whether the block belongs to a spline-expanded term.
func (b Block) Spline() bool {
	return b.NonlinLen > 0
}

// Categorical reports whether the block belongs to a categorical term.
func (b Block) Categorical() bool {
	return len(b.Levels) > 0
}

// ShiftBlocks returns a copy of the blocks with every position moved
// right by k positions, for prepending structural parameters to a
// design.
func ShiftBlocks(blocks []Block, k int) []Block {
	sb := make([]Block, len(blocks))
	for i, b := range blocks {
		b.Start += k
		if b.NonlinLen > 0 {
			b.NonlinStart += k
		}
		sb[i] = b
	}
	return sb
}

// SingularDesignError indicates that a design matrix does not have
// full column rank.  Col names the first column that is linearly
// dependent on the columns preceding it.
type SingularDesignError struct {
	Col string
}

func (e *SingularDesignError) Error() string {
	return fmt.Sprintf("singular design matrix: column '%s' is collinear with the preceding columns", e.Col)
}

// rankTol is the relative residual norm below which a design column is
// treated as linearly dependent on its predecessors.
const rankTol = 1e-8

// CheckRank verifies that the given design columns have full column
// rank, returning a SingularDesignError naming the first dependent
// column otherwise.  The check runs modified Gram-Schmidt over copies
// of the columns, the inputs are not modified.
func CheckRank(cols [][]float64, names []string) error {

	basis := make([][]float64, 0, len(cols))

	for j, c := range cols {

		v := make([]float64, len(c))
		copy(v, c)

		nrm0 := floats.Norm(v, 2)
		if nrm0 == 0 {
			return &SingularDesignError{Col: names[j]}
		}

		for _, u := range basis {
			d := floats.Dot(u, v)
			floats.AddScaled(v, -d, u)
		}

		nrm := floats.Norm(v, 2)
		if nrm <= rankTol*nrm0 {
			return &SingularDesignError{Col: names[j]}
		}

		floats.Scale(1/nrm, v)
		basis = append(basis, v)
	}

	return nil
}

// WaldStat computes the Wald quadratic form b' V^-1 b for the
// parameter block starting at position start with the given length,
// where b and V are the corresponding slices of the full parameter
// vector and its row-vectorized covariance matrix.
func WaldStat(params, vcov []float64, start, length int) (float64, error) {

	p := len(params)

	sub := make([]float64, length*length)
	for i := 0; i < length; i++ {
		for j := 0; j < length; j++ {
			sub[i*length+j] = vcov[(start+i)*p+(start+j)]
		}
	}

	vb := mat.NewDense(length, length, sub)
	vi := mat.NewDense(length, length, nil)
	if err := vi.Inverse(vb); err != nil {
		return 0, fmt.Errorf("covariance block for positions %d-%d is singular: %w",
			start, start+length-1, err)
	}

	var stat float64
	for i := 0; i < length; i++ {
		for j := 0; j < length; j++ {
			stat += params[start+i] * vi.At(i, j) * params[start+j]
		}
	}

	return stat, nil
}
