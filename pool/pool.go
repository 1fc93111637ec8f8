// Package pool combines regression fits from multiple completed
// replicates into a single pooled inference, and flattens the pooled
// fit into report-ready effect and test tables.
//
// Point estimates are averaged across replicates.  The pooled
// covariance is the average within-replicate covariance plus an
// inflated between-replicate covariance, and per-parameter reference
// degrees of freedom shrink as the between component grows.  Per-term
// joint tests use the multivariate pooling rule, which combines each
// term's whole coefficient block.
package pool

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/jenniferthompson/DelDepLTCI/model"
)

// dfMax caps the reference degrees of freedom.  With no between
// replicate variance the reference distribution degenerates to the
// complete data one.
const dfMax = 1e6

// TermTest is a pooled joint Wald test that all coefficients in one
// term block are zero.
type TermTest struct {
	Label     string
	Nonlinear bool
	F         float64
	DF1       float64
	DF2       float64
	P         float64
}

// Result is the pooled inference across replicate fits.
type Result struct {
	family  model.Family
	names   []string
	params  []float64
	total   []float64
	within  []float64
	between []float64
	df      []float64
	m       int
	nobs    int
	cdf     float64
	blocks  []model.Block
	tests   []TermTest

	stderr []float64
}

// Combine pools the given replicate fits.  The fits must share one
// term structure.  Pooling a single fit is the identity on the
// estimates and covariance.
func Combine(fits []model.Resultser) (*Result, error) {

	m := len(fits)
	if m == 0 {
		return nil, fmt.Errorf("pool: no fits to combine")
	}

	base := fits[0]
	p := len(base.Params())

	for r, f := range fits[1:] {
		if f.Family() != base.Family() {
			return nil, fmt.Errorf("pool: fit %d has family %v, want %v", r+1, f.Family(), base.Family())
		}
		if !sameNames(f.Names(), base.Names()) {
			return nil, fmt.Errorf("pool: fit %d has a different term structure", r+1)
		}
	}

	// Pooled estimates are the means of the replicate estimates.
	qbar := make([]float64, p)
	for _, f := range fits {
		floats.Add(qbar, f.Params())
	}
	floats.Scale(1/float64(m), qbar)

	// Within component: mean of the replicate covariances.
	within := make([]float64, p*p)
	for _, f := range fits {
		floats.Add(within, f.VCov())
	}
	floats.Scale(1/float64(m), within)

	// Between component: sample covariance of the estimates.
	between := make([]float64, p*p)
	if m > 1 {
		qmat := mat.NewDense(m, p, nil)
		for r, f := range fits {
			qmat.SetRow(r, f.Params())
		}
		var cov mat.SymDense
		stat.CovarianceMatrix(&cov, qmat, nil)
		for i := 0; i < p; i++ {
			for j := 0; j < p; j++ {
				between[i*p+j] = cov.At(i, j)
			}
		}
	}

	fm := float64(m)
	total := make([]float64, p*p)
	for i := range total {
		total[i] = within[i] + (1+1/fm)*between[i]
	}

	df := make([]float64, p)
	for i := 0; i < p; i++ {
		df[i] = paramDF(within[i*p+i], between[i*p+i], fm)
	}

	rs := &Result{
		family:  base.Family(),
		names:   append([]string(nil), base.Names()...),
		params:  qbar,
		total:   total,
		within:  within,
		between: between,
		df:      df,
		m:       m,
		nobs:    base.NumObs(),
		cdf:     base.ResidDF(),
		blocks:  append([]model.Block(nil), base.Blocks()...),
	}

	if err := rs.termTests(); err != nil {
		return nil, err
	}

	return rs, nil
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// paramDF computes the per-parameter reference degrees of freedom from
// the within and between variances, clamped to [1, dfMax].
func paramDF(u, b, m float64) float64 {

	if m <= 1 || b <= 0 || u <= 0 {
		return dfMax
	}

	r := (1 + 1/m) * b / u
	df := (m - 1) * (1 + 1/r) * (1 + 1/r)

	if df > dfMax {
		return dfMax
	}
	if df < 1 {
		return 1
	}
	return df
}

// termTests computes the pooled joint test for every covariate block
// and the nonlinearity sub-test for every spline block.
func (rs *Result) termTests() error {

	test := func(label string, nonlin bool, start, length int) error {
		tt, err := rs.blockTest(start, length)
		if err != nil {
			return fmt.Errorf("pool: term '%s': %w", label, err)
		}
		tt.Label = label
		tt.Nonlinear = nonlin
		rs.tests = append(rs.tests, tt)
		return nil
	}

	for _, b := range rs.blocks {
		if b.Nuisance() {
			continue
		}
		if err := test(b.Label, false, b.Start, b.Len); err != nil {
			return err
		}
		if b.Spline() {
			if err := test(b.Label, true, b.NonlinStart, b.NonlinLen); err != nil {
				return err
			}
		}
	}

	return nil
}

// blockTest computes the multivariate pooled Wald test for the
// parameter block starting at start.
func (rs *Result) blockTest(start, length int) (TermTest, error) {

	p := len(rs.params)
	q := float64(length)

	qb := make([]float64, length)
	ub := make([]float64, length*length)
	bb := make([]float64, length*length)
	for i := 0; i < length; i++ {
		qb[i] = rs.params[start+i]
		for j := 0; j < length; j++ {
			ub[i*length+j] = rs.within[(start+i)*p+(start+j)]
			bb[i*length+j] = rs.between[(start+i)*p+(start+j)]
		}
	}

	ubm := mat.NewDense(length, length, ub)
	ubi := mat.NewDense(length, length, nil)
	if err := ubi.Inverse(ubm); err != nil {
		return TermTest{}, fmt.Errorf("within covariance block is singular: %w", err)
	}

	// Average relative increase in variance over the block.
	fm := float64(rs.m)
	var rb float64
	if rs.m > 1 {
		var tr float64
		for i := 0; i < length; i++ {
			for k := 0; k < length; k++ {
				tr += bb[i*length+k] * ubi.At(k, i)
			}
		}
		rb = (1 + 1/fm) * tr / q
	}

	var quad float64
	for i := 0; i < length; i++ {
		for j := 0; j < length; j++ {
			quad += qb[i] * ubi.At(i, j) * qb[j]
		}
	}
	f := quad / (q * (1 + rb))

	df2 := blockDF(q, fm, rb, rs.cdf)

	fdist := distuv.F{D1: q, D2: df2}
	return TermTest{F: f, DF1: q, DF2: df2, P: fdist.Survival(f)}, nil
}

// blockDF is the denominator degrees of freedom for the multivariate
// pooling rule, clamped to [1, dfMax].
func blockDF(q, m, rb, cdf float64) float64 {

	if m <= 1 || rb <= 0 {
		// No between replicate variance: fall back to the complete
		// data reference.
		if cdf > 0 && cdf < dfMax {
			return cdf
		}
		return dfMax
	}

	t := q * (m - 1)
	var nu float64
	if t > 4 {
		u := 1 + (1-2/t)/rb
		nu = 4 + (t-4)*u*u
	} else {
		u := 1 + 1/rb
		nu = 0.5 * t * (1 + 1/q) * u * u
	}

	if nu > dfMax {
		return dfMax
	}
	if nu < 1 {
		return 1
	}
	return nu
}

// Family returns the outcome model family of the pooled fits.
func (rs *Result) Family() model.Family {
	return rs.family
}

// Names returns the parameter names.
func (rs *Result) Names() []string {
	return rs.names
}

// Params returns the pooled parameter estimates.
func (rs *Result) Params() []float64 {
	return rs.params
}

// VCov returns the pooled (total) covariance matrix, vectorized by
// row.
func (rs *Result) VCov() []float64 {
	return rs.total
}

// Within returns the average within-replicate covariance matrix,
// vectorized by row.
func (rs *Result) Within() []float64 {
	return rs.within
}

// Between returns the between-replicate covariance matrix, vectorized
// by row.
func (rs *Result) Between() []float64 {
	return rs.between
}

// DF returns the per-parameter reference degrees of freedom.
func (rs *Result) DF() []float64 {
	return rs.df
}

// M returns the number of pooled replicates.
func (rs *Result) M() int {
	return rs.m
}

// NumObs returns the number of observations underlying each fit.
func (rs *Result) NumObs() int {
	return rs.nobs
}

// Blocks returns the term blocks of the parameter vector.
func (rs *Result) Blocks() []model.Block {
	return rs.blocks
}

// Tests returns the pooled per-term joint tests, in formula order with
// each spline term's nonlinearity sub-test following its joint test.
func (rs *Result) Tests() []TermTest {
	return rs.tests
}

// StdErr returns the pooled standard errors.
func (rs *Result) StdErr() []float64 {

	if rs.stderr == nil {
		p := len(rs.params)
		rs.stderr = make([]float64, p)
		for i := range rs.stderr {
			rs.stderr[i] = math.Sqrt(rs.total[i*p+i])
		}
	}

	return rs.stderr
}

// TStats returns the pooled estimates divided by their standard
// errors.
func (rs *Result) TStats() []float64 {
	se := rs.StdErr()
	ts := make([]float64, len(rs.params))
	for i, p := range rs.params {
		ts[i] = p / se[i]
	}
	return ts
}

// PValues returns two-sided p-values from the t reference with the
// per-parameter pooled degrees of freedom.
func (rs *Result) PValues() []float64 {
	ts := rs.TStats()
	pv := make([]float64, len(ts))
	for i, x := range ts {
		tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: rs.df[i]}
		pv[i] = 2 * tdist.CDF(-math.Abs(x))
	}
	return pv
}

// ConfInt returns pointwise confidence limits for the parameters at
// the given level, e.g. 0.95.
func (rs *Result) ConfInt(level float64) (lower, upper []float64) {

	se := rs.StdErr()
	lower = make([]float64, len(rs.params))
	upper = make([]float64, len(rs.params))

	for i, p := range rs.params {
		tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: rs.df[i]}
		tq := tdist.Quantile(0.5 + level/2)
		lower[i] = p - tq*se[i]
		upper[i] = p + tq*se[i]
	}

	return lower, upper
}
