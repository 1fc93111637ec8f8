package model

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// WaldTest is a joint test that all parameters in one term block are
// zero.  Nonlinear marks the sub-test restricted to the nonlinear
// basis columns of a spline term.  DF2 is zero when the reference
// distribution is chi-squared rather than F.
type WaldTest struct {
	Label     string
	Nonlinear bool
	Stat      float64
	DF1       float64
	DF2       float64
	P         float64
}

// Resultser is a fitted model.  Both outcome families implement it,
// and the pooling step consumes replicate fits through it.
type Resultser interface {
	Family() Family
	Names() []string
	Params() []float64
	VCov() []float64
	LogLike() float64
	NumObs() int
	ResidDF() float64
	Blocks() []Block
	TermTests() []WaldTest
}

// BaseResults contains the results after fitting a model to data.
type BaseResults struct {
	family  Family
	names   []string
	params  []float64
	vcov    []float64
	loglike float64
	nobs    int
	dfresid float64
	blocks  []Block
	tests   []WaldTest

	stderr  []float64
	zscores []float64
	pvalues []float64
}

// NewBaseResults returns a BaseResults corresponding to a model fit.
// The vcov argument is the estimated covariance matrix of the
// parameters, vectorized by row.
func NewBaseResults(family Family, names []string, params, vcov []float64, loglike float64,
	nobs int, dfresid float64, blocks []Block, tests []WaldTest) BaseResults {
	return BaseResults{
		family:  family,
		names:   names,
		params:  params,
		vcov:    vcov,
		loglike: loglike,
		nobs:    nobs,
		dfresid: dfresid,
		blocks:  blocks,
		tests:   tests,
	}
}

// Family returns the outcome model family.
func (rslt *BaseResults) Family() Family {
	return rslt.family
}

// Names returns the parameter names.
func (rslt *BaseResults) Names() []string {
	return rslt.names
}

// Params returns the point estimates of the parameters.
func (rslt *BaseResults) Params() []float64 {
	return rslt.params
}

// VCov returns the estimated covariance matrix of the parameter
// estimates, vectorized by row.
func (rslt *BaseResults) VCov() []float64 {
	return rslt.vcov
}

// LogLike returns the log-likelihood at the fitted parameter value.
func (rslt *BaseResults) LogLike() float64 {
	return rslt.loglike
}

// NumObs returns the number of observations used to fit the model.
func (rslt *BaseResults) NumObs() int {
	return rslt.nobs
}

// NumParams returns the number of model parameters.
func (rslt *BaseResults) NumParams() int {
	return len(rslt.params)
}

// ResidDF returns the residual (complete data) degrees of freedom.
func (rslt *BaseResults) ResidDF() float64 {
	return rslt.dfresid
}

// Blocks returns the term blocks of the parameter vector.
func (rslt *BaseResults) Blocks() []Block {
	return rslt.blocks
}

// TermTests returns the per-term joint Wald tests.
func (rslt *BaseResults) TermTests() []WaldTest {
	return rslt.tests
}

// StdErr returns the standard errors of the parameter estimates.
func (rslt *BaseResults) StdErr() []float64 {

	if rslt.stderr == nil {
		p := len(rslt.params)
		rslt.stderr = make([]float64, p)
		for i := range rslt.stderr {
			rslt.stderr[i] = math.Sqrt(rslt.vcov[i*p+i])
		}
	}

	return rslt.stderr
}

// ZScores returns the parameter estimates divided by their standard
// errors.
func (rslt *BaseResults) ZScores() []float64 {

	if rslt.zscores == nil {
		se := rslt.StdErr()
		rslt.zscores = make([]float64, len(rslt.params))
		for i, p := range rslt.params {
			rslt.zscores[i] = p / se[i]
		}
	}

	return rslt.zscores
}

// PValues returns two-sided p-values from the normal reference
// distribution for the hypotheses that the individual parameters are
// zero.
func (rslt *BaseResults) PValues() []float64 {

	if rslt.pvalues == nil {
		dist := distuv.Normal{Mu: 0, Sigma: 1}
		z := rslt.ZScores()
		rslt.pvalues = make([]float64, len(z))
		for i, x := range z {
			rslt.pvalues[i] = 2 * dist.CDF(-math.Abs(x))
		}
	}

	return rslt.pvalues
}
