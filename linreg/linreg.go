// Package linreg fits ordinary least squares regression models for
// continuous outcomes on formula-expanded designs, producing
// coefficient estimates, a residual-based covariance matrix, and a
// joint Wald F test per model term.
package linreg

import (
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/jenniferthompson/DelDepLTCI/dataset"
	"github.com/jenniferthompson/DelDepLTCI/formula"
	"github.com/jenniferthompson/DelDepLTCI/model"
)

// Config defines configuration parameters for an OLS fit.
type Config struct {

	// Log receives progress messages when not nil.
	Log *log.Logger
}

// DefaultConfig returns the default configuration for an OLS fit.
func DefaultConfig() *Config {
	return &Config{}
}

// OLS describes an ordinary least squares regression of a continuous
// outcome on a design expanded by a formula builder.
type OLS struct {

	// Outcome variable
	yname string
	y     []float64

	// Design matrix columns, including the leading intercept
	xnames []string
	xdata  [][]float64

	blocks []model.Block
	nobs   int

	log *log.Logger
}

// NewOLS builds an OLS model from one completed dataset, using the
// builder's frozen design encodings.
func NewOLS(c *dataset.Completed, fb *formula.Builder, config *Config) (*OLS, error) {

	if config == nil {
		config = DefaultConfig()
	}

	if fb.OutcomeKind() != dataset.Continuous {
		return nil, fmt.Errorf("linreg: outcome '%s' is categorical, use the ordinal family", fb.Outcome())
	}

	ypos := c.Pos(fb.Outcome())
	if ypos < 0 {
		return nil, fmt.Errorf("linreg: outcome '%s' not in the completed dataset", fb.Outcome())
	}

	design, err := fb.Build(c)
	if err != nil {
		return nil, err
	}

	nobs := design.NumObs

	icept := make([]float64, nobs)
	for i := range icept {
		icept[i] = 1
	}
	xdata := append([][]float64{icept}, design.Cols...)
	xnames := append([]string{"Intercept"}, design.ColNames...)

	blocks := append([]model.Block{{Label: "Intercept", Kind: model.Intercept, Start: 0, Len: 1}},
		model.ShiftBlocks(design.Blocks, 1)...)

	if nobs <= len(xdata) {
		return nil, fmt.Errorf("linreg: %d observations cannot identify %d parameters", nobs, len(xdata))
	}

	return &OLS{
		yname:  fb.Outcome(),
		y:      c.Data()[ypos],
		xnames: xnames,
		xdata:  xdata,
		blocks: blocks,
		nobs:   nobs,
		log:    config.Log,
	}, nil
}

// NumObs returns the number of observations.
func (ols *OLS) NumObs() int {
	return ols.nobs
}

// NumParams returns the number of model parameters, including the
// intercept.
func (ols *OLS) NumParams() int {
	return len(ols.xdata)
}

// Names returns the parameter names.
func (ols *OLS) Names() []string {
	return ols.xnames
}

// Results describes a fitted least squares model.
type Results struct {
	model.BaseResults

	yname  string
	sigma2 float64
}

// Scale returns the estimated residual variance.
func (rslt *Results) Scale() float64 {
	return rslt.sigma2
}

// Fit estimates the model parameters by solving the normal equations.
func (ols *OLS) Fit() (*Results, error) {

	if err := model.CheckRank(ols.xdata, ols.xnames); err != nil {
		return nil, err
	}

	nvar := ols.NumParams()
	nobs := ols.nobs

	xty := make([]float64, nvar)
	xtx := make([]float64, nvar*nvar)

	for j1, xda := range ols.xdata {

		var u float64
		for i, y := range ols.y {
			u += y * xda[i]
		}
		xty[j1] = u

		for j2 := 0; j2 <= j1; j2++ {
			xdb := ols.xdata[j2]
			var v float64
			for i := range xda {
				v += xda[i] * xdb[i]
			}
			xtx[j1*nvar+j2] = v
			xtx[j2*nvar+j1] = v
		}
	}

	xtxm := mat.NewDense(nvar, nvar, xtx)
	xtyv := mat.NewVecDense(nvar, xty)

	var sol mat.VecDense
	if err := sol.SolveVec(xtxm, xtyv); err != nil {
		return nil, fmt.Errorf("linreg: the normal equations are singular: %w", err)
	}

	params := make([]float64, nvar)
	copy(params, sol.RawVector().Data)

	var rss float64
	for i, y := range ols.y {
		var f float64
		for j, xda := range ols.xdata {
			f += params[j] * xda[i]
		}
		r := y - f
		rss += r * r
	}

	dfresid := float64(nobs - nvar)
	sigma2 := rss / dfresid

	// Gaussian log-likelihood at the maximum.
	n := float64(nobs)
	loglike := -0.5 * n * (math.Log(2*math.Pi*rss/n) + 1)

	xtxi := mat.NewDense(nvar, nvar, nil)
	if err := xtxi.Inverse(xtxm); err != nil {
		return nil, fmt.Errorf("linreg: cannot invert X'X: %w", err)
	}
	vcov := make([]float64, nvar*nvar)
	for i := 0; i < nvar; i++ {
		for j := 0; j < nvar; j++ {
			vcov[i*nvar+j] = sigma2 * xtxi.At(i, j)
		}
	}

	tests, err := ols.waldTests(params, vcov, dfresid)
	if err != nil {
		return nil, err
	}

	if ols.log != nil {
		ols.log.Printf("OLS fit of %s complete: n=%d p=%d scale=%f", ols.yname, nobs, nvar, sigma2)
	}

	return &Results{
		BaseResults: model.NewBaseResults(model.Linear, ols.xnames, params, vcov,
			loglike, nobs, dfresid, ols.blocks, tests),
		yname:  ols.yname,
		sigma2: sigma2,
	}, nil
}

// waldTests computes the joint F test for every covariate term and,
// for spline terms, the sub-test restricted to the nonlinear columns.
func (ols *OLS) waldTests(params, vcov []float64, dfresid float64) ([]model.WaldTest, error) {

	var tests []model.WaldTest

	ftest := func(label string, nonlin bool, start, length int) error {
		stat, err := model.WaldStat(params, vcov, start, length)
		if err != nil {
			return fmt.Errorf("linreg: term '%s': %w", label, err)
		}
		q := float64(length)
		f := stat / q
		fdist := distuv.F{D1: q, D2: dfresid}
		tests = append(tests, model.WaldTest{
			Label:     label,
			Nonlinear: nonlin,
			Stat:      f,
			DF1:       q,
			DF2:       dfresid,
			P:         fdist.Survival(f),
		})
		return nil
	}

	for _, b := range ols.blocks {
		if b.Nuisance() {
			continue
		}
		if err := ftest(b.Label, false, b.Start, b.Len); err != nil {
			return nil, err
		}
		if b.Spline() {
			if err := ftest(b.Label, true, b.NonlinStart, b.NonlinLen); err != nil {
				return nil, err
			}
		}
	}

	return tests, nil
}

// OLSSummary summarizes a fitted least squares model.
type OLSSummary struct {
	results *Results
}

// Summary displays a summary table of the model results.
func (rslt *Results) Summary() *OLSSummary {
	return &OLSSummary{results: rslt}
}

// String returns a string representation of the summary table.
func (s *OLSSummary) String() string {

	r := s.results
	se := r.StdErr()
	params := r.Params()

	lcb := make([]float64, len(params))
	ucb := make([]float64, len(params))
	for i := range params {
		lcb[i] = params[i] - 2*se[i]
		ucb[i] = params[i] + 2*se[i]
	}

	sum := &model.SummaryTable{
		Title: "Least squares regression analysis",
		Top: []string{
			fmt.Sprintf("Outcome variable: %s", r.yname),
			fmt.Sprintf("Sample size:      %d", r.NumObs()),
			fmt.Sprintf("Residual df:      %.0f", r.ResidDF()),
			fmt.Sprintf("Scale:            %.4f", r.Scale()),
			fmt.Sprintf("Log-likelihood:   %.4f", r.LogLike()),
		},
		ColNames: []string{"Variable", "Coefficient", "SE", "LCB", "UCB", "Z-score", "P-value"},
		ColFmt: []model.Fmter{model.StringFmt, model.NumberFmt, model.NumberFmt,
			model.NumberFmt, model.NumberFmt, model.NumberFmt, model.NumberFmt},
		Cols: []interface{}{
			r.Names(), params, se, lcb, ucb, r.ZScores(), r.PValues(),
		},
	}

	return sum.String()
}
