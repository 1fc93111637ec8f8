// Package model holds the machinery shared by the regression fitters
// in this repository: parameter and fitter interfaces, term blocks,
// Wald statistics, design rank checking, and summary table rendering.
// The concrete fitters in the linreg and ordinal packages build on
// these types, and the pooling step consumes fitted models through the
// Resultser interface.
package model

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
)

// Family identifies the outcome model family.
type Family uint8

// Linear denotes ordinary least squares regression of a continuous
// outcome.  Ordinal denotes cumulative-link logistic regression of an
// ordered categorical outcome.
const (
	Linear Family = iota
	Ordinal
)

// String returns the name of the family.
func (f Family) String() string {
	switch f {
	case Linear:
		return "linear"
	case Ordinal:
		return "ordinal"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

// HessType indicates the type of a Hessian matrix for a log-likelihood.
type HessType int

// ObsHess (observed Hessian) and ExpHess (expected Hessian) are the two
// types of log-likelihood Hessian matrix.
const (
	ObsHess HessType = iota
	ExpHess
)

// Parameter is the parameter of a model.
type Parameter interface {

	// GetCoeff returns the coefficients in the linear predictor.
	// The returned value is a reference, changes to it change the
	// parameter.
	GetCoeff() []float64

	// SetCoeff sets the coefficients in the linear predictor.
	SetCoeff([]float64)

	// Clone creates a deep copy of the parameter value.
	Clone() Parameter
}

// RegFitter is a regression model that can be fit to data by maximizing
// a log-likelihood.
type RegFitter interface {

	// Number of parameters in the model.
	NumParams() int

	// Number of observations in the data set.
	NumObs() int

	// The log-likelihood function.
	LogLike(Parameter, bool) float64

	// The score vector.
	Score(Parameter, []float64)

	// The Hessian matrix.
	Hessian(Parameter, HessType, []float64)
}

// GetVcov returns the sampling variance/covariance matrix of the
// parameter estimates, obtained by inverting the negative of the
// observed Hessian at the given parameter value.  The matrix is
// vectorized by row.
func GetVcov(rf RegFitter, params Parameter) ([]float64, error) {
	nvar := rf.NumParams()
	n2 := nvar * nvar
	hess := make([]float64, n2)
	rf.Hessian(params, ObsHess, hess)
	hmat := mat.NewDense(nvar, nvar, hess)
	hessi := make([]float64, n2)
	himat := mat.NewDense(nvar, nvar, hessi)
	err := himat.Inverse(hmat)
	if err != nil {
		os.Stderr.Write([]byte("Can't invert Hessian\n"))
		return nil, err
	}
	himat.Scale(-1, himat)

	return hessi, nil
}
