// Package formula describes outcome models as an outcome variable plus
// an ordered list of tagged covariate terms, and expands completed
// datasets into design matrices.  Spline knots and categorical level
// sets are derived once from a table's observed values and frozen, so
// every completed replicate of that table is expanded identically.
package formula

import "fmt"

// Term is one covariate in a model formula: a variable entered
// linearly, or expanded with a restricted cubic spline basis on Knots
// knots.
// Categorical variables are always expanded to indicator contrasts
// against their lowest observed level.
type Term struct {
	Name   string
	Spline bool
	Knots  int
}

// Linear specifies a covariate entered as a single linear column.
func Linear(name string) Term {
	return Term{Name: name}
}

// Spline specifies a covariate expanded with a k-knot restricted cubic
// spline basis.
func Spline(name string, k int) Term {
	return Term{Name: name, Spline: true, Knots: k}
}

// Formula pairs an outcome variable with an ordered covariate list.
type Formula struct {
	Outcome string
	Terms   []Term
}

// New returns a formula for the given outcome and covariate terms.
func New(outcome string, terms ...Term) Formula {
	return Formula{Outcome: outcome, Terms: terms}
}

// Error reports a formula that cannot be applied to a data table.
type Error struct {
	Var     string
	Problem string
}

func (e *Error) Error() string {
	return fmt.Sprintf("formula: variable '%s': %s", e.Var, e.Problem)
}
