package pool

import (
	"fmt"

	"github.com/jenniferthompson/DelDepLTCI/model"
)

// ResultSummary summarizes a pooled inference.
type ResultSummary struct {
	results *Result
}

// Summary displays a summary table of the pooled coefficient
// estimates.
func (rs *Result) Summary() *ResultSummary {
	return &ResultSummary{results: rs}
}

// String returns a string representation of the summary table.
func (s *ResultSummary) String() string {

	rs := s.results
	lcb, ucb := rs.ConfInt(0.95)

	sum := &model.SummaryTable{
		Title: "Pooled regression analysis",
		Top: []string{
			fmt.Sprintf("Family:           %s", rs.Family()),
			fmt.Sprintf("Num. replicates:  %d", rs.M()),
			fmt.Sprintf("Sample size:      %d", rs.NumObs()),
			fmt.Sprintf("Num. parameters:  %d", len(rs.Params())),
		},
		ColNames: []string{"Variable", "Estimate", "SE", "LCB", "UCB", "t-stat", "DF", "P-value"},
		ColFmt: []model.Fmter{model.StringFmt, model.NumberFmt, model.NumberFmt,
			model.NumberFmt, model.NumberFmt, model.NumberFmt, model.NumberFmt,
			model.NumberFmt},
		Cols: []interface{}{
			rs.Names(), rs.Params(), rs.StdErr(), lcb, ucb, rs.TStats(), rs.DF(), rs.PValues(),
		},
	}

	return sum.String()
}

// TermSummary returns a table of the pooled joint test for every model
// term, with each spline term's nonlinearity sub-test on its own row.
func (rs *Result) TermSummary() string {

	n := len(rs.tests)
	labels := make([]string, n)
	fstats := make([]float64, n)
	df1 := make([]float64, n)
	df2 := make([]float64, n)
	pvals := make([]float64, n)

	for i, tt := range rs.tests {
		labels[i] = tt.Label
		if tt.Nonlinear {
			labels[i] = tt.Label + " (nonlinear)"
		}
		fstats[i] = tt.F
		df1[i] = tt.DF1
		df2[i] = tt.DF2
		pvals[i] = tt.P
	}

	sum := &model.SummaryTable{
		Title: "Pooled joint tests",
		Top: []string{
			fmt.Sprintf("Family:           %s", rs.Family()),
			fmt.Sprintf("Num. replicates:  %d", rs.M()),
		},
		ColNames: []string{"Term", "F-stat", "DF1", "DF2", "P-value"},
		ColFmt: []model.Fmter{model.StringFmt, model.NumberFmt, model.NumberFmt,
			model.NumberFmt, model.NumberFmt},
		Cols: []interface{}{labels, fstats, df1, df2, pvals},
	}

	return sum.String()
}
