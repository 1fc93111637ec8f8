package pool

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/jenniferthompson/DelDepLTCI/formula"
	"github.com/jenniferthompson/DelDepLTCI/model"
)

// EffectRow is one pooled covariate effect flattened for reporting.
// For categorical terms, Level and Ref name the contrasted and
// reference levels.  Under the ordinal family, Estimate, Lower and
// Upper are cumulative odds ratios while SE, Stat, DF and P remain on
// the linear predictor scale.
type EffectRow struct {
	Variable string
	Level    string
	Ref      string
	Estimate float64
	SE       float64
	Lower    float64
	Upper    float64
	Stat     float64
	DF       float64
	P        float64
}

// EffectTable flattens the pooled covariate effects into rows at the
// given confidence level, e.g. 0.95.  Structural parameters (the
// intercept, ordinal thresholds) are omitted.
func EffectTable(rs *Result, level float64) []EffectRow {

	params := rs.Params()
	se := rs.StdErr()
	df := rs.DF()
	pv := rs.PValues()
	ts := rs.TStats()
	names := rs.Names()

	var rows []EffectRow
	for _, b := range rs.Blocks() {

		if b.Nuisance() {
			continue
		}

		for j := 0; j < b.Len; j++ {
			i := b.Start + j

			tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df[i]}
			tq := tdist.Quantile(0.5 + level/2)

			row := EffectRow{
				Variable: names[i],
				Estimate: params[i],
				SE:       se[i],
				Lower:    params[i] - tq*se[i],
				Upper:    params[i] + tq*se[i],
				Stat:     ts[i],
				DF:       df[i],
				P:        pv[i],
			}

			if b.Categorical() {
				row.Variable = b.Label
				row.Level = formula.FormatLevel(b.Levels[j+1])
				row.Ref = formula.FormatLevel(b.Levels[0])
			}

			if rs.Family() == model.Ordinal {
				row.Estimate = math.Exp(row.Estimate)
				row.Lower = math.Exp(row.Lower)
				row.Upper = math.Exp(row.Upper)
			}

			rows = append(rows, row)
		}
	}

	return rows
}

// Curve is the pooled partial effect of one spline term over a grid of
// values of its variable, with pointwise confidence limits.  Fit is
// the term's contribution to the linear predictor.
type Curve struct {
	X     []float64
	Fit   []float64
	Lower []float64
	Upper []float64
}

// EffectCurve evaluates the pooled partial effect of the named spline
// term over xs, using the builder's frozen basis.  The confidence
// limits use the t reference with the smallest pooled degrees of
// freedom among the term's parameters, e.g. level 0.95.
func EffectCurve(rs *Result, fb *formula.Builder, term string, xs []float64, level float64) (*Curve, error) {

	var blk *model.Block
	for i, b := range rs.Blocks() {
		if b.Label == term && !b.Nuisance() {
			blk = &rs.Blocks()[i]
			break
		}
	}
	if blk == nil {
		return nil, fmt.Errorf("pool: no covariate term '%s' in the pooled fit", term)
	}
	if !blk.Spline() {
		return nil, fmt.Errorf("pool: term '%s' is not spline-expanded", term)
	}

	basis := fb.Basis(term)
	if basis == nil {
		return nil, fmt.Errorf("pool: the builder has no spline basis for '%s'", term)
	}
	if basis.NumCols() != blk.Len {
		return nil, fmt.Errorf("pool: basis for '%s' has %d columns, the fit has %d",
			term, basis.NumCols(), blk.Len)
	}

	params := rs.Params()
	total := rs.VCov()
	p := len(params)

	dfmin := rs.DF()[blk.Start]
	for j := 1; j < blk.Len; j++ {
		if d := rs.DF()[blk.Start+j]; d < dfmin {
			dfmin = d
		}
	}
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dfmin}
	tq := tdist.Quantile(0.5 + level/2)

	cv := &Curve{
		X:     append([]float64(nil), xs...),
		Fit:   make([]float64, len(xs)),
		Lower: make([]float64, len(xs)),
		Upper: make([]float64, len(xs)),
	}

	for i, x := range xs {

		row := basis.At(x)

		var fit float64
		for j, v := range row {
			fit += v * params[blk.Start+j]
		}

		var va float64
		for j1, v1 := range row {
			for j2, v2 := range row {
				va += v1 * v2 * total[(blk.Start+j1)*p+(blk.Start+j2)]
			}
		}
		se := math.Sqrt(va)

		cv.Fit[i] = fit
		cv.Lower[i] = fit - tq*se
		cv.Upper[i] = fit + tq*se
	}

	return cv, nil
}
