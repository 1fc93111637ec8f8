/*
This example analyzes a simulated ICU cohort resembling the studies
that relate delirium in the ICU to long-term patient outcomes.

Each of 500 patients has an age, an APACHE severity score, a SOFA
organ failure score, and a sex indicator, all fully observed.  The
exposure of interest is an indicator of ICU delirium, which is missing
for a subset of patients, with the missingness rate depending on
severity.  Two outcomes are analyzed: a continuous cognitive score
(higher is better), partly missing at rates that depend on age, and a
fully observed four-level disability scale (higher is worse).

Both analyses impute the missing cells with chained equation
regression and predictive mean matching, fit the outcome model on
every completed replicate, and pool the replicate fits.  Age enters
the outcome models through a restricted cubic spline, and the reports
include the pooled joint test for each term, the per-term effect
table, and the pooled partial effect of age over a grid.
*/

package main

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/jenniferthompson/DelDepLTCI/dataset"
	"github.com/jenniferthompson/DelDepLTCI/formula"
	"github.com/jenniferthompson/DelDepLTCI/mifit"
	"github.com/jenniferthompson/DelDepLTCI/model"
	"github.com/jenniferthompson/DelDepLTCI/pool"
)

func expit(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func simulate(n int, seed uint64) *dataset.Table {

	rng := rand.New(rand.NewSource(seed))

	agedist := distuv.Normal{Mu: 62, Sigma: 11, Src: rng}
	apachedist := distuv.Normal{Mu: 23, Sigma: 7, Src: rng}
	sofadist := distuv.Poisson{Lambda: 7, Src: rng}
	noisedist := distuv.Normal{Mu: 0, Sigma: 9, Src: rng}

	age := make([]float64, n)
	apache := make([]float64, n)
	sofa := make([]float64, n)
	sex := make([]float64, n)
	del := make([]float64, n)
	delmiss := make([]bool, n)
	rbans := make([]float64, n)
	rbansmiss := make([]bool, n)
	disability := make([]float64, n)

	for i := 0; i < n; i++ {

		age[i] = agedist.Rand()
		apache[i] = apachedist.Rand()
		sofa[i] = sofadist.Rand()
		if rng.Float64() < 0.45 {
			sex[i] = 1
		}

		// Delirium is more common in older, sicker patients.
		pdel := expit(-4 + 0.04*age[i] + 0.09*apache[i])
		if rng.Float64() < pdel {
			del[i] = 1
		}

		rbans[i] = 92 - 0.35*(age[i]-62) - 3.5*del[i] - 0.8*sofa[i] + noisedist.Rand()

		// Latent logistic disability scale with three cut points.
		u := rng.Float64()
		latent := 0.03*(age[i]-62) + 0.9*del[i] + 0.12*sofa[i] + math.Log(u/(1-u))
		switch {
		case latent < -0.5:
			disability[i] = 0
		case latent < 1.0:
			disability[i] = 1
		case latent < 2.2:
			disability[i] = 2
		default:
			disability[i] = 3
		}

		// Delirium assessments are lost more often for sicker
		// patients, cognitive scores for older ones.
		delmiss[i] = rng.Float64() < expit(-2.2+0.05*(apache[i]-23))
		rbansmiss[i] = rng.Float64() < expit(-2.0+0.03*(age[i]-62))
	}

	tbl, err := dataset.NewTable([]dataset.Column{
		{Name: "rbans", Kind: dataset.Continuous, Values: rbans, Missing: rbansmiss},
		{Name: "disability", Kind: dataset.Categorical, Values: disability},
		{Name: "age", Kind: dataset.Continuous, Values: age},
		{Name: "apache", Kind: dataset.Continuous, Values: apache},
		{Name: "sofa", Kind: dataset.Continuous, Values: sofa},
		{Name: "sex", Kind: dataset.Categorical, Values: sex},
		{Name: "del", Kind: dataset.Categorical, Values: del, Missing: delmiss},
	})
	if err != nil {
		panic(err)
	}
	return tbl
}

func describeData(tbl *dataset.Table) {

	prof, err := dataset.MissingProfile(tbl, nil)
	if err != nil {
		panic(err)
	}
	fmt.Println("Missing data:")
	for _, v := range prof {
		fmt.Printf("  %-10s %4d observed, %3d missing (%.1f%%)\n",
			v.Name, v.N, v.Missing, 100*v.Frac)
	}
	fmt.Println()

	sums, err := dataset.Describe(tbl, []string{"age", "apache", "sofa", "rbans"})
	if err != nil {
		panic(err)
	}
	fmt.Println("Observed values:")
	for _, s := range sums {
		fmt.Printf("  %-10s mean %6.1f  sd %5.1f  median %6.1f  [%.1f, %.1f]\n",
			s.Name, s.Mean, s.SD, s.Median, s.Min, s.Max)
	}
	fmt.Println()
}

func effectReport(rs *pool.Result) {

	fmt.Println("Effects:")
	for _, row := range pool.EffectTable(rs, 0.95) {
		label := row.Variable
		if row.Level != "" {
			label = fmt.Sprintf("%s %s vs %s", row.Variable, row.Level, row.Ref)
		}
		fmt.Printf("  %-16s %8.3f (%8.3f, %8.3f)  p=%.4f\n",
			label, row.Estimate, row.Lower, row.Upper, row.P)
	}
	fmt.Println()
}

func ageCurve(an *mifit.Analysis) {

	grid := []float64{45, 50, 55, 60, 65, 70, 75, 80}
	cv, err := pool.EffectCurve(an.Pooled, an.Builder, "age", grid, 0.95)
	if err != nil {
		panic(err)
	}

	fmt.Println("Partial effect of age on the cognitive score:")
	for i, x := range cv.X {
		fmt.Printf("  age %3.0f  %8.3f (%8.3f, %8.3f)\n", x, cv.Fit[i], cv.Lower[i], cv.Upper[i])
	}
	fmt.Println()
}

func main() {

	tbl := simulate(500, 20130213)
	describeData(tbl)

	// Continuous cognitive outcome, linear model.
	f := formula.New("rbans",
		formula.Spline("age", 4),
		formula.Linear("apache"),
		formula.Linear("sofa"),
		formula.Linear("sex"),
		formula.Linear("del"),
	)

	config := mifit.DefaultConfig(model.Linear)
	config.M = 10
	config.Seed = 23

	an, err := mifit.Run(context.Background(), tbl, f, config)
	if err != nil {
		panic(err)
	}

	fmt.Printf("%v\n", an.Pooled.Summary())
	fmt.Printf("%v\n", an.Pooled.TermSummary())
	effectReport(an.Pooled)
	ageCurve(an)

	// Ordinal disability outcome, cumulative odds model.
	f = formula.New("disability",
		formula.Spline("age", 3),
		formula.Linear("sofa"),
		formula.Linear("del"),
	)

	config = mifit.DefaultConfig(model.Ordinal)
	config.M = 10
	config.Seed = 23

	an, err = mifit.Run(context.Background(), tbl, f, config)
	if err != nil {
		panic(err)
	}

	fmt.Printf("%v\n", an.Pooled.Summary())
	fmt.Printf("%v\n", an.Pooled.TermSummary())
	effectReport(an.Pooled)
}
