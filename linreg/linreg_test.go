package linreg

import (
	"errors"
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/floats"

	"github.com/jenniferthompson/DelDepLTCI/dataset"
	"github.com/jenniferthompson/DelDepLTCI/formula"
	"github.com/jenniferthompson/DelDepLTCI/model"
)

func scalarClose(x, y, eps float64) bool {
	return math.Abs(x-y) < eps
}

func fitModel(t *testing.T, cols []dataset.Column, f formula.Formula) *Results {

	tab, err := dataset.NewTable(cols)
	if err != nil {
		t.Fatal(err)
	}
	fb, err := formula.NewBuilder(tab, f)
	if err != nil {
		t.Fatal(err)
	}
	comp, err := tab.Complete()
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewOLS(comp, fb, nil)
	if err != nil {
		t.Fatal(err)
	}
	r, err := m.Fit()
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestSimpleRegression(t *testing.T) {

	cols := []dataset.Column{
		{Name: "y", Kind: dataset.Continuous, Values: []float64{1, 3, 2, 6}},
		{Name: "x", Kind: dataset.Continuous, Values: []float64{0, 1, 2, 3}},
	}
	r := fitModel(t, cols, formula.New("y", formula.Linear("x")))

	if !floats.EqualApprox(r.Params(), []float64{0.9, 1.4}, 1e-10) {
		t.Errorf("params: got %v", r.Params())
	}
	if !scalarClose(r.Scale(), 2.1, 1e-10) {
		t.Errorf("scale: got %f", r.Scale())
	}
	if !floats.EqualApprox(r.VCov(), []float64{1.47, -0.63, -0.63, 0.42}, 1e-10) {
		t.Errorf("vcov: got %v", r.VCov())
	}
	if !scalarClose(r.LogLike(), -5.773335, 1e-5) {
		t.Errorf("loglike: got %f", r.LogLike())
	}
	if r.ResidDF() != 2 || r.NumObs() != 4 {
		t.Errorf("dims: df=%f n=%d", r.ResidDF(), r.NumObs())
	}

	names := r.Names()
	if names[0] != "Intercept" || names[1] != "x" {
		t.Errorf("names: got %v", names)
	}

	tests := r.TermTests()
	if len(tests) != 1 {
		t.Fatalf("got %d tests", len(tests))
	}
	w := tests[0]
	if w.Label != "x" || w.Nonlinear {
		t.Errorf("test labeling: %+v", w)
	}
	if !scalarClose(w.Stat, 4.6666667, 1e-6) || w.DF1 != 1 || w.DF2 != 2 {
		t.Errorf("test stat: %+v", w)
	}
	if !scalarClose(w.P, 0.163340, 1e-5) {
		t.Errorf("test p: got %f", w.P)
	}
}

func TestCategoricalCovariate(t *testing.T) {

	cols := []dataset.Column{
		{Name: "y", Kind: dataset.Continuous, Values: []float64{1, 2, 3, 5}},
		{Name: "sex", Kind: dataset.Categorical, Values: []float64{0, 0, 1, 1}},
	}
	r := fitModel(t, cols, formula.New("y", formula.Linear("sex")))

	if !floats.EqualApprox(r.Params(), []float64{1.5, 2.5}, 1e-10) {
		t.Errorf("params: got %v", r.Params())
	}
	if !scalarClose(r.Scale(), 1.25, 1e-10) {
		t.Errorf("scale: got %f", r.Scale())
	}
	if !floats.EqualApprox(r.VCov(), []float64{0.625, -0.625, -0.625, 1.25}, 1e-10) {
		t.Errorf("vcov: got %v", r.VCov())
	}

	if r.Names()[1] != "sex=1" {
		t.Errorf("names: got %v", r.Names())
	}
	blocks := r.Blocks()
	if len(blocks) != 2 || !blocks[0].Nuisance() || blocks[1].Label != "sex" {
		t.Errorf("blocks: %+v", blocks)
	}
	if !floats.Equal(blocks[1].Levels, []float64{0, 1}) {
		t.Errorf("levels: %v", blocks[1].Levels)
	}

	w := r.TermTests()[0]
	if !scalarClose(w.Stat, 5, 1e-8) || !scalarClose(w.P, 0.154846, 1e-5) {
		t.Errorf("test: %+v", w)
	}
}

func TestSplineTerm(t *testing.T) {

	n := 12
	age := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		age[i] = float64(i + 1)
		y[i] = 0.5*age[i] + 0.05*age[i]*age[i]
		if i%2 == 0 {
			y[i] += 0.3
		} else {
			y[i] -= 0.3
		}
	}

	cols := []dataset.Column{
		{Name: "y", Kind: dataset.Continuous, Values: y},
		{Name: "age", Kind: dataset.Continuous, Values: age},
	}
	r := fitModel(t, cols, formula.New("y", formula.Spline("age", 3)))

	names := r.Names()
	if len(names) != 3 || names[1] != "age" || names[2] != "age'" {
		t.Errorf("names: got %v", names)
	}

	blocks := r.Blocks()
	if len(blocks) != 2 {
		t.Fatalf("blocks: %+v", blocks)
	}
	b := blocks[1]
	if b.Label != "age" || !b.Spline() || b.Start != 1 || b.Len != 2 || b.NonlinStart != 2 || b.NonlinLen != 1 {
		t.Errorf("spline block: %+v", b)
	}

	tests := r.TermTests()
	if len(tests) != 2 {
		t.Fatalf("got %d tests", len(tests))
	}
	if tests[0].Label != "age" || tests[0].Nonlinear || tests[0].DF1 != 2 {
		t.Errorf("joint test: %+v", tests[0])
	}
	if tests[1].Label != "age" || !tests[1].Nonlinear || tests[1].DF1 != 1 {
		t.Errorf("nonlinear test: %+v", tests[1])
	}

	// For a single column the F statistic is the squared t statistic.
	z := r.Params()[2] / r.StdErr()[2]
	if !scalarClose(tests[1].Stat, z*z, 1e-8) {
		t.Errorf("nonlinear F: got %f, want %f", tests[1].Stat, z*z)
	}
}

func TestSingularDesign(t *testing.T) {

	x := []float64{1, 2, 3, 4, 5, 6}
	cols := []dataset.Column{
		{Name: "y", Kind: dataset.Continuous, Values: []float64{3, 1, 4, 1, 5, 9}},
		{Name: "x", Kind: dataset.Continuous, Values: x},
		{Name: "z", Kind: dataset.Continuous, Values: x},
	}

	tab, err := dataset.NewTable(cols)
	if err != nil {
		t.Fatal(err)
	}
	fb, err := formula.NewBuilder(tab, formula.New("y", formula.Linear("x"), formula.Linear("z")))
	if err != nil {
		t.Fatal(err)
	}
	comp, err := tab.Complete()
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewOLS(comp, fb, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = m.Fit()
	var sde *model.SingularDesignError
	if !errors.As(err, &sde) {
		t.Fatalf("unexpected error: %v", err)
	}
	if sde.Col != "z" {
		t.Errorf("wrong column named: %s", sde.Col)
	}
}

func TestArgumentChecks(t *testing.T) {

	// Categorical outcome is rejected.
	cols := []dataset.Column{
		{Name: "y", Kind: dataset.Categorical, Values: []float64{0, 1, 0, 1}},
		{Name: "x", Kind: dataset.Continuous, Values: []float64{1, 2, 3, 4}},
	}
	tab, _ := dataset.NewTable(cols)
	fb, err := formula.NewBuilder(tab, formula.New("y", formula.Linear("x")))
	if err != nil {
		t.Fatal(err)
	}
	comp, _ := tab.Complete()
	if _, err := NewOLS(comp, fb, nil); err == nil {
		t.Error("categorical outcome accepted")
	}

	// Too few observations to identify the parameters.
	cols = []dataset.Column{
		{Name: "y", Kind: dataset.Continuous, Values: []float64{1, 2}},
		{Name: "x", Kind: dataset.Continuous, Values: []float64{1, 2}},
	}
	tab, _ = dataset.NewTable(cols)
	fb, err = formula.NewBuilder(tab, formula.New("y", formula.Linear("x")))
	if err != nil {
		t.Fatal(err)
	}
	comp, _ = tab.Complete()
	if _, err := NewOLS(comp, fb, nil); err == nil {
		t.Error("underdetermined fit accepted")
	}
}

func TestSummary(t *testing.T) {

	cols := []dataset.Column{
		{Name: "y", Kind: dataset.Continuous, Values: []float64{1, 3, 2, 6}},
		{Name: "x", Kind: dataset.Continuous, Values: []float64{0, 1, 2, 3}},
	}
	r := fitModel(t, cols, formula.New("y", formula.Linear("x")))

	txt := r.Summary().String()
	for _, frag := range []string{"Least squares", "Outcome variable: y", "Intercept", "x",
		"Coefficient", "1.4000"} {
		if !strings.Contains(txt, frag) {
			t.Errorf("summary missing %q:\n%s", frag, txt)
		}
	}
}
