package ordinal

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

func buildModel(t *testing.T, cols []dataset.Column, f formula.Formula, cfg *Config) *Model {

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
	md, err := NewModel(comp, fb, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return md
}

// data1 is a two level outcome with a binary exposure; the group
// fractions are 1/3 and 2/3, so the maximum likelihood estimates have
// closed forms.
func data1() []dataset.Column {

	var y, x []float64
	for i := 0; i < 30; i++ {
		x = append(x, 0)
		if i < 10 {
			y = append(y, 1)
		} else {
			y = append(y, 0)
		}
	}
	for i := 0; i < 30; i++ {
		x = append(x, 1)
		if i < 20 {
			y = append(y, 1)
		} else {
			y = append(y, 0)
		}
	}

	return []dataset.Column{
		{Name: "del", Kind: dataset.Categorical, Values: y},
		{Name: "exp", Kind: dataset.Categorical, Values: x},
	}
}

// data2 is a three level outcome whose group frequencies satisfy the
// proportional odds structure exactly: the cumulative fractions are
// (2/3, 1/3) at exposure 0 and (8/9, 2/3) at exposure 1.
func data2() []dataset.Column {

	var y, x []float64

	add := func(xv, yv float64, n int) {
		for i := 0; i < n; i++ {
			x = append(x, xv)
			y = append(y, yv)
		}
	}

	add(0, 0, 10)
	add(0, 1, 10)
	add(0, 2, 10)
	add(1, 0, 3)
	add(1, 1, 6)
	add(1, 2, 18)

	return []dataset.Column{
		{Name: "gds", Kind: dataset.Categorical, Values: y},
		{Name: "del", Kind: dataset.Categorical, Values: x},
	}
}

func TestBinaryFit(t *testing.T) {

	md := buildModel(t, data1(), formula.New("del", formula.Linear("exp")), nil)

	if md.NumParams() != 2 || md.NumObs() != 60 {
		t.Fatalf("dims: p=%d n=%d", md.NumParams(), md.NumObs())
	}

	r, err := md.Fit()
	if err != nil {
		t.Fatal(err)
	}

	ln2 := math.Log(2)
	if !floats.EqualApprox(r.Params(), []float64{-ln2, 2 * ln2}, 1e-4) {
		t.Errorf("params: got %v", r.Params())
	}
	if !floats.EqualApprox(r.VCov(), []float64{0.15, -0.15, -0.15, 0.3}, 1e-3) {
		t.Errorf("vcov: got %v", r.VCov())
	}
	if !scalarClose(r.LogLike(), -38.190850, 1e-4) {
		t.Errorf("loglike: got %f", r.LogLike())
	}

	names := r.Names()
	if names[0] != "del>=1" || names[1] != "exp=1" {
		t.Errorf("names: got %v", names)
	}

	tests := r.TermTests()
	if len(tests) != 1 {
		t.Fatalf("got %d tests", len(tests))
	}
	w := tests[0]
	if w.Label != "exp" || w.DF1 != 1 || w.DF2 != 0 {
		t.Errorf("test labeling: %+v", w)
	}
	if !scalarClose(w.Stat, 6.40604, 1e-2) {
		t.Errorf("test stat: got %f", w.Stat)
	}
	if !scalarClose(w.P, 0.011374, 1e-3) {
		t.Errorf("test p: got %f", w.P)
	}
}

func TestThreeLevelFit(t *testing.T) {

	md := buildModel(t, data2(), formula.New("gds", formula.Linear("del")), nil)

	r, err := md.Fit()
	if err != nil {
		t.Fatal(err)
	}

	ln2 := math.Log(2)
	want := []float64{ln2, -ln2, 2 * ln2}
	if !floats.EqualApprox(r.Params(), want, 1e-4) {
		t.Errorf("params: got %v, want %v", r.Params(), want)
	}
	if !scalarClose(r.LogLike(), -55.872879, 1e-4) {
		t.Errorf("loglike: got %f", r.LogLike())
	}

	names := r.Names()
	if len(names) != 3 || names[0] != "gds>=1" || names[1] != "gds>=2" || names[2] != "del=1" {
		t.Errorf("names: got %v", names)
	}

	// The thresholds are monotone decreasing.
	if r.Params()[0] <= r.Params()[1] {
		t.Errorf("thresholds out of order: %v", r.Params()[:2])
	}

	blocks := r.Blocks()
	if len(blocks) != 2 {
		t.Fatalf("blocks: %+v", blocks)
	}
	if blocks[0].Kind != model.Threshold || blocks[0].Label != "gds" || blocks[0].Len != 2 {
		t.Errorf("threshold block: %+v", blocks[0])
	}
	if blocks[1].Kind != model.Covariate || blocks[1].Start != 2 {
		t.Errorf("covariate block: %+v", blocks[1])
	}
}

func TestStartValues(t *testing.T) {

	md := buildModel(t, data2(), formula.New("gds", formula.Linear("del")), nil)

	start := md.startValues()
	if len(start) != 3 {
		t.Fatalf("start: %v", start)
	}

	// Thresholds start at the marginal cumulative logits; 44 of 57
	// outcomes are at level 1 or higher, 28 at level 2.
	if !scalarClose(start[0], math.Log(44.0/13.0), 1e-10) {
		t.Errorf("start[0]: got %f", start[0])
	}
	if !scalarClose(start[1], math.Log(28.0/29.0), 1e-10) {
		t.Errorf("start[1]: got %f", start[1])
	}
	if start[0] <= start[1] {
		t.Error("starting thresholds not decreasing")
	}
	if start[2] != 0 {
		t.Error("slope start not zero")
	}
}

func TestLogLikeAtKnownPoint(t *testing.T) {

	md := buildModel(t, data1(), formula.New("del", formula.Linear("exp")), nil)

	// At the closed form optimum the group probabilities are 1/3 and
	// 2/3.
	ln2 := math.Log(2)
	ll := md.LogLike(&OrdParams{coeff: []float64{-ln2, 2 * ln2}}, true)
	want := 40*math.Log(2) - 60*math.Log(3)
	if !scalarClose(ll, want, 1e-10) {
		t.Errorf("loglike: got %f, want %f", ll, want)
	}

	// The score vanishes there.
	score := make([]float64, 2)
	md.Score(&OrdParams{coeff: []float64{-ln2, 2 * ln2}}, score)
	if !floats.EqualApprox(score, []float64{0, 0}, 1e-10) {
		t.Errorf("score at optimum: %v", score)
	}
}

func TestRankDeficient(t *testing.T) {

	cols := data1()
	// A copy of the exposure under another name is collinear.
	dup := dataset.Column{Name: "exp2", Kind: dataset.Categorical, Values: cols[1].Values}
	cols = append(cols, dup)

	md := buildModel(t, cols, formula.New("del", formula.Linear("exp"), formula.Linear("exp2")), nil)

	_, err := md.Fit()
	var sde *model.SingularDesignError
	if !errors.As(err, &sde) {
		t.Fatalf("unexpected error: %v", err)
	}
	if sde.Col != "exp2=1" {
		t.Errorf("wrong column named: %s", sde.Col)
	}
}

func TestContinuousOutcomeRejected(t *testing.T) {

	cols := []dataset.Column{
		{Name: "y", Kind: dataset.Continuous, Values: []float64{1, 2, 3, 4}},
		{Name: "x", Kind: dataset.Continuous, Values: []float64{0, 1, 0, 1}},
	}

	tab, err := dataset.NewTable(cols)
	if err != nil {
		t.Fatal(err)
	}
	fb, err := formula.NewBuilder(tab, formula.New("y", formula.Linear("x")))
	if err != nil {
		t.Fatal(err)
	}
	comp, err := tab.Complete()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewModel(comp, fb, nil); err == nil {
		t.Error("continuous outcome accepted")
	}
}

func TestSummary(t *testing.T) {

	md := buildModel(t, data2(), formula.New("gds", formula.Linear("del")), nil)
	r, err := md.Fit()
	if err != nil {
		t.Fatal(err)
	}

	txt := r.Summary().String()
	for _, frag := range []string{"Cumulative link", "Outcome variable: gds",
		"gds>=1", "gds>=2", "del=1", "OR"} {
		if !strings.Contains(txt, frag) {
			t.Errorf("summary missing %q:\n%s", frag, txt)
		}
	}
}
