package model

import (
	"errors"
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/floats"
)

func scalarClose(x, y, eps float64) bool {
	return math.Abs(x-y) < eps
}

func TestCheckRank(t *testing.T) {

	x1 := []float64{1, 0, 0, 1}
	x2 := []float64{0, 1, 0, 1}
	x3 := []float64{0, 0, 1, 0}

	if err := CheckRank([][]float64{x1, x2, x3}, []string{"x1", "x2", "x3"}); err != nil {
		t.Errorf("full rank design rejected: %v", err)
	}

	// x4 is the sum of x1 and x2.
	x4 := []float64{1, 1, 0, 2}
	err := CheckRank([][]float64{x1, x2, x4}, []string{"x1", "x2", "x4"})
	if err == nil {
		t.Fatal("collinear design accepted")
	}
	var sde *SingularDesignError
	if !errors.As(err, &sde) {
		t.Fatalf("unexpected error type: %v", err)
	}
	if sde.Col != "x4" {
		t.Errorf("wrong column named: got %s, want x4", sde.Col)
	}

	// A zero column is degenerate on its own.
	z := []float64{0, 0, 0, 0}
	err = CheckRank([][]float64{x1, z}, []string{"x1", "z"})
	if !errors.As(err, &sde) || sde.Col != "z" {
		t.Errorf("zero column not flagged: %v", err)
	}

	// An exact duplicate is flagged at its second occurrence.
	err = CheckRank([][]float64{x1, x1}, []string{"a", "b"})
	if !errors.As(err, &sde) || sde.Col != "b" {
		t.Errorf("duplicate column not flagged: %v", err)
	}
}

func TestWaldStat(t *testing.T) {

	params := []float64{9, 1, 2}
	vcov := []float64{
		5, 0.1, 0.2,
		0.1, 2, 0,
		0.2, 0, 2,
	}

	stat, err := WaldStat(params, vcov, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !scalarClose(stat, 2.5, 1e-10) {
		t.Errorf("got %f, want 2.5", stat)
	}

	// Non-diagonal block.
	vcov = []float64{
		5, 0.1, 0.2,
		0.1, 2, 1,
		0.2, 1, 2,
	}
	stat, err = WaldStat(params, vcov, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !scalarClose(stat, 2, 1e-10) {
		t.Errorf("got %f, want 2", stat)
	}

	// A singular block is reported.
	vcov = []float64{
		5, 0, 0,
		0, 1, 1,
		0, 1, 1,
	}
	if _, err := WaldStat(params, vcov, 1, 2); err == nil {
		t.Error("singular covariance block accepted")
	}
}

func TestShiftBlocks(t *testing.T) {

	blocks := []Block{
		{Label: "age", Kind: Covariate, Start: 0, Len: 2, NonlinStart: 1, NonlinLen: 1},
		{Label: "sex", Kind: Covariate, Start: 2, Len: 1, Levels: []float64{0, 1}},
	}

	sb := ShiftBlocks(blocks, 3)

	if sb[0].Start != 3 || sb[0].NonlinStart != 4 {
		t.Errorf("spline block not shifted: %+v", sb[0])
	}
	if sb[1].Start != 5 || sb[1].NonlinStart != 0 {
		t.Errorf("plain block not shifted: %+v", sb[1])
	}

	// The original is untouched.
	if blocks[0].Start != 0 {
		t.Error("input blocks modified")
	}
}

func TestBlockPredicates(t *testing.T) {

	b := Block{Label: "sofa", Kind: Covariate, Start: 1, Len: 1}
	if b.Nuisance() || b.Spline() || b.Categorical() {
		t.Errorf("plain covariate misclassified: %+v", b)
	}

	b = Block{Label: "age", Kind: Covariate, Start: 1, Len: 2, NonlinStart: 2, NonlinLen: 1}
	if !b.Spline() {
		t.Error("spline block not recognized")
	}

	b = Block{Label: "y", Kind: Threshold, Start: 0, Len: 2, Levels: []float64{0, 1, 2}}
	if !b.Nuisance() || !b.Categorical() {
		t.Error("threshold block misclassified")
	}
}

func TestBaseResults(t *testing.T) {

	names := []string{"Intercept", "x"}
	params := []float64{1, -2}
	vcov := []float64{
		4, 0,
		0, 1,
	}
	blocks := []Block{
		{Label: "Intercept", Kind: Intercept, Start: 0, Len: 1},
		{Label: "x", Kind: Covariate, Start: 1, Len: 1},
	}

	r := NewBaseResults(Linear, names, params, vcov, -12.5, 10, 8, blocks, nil)

	if r.Family() != Linear || r.NumObs() != 10 || r.NumParams() != 2 {
		t.Error("dimension accessors wrong")
	}
	if r.ResidDF() != 8 || r.LogLike() != -12.5 {
		t.Error("scalar accessors wrong")
	}

	se := r.StdErr()
	if !floats.EqualApprox(se, []float64{2, 1}, 1e-10) {
		t.Errorf("stderr: got %v", se)
	}

	z := r.ZScores()
	if !floats.EqualApprox(z, []float64{0.5, -2}, 1e-10) {
		t.Errorf("zscores: got %v", z)
	}

	p := r.PValues()
	if !floats.EqualApprox(p, []float64{0.617075, 0.045500}, 1e-5) {
		t.Errorf("pvalues: got %v", p)
	}
}

func TestSummaryTable(t *testing.T) {

	s := &SummaryTable{
		Title:    "Test summary",
		Top:      []string{"Sample size: 4"},
		ColNames: []string{"Variable", "Estimate"},
		ColFmt:   []Fmter{StringFmt, NumberFmt},
		Cols: []interface{}{
			[]string{"age", "sofa"},
			[]float64{1.5, -0.25},
		},
		Msg: []string{"2 parameters"},
	}

	txt := s.String()

	for _, frag := range []string{"Test summary", "Sample size: 4", "Variable", "Estimate",
		"age", "1.5000", "-0.2500", "2 parameters"} {
		if !strings.Contains(txt, frag) {
			t.Errorf("summary missing %q:\n%s", frag, txt)
		}
	}
}
