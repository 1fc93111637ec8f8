// Package ordinal fits cumulative link logistic regression models for
// ordered categorical outcomes by maximum likelihood.  With outcome
// levels l_0 < ... < l_{J-1} and design row x, the model is
//
//	P(Y >= l_j | x) = expit(alpha_j + x'beta),  j = 1..J-1
//
// so positive coefficients shift probability toward higher levels and
// exp(beta) is an odds ratio.  The J-1 threshold parameters alpha are
// structural: they are reported separately from the covariate effects
// and absorb the role of an intercept.
package ordinal

import (
	"fmt"
	"log"
	"math"
	"os"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/jenniferthompson/DelDepLTCI/dataset"
	"github.com/jenniferthompson/DelDepLTCI/formula"
	"github.com/jenniferthompson/DelDepLTCI/model"
)

// Config defines configuration parameters for a cumulative link model
// fit.
type Config struct {

	// OptMethod is the optimization method used to maximize the
	// log-likelihood.
	OptMethod optimize.Method

	// OptSettings configures the optimization.
	OptSettings *optimize.Settings

	// Start contains starting values for the parameters.  If nil,
	// thresholds start at the marginal cumulative logits and slopes
	// at zero.
	Start []float64

	// Log receives progress messages when not nil.
	Log *log.Logger
}

// DefaultConfig returns the default configuration for a cumulative
// link model fit.
func DefaultConfig() *Config {
	return &Config{
		OptMethod: &optimize.BFGS{
			Linesearcher: &optimize.MoreThuente{},
		},
	}
}

// Model describes a cumulative link logistic regression of an ordered
// categorical outcome on a design expanded by a formula builder.
type Model struct {

	// Outcome variable, coded as category indexes into levels
	yname  string
	ycat   []int
	levels []float64

	// Design matrix columns, not including the thresholds
	xnames []string
	xdata  [][]float64

	// Full parameter names, thresholds first
	names  []string
	blocks []model.Block
	nobs   int

	start    []float64
	method   optimize.Method
	settings *optimize.Settings
	log      *log.Logger

	// Slices of length nobs are recycled here.
	nslice [][]float64
}

// OrdParams contains a parameter value for a cumulative link model,
// the thresholds followed by the slopes.
type OrdParams struct {
	coeff []float64
}

// GetCoeff returns the combined parameter vector.
func (p *OrdParams) GetCoeff() []float64 {
	return p.coeff
}

// SetCoeff sets the combined parameter vector.
func (p *OrdParams) SetCoeff(coeff []float64) {
	p.coeff = coeff
}

// Clone returns a deep copy of the parameter value.
func (p *OrdParams) Clone() model.Parameter {
	coeff := make([]float64, len(p.coeff))
	copy(coeff, p.coeff)
	return &OrdParams{coeff: coeff}
}

// NewModel builds a cumulative link model from one completed dataset,
// using the builder's frozen design encodings and outcome levels.
func NewModel(c *dataset.Completed, fb *formula.Builder, config *Config) (*Model, error) {

	if config == nil {
		config = DefaultConfig()
	}

	levels := fb.OutcomeLevels()
	if levels == nil {
		return nil, fmt.Errorf("ordinal: outcome '%s' is continuous, use the linear family", fb.Outcome())
	}

	ypos := c.Pos(fb.Outcome())
	if ypos < 0 {
		return nil, fmt.Errorf("ordinal: outcome '%s' not in the completed dataset", fb.Outcome())
	}

	y := c.Data()[ypos]
	ycat := make([]int, len(y))
	for i, v := range y {
		k := levelIndex(levels, v)
		if k < 0 {
			return nil, fmt.Errorf("ordinal: outcome value %v at row %d is not an observed level", v, i)
		}
		ycat[i] = k
	}

	design, err := fb.Build(c)
	if err != nil {
		return nil, err
	}

	nthresh := len(levels) - 1
	names := make([]string, 0, nthresh+len(design.ColNames))
	for _, lv := range levels[1:] {
		names = append(names, fmt.Sprintf("%s>=%s", fb.Outcome(), formula.FormatLevel(lv)))
	}
	names = append(names, design.ColNames...)

	blocks := append([]model.Block{{Label: fb.Outcome(), Kind: model.Threshold,
		Start: 0, Len: nthresh, Levels: levels}},
		model.ShiftBlocks(design.Blocks, nthresh)...)

	if design.NumObs <= nthresh+len(design.Cols) {
		return nil, fmt.Errorf("ordinal: %d observations cannot identify %d parameters",
			design.NumObs, nthresh+len(design.Cols))
	}

	return &Model{
		yname:    fb.Outcome(),
		ycat:     ycat,
		levels:   levels,
		xnames:   design.ColNames,
		xdata:    design.Cols,
		names:    names,
		blocks:   blocks,
		nobs:     design.NumObs,
		start:    config.Start,
		method:   config.OptMethod,
		settings: config.OptSettings,
		log:      config.Log,
	}, nil
}

func levelIndex(levels []float64, v float64) int {
	for j, lv := range levels {
		if v == lv {
			return j
		}
	}
	return -1
}

// NumObs returns the number of observations.
func (m *Model) NumObs() int {
	return m.nobs
}

// NumParams returns the number of model parameters, thresholds
// included.
func (m *Model) NumParams() int {
	return m.nthresh() + len(m.xdata)
}

// Names returns the parameter names, thresholds first.
func (m *Model) Names() []string {
	return m.names
}

func (m *Model) nthresh() int {
	return len(m.levels) - 1
}

func (m *Model) getNslice() []float64 {
	if len(m.nslice) == 0 {
		return make([]float64, m.nobs)
	}
	v := m.nslice[len(m.nslice)-1]
	m.nslice = m.nslice[:len(m.nslice)-1]
	return v
}

func (m *Model) putNslice(v []float64) {
	m.nslice = append(m.nslice, v)
}

// linpred fills lp with the covariate part x'beta of the linear
// predictor, leaving the thresholds out.
func (m *Model) linpred(coeff []float64, lp []float64) {
	zero(lp)
	nt := m.nthresh()
	for j, xda := range m.xdata {
		b := coeff[nt+j]
		for i := range xda {
			lp[i] += b * xda[i]
		}
	}
}

// catProb returns the probability of category c given the covariate
// linear predictor lp.
func (m *Model) catProb(coeff []float64, lp float64, c int) float64 {
	nt := m.nthresh()
	switch {
	case c == 0:
		return 1 - expit(coeff[0]+lp)
	case c == nt:
		return expit(coeff[nt-1] + lp)
	default:
		return expit(coeff[c-1]+lp) - expit(coeff[c]+lp)
	}
}

// activeThresh identifies the thresholds whose linear predictors enter
// the probability of category c, with their signs.  At most two
// thresholds are active for any category.
func (m *Model) activeThresh(c int) (apos [2]int, asgn [2]float64, na int) {
	nt := m.nthresh()
	switch {
	case c == 0:
		apos[0], asgn[0], na = 0, -1, 1
	case c == nt:
		apos[0], asgn[0], na = nt-1, 1, 1
	default:
		apos[0], asgn[0] = c-1, 1
		apos[1], asgn[1] = c, -1
		na = 2
	}
	return apos, asgn, na
}

// LogLike returns the log-likelihood at the given parameter value.
// The exact flag is ignored, the log-likelihood is always exact.
func (m *Model) LogLike(param model.Parameter, exact bool) float64 {

	coeff := param.GetCoeff()
	lp := m.getNslice()
	m.linpred(coeff, lp)

	var ll float64
	for i, c := range m.ycat {
		ll += math.Log(m.catProb(coeff, lp[i], c))
	}

	m.putNslice(lp)
	return ll
}

// Score computes the score vector at the given parameter value.
func (m *Model) Score(param model.Parameter, score []float64) {

	coeff := param.GetCoeff()
	zero(score)

	lp := m.getNslice()
	m.linpred(coeff, lp)
	nt := m.nthresh()

	for i, c := range m.ycat {

		apos, asgn, na := m.activeThresh(c)
		pr := m.catProb(coeff, lp[i], c)

		var usum float64
		for a := 0; a < na; a++ {
			e := expit(coeff[apos[a]] + lp[i])
			u := asgn[a] * e * (1 - e) / pr
			score[apos[a]] += u
			usum += u
		}

		for j, xda := range m.xdata {
			score[nt+j] += usum * xda[i]
		}
	}

	m.putNslice(lp)
}

// Hessian computes the Hessian matrix of the log-likelihood at the
// given parameter value.  The Hessian type parameter is not used here,
// the observed Hessian is always returned.
func (m *Model) Hessian(param model.Parameter, ht model.HessType, hess []float64) {

	coeff := param.GetCoeff()
	zero(hess)

	lp := m.getNslice()
	m.linpred(coeff, lp)
	nt := m.nthresh()
	np := m.NumParams()

	for i, c := range m.ycat {

		apos, asgn, na := m.activeThresh(c)
		pr := m.catProb(coeff, lp[i], c)

		var us, vs [2]float64
		var usum, vsum float64
		for a := 0; a < na; a++ {
			e := expit(coeff[apos[a]] + lp[i])
			gp := e * (1 - e)
			us[a] = asgn[a] * gp / pr
			vs[a] = asgn[a] * gp * (1 - 2*e) / pr
			usum += us[a]
			vsum += vs[a]
		}

		// Threshold by threshold entries.
		for a := 0; a < na; a++ {
			pa := apos[a]
			hess[pa*np+pa] += vs[a] - us[a]*us[a]
			for b := a + 1; b < na; b++ {
				pb := apos[b]
				w := -us[a] * us[b]
				hess[pa*np+pb] += w
				hess[pb*np+pa] += w
			}
		}

		// Threshold by slope entries.
		for a := 0; a < na; a++ {
			pa := apos[a]
			w := vs[a] - us[a]*usum
			for j, xda := range m.xdata {
				hess[pa*np+nt+j] += w * xda[i]
				hess[(nt+j)*np+pa] += w * xda[i]
			}
		}

		// Slope by slope entries.
		w := vsum - usum*usum
		for j1, xda := range m.xdata {
			for j2 := 0; j2 <= j1; j2++ {
				xdb := m.xdata[j2]
				u := w * xda[i] * xdb[i]
				hess[(nt+j1)*np+nt+j2] += u
				if j2 != j1 {
					hess[(nt+j2)*np+nt+j1] += u
				}
			}
		}
	}

	m.putNslice(lp)
}

// startValues returns monotone threshold starting values from the
// marginal cumulative frequencies, with all slopes starting at zero.
func (m *Model) startValues() []float64 {

	nt := m.nthresh()
	start := make([]float64, m.NumParams())

	cnt := make([]float64, nt+1)
	for _, c := range m.ycat {
		cnt[c]++
	}

	n := float64(m.nobs)
	tail := n
	for j := 1; j <= nt; j++ {
		tail -= cnt[j-1]
		p := tail / n
		// Guard against empty boundary categories.
		p = math.Min(math.Max(p, 1/(n+1)), n/(n+1))
		start[j-1] = math.Log(p / (1 - p))
	}

	return start
}

// checkRank verifies that the design has full column rank.  A constant
// column is included in the scan since the thresholds absorb any
// constant.
func (m *Model) checkRank() error {

	icept := make([]float64, m.nobs)
	for i := range icept {
		icept[i] = 1
	}

	cols := append([][]float64{icept}, m.xdata...)
	names := append([]string{"(constant)"}, m.xnames...)

	return model.CheckRank(cols, names)
}

// failMessage prints diagnostic information after a failed
// optimization.
func (m *Model) failMessage(optrslt *optimize.Result) {

	emit := func(format string, args ...interface{}) {
		if m.log != nil {
			m.log.Printf(format, args...)
		} else {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}

	emit("ordinal: optimization failed")
	emit("Outcome: %s with %d levels", m.yname, len(m.levels))
	emit("Current point and gradient:")

	score := make([]float64, m.NumParams())
	m.Score(&OrdParams{coeff: optrslt.X}, score)
	for i, name := range m.names {
		emit("%16.8f %16.8f %s", optrslt.X[i], score[i], name)
	}
}

// Results describes a fitted cumulative link model.
type Results struct {
	model.BaseResults
}

// Fit estimates the model parameters by maximum likelihood.
func (m *Model) Fit() (*Results, error) {

	if err := m.checkRank(); err != nil {
		return nil, err
	}

	start := m.start
	if start == nil {
		start = m.startValues()
	}

	p := optimize.Problem{
		Func: func(x []float64) float64 {
			return -m.LogLike(&OrdParams{coeff: x}, false)
		},
		Grad: func(grad, x []float64) {
			m.Score(&OrdParams{coeff: x}, grad)
			negative(grad)
		},
	}

	settings := m.settings
	if settings == nil {
		settings = &optimize.Settings{
			GradientThreshold: 1e-5,
		}
	}

	optrslt, err := optimize.Minimize(p, start, settings, m.method)
	if err != nil {
		if optrslt != nil {
			m.failMessage(optrslt)
		}
		return nil, err
	}
	if err = optrslt.Status.Err(); err != nil {
		return nil, err
	}

	params := make([]float64, len(optrslt.X))
	copy(params, optrslt.X)
	ll := -optrslt.F

	vcov, err := model.GetVcov(m, &OrdParams{coeff: params})
	if err != nil {
		return nil, fmt.Errorf("ordinal: cannot invert the information matrix: %w", err)
	}

	tests, err := m.waldTests(params, vcov)
	if err != nil {
		return nil, err
	}

	if m.log != nil {
		m.log.Printf("ordinal fit of %s complete: n=%d p=%d loglike=%f",
			m.yname, m.nobs, m.NumParams(), ll)
	}

	return &Results{
		BaseResults: model.NewBaseResults(model.Ordinal, m.names, params, vcov,
			ll, m.nobs, float64(m.nobs-m.NumParams()), m.blocks, tests),
	}, nil
}

// waldTests computes the joint chi-squared test for every covariate
// term and, for spline terms, the sub-test restricted to the nonlinear
// columns.
func (m *Model) waldTests(params, vcov []float64) ([]model.WaldTest, error) {

	var tests []model.WaldTest

	ctest := func(label string, nonlin bool, start, length int) error {
		stat, err := model.WaldStat(params, vcov, start, length)
		if err != nil {
			return fmt.Errorf("ordinal: term '%s': %w", label, err)
		}
		q := float64(length)
		cdist := distuv.ChiSquared{K: q}
		tests = append(tests, model.WaldTest{
			Label:     label,
			Nonlinear: nonlin,
			Stat:      stat,
			DF1:       q,
			P:         cdist.Survival(stat),
		})
		return nil
	}

	for _, b := range m.blocks {
		if b.Nuisance() {
			continue
		}
		if err := ctest(b.Label, false, b.Start, b.Len); err != nil {
			return nil, err
		}
		if b.Spline() {
			if err := ctest(b.Label, true, b.NonlinStart, b.NonlinLen); err != nil {
				return nil, err
			}
		}
	}

	return tests, nil
}

// OrdinalSummary summarizes a fitted cumulative link model.
type OrdinalSummary struct {
	results *Results
}

// Summary displays a summary table of the model results.
func (rslt *Results) Summary() *OrdinalSummary {
	return &OrdinalSummary{results: rslt}
}

// String returns a string representation of the summary table.  Odds
// ratios and their limits apply to the covariate effects; for the
// threshold parameters they are shown for completeness only.
func (s *OrdinalSummary) String() string {

	r := s.results
	se := r.StdErr()
	params := r.Params()

	or := make([]float64, len(params))
	lcb := make([]float64, len(params))
	ucb := make([]float64, len(params))
	for i := range params {
		or[i] = math.Exp(params[i])
		lcb[i] = math.Exp(params[i] - 2*se[i])
		ucb[i] = math.Exp(params[i] + 2*se[i])
	}

	var yname string
	for _, b := range r.Blocks() {
		if b.Kind == model.Threshold {
			yname = b.Label
		}
	}

	sum := &model.SummaryTable{
		Title: "Cumulative link ordinal regression analysis",
		Top: []string{
			fmt.Sprintf("Outcome variable: %s", yname),
			fmt.Sprintf("Sample size:      %d", r.NumObs()),
			fmt.Sprintf("Log-likelihood:   %.4f", r.LogLike()),
		},
		ColNames: []string{"Variable", "Coefficient", "SE", "OR", "LCB", "UCB", "P-value"},
		ColFmt: []model.Fmter{model.StringFmt, model.NumberFmt, model.NumberFmt,
			model.NumberFmt, model.NumberFmt, model.NumberFmt, model.NumberFmt},
		Cols: []interface{}{
			r.Names(), params, se, or, lcb, ucb, r.PValues(),
		},
	}

	return sum.String()
}

func expit(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func zero(x []float64) {
	for i := range x {
		x[i] = 0
	}
}

func negative(x []float64) {
	for i := range x {
		x[i] = -x[i]
	}
}
