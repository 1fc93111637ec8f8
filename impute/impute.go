// Package impute generates multiple completed copies of a data table
// by chained equation regression imputation with predictive mean
// matching.
//
// Each variable with missing cells is regressed on all other
// variables, with continuous predictors expanded through restricted
// cubic spline bases and categorical predictors through indicator
// contrasts.  A missing cell is replaced by the observed value of a
// donor whose model prediction is among the closest to the cell's own
// prediction, so imputed values always come from the variable's
// observed support.  Replicates draw from independent random streams
// and are fully reproducible from the seed.
package impute

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/jenniferthompson/DelDepLTCI/dataset"
	"github.com/jenniferthompson/DelDepLTCI/model"
	"github.com/jenniferthompson/DelDepLTCI/spline"
)

// streamStride separates the per-replicate random streams within one
// seed.
const streamStride uint64 = 0x9e3779b97f4a7c15

// Config defines configuration parameters for an imputer.
type Config struct {

	// M is the number of completed replicates.  Zero means 5.
	M int

	// Iterations is the number of sweeps of the chained update loop
	// per replicate.  Zero means 3.
	Iterations int

	// MatchK is the number of nearest donors a missing cell draws
	// from.  Zero means 3.
	MatchK int

	// SplineKnots is the knot count used to expand continuous
	// predictors in the conditional models.  Zero means 3.
	SplineKnots int

	// Linear lists continuous variables entered strictly linearly in
	// the conditional models.  Variables without enough distinct
	// values to place knots must be listed here.
	Linear []string

	// Seed fixes the random streams.
	Seed uint64

	// Log receives progress messages when not nil.
	Log *log.Logger
}

// DefaultConfig returns the default imputer configuration.
func DefaultConfig() *Config {
	return &Config{
		M:           5,
		Iterations:  3,
		MatchK:      3,
		SplineKnots: 3,
	}
}

// ModelFitError indicates that a conditional imputation model could
// not be fit.  Var names the target variable; Predictor names the
// offending design column when rank deficiency is the cause.
type ModelFitError struct {
	Var       string
	Predictor string
	Replicate int
	Iteration int
	Err       error
}

func (e *ModelFitError) Error() string {
	if e.Predictor != "" {
		return fmt.Sprintf("impute: conditional model for '%s' is rank deficient at column '%s' (replicate %d, iteration %d)",
			e.Var, e.Predictor, e.Replicate, e.Iteration)
	}
	return fmt.Sprintf("impute: conditional model for '%s' failed (replicate %d, iteration %d): %v",
		e.Var, e.Replicate, e.Iteration, e.Err)
}

func (e *ModelFitError) Unwrap() error {
	return e.Err
}

// encoding is the frozen design expansion of one predictor.
type encoding struct {
	basis  *spline.Basis
	levels []float64
}

// Imputer generates completed replicates of one incomplete table.  The
// conditional model structure (target order, donor pools, predictor
// encodings) is frozen at construction; an Imputer is immutable
// afterward, so distinct replicates may be generated concurrently.
type Imputer struct {
	names    []string
	kinds    []dataset.Kind
	values   [][]float64
	missing  [][]bool
	nmissing []int
	targets  []int
	donors   [][]float64
	enc      []encoding
	nobs     int

	m      int
	iter   int
	matchk int
	knots  int
	seed   uint64
	logger *log.Logger
}

// New builds an imputer for the table, freezing the conditional model
// structure from the observed data.
func New(t *dataset.Table, config *Config) (*Imputer, error) {

	if config == nil {
		config = DefaultConfig()
	}

	im := &Imputer{
		nobs:   t.NumObs(),
		m:      config.M,
		iter:   config.Iterations,
		matchk: config.MatchK,
		knots:  config.SplineKnots,
		seed:   config.Seed,
		logger: config.Log,
	}
	if im.m == 0 {
		im.m = 5
	}
	if im.iter == 0 {
		im.iter = 3
	}
	if im.matchk == 0 {
		im.matchk = 3
	}
	if im.knots == 0 {
		im.knots = 3
	}
	if im.m < 0 || im.iter < 0 || im.matchk < 0 {
		return nil, fmt.Errorf("impute: negative configuration value")
	}
	if im.knots < 3 {
		return nil, fmt.Errorf("impute: a spline needs at least 3 knots, got %d", im.knots)
	}

	exempt := make(map[string]bool)
	for _, name := range config.Linear {
		exempt[name] = true
	}

	cols := t.Columns()
	nvar := len(cols)
	im.names = make([]string, nvar)
	im.kinds = make([]dataset.Kind, nvar)
	im.values = make([][]float64, nvar)
	im.missing = make([][]bool, nvar)
	im.nmissing = make([]int, nvar)
	im.donors = make([][]float64, nvar)
	im.enc = make([]encoding, nvar)

	for j := range cols {
		c := &cols[j]
		im.names[j] = c.Name
		im.kinds[j] = c.Kind
		im.values[j] = c.Values
		im.missing[j] = c.Missing
		im.nmissing[j] = c.CountMissing()

		obs := c.Observed()
		if len(obs) == 0 {
			return nil, fmt.Errorf("impute: variable '%s' has no observed values", c.Name)
		}
		if im.nmissing[j] > 0 {
			im.donors[j] = obs
			im.targets = append(im.targets, j)
		}

		if c.Kind == dataset.Categorical {
			im.enc[j].levels = distinctSorted(obs)
			continue
		}
		if exempt[c.Name] {
			continue
		}
		basis, err := spline.New(c.Name, obs, im.knots)
		if err != nil {
			var ive *spline.InsufficientVariabilityError
			if errors.As(err, &ive) {
				return nil, fmt.Errorf("impute: %w (list '%s' in Linear to include it without a spline)",
					err, c.Name)
			}
			return nil, err
		}
		im.enc[j].basis = basis
	}

	// Targets are visited in order of ascending missingness, ties
	// keep table order.
	sort.SliceStable(im.targets, func(a, b int) bool {
		return im.nmissing[im.targets[a]] < im.nmissing[im.targets[b]]
	})

	return im, nil
}

func distinctSorted(x []float64) []float64 {
	s := make([]float64, len(x))
	copy(s, x)
	sort.Float64s(s)
	var lv []float64
	for i, v := range s {
		if i == 0 || v != s[i-1] {
			lv = append(lv, v)
		}
	}
	return lv
}

// M returns the number of replicates the imputer is configured for.
func (im *Imputer) M() int {
	return im.m
}

// Targets returns the names of the variables with missing cells, in
// update order.
func (im *Imputer) Targets() []string {
	names := make([]string, len(im.targets))
	for i, j := range im.targets {
		names[i] = im.names[j]
	}
	return names
}

// Impute generates completed replicate r.  Replicates are mutually
// independent and any subset may be generated concurrently.
func (im *Imputer) Impute(r int) (*dataset.Completed, error) {

	if r < 0 || r >= im.m {
		return nil, fmt.Errorf("impute: replicate %d out of range [0, %d)", r, im.m)
	}

	rng := rand.New(rand.NewSource(im.seed + streamStride*uint64(r+1)))

	// Working copy of every column.
	work := make([][]float64, len(im.values))
	for j, v := range im.values {
		w := make([]float64, len(v))
		copy(w, v)
		work[j] = w
	}

	// Initialize missing cells with marginal draws from the observed
	// values.
	for _, j := range im.targets {
		donors := im.donors[j]
		for i, miss := range im.missing[j] {
			if miss {
				work[j][i] = donors[rng.Intn(len(donors))]
			}
		}
	}

	for iter := 0; iter < im.iter; iter++ {
		for _, j := range im.targets {
			if err := im.updateTarget(work, j, r, iter, rng); err != nil {
				return nil, err
			}
		}
		if im.logger != nil {
			im.logger.Printf("impute: replicate %d sweep %d complete", r, iter+1)
		}
	}

	names := make([]string, len(im.names))
	copy(names, im.names)
	kinds := make([]dataset.Kind, len(im.kinds))
	copy(kinds, im.kinds)

	return dataset.NewCompleted(names, kinds, work), nil
}

// updateTarget refits the conditional model for target column j on the
// rows with observed values and redraws the missing cells by
// predictive mean matching.
func (im *Imputer) updateTarget(work [][]float64, j, rep, iter int, rng *rand.Rand) error {

	xcols, xnames := im.predictorMatrix(work, j)

	var obsrows []int
	for i, miss := range im.missing[j] {
		if !miss {
			obsrows = append(obsrows, i)
		}
	}

	// Restrict the design to the observed rows for fitting.
	sub := make([][]float64, len(xcols))
	for k, c := range xcols {
		s := make([]float64, len(obsrows))
		for q, i := range obsrows {
			s[q] = c[i]
		}
		sub[k] = s
	}

	if err := model.CheckRank(sub, xnames); err != nil {
		var sde *model.SingularDesignError
		if errors.As(err, &sde) {
			return &ModelFitError{Var: im.names[j], Predictor: sde.Col,
				Replicate: rep, Iteration: iter, Err: err}
		}
		return err
	}

	yobs := make([]float64, len(obsrows))
	for q, i := range obsrows {
		yobs[q] = work[j][i]
	}

	coeff, err := leastSquares(sub, yobs)
	if err != nil {
		return &ModelFitError{Var: im.names[j], Replicate: rep, Iteration: iter, Err: err}
	}

	// Predictions for every row from the current working state.
	yhat := make([]float64, im.nobs)
	for k, c := range xcols {
		b := coeff[k]
		for i := range c {
			yhat[i] += b * c[i]
		}
	}

	im.matchDraw(work[j], j, yhat, obsrows, rng)
	return nil
}

// predictorMatrix expands all columns other than the target into a
// design matrix over every row, using the frozen encodings and the
// current working values.
func (im *Imputer) predictorMatrix(work [][]float64, target int) ([][]float64, []string) {

	icept := make([]float64, im.nobs)
	for i := range icept {
		icept[i] = 1
	}
	cols := [][]float64{icept}
	names := []string{"(intercept)"}

	for j := range work {
		if j == target {
			continue
		}

		switch e := im.enc[j]; {
		case e.basis != nil:
			cols = append(cols, e.basis.Expand(work[j])...)
			names = append(names, e.basis.ColNames()...)

		case len(e.levels) >= 2:
			for _, lv := range e.levels[1:] {
				col := make([]float64, im.nobs)
				for i, v := range work[j] {
					if v == lv {
						col[i] = 1
					}
				}
				cols = append(cols, col)
				names = append(names, im.names[j]+"="+strconv.FormatFloat(lv, 'g', -1, 64))
			}

		case len(e.levels) == 1:
			// A single observed level carries no information.

		default:
			c := make([]float64, im.nobs)
			copy(c, work[j])
			cols = append(cols, c)
			names = append(names, im.names[j])
		}
	}

	return cols, names
}

// leastSquares solves the normal equations for the given design
// columns and response.
func leastSquares(xcols [][]float64, y []float64) ([]float64, error) {

	nvar := len(xcols)
	xty := make([]float64, nvar)
	xtx := make([]float64, nvar*nvar)

	for j1, xa := range xcols {
		xty[j1] = floats.Dot(xa, y)
		for j2 := 0; j2 <= j1; j2++ {
			v := floats.Dot(xa, xcols[j2])
			xtx[j1*nvar+j2] = v
			xtx[j2*nvar+j1] = v
		}
	}

	var sol mat.VecDense
	if err := sol.SolveVec(mat.NewDense(nvar, nvar, xtx), mat.NewVecDense(nvar, xty)); err != nil {
		return nil, err
	}

	coeff := make([]float64, nvar)
	copy(coeff, sol.RawVector().Data)
	return coeff, nil
}

// matchDraw replaces the missing cells of target column j with donor
// values drawn uniformly from the MatchK observed rows whose
// predictions are nearest the cell's prediction.  Ties in distance
// prefer the donor with the smaller prediction, so the draw is
// deterministic given the stream.
func (im *Imputer) matchDraw(col []float64, j int, yhat []float64, obsrows []int, rng *rand.Rand) {

	// Donors ordered by predicted value, ties keep row order.
	ord := make([]int, len(obsrows))
	copy(ord, obsrows)
	sort.SliceStable(ord, func(a, b int) bool { return yhat[ord[a]] < yhat[ord[b]] })

	k := im.matchk
	if k > len(ord) {
		k = len(ord)
	}

	cand := make([]int, 0, k)

	for i, miss := range im.missing[j] {
		if !miss {
			continue
		}

		// The first donor with a prediction at or above the target's.
		hi := sort.Search(len(ord), func(q int) bool { return yhat[ord[q]] >= yhat[i] })
		lo := hi - 1

		cand = cand[:0]
		for len(cand) < k {
			switch {
			case lo < 0:
				cand = append(cand, ord[hi])
				hi++
			case hi >= len(ord):
				cand = append(cand, ord[lo])
				lo--
			case yhat[i]-yhat[ord[lo]] <= yhat[ord[hi]]-yhat[i]:
				cand = append(cand, ord[lo])
				lo--
			default:
				cand = append(cand, ord[hi])
				hi++
			}
		}

		col[i] = col[cand[rng.Intn(k)]]
	}
}
