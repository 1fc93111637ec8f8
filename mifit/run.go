// Package mifit drives the full analysis pipeline for an incomplete
// data table: generate completed replicates by chained equation
// imputation, fit the outcome model on every replicate, and pool the
// replicate fits into one inference.
//
// Replicates are imputed and fit concurrently.  The imputation streams
// are fixed by the seed, so a run is reproducible regardless of how
// the replicates are scheduled.
package mifit

import (
	"context"
	"fmt"
	"log"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/jenniferthompson/DelDepLTCI/dataset"
	"github.com/jenniferthompson/DelDepLTCI/formula"
	"github.com/jenniferthompson/DelDepLTCI/impute"
	"github.com/jenniferthompson/DelDepLTCI/linreg"
	"github.com/jenniferthompson/DelDepLTCI/model"
	"github.com/jenniferthompson/DelDepLTCI/ordinal"
	"github.com/jenniferthompson/DelDepLTCI/pool"
)

// Config defines configuration parameters for an analysis run.
type Config struct {

	// Family selects the outcome model.
	Family model.Family

	// M is the number of completed replicates.  Zero means 5.
	M int

	// Iterations is the number of sweeps of the chained imputation
	// loop per replicate.  Zero means 3.
	Iterations int

	// MatchK is the number of nearest donors an imputed cell draws
	// from.  Zero means 3.
	MatchK int

	// SplineKnots is the knot count for spline expansions in the
	// conditional imputation models.  Zero means 3.
	SplineKnots int

	// Linear lists continuous variables entered strictly linearly in
	// the conditional imputation models.
	Linear []string

	// Seed fixes the imputation random streams.
	Seed uint64

	// MaxParallel bounds the number of replicates processed at once.
	// Zero or negative means the number of available CPUs.
	MaxParallel int

	// Log receives progress messages when not nil.
	Log *log.Logger
}

// DefaultConfig returns the default analysis configuration for the
// given outcome family.
func DefaultConfig(family model.Family) *Config {
	return &Config{
		Family:      family,
		M:           5,
		Iterations:  3,
		MatchK:      3,
		SplineKnots: 3,
	}
}

// Analysis is the output of one run: the pooled inference, the builder
// holding the frozen design encodings, and the per-replicate fits.
type Analysis struct {
	Pooled  *pool.Result
	Builder *formula.Builder
	Fits    []model.Resultser
}

// Run imputes, fits, and pools.  The formula's design encodings are
// frozen from the table before imputation, so every replicate is
// expanded identically.  Cancelling the context abandons unfinished
// replicates and returns the context's error.
func Run(ctx context.Context, t *dataset.Table, f formula.Formula, config *Config) (*Analysis, error) {

	if config == nil {
		return nil, fmt.Errorf("mifit: nil configuration")
	}

	fb, err := formula.NewBuilder(t, f)
	if err != nil {
		return nil, err
	}
	if err := checkFamily(config.Family, fb); err != nil {
		return nil, err
	}

	imp, err := impute.New(t, &impute.Config{
		M:           config.M,
		Iterations:  config.Iterations,
		MatchK:      config.MatchK,
		SplineKnots: config.SplineKnots,
		Linear:      config.Linear,
		Seed:        config.Seed,
		Log:         config.Log,
	})
	if err != nil {
		return nil, err
	}

	m := imp.M()
	fits := make([]model.Resultser, m)

	limit := config.MaxParallel
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for r := 0; r < m; r++ {
		r := r
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			c, err := imp.Impute(r)
			if err != nil {
				return err
			}

			if err := gctx.Err(); err != nil {
				return err
			}

			rslt, err := fitOne(c, fb, config.Family, config.Log)
			if err != nil {
				return fmt.Errorf("mifit: replicate %d: %w", r, err)
			}
			fits[r] = rslt

			if config.Log != nil {
				config.Log.Printf("mifit: replicate %d fit complete", r)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	pooled, err := pool.Combine(fits)
	if err != nil {
		return nil, err
	}

	if config.Log != nil {
		config.Log.Printf("mifit: pooled %d replicates for outcome %s", m, fb.Outcome())
	}

	return &Analysis{Pooled: pooled, Builder: fb, Fits: fits}, nil
}

// FitComplete fits the outcome model directly on a table with no
// missing cells, for complete data analyses and comparisons against
// the pooled fit.
func FitComplete(t *dataset.Table, f formula.Formula, family model.Family, logger *log.Logger) (model.Resultser, *formula.Builder, error) {

	fb, err := formula.NewBuilder(t, f)
	if err != nil {
		return nil, nil, err
	}
	if err := checkFamily(family, fb); err != nil {
		return nil, nil, err
	}

	c, err := t.Complete()
	if err != nil {
		return nil, nil, err
	}

	rslt, err := fitOne(c, fb, family, logger)
	if err != nil {
		return nil, nil, err
	}

	return rslt, fb, nil
}

// checkFamily verifies the outcome kind against the requested family
// before any replicate work starts.
func checkFamily(family model.Family, fb *formula.Builder) error {
	switch family {
	case model.Linear:
		if fb.OutcomeKind() != dataset.Continuous {
			return fmt.Errorf("mifit: the linear family needs a continuous outcome, '%s' is categorical", fb.Outcome())
		}
	case model.Ordinal:
		if fb.OutcomeKind() != dataset.Categorical {
			return fmt.Errorf("mifit: the ordinal family needs a categorical outcome, '%s' is continuous", fb.Outcome())
		}
	default:
		return fmt.Errorf("mifit: unknown family %v", family)
	}
	return nil
}

// fitOne fits the configured outcome model on one completed replicate.
func fitOne(c *dataset.Completed, fb *formula.Builder, family model.Family, logger *log.Logger) (model.Resultser, error) {

	switch family {
	case model.Linear:
		m, err := linreg.NewOLS(c, fb, &linreg.Config{Log: logger})
		if err != nil {
			return nil, err
		}
		return m.Fit()
	case model.Ordinal:
		m, err := ordinal.NewModel(c, fb, &ordinal.Config{Log: logger})
		if err != nil {
			return nil, err
		}
		return m.Fit()
	}

	return nil, fmt.Errorf("mifit: unknown family %v", family)
}
