package dataset

import (
	"fmt"
	"sort"

	"github.com/montanaflynn/stats"
)

// VarMissing reports the missingness of one variable.
type VarMissing struct {
	Name    string
	N       int
	Missing int
	Frac    float64
}

// MissingProfile reports the missing count and fraction for each of
// the named variables that has at least one missing cell.  Complete
// variables are omitted.  Rows are sorted by variable name.  A nil
// vars argument profiles every column.
func MissingProfile(t *Table, vars []string) ([]VarMissing, error) {

	if vars == nil {
		vars = t.Names()
	}

	var prof []VarMissing
	for _, name := range vars {
		c, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("dataset: no variable named '%s'", name)
		}
		m := c.CountMissing()
		if m == 0 {
			continue
		}
		prof = append(prof, VarMissing{
			Name:    name,
			N:       t.nobs - m,
			Missing: m,
			Frac:    float64(m) / float64(t.nobs),
		})
	}

	sort.Slice(prof, func(i, j int) bool { return prof[i].Name < prof[j].Name })

	return prof, nil
}

// Summary holds descriptive statistics for the observed values of one
// variable.  SD is the sample standard deviation.
type Summary struct {
	Name    string
	N       int
	Missing int
	Mean    float64
	SD      float64
	Min     float64
	Q1      float64
	Median  float64
	Q3      float64
	Max     float64
}

// Describe computes per-variable summaries of the observed values, in
// the order given.  A nil vars argument describes every column.
func Describe(t *Table, vars []string) ([]Summary, error) {

	if vars == nil {
		vars = t.Names()
	}

	var sums []Summary
	for _, name := range vars {
		c, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("dataset: no variable named '%s'", name)
		}
		s, err := describeColumn(c, t.nobs)
		if err != nil {
			return nil, err
		}
		sums = append(sums, s)
	}

	return sums, nil
}

func describeColumn(c *Column, nobs int) (Summary, error) {

	obs := c.Observed()
	s := Summary{Name: c.Name, N: len(obs), Missing: nobs - len(obs)}

	if len(obs) == 0 {
		return s, fmt.Errorf("dataset: variable '%s' has no observed values", c.Name)
	}

	if len(obs) == 1 {
		v := obs[0]
		s.Mean, s.Min, s.Q1, s.Median, s.Q3, s.Max = v, v, v, v, v, v
		return s, nil
	}

	var err error

	s.Mean, err = stats.Mean(obs)
	if err != nil {
		return s, fmt.Errorf("dataset: describing '%s': %w", c.Name, err)
	}

	s.SD, err = stats.StandardDeviationSample(obs)
	if err != nil {
		return s, fmt.Errorf("dataset: describing '%s': %w", c.Name, err)
	}

	s.Min, err = stats.Min(obs)
	if err != nil {
		return s, fmt.Errorf("dataset: describing '%s': %w", c.Name, err)
	}

	s.Max, err = stats.Max(obs)
	if err != nil {
		return s, fmt.Errorf("dataset: describing '%s': %w", c.Name, err)
	}

	s.Median, err = stats.Median(obs)
	if err != nil {
		return s, fmt.Errorf("dataset: describing '%s': %w", c.Name, err)
	}

	quart, err := stats.Quartile(obs)
	if err != nil {
		return s, fmt.Errorf("dataset: describing '%s': %w", c.Name, err)
	}
	s.Q1 = quart.Q1
	s.Q3 = quart.Q3

	return s, nil
}
