package dataset

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func data1(t *testing.T) *Table {

	tab, err := NewTable([]Column{
		{Name: "age", Kind: Continuous, Values: []float64{61, 54, 70, 48, 66}},
		{Name: "sofa", Kind: Continuous, Values: []float64{4, 9, 2, 11, 6},
			Missing: []bool{false, true, false, false, false}},
		{Name: "del", Kind: Categorical, Values: []float64{0, 1, 1, 0, 1},
			Missing: []bool{true, false, false, false, true}},
	})
	require.NoError(t, err)
	return tab
}

func TestNewTableValidation(t *testing.T) {

	_, err := NewTable(nil)
	assert.Error(t, err)

	_, err = NewTable([]Column{
		{Name: "", Values: []float64{1}},
	})
	assert.Error(t, err)

	_, err = NewTable([]Column{
		{Name: "x", Values: []float64{1, 2}},
		{Name: "x", Values: []float64{3, 4}},
	})
	assert.Error(t, err)

	_, err = NewTable([]Column{
		{Name: "x", Values: []float64{1, 2}},
		{Name: "y", Values: []float64{3}},
	})
	assert.Error(t, err)

	_, err = NewTable([]Column{
		{Name: "x", Values: []float64{1, 2}, Missing: []bool{true}},
	})
	assert.Error(t, err)
}

func TestTableAccessors(t *testing.T) {

	tab := data1(t)

	assert.Equal(t, 5, tab.NumObs())
	assert.Equal(t, []string{"age", "sofa", "del"}, tab.Names())
	assert.True(t, tab.HasMissing())

	c, ok := tab.Column("sofa")
	require.True(t, ok)
	assert.Equal(t, 1, c.CountMissing())
	assert.Equal(t, []float64{4, 2, 11, 6}, c.Observed())

	// The value under a missing cell is normalized to NaN.
	assert.True(t, math.IsNaN(c.Values[1]))

	_, ok = tab.Column("nope")
	assert.False(t, ok)

	// A complete column has a nil mask and full Observed.
	c, ok = tab.Column("age")
	require.True(t, ok)
	assert.Nil(t, c.Missing)
	assert.Equal(t, []float64{61, 54, 70, 48, 66}, c.Observed())
}

func TestTableCopiesInput(t *testing.T) {

	vals := []float64{1, 2, 3}
	tab, err := NewTable([]Column{{Name: "x", Values: vals}})
	require.NoError(t, err)

	vals[0] = 99
	c, _ := tab.Column("x")
	assert.Equal(t, 1.0, c.Values[0])
}

func TestComplete(t *testing.T) {

	tab := data1(t)
	_, err := tab.Complete()
	assert.Error(t, err)

	full, err := NewTable([]Column{
		{Name: "age", Kind: Continuous, Values: []float64{61, 54, 70}},
		{Name: "del", Kind: Categorical, Values: []float64{0, 1, 1}},
	})
	require.NoError(t, err)

	comp, err := full.Complete()
	require.NoError(t, err)
	assert.Equal(t, 3, comp.NumObs())
	assert.Equal(t, []string{"age", "del"}, comp.Names())
	assert.Equal(t, 1, comp.Pos("del"))
	assert.Equal(t, -1, comp.Pos("nope"))
	assert.Equal(t, Categorical, comp.Kind(1))
	assert.Equal(t, []float64{61, 54, 70}, comp.Data()[0])
}

func TestMissingProfile(t *testing.T) {

	tab := data1(t)

	prof, err := MissingProfile(tab, nil)
	require.NoError(t, err)

	// Complete variables are dropped and rows are sorted by name.
	require.Len(t, prof, 2)
	assert.Equal(t, "del", prof[0].Name)
	assert.Equal(t, 2, prof[0].Missing)
	assert.Equal(t, 3, prof[0].N)
	assert.InDelta(t, 0.4, prof[0].Frac, 1e-12)
	assert.Equal(t, "sofa", prof[1].Name)
	assert.InDelta(t, 0.2, prof[1].Frac, 1e-12)

	prof, err = MissingProfile(tab, []string{"age"})
	require.NoError(t, err)
	assert.Empty(t, prof)

	_, err = MissingProfile(tab, []string{"nope"})
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {

	tab, err := NewTable([]Column{
		{Name: "x", Kind: Continuous, Values: []float64{5, 1, 4, 2, 3, 0},
			Missing: []bool{false, false, false, false, false, true}},
	})
	require.NoError(t, err)

	sums, err := Describe(tab, nil)
	require.NoError(t, err)
	require.Len(t, sums, 1)

	s := sums[0]
	assert.Equal(t, 5, s.N)
	assert.Equal(t, 1, s.Missing)
	assert.InDelta(t, 3.0, s.Mean, 1e-12)
	assert.InDelta(t, 1.5811388, s.SD, 1e-6)
	assert.InDelta(t, 1.0, s.Min, 1e-12)
	assert.InDelta(t, 1.5, s.Q1, 1e-12)
	assert.InDelta(t, 3.0, s.Median, 1e-12)
	assert.InDelta(t, 4.5, s.Q3, 1e-12)
	assert.InDelta(t, 5.0, s.Max, 1e-12)

	_, err = Describe(tab, []string{"nope"})
	assert.Error(t, err)
}
