package dataprep

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/seqtune/internal/errors"
)

var nan = math.NaN()

func column(m *mat.Dense, j int) []float64 {
	return mat.Col(nil, j, m)
}

func TestImputeSimpleMethods(t *testing.T) {
	data := mat.NewDense(5, 1, []float64{nan, 1, nan, 5, nan})

	tests := []struct {
		method   ImputeMethod
		opts     ImputeOptions
		expected []float64
	}{
		{ImputeFFill, ImputeOptions{}, []float64{nan, 1, 1, 5, 5}},
		{ImputeBFill, ImputeOptions{}, []float64{1, 1, 5, 5, nan}},
		{ImputeMean, ImputeOptions{}, []float64{3, 1, 3, 5, 3}},
		{ImputeMedian, ImputeOptions{}, []float64{3, 1, 3, 5, 3}},
		{ImputeConstant, ImputeOptions{Constant: -1}, []float64{-1, 1, -1, 5, -1}},
		{ImputeInterpolate, ImputeOptions{}, []float64{1, 1, 3, 5, 5}},
	}

	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			out, err := Impute(data, tt.method, tt.opts)
			require.NoError(t, err)

			got := column(out, 0)
			for i, want := range tt.expected {
				if math.IsNaN(want) {
					assert.True(t, math.IsNaN(got[i]), "row %d", i)
					continue
				}
				assert.InDelta(t, want, got[i], 1e-12, "row %d", i)
			}
		})
	}

	assert.True(t, math.IsNaN(data.At(0, 0)), "input must not be mutated")
}

func TestImputeKNN(t *testing.T) {
	data := mat.NewDense(4, 2, []float64{
		0, 10,
		1, 11,
		10, 100,
		0.5, nan,
	})

	out, err := Impute(data, ImputeKNN, ImputeOptions{Neighbors: 2})
	require.NoError(t, err)
	assert.InDelta(t, 10.5, out.At(3, 1), 1e-12)
}

func TestImputeKNNScalesPartialDistances(t *testing.T) {
	// Row 1 shares a single column with row 0 and is closer on it, but
	// weighted by the columns it misses it is farther than row 2.
	data := mat.NewDense(3, 4, []float64{
		0, 0, 0, nan,
		1, nan, nan, 10,
		0.8, 0.8, 0.8, 20,
	})

	out, err := Impute(data, ImputeKNN, ImputeOptions{Neighbors: 1, Columns: []int{3}})
	require.NoError(t, err)
	assert.InDelta(t, 20, out.At(0, 3), 1e-12)
}

func TestImputeColumnsSubset(t *testing.T) {
	data := mat.NewDense(2, 2, []float64{nan, nan, 1, 2})

	out, err := Impute(data, ImputeBFill, ImputeOptions{Columns: []int{1}})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(out.At(0, 0)))
	assert.Equal(t, 2.0, out.At(0, 1))

	_, err = Impute(data, ImputeBFill, ImputeOptions{Columns: []int{2}})
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
}

func TestImputeUnknownMethod(t *testing.T) {
	_, err := Impute(mat.NewDense(1, 1, nil), "spline", ImputeOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
}

func TestMissingMask(t *testing.T) {
	mask := MissingMask(mat.NewDense(1, 3, []float64{1, nan, 2}))
	assert.Equal(t, [][]bool{{false, true, false}}, mask)
}
