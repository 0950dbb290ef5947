package dataprep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/seqtune/internal/errors"
)

// sequentialColumns builds a rows x cols table whose column k holds
// k*rows, k*rows+1, ... k*rows+rows-1.
func sequentialColumns(rows, cols int) *mat.Dense {
	d := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			d.Set(r, c, float64(c*rows+r))
		}
	}
	return d
}

func TestMakeWindowsContent(t *testing.T) {
	data := sequentialColumns(50, 5)

	w, err := MakeWindows(data, WindowConfig{
		NumOutputs:         Count(2),
		LookbackSteps:      4,
		InputStepSize:      2,
		ForecastStepOffset: 2,
		ForecastLength:     4,
	})
	require.NoError(t, err)

	expectedX := mat.NewDense(4, 3, []float64{
		0, 50, 100,
		2, 52, 102,
		4, 54, 104,
		6, 56, 106,
	})
	expectedY := mat.NewDense(2, 4, []float64{
		158, 159, 160, 161,
		208, 209, 210, 211,
	})
	assert.True(t, mat.Equal(expectedX, w.X.Example(0)), "X[0] = %v", mat.Formatted(w.X.Example(0)))
	assert.True(t, mat.Equal(expectedY, w.Y.Example(0)), "Y[0] = %v", mat.Formatted(w.Y.Example(0)))

	expectedPrev := mat.NewDense(3, 2, []float64{
		150, 200,
		152, 202,
		154, 204,
	})
	assert.True(t, mat.Equal(expectedPrev, w.PrevY.Example(0)))
	assert.Equal(t, 38, w.Len())
}

func TestMakeWindowsShapes(t *testing.T) {
	tests := []struct {
		name             string
		rows, features   int
		outputs          int
		lookback, stride int
		offset, length   int
	}{
		{"single step", 20, 3, 1, 1, 1, 0, 1},
		{"strided", 40, 4, 2, 5, 2, 1, 3},
		{"long horizon", 30, 2, 1, 3, 1, 4, 6},
		{"all inputs", 15, 3, 0, 2, 3, 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := MakeWindows(sequentialColumns(tt.rows, tt.features), WindowConfig{
				NumOutputs:         Count(tt.outputs),
				LookbackSteps:      tt.lookback,
				InputStepSize:      tt.stride,
				ForecastStepOffset: tt.offset,
				ForecastLength:     tt.length,
			})
			require.NoError(t, err)

			examples := tt.rows - tt.lookback*tt.stride + 1 - tt.offset - tt.length + 1
			assert.Equal(t, [3]int{examples, tt.lookback, tt.features - tt.outputs}, w.X.Shape())
			assert.Equal(t, [3]int{examples, tt.lookback - 1, tt.outputs}, w.PrevY.Shape())
			assert.Equal(t, [3]int{examples, tt.outputs, tt.length}, w.Y.Shape())
		})
	}
}

func TestMakeWindowsInfersCounts(t *testing.T) {
	data := sequentialColumns(10, 4)

	byInputs, err := MakeWindows(data, WindowConfig{NumInputs: Count(3), LookbackSteps: 2})
	require.NoError(t, err)
	byOutputs, err := MakeWindows(data, WindowConfig{NumOutputs: Count(1), LookbackSteps: 2})
	require.NoError(t, err)

	assert.Equal(t, byInputs.X.Shape(), byOutputs.X.Shape())
	assert.Equal(t, byInputs.Y.Data, byOutputs.Y.Data)
}

func TestMakeWindowsBoundary(t *testing.T) {
	cfg := WindowConfig{
		NumOutputs:         Count(1),
		LookbackSteps:      3,
		InputStepSize:      2,
		ForecastStepOffset: 1,
		ForecastLength:     2,
	}

	t.Run("one row", func(t *testing.T) {
		_, err := MakeWindows(sequentialColumns(1, 3), cfg)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInsufficientData))
	})

	t.Run("minimum rows", func(t *testing.T) {
		w, err := MakeWindows(sequentialColumns(cfg.MinRows(), 3), cfg)
		require.NoError(t, err)
		assert.Equal(t, 1, w.Len())
	})

	t.Run("one short of minimum", func(t *testing.T) {
		_, err := MakeWindows(sequentialColumns(cfg.MinRows()-1, 3), cfg)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInsufficientData))
	})
}

func TestMakeWindowsConfigurationErrors(t *testing.T) {
	data := sequentialColumns(10, 3)

	tests := []struct {
		name string
		cfg  WindowConfig
	}{
		{"no counts", WindowConfig{LookbackSteps: 2}},
		{"mismatch", WindowConfig{NumInputs: Count(1), NumOutputs: Count(1), LookbackSteps: 2}},
		{"too many outputs", WindowConfig{NumOutputs: Count(4), LookbackSteps: 2}},
		{"zero lookback", WindowConfig{NumOutputs: Count(1)}},
		{"negative offset", WindowConfig{NumOutputs: Count(1), LookbackSteps: 2, ForecastStepOffset: -1}},
		{"negative stride", WindowConfig{NumOutputs: Count(1), LookbackSteps: 2, InputStepSize: -2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MakeWindows(data, tt.cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrConfiguration), "got %v", err)
		})
	}
}

func TestWindowsStayInsideData(t *testing.T) {
	data := sequentialColumns(25, 2)
	w, err := MakeWindows(data, WindowConfig{
		NumOutputs:         Count(1),
		LookbackSteps:      4,
		InputStepSize:      3,
		ForecastStepOffset: 2,
		ForecastLength:     3,
	})
	require.NoError(t, err)

	// Column 1 holds 25..49, so every target must fall in that range.
	for _, v := range w.Y.Data {
		assert.GreaterOrEqual(t, v, 25.0)
		assert.LessOrEqual(t, v, 49.0)
	}
	last := w.Len() - 1
	assert.Less(t, w.Y.At(last, 0, 2), 50.0)
}

func TestBatchNested(t *testing.T) {
	w, err := MakeWindows(sequentialColumns(4, 2), WindowConfig{NumOutputs: Count(1), LookbackSteps: 1})
	require.NoError(t, err)

	nested := w.X.Nested()
	require.Len(t, nested, w.Len())
	assert.Equal(t, [][]float64{{1}}, nested[1])
	assert.Nil(t, w.PrevY.Example(0))
}
