package kernels

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/seqtune/internal/errors"
)

func TestKernelValues(t *testing.T) {
	tests := []struct {
		name     string
		kernel   Kernel
		x1, x2   []float64
		expected float64
	}{
		{"rbf same point", NewRBFKernel(1, 1), []float64{1, 2}, []float64{1, 2}, 1},
		{"rbf unit distance", NewRBFKernel(1, 1), []float64{0, 0}, []float64{1, 1}, math.Exp(-1)},
		{"rbf length scale", NewRBFKernel(2, 1), []float64{0, 0}, []float64{2, 2}, math.Exp(-1)},
		{"rbf signal variance", NewRBFKernel(1, 3), []float64{0}, []float64{0}, 3},
		{"matern32 same point", NewMatern32Kernel(1, 1), []float64{0.5}, []float64{0.5}, 1},
		{"matern32 unit distance", NewMatern32Kernel(1, 1), []float64{0}, []float64{1},
			(1 + math.Sqrt(3)) * math.Exp(-math.Sqrt(3))},
		{"matern52 same point", NewMatern52Kernel(1, 1), []float64{1, 2}, []float64{1, 2}, 1},
		{"matern52 diagonal", NewMatern52Kernel(1, 1), []float64{0, 0}, []float64{1, 1},
			(1.0 + math.Sqrt(5)*math.Sqrt(2) + (5.0/3.0)*2) * math.Exp(-math.Sqrt(5)*math.Sqrt(2))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, tt.kernel.Eval(tt.x1, tt.x2), 1e-10)
			assert.InDelta(t, tt.kernel.Eval(tt.x1, tt.x2), tt.kernel.Eval(tt.x2, tt.x1), 1e-12, "kernel must be symmetric")
		})
	}
}

func TestKernelHyperparameters(t *testing.T) {
	tests := []struct {
		name     string
		kernel   Kernel
		params   []float64
		errorMsg string
	}{
		{"rbf valid", NewRBFKernel(1, 1), []float64{2, 3}, ""},
		{"rbf wrong count", NewRBFKernel(1, 1), []float64{1}, "expected 2 hyperparameters, got 1"},
		{"rbf negative", NewRBFKernel(1, 1), []float64{-1, 1}, "hyperparameters must be positive, got [-1 1]"},
		{"matern52 valid", NewMatern52Kernel(1, 1), []float64{2, 3}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.kernel.SetHyperparameters(tt.params)
			if tt.errorMsg != "" {
				require.EqualError(t, err, tt.errorMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.params, tt.kernel.Hyperparameters())
		})
	}
}

func TestNewKernel(t *testing.T) {
	for _, name := range []string{RBF, Matern32, Matern52, ""} {
		k, err := NewKernel(name, 1, 1)
		require.NoError(t, err)
		if name != "" {
			assert.Equal(t, name, k.Name())
		} else {
			assert.Equal(t, Matern52, k.Name())
		}
	}

	_, err := NewKernel("periodic", 1, 1)
	assert.True(t, errors.Is(err, errors.ErrDependencyVersion))

	_, err = NewKernel(RBF, 0, 1)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
}

func TestConstructorPanicsOnInvalidHyperparameters(t *testing.T) {
	assert.Panics(t, func() { NewRBFKernel(0, 1) })
	assert.Panics(t, func() { NewMatern52Kernel(1, -1) })
}
