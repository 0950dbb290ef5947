package bayesian

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/seqtune/internal/errors"
	"github.com/copyleftdev/seqtune/internal/optimization/kernels"
)

func TestGPInterpolatesTrainingPoints(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		0, 0,
		1, 0,
		0, 1,
		1, 1,
	})
	y := mat.NewVecDense(4, []float64{0.5, -0.25, 2, 1})

	for _, name := range []string{kernels.RBF, kernels.Matern32, kernels.Matern52} {
		t.Run(name, func(t *testing.T) {
			k, err := kernels.NewKernel(name, 0.8, 1)
			require.NoError(t, err)
			gp := NewGP(k, 1e-8)
			require.NoError(t, gp.Fit(X, y))

			mean, variance, err := gp.Predict(X)
			require.NoError(t, err)
			for i := 0; i < 4; i++ {
				assert.InDelta(t, y.AtVec(i), mean.AtVec(i), 1e-3)
				assert.InDelta(t, 0, variance.AtVec(i), 1e-3)
			}
		})
	}
}

func TestGPNoiseSmoothsObservations(t *testing.T) {
	X := mat.NewDense(5, 1, []float64{-2, -1, 0, 1, 2})
	y := mat.NewVecDense(5, []float64{0.2, -0.1, 0.15, -0.2, 0.1})

	gp := NewGP(kernels.NewRBFKernel(1.0, 1.0), 0.5)
	require.NoError(t, gp.Fit(X, y))

	mean, variance, err := gp.Predict(X)
	require.NoError(t, err)

	// Fitted deviations from the target mean are strictly smaller than the
	// observed ones.
	yMean := mat.Sum(y) / 5
	var fitted, observed float64
	for i := 0; i < 5; i++ {
		fitted += math.Pow(mean.AtVec(i)-yMean, 2)
		observed += math.Pow(y.AtVec(i)-yMean, 2)
		assert.Greater(t, variance.AtVec(i), 0.0)
	}
	assert.Less(t, fitted, observed)
}

func TestGPQuadratic(t *testing.T) {
	X := mat.NewDense(7, 1, []float64{-3, -2, -1, 0, 1, 2, 3})
	ys := make([]float64, 7)
	for i := range ys {
		x := X.At(i, 0)
		ys[i] = x * x
	}
	gp := NewGP(kernels.NewMatern52Kernel(1.5, 1.0), 1e-6)
	require.NoError(t, gp.Fit(X, mat.NewVecDense(7, ys)))

	query := mat.NewDense(4, 1, []float64{-2.5, -0.5, 0.5, 2.5})
	mean, variance, err := gp.Predict(query)
	require.NoError(t, err)
	require.Equal(t, 4, mean.Len())
	require.Equal(t, 4, variance.Len())
	for i := 0; i < 4; i++ {
		x := query.At(i, 0)
		assert.InDelta(t, x*x, mean.AtVec(i), 0.6)
	}
}

func TestGPErrors(t *testing.T) {
	gp := NewGP(kernels.NewRBFKernel(1.0, 1.0), 1e-6)

	tests := []struct {
		name string
		x    *mat.Dense
		y    *mat.VecDense
	}{
		{"nil inputs", nil, nil},
		{"empty inputs", &mat.Dense{}, &mat.VecDense{}},
		{"length mismatch", mat.NewDense(3, 1, []float64{1, 2, 3}), mat.NewVecDense(2, []float64{1, 2})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gp.Fit(tt.x, tt.y)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrConfiguration), "got %v", err)
		})
	}

	_, _, err := gp.Predict(mat.NewDense(1, 1, []float64{0}))
	assert.True(t, errors.Is(err, errors.ErrConfiguration), "predict before fit")
}

func TestGPDuplicateInputs(t *testing.T) {
	// Identical rows make the kernel matrix singular without jitter.
	X := mat.NewDense(4, 2, []float64{
		0.3, 0.7,
		0.3, 0.7,
		0.3, 0.7,
		0.9, 0.1,
	})
	y := mat.NewVecDense(4, []float64{1, 1.05, 0.95, 3})

	gp := NewGP(kernels.NewRBFKernel(0.5, 1.0), 0)
	require.NoError(t, gp.Fit(X, y))

	mean, variance, err := gp.Predict(mat.NewDense(1, 2, []float64{0.3, 0.7}))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, mean.AtVec(0), 0.1)
	assert.GreaterOrEqual(t, variance.AtVec(0), 0.0)
}

func TestGPRecoversTargetScale(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	y := mat.NewVecDense(4, []float64{1000, 1010, 1020, 1030})

	gp := NewGP(kernels.NewMatern52Kernel(1.0, 1.0), 1e-8)
	require.NoError(t, gp.Fit(X, y))

	mean, variance, err := gp.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		assert.InDelta(t, y.AtVec(i), mean.AtVec(i), 1e-3)
		assert.GreaterOrEqual(t, variance.AtVec(i), 0.0)
	}

	far, farVar, err := gp.Predict(mat.NewDense(1, 1, []float64{50}))
	require.NoError(t, err)
	assert.InDelta(t, 1015, far.AtVec(0), 1, "far from data the prediction reverts to the target mean")
	assert.Greater(t, farVar.AtVec(0), variance.AtVec(0))
}

func TestPseudoInverse(t *testing.T) {
	K := mat.NewSymDense(2, []float64{2, 0, 0, 4})
	inv, err := pseudoInverse(K)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, inv.At(0, 0), 1e-12)
	assert.InDelta(t, 0.25, inv.At(1, 1), 1e-12)

	_, err = pseudoInverse(mat.NewSymDense(2, nil))
	require.Error(t, err)
}

func TestMatrixPoolReusesBySize(t *testing.T) {
	p := NewMatrixPool()
	m := p.GetSymDense(3)
	m.SetSym(0, 1, 5)
	p.PutSymDense(m)

	again := p.GetSymDense(3)
	assert.Same(t, m, again)
	assert.Equal(t, 0.0, again.At(0, 1), "recycled matrices are zeroed")

	other := p.GetSymDense(4)
	assert.NotSame(t, m, other)
	assert.Equal(t, 4, other.SymmetricDim())

	d := p.GetDense(2, 3)
	p.PutDense(d)
	assert.Same(t, d, p.GetDense(2, 3))
}
