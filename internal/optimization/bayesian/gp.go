// Package bayesian implements sequential model-based minimization with a
// Gaussian process surrogate.
package bayesian

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/copyleftdev/seqtune/internal/errors"
	"github.com/copyleftdev/seqtune/internal/optimization/kernels"
)

const (
	component      = "gaussian_process"
	initialJitter  = 1e-10
	maxJitterTries = 8
)

// GP is a Gaussian process regressor with a zero prior mean on
// standardized targets.
type GP struct {
	kernel   kernels.Kernel
	noiseVar float64

	// Training inputs (n_samples, n_features)
	X *mat.Dense

	alpha *mat.VecDense
	// chol is nil when the kernel matrix could only be pseudo-inverted.
	chol *mat.Cholesky
	kinv *mat.Dense

	yMean, yStd float64

	matrixPool *MatrixPool
	logger     *zap.Logger
}

// GPOption configures a GP.
type GPOption func(*GP)

// WithGPLogger sets the logger. The default discards output.
func WithGPLogger(l *zap.Logger) GPOption {
	return func(gp *GP) {
		if l != nil {
			gp.logger = l.Named(component)
		}
	}
}

// WithMatrixPool shares a matrix pool between GPs.
func WithMatrixPool(p *MatrixPool) GPOption {
	return func(gp *GP) {
		if p != nil {
			gp.matrixPool = p
		}
	}
}

// NewGP creates a new Gaussian Process model
func NewGP(kernel kernels.Kernel, noiseVar float64, opts ...GPOption) *GP {
	gp := &GP{
		kernel:     kernel,
		noiseVar:   noiseVar,
		matrixPool: NewMatrixPool(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(gp)
	}
	return gp
}

// Kernel returns the covariance function.
func (gp *GP) Kernel() kernels.Kernel { return gp.kernel }

// Fit conditions the GP on the training data.
func (gp *GP) Fit(X *mat.Dense, y *mat.VecDense) error {
	const op = "GP.Fit"

	if X == nil || y == nil {
		return errors.New(errors.KindConfiguration, "input matrices must not be nil").
			WithOperation(op).WithComponent(component)
	}

	nSamples, nFeatures := X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.New(errors.KindConfiguration, "input matrix X must not be empty").
			WithOperation(op).WithComponent(component)
	}
	if nSamples != y.Len() {
		return errors.Newf(errors.KindConfiguration, "dimension mismatch: X has %d samples but y has length %d", nSamples, y.Len()).
			WithOperation(op).WithComponent(component)
	}

	ys := make([]float64, nSamples)
	for i := range ys {
		ys[i] = y.AtVec(i)
	}
	gp.yMean, gp.yStd = stat.MeanStdDev(ys, nil)
	if !(gp.yStd > 1e-12) {
		gp.yStd = 1
	}
	target := mat.NewVecDense(nSamples, nil)
	for i, v := range ys {
		target.SetVec(i, (v-gp.yMean)/gp.yStd)
	}

	K := gp.matrixPool.GetSymDense(nSamples)
	defer gp.matrixPool.PutSymDense(K)
	for i := 0; i < nSamples; i++ {
		xi := X.RawRowView(i)
		for j := i; j < nSamples; j++ {
			v := gp.kernel.Eval(xi, X.RawRowView(j))
			if i == j {
				v += gp.noiseVar
			}
			K.SetSym(i, j, v)
		}
	}

	gp.X = mat.DenseCopyOf(X)
	gp.chol, gp.kinv = nil, nil

	jitter := initialJitter
	for attempt := 0; attempt < maxJitterTries; attempt++ {
		Kj := gp.matrixPool.GetSymDense(nSamples)
		Kj.CopySym(K)
		for i := 0; i < nSamples; i++ {
			Kj.SetSym(i, i, Kj.At(i, i)+jitter)
		}

		var chol mat.Cholesky
		ok := chol.Factorize(Kj)
		gp.matrixPool.PutSymDense(Kj)
		if ok {
			alpha := mat.NewVecDense(nSamples, nil)
			if err := chol.SolveVecTo(alpha, target); err == nil {
				gp.chol, gp.alpha = &chol, alpha
				gp.logger.Debug("fitted",
					zap.Int("samples", nSamples),
					zap.Int("features", nFeatures),
					zap.Float64("jitter", jitter),
				)
				return nil
			}
		}

		gp.logger.Debug("cholesky failed, increasing jitter",
			zap.Int("attempt", attempt+1),
			zap.Float64("jitter", jitter))
		jitter *= 10
	}

	gp.logger.Info("falling back to SVD pseudo-inverse", zap.Int("samples", nSamples))
	kinv, err := pseudoInverse(K)
	if err != nil {
		return errors.Wrap(err, errors.KindNumerical, "kernel matrix could not be inverted").
			WithOperation(op).WithComponent(component)
	}
	gp.kinv = kinv
	gp.alpha = mat.NewVecDense(nSamples, nil)
	gp.alpha.MulVec(kinv, target)
	return nil
}

// pseudoInverse computes V S^+ U^T, dropping singular values below the
// usual rank tolerance.
func pseudoInverse(K mat.Matrix) (*mat.Dense, error) {
	var svd mat.SVD
	if !svd.Factorize(K, mat.SVDThin) {
		return nil, errors.New(errors.KindNumerical, "SVD factorization failed")
	}

	s := svd.Values(nil)
	n := len(s)
	if n == 0 || s[0] == 0 {
		return nil, errors.New(errors.KindNumerical, "matrix is effectively rank zero")
	}

	var U, V mat.Dense
	svd.UTo(&U)
	svd.VTo(&V)

	tol := float64(n) * s[0] * 1e-15
	inv := mat.NewDiagDense(n, nil)
	for i, v := range s {
		if v > tol {
			inv.SetDiag(i, 1/v)
		}
	}

	var tmp, out mat.Dense
	tmp.Mul(&V, inv)
	out.Mul(&tmp, U.T())
	return &out, nil
}

// Predict returns the posterior predictive mean and variance at the rows
// of X, in the units of the training targets.
func (gp *GP) Predict(X *mat.Dense) (*mat.VecDense, *mat.VecDense, error) {
	const op = "GP.Predict"

	if X == nil {
		return nil, nil, errors.New(errors.KindConfiguration, "input matrix X is nil").
			WithOperation(op).WithComponent(component)
	}
	if gp.X == nil || gp.alpha == nil {
		return nil, nil, errors.New(errors.KindConfiguration, "model not trained or no training data").
			WithOperation(op).WithComponent(component)
	}

	nTest, _ := X.Dims()
	nTrain, _ := gp.X.Dims()

	Kstar := gp.matrixPool.GetDense(nTest, nTrain)
	defer gp.matrixPool.PutDense(Kstar)
	kss := make([]float64, nTest)
	for i := 0; i < nTest; i++ {
		xs := X.RawRowView(i)
		kss[i] = gp.kernel.Eval(xs, xs) + gp.noiseVar
		for j := 0; j < nTrain; j++ {
			Kstar.Set(i, j, gp.kernel.Eval(xs, gp.X.RawRowView(j)))
		}
	}

	mean := mat.NewVecDense(nTest, nil)
	mean.MulVec(Kstar, gp.alpha)

	// v = K^-1 K*^T, variance_i = k(x_i, x_i) - K*_i . v_i
	v := mat.NewDense(nTrain, nTest, nil)
	if gp.chol != nil {
		if err := gp.chol.SolveTo(v, Kstar.T()); err != nil {
			return nil, nil, errors.Wrap(err, errors.KindNumerical, "failed to solve linear system").
				WithOperation(op).WithComponent(component)
		}
	} else {
		v.Mul(gp.kinv, Kstar.T())
	}

	variance := mat.NewVecDense(nTest, nil)
	scale := gp.yStd * gp.yStd
	for i := 0; i < nTest; i++ {
		var reduction float64
		for j := 0; j < nTrain; j++ {
			reduction += Kstar.At(i, j) * v.At(j, i)
		}
		variance.SetVec(i, math.Max(0, kss[i]-reduction)*scale)
		mean.SetVec(i, mean.AtVec(i)*gp.yStd+gp.yMean)
	}

	return mean, variance, nil
}
