package optimization

import (
	"context"
	"math/rand"

	"go.uber.org/zap"

	"github.com/copyleftdev/seqtune/internal/optimization/acquisition"
	"github.com/copyleftdev/seqtune/internal/optimization/bayesian"
	"github.com/copyleftdev/seqtune/internal/optimization/kernels"
)

// bayesOptions are the Bayesian backend settings taken from DriverConfig.
type bayesOptions struct {
	calls         int
	initialPoints int
	acquisition   string
	xi, kappa     float64
	kernel        string
	lengthScale   float64
	noise         float64
	x0            []Params
}

// bayesSearch runs the Gaussian process minimizer over the encoded space.
// Integer and categorical coordinates are snapped before evaluation, so
// every recorded point decodes exactly.
type bayesSearch struct {
	space     *Space
	minimizer *bayesian.Minimizer
}

func newBayesSearch(space *Space, opts bayesOptions, rng *rand.Rand, logger *zap.Logger) (*bayesSearch, error) {
	acq, err := acquisition.New(opts.acquisition, opts.xi, opts.kappa)
	if err != nil {
		return nil, err
	}
	lengthScale := opts.lengthScale
	if lengthScale <= 0 {
		lengthScale = 1
	}
	kernel, err := kernels.NewKernel(opts.kernel, lengthScale, 1)
	if err != nil {
		return nil, err
	}

	x0 := make([][]float64, 0, len(opts.x0))
	for _, p := range opts.x0 {
		x, err := space.Encode(p)
		if err != nil {
			return nil, err
		}
		x0 = append(x0, x)
	}

	m, err := bayesian.NewMinimizer(bayesian.Config{
		Bounds:           space.Bounds(),
		NumCalls:         opts.calls,
		NumInitialPoints: opts.initialPoints,
		X0:               x0,
		Rand:             rng,
		Acquisition:      acq,
		Kernel:           kernel,
		NoiseVar:         opts.noise,
		Transform:        space.Snap,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	return &bayesSearch{space: space, minimizer: m}, nil
}

func (b *bayesSearch) Algorithm() string { return AlgorithmBayes }

func (b *bayesSearch) Search(ctx context.Context, run RunFunc) error {
	index := 0
	_, err := b.minimizer.Minimize(ctx, func(ctx context.Context, x []float64) (float64, error) {
		i := index
		index++
		return run(ctx, i, b.space.Decode(x))
	})
	return err
}

// BestParameters decodes the minimizer's own incumbent.
func (b *bayesSearch) BestParameters(*Results) (Params, bool) {
	x, _, ok := b.minimizer.Best()
	if !ok {
		return nil, false
	}
	return b.space.Decode(x), true
}
