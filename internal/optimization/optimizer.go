package optimization

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// Supported algorithms.
const (
	AlgorithmGrid   = "grid"
	AlgorithmRandom = "random"
	AlgorithmBayes  = "bayes"
	AlgorithmTPE    = "tpe"
)

// Algorithms lists the supported algorithm names.
var Algorithms = []string{AlgorithmGrid, AlgorithmRandom, AlgorithmBayes, AlgorithmTPE}

// RunFunc evaluates and records trial index with params. It returns the
// score, or an error when the objective failed and the run must stop.
type RunFunc func(ctx context.Context, index int, params Params) (float64, error)

// Strategy is one search algorithm behind the driver.
type Strategy interface {
	// Algorithm returns the algorithm name.
	Algorithm() string

	// Search proposes parameters and evaluates them through run until its
	// plan is exhausted, run fails or ctx is done.
	Search(ctx context.Context, run RunFunc) error

	// BestParameters returns the best parameters once Search returned.
	BestParameters(results *Results) (Params, bool)
}

// bestFromResults is the BestParameters of strategies without their own
// notion of an incumbent.
func bestFromResults(results *Results) (Params, bool) {
	t, ok := results.Best()
	if !ok {
		return nil, false
	}
	return t.Params.Clone(), true
}

// runTrials evaluates n independent trials. With more than one worker the
// trials run on a bounded pool that stops scheduling after the first error.
func runTrials(ctx context.Context, workers, n int, params func(int) Params, run RunFunc) error {
	if workers <= 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := run(ctx, i, params(i)); err != nil {
				return err
			}
		}
		return nil
	}

	p := pool.New().
		WithMaxGoroutines(workers).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()
	for i := 0; i < n; i++ {
		i := i
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := run(ctx, i, params(i))
			return err
		})
	}
	return p.Wait()
}
