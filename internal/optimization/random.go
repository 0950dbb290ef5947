package optimization

import (
	"context"
	"math/rand"
)

// randomSearch draws each combination independently, every dimension
// uniformly from its grid. The plan is drawn up front so the sequence
// depends only on the seed, not on the number of workers.
type randomSearch struct {
	plan    []Params
	workers int
}

func newRandomSearch(space *Space, n int, rng *rand.Rand, workers int) (*randomSearch, error) {
	grids, err := space.Grids()
	if err != nil {
		return nil, err
	}
	names := space.Names()

	plan := make([]Params, n)
	for i := range plan {
		p := make(Params, len(grids))
		for d, grid := range grids {
			p[names[d]] = grid[rng.Intn(len(grid))]
		}
		plan[i] = p
	}
	return &randomSearch{plan: plan, workers: workers}, nil
}

func (r *randomSearch) Algorithm() string { return AlgorithmRandom }

func (r *randomSearch) Search(ctx context.Context, run RunFunc) error {
	return runTrials(ctx, r.workers, len(r.plan), func(i int) Params { return r.plan[i].Clone() }, run)
}

func (r *randomSearch) BestParameters(results *Results) (Params, bool) {
	return bestFromResults(results)
}
