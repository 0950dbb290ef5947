package optimization

import (
	"context"
)

// gridSearch evaluates the Cartesian product of the dimension grids in
// declaration order, the last dimension varying fastest.
type gridSearch struct {
	space   *Space
	grids   [][]interface{}
	workers int
}

func newGridSearch(space *Space, workers int) (*gridSearch, error) {
	grids, err := space.Grids()
	if err != nil {
		return nil, err
	}
	return &gridSearch{space: space, grids: grids, workers: workers}, nil
}

func (g *gridSearch) Algorithm() string { return AlgorithmGrid }

// Size returns the number of combinations.
func (g *gridSearch) Size() int {
	n := 1
	for _, grid := range g.grids {
		n *= len(grid)
	}
	return n
}

// combination decodes index as a mixed radix number over the grids.
func (g *gridSearch) combination(index int) Params {
	p := make(Params, len(g.grids))
	dims := g.space.Dimensions()
	for d := len(g.grids) - 1; d >= 0; d-- {
		size := len(g.grids[d])
		p[dims[d].Name()] = g.grids[d][index%size]
		index /= size
	}
	return p
}

func (g *gridSearch) Search(ctx context.Context, run RunFunc) error {
	return runTrials(ctx, g.workers, g.Size(), g.combination, run)
}

func (g *gridSearch) BestParameters(results *Results) (Params, bool) {
	return bestFromResults(results)
}
