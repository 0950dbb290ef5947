package acquisition

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// ExpectedImprovement implements the Expected Improvement acquisition function
type ExpectedImprovement struct {
	// Best observed value so far
	bestObserved float64
	// Exploration-exploitation trade-off parameter (xi)
	xi float64
	// Whether we're minimizing (true) or maximizing (false)
	minimize bool
}

// NewExpectedImprovement creates an EI function for minimization.
func NewExpectedImprovement(bestObserved, xi float64) *ExpectedImprovement {
	return &ExpectedImprovement{
		bestObserved: bestObserved,
		xi:           xi,
		minimize:     true,
	}
}

// Name implements Function.
func (ei *ExpectedImprovement) Name() string { return EI }

// Compute returns EI = imp*Φ(imp/σ) + σ*φ(imp/σ). It stays positive when
// the predicted improvement is negative but uncertain.
func (ei *ExpectedImprovement) Compute(mu, sigma float64) float64 {
	improvement := ei.improvement(mu)

	// Certain prediction: the improvement itself, if any.
	if sigma <= minSigma {
		return math.Max(improvement, 0)
	}

	z := improvement / sigma
	return improvement*distuv.UnitNormal.CDF(z) + sigma*distuv.UnitNormal.Prob(z)
}

func (ei *ExpectedImprovement) improvement(mu float64) float64 {
	if ei.minimize {
		return ei.bestObserved - mu - ei.xi
	}
	return mu - ei.bestObserved - ei.xi
}

// UpdateBest updates the best observed value
func (ei *ExpectedImprovement) UpdateBest(best float64) {
	ei.bestObserved = best
}

// SetXi sets the exploration-exploitation trade-off parameter
func (ei *ExpectedImprovement) SetXi(xi float64) {
	ei.xi = xi
}

// BestObserved returns the best observed value
func (ei *ExpectedImprovement) BestObserved() float64 {
	return ei.bestObserved
}
