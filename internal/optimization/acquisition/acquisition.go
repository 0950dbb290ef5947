// Package acquisition scores candidate points from a surrogate's posterior
// mean and standard deviation. Larger values are more promising; every
// function assumes the objective is minimized.
package acquisition

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/copyleftdev/seqtune/internal/errors"
)

// Registry names.
const (
	EI  = "ei"
	PI  = "pi"
	LCB = "lcb"
)

const minSigma = 1e-10

// Function is an acquisition function.
type Function interface {
	Name() string
	Compute(mu, sigma float64) float64
	UpdateBest(best float64)
}

// New builds an acquisition function by name. xi is the improvement margin
// for EI and PI; kappa is the exploration weight for LCB. An empty name
// selects EI.
func New(name string, xi, kappa float64) (Function, error) {
	switch strings.ToLower(name) {
	case "", EI:
		return NewExpectedImprovement(math.Inf(1), xi), nil
	case PI:
		return NewProbabilityOfImprovement(math.Inf(1), xi), nil
	case LCB:
		return NewLowerConfidenceBound(kappa), nil
	}
	return nil, errors.Newf(errors.KindDependencyVersion, "acquisition function %q is not available", name).
		WithComponent("acquisition")
}

// ProbabilityOfImprovement is Φ((best - mu - xi) / sigma).
type ProbabilityOfImprovement struct {
	bestObserved float64
	xi           float64
}

// NewProbabilityOfImprovement creates a PI function.
func NewProbabilityOfImprovement(bestObserved, xi float64) *ProbabilityOfImprovement {
	return &ProbabilityOfImprovement{bestObserved: bestObserved, xi: xi}
}

// Name implements Function.
func (p *ProbabilityOfImprovement) Name() string { return PI }

// Compute implements Function.
func (p *ProbabilityOfImprovement) Compute(mu, sigma float64) float64 {
	improvement := p.bestObserved - mu - p.xi
	if sigma <= minSigma {
		if improvement > 0 {
			return 1
		}
		return 0
	}
	return distuv.UnitNormal.CDF(improvement / sigma)
}

// UpdateBest implements Function.
func (p *ProbabilityOfImprovement) UpdateBest(best float64) { p.bestObserved = best }

// LowerConfidenceBound returns kappa*sigma - mu, the negated lower bound,
// so that maximizing it minimizes the bound.
type LowerConfidenceBound struct {
	kappa float64
}

// NewLowerConfidenceBound creates an LCB function. Non-positive kappa means 1.96.
func NewLowerConfidenceBound(kappa float64) *LowerConfidenceBound {
	if kappa <= 0 {
		kappa = 1.96
	}
	return &LowerConfidenceBound{kappa: kappa}
}

// Name implements Function.
func (l *LowerConfidenceBound) Name() string { return LCB }

// Compute implements Function.
func (l *LowerConfidenceBound) Compute(mu, sigma float64) float64 {
	return l.kappa*sigma - mu
}

// UpdateBest is a no-op; the bound does not depend on the incumbent.
func (l *LowerConfidenceBound) UpdateBest(float64) {}
