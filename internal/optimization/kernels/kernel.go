// Package kernels provides covariance functions for the Gaussian process
// surrogate.
package kernels

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/seqtune/internal/errors"
)

// Kernel represents a covariance function between two points.
type Kernel interface {
	// Name is the registry name of the kernel.
	Name() string

	// Eval computes the kernel value between two points x1 and x2
	Eval(x1, x2 []float64) float64

	// Hyperparameters returns length scale and signal variance.
	Hyperparameters() []float64

	// SetHyperparameters sets the kernel's hyperparameters
	SetHyperparameters(params []float64) error
}

// Registry names.
const (
	RBF      = "rbf"
	Matern32 = "matern32"
	Matern52 = "matern52"
)

// NewKernel builds a kernel by name. An empty name selects Matern 5/2.
func NewKernel(name string, lengthScale, signalVar float64) (Kernel, error) {
	if lengthScale <= 0 || signalVar <= 0 {
		return nil, errors.Newf(errors.KindConfiguration, "kernel hyperparameters must be positive, got length_scale=%v signal_var=%v", lengthScale, signalVar).
			WithComponent("kernels")
	}

	switch strings.ToLower(name) {
	case RBF:
		return NewRBFKernel(lengthScale, signalVar), nil
	case Matern32:
		return NewMatern32Kernel(lengthScale, signalVar), nil
	case "", Matern52:
		return NewMatern52Kernel(lengthScale, signalVar), nil
	}
	return nil, errors.Newf(errors.KindDependencyVersion, "kernel %q is not available", name).WithComponent("kernels")
}

// stationary holds the two hyperparameters shared by all kernels here.
type stationary struct {
	// Length scale parameter (larger = smoother function)
	lengthScale float64
	// Signal variance (controls the amplitude of the function)
	signalVar float64
}

func newStationary(lengthScale, signalVar float64) stationary {
	if lengthScale <= 0 {
		panic(fmt.Sprintf("lengthScale must be positive, got %v", lengthScale))
	}
	if signalVar <= 0 {
		panic(fmt.Sprintf("signalVar must be positive, got %v", signalVar))
	}
	return stationary{lengthScale: lengthScale, signalVar: signalVar}
}

// Hyperparameters returns the current hyperparameters
func (s *stationary) Hyperparameters() []float64 {
	return []float64{s.lengthScale, s.signalVar}
}

// SetHyperparameters sets the kernel's hyperparameters
func (s *stationary) SetHyperparameters(params []float64) error {
	if len(params) != 2 {
		return fmt.Errorf("expected 2 hyperparameters, got %d", len(params))
	}
	if params[0] <= 0 || params[1] <= 0 {
		return fmt.Errorf("hyperparameters must be positive, got %v", params)
	}
	s.lengthScale = params[0]
	s.signalVar = params[1]
	return nil
}

// scaled returns the euclidean distance divided by the length scale.
func (s *stationary) scaled(x1, x2 []float64) float64 {
	return floats.Distance(x1, x2, 2) / s.lengthScale
}

// RBFKernel implements the Radial Basis Function (squared exponential) kernel
type RBFKernel struct {
	stationary
}

// NewRBFKernel panics on non-positive hyperparameters.
func NewRBFKernel(lengthScale, signalVar float64) *RBFKernel {
	return &RBFKernel{newStationary(lengthScale, signalVar)}
}

// Name implements Kernel.
func (k *RBFKernel) Name() string { return RBF }

// Eval computes signalVar * exp(-r^2 / 2).
func (k *RBFKernel) Eval(x1, x2 []float64) float64 {
	r := k.scaled(x1, x2)
	return k.signalVar * math.Exp(-0.5*r*r)
}

// Matern32Kernel implements the Matérn 3/2 kernel
type Matern32Kernel struct {
	stationary
}

// NewMatern32Kernel panics on non-positive hyperparameters.
func NewMatern32Kernel(lengthScale, signalVar float64) *Matern32Kernel {
	return &Matern32Kernel{newStationary(lengthScale, signalVar)}
}

// Name implements Kernel.
func (k *Matern32Kernel) Name() string { return Matern32 }

// Eval computes signalVar * (1 + sqrt(3) r) exp(-sqrt(3) r).
func (k *Matern32Kernel) Eval(x1, x2 []float64) float64 {
	r := math.Sqrt(3) * k.scaled(x1, x2)
	return k.signalVar * (1 + r) * math.Exp(-r)
}

// Matern52Kernel implements the Matérn 5/2 kernel
type Matern52Kernel struct {
	stationary
}

// NewMatern52Kernel panics on non-positive hyperparameters.
func NewMatern52Kernel(lengthScale, signalVar float64) *Matern52Kernel {
	return &Matern52Kernel{newStationary(lengthScale, signalVar)}
}

// Name implements Kernel.
func (k *Matern52Kernel) Name() string { return Matern52 }

// Eval computes the Matérn 5/2 kernel value between x1 and x2
func (k *Matern52Kernel) Eval(x1, x2 []float64) float64 {
	r := k.scaled(x1, x2)
	polyTerm := 1.0 + math.Sqrt(5)*r + (5.0/3.0)*r*r
	return k.signalVar * polyTerm * math.Exp(-math.Sqrt(5)*r)
}
