package study

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/seqtune/internal/errors"
	"github.com/copyleftdev/seqtune/internal/optimization"
	"github.com/copyleftdev/seqtune/internal/optimization/bayesian"
	"github.com/copyleftdev/seqtune/internal/optimization/kernels"
)

// builtin creates an objective for a space. requires lists the dimension
// names the objective reads.
type builtin struct {
	requires []string
	create   func(spec *Spec, space *optimization.Space) optimization.Objective
}

var builtins = map[string]builtin{
	"sphere": {
		create: func(*Spec, *optimization.Space) optimization.Objective {
			return optimization.Positional(Sphere, -1)
		},
	},
	"rosenbrock": {
		create: func(*Spec, *optimization.Space) optimization.Objective {
			return optimization.Positional(Rosenbrock, -1)
		},
	},
	"branin": {
		requires: []string{"x", "y"},
		create: func(*Spec, *optimization.Space) optimization.Objective {
			return optimization.Named(Branin, "x", "y")
		},
	},
	"gp_regression": {
		requires: []string{"length_scale", "noise", "kernel"},
		create: func(spec *Spec, _ *optimization.Space) optimization.Objective {
			return optimization.Model(GPRegression(spec.Seed))
		},
	},
}

// Objectives lists the built-in objective names.
func Objectives() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Spec) objective(space *optimization.Space) (optimization.Objective, error) {
	b := builtins[s.Objective]
	for _, name := range b.requires {
		if _, ok := space.Dimension(name); !ok {
			return optimization.Objective{}, errors.Newf(errors.KindObjectiveSignature, "objective %s requires dimension %q", s.Objective, name).
				WithOperation("Build").
				WithDimension(name)
		}
	}
	return b.create(s, space), nil
}

// Sphere is the sum of squares of every numeric argument.
func Sphere(_ context.Context, args []interface{}) (float64, error) {
	xs, err := floats(args)
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, x := range xs {
		sum += x * x
	}
	return sum, nil
}

// Rosenbrock is the generalized Rosenbrock function, minimum 0 at (1, ..., 1).
func Rosenbrock(_ context.Context, args []interface{}) (float64, error) {
	xs, err := floats(args)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := 0; i+1 < len(xs); i++ {
		a := xs[i+1] - xs[i]*xs[i]
		b := 1 - xs[i]
		sum += 100*a*a + b*b
	}
	return sum, nil
}

// Branin has three global minima of 0.397887 on x in [-5, 10], y in [0, 15].
func Branin(_ context.Context, p optimization.Params) (float64, error) {
	x, err := p.Float("x")
	if err != nil {
		return 0, err
	}
	y, err := p.Float("y")
	if err != nil {
		return 0, err
	}
	const (
		a = 1.0
		r = 6.0
		s = 10.0
	)
	b := 5.1 / (4 * math.Pi * math.Pi)
	c := 5 / math.Pi
	t := 1 / (8 * math.Pi)
	term := y - b*x*x + c*x - r
	return a*term*term + s*(1-t)*math.Cos(x) + s, nil
}

func floats(args []interface{}) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		f, ok := optimization.ToFloat(a)
		if !ok {
			return nil, errors.Newf(errors.KindObjectiveSignature, "argument %d is %T, not numeric", i, a)
		}
		out[i] = f
	}
	return out, nil
}

// gpRegressor adapts a Gaussian process to optimization.Regressor.
type gpRegressor struct {
	gp *bayesian.GP
}

func (r *gpRegressor) Fit(X mat.Matrix, y mat.Vector) error {
	return r.gp.Fit(mat.DenseCopyOf(X), mat.VecDenseCopyOf(y))
}

func (r *gpRegressor) Predict(X mat.Matrix) (mat.Vector, error) {
	mean, _, err := r.gp.Predict(mat.DenseCopyOf(X))
	if err != nil {
		return nil, err
	}
	return mean, nil
}

// NewGPRegressor builds the regressor tuned by the gp_regression objective
// from length_scale, noise and kernel.
func NewGPRegressor(p optimization.Params) (optimization.Regressor, error) {
	lengthScale, err := p.Float("length_scale")
	if err != nil {
		return nil, err
	}
	noise, err := p.Float("noise")
	if err != nil {
		return nil, err
	}
	name, err := p.String("kernel")
	if err != nil {
		return nil, err
	}
	kernel, err := kernels.NewKernel(name, lengthScale, 1)
	if err != nil {
		return nil, err
	}
	return &gpRegressor{gp: bayesian.NewGP(kernel, noise)}, nil
}

// GPRegression fits a Gaussian process to a noisy sine sampled on [0, 2pi)
// and scores it by mean squared error on a held-out grid.
func GPRegression(seed int64) optimization.ModelObjective {
	if seed == 0 {
		seed = optimization.DefaultSeed
	}
	rng := rand.New(rand.NewSource(seed))

	const train, test = 40, 25
	trainX := mat.NewDense(train, 1, nil)
	trainY := mat.NewVecDense(train, nil)
	for i := 0; i < train; i++ {
		x := rng.Float64() * 2 * math.Pi
		trainX.Set(i, 0, x)
		trainY.SetVec(i, math.Sin(x)+0.1*rng.NormFloat64())
	}
	testX := mat.NewDense(test, 1, nil)
	testY := mat.NewVecDense(test, nil)
	for i := 0; i < test; i++ {
		x := 2 * math.Pi * (float64(i) + 0.5) / test
		testX.Set(i, 0, x)
		testY.SetVec(i, math.Sin(x))
	}

	return optimization.ModelObjective{
		Build:  NewGPRegressor,
		TrainX: trainX,
		TrainY: trainY,
		TestX:  testX,
		TestY:  testY,
	}
}
