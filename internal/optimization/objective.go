package optimization

import (
	"context"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/seqtune/internal/errors"
	"github.com/copyleftdev/seqtune/internal/scoring"
)

// Convention is the way an objective receives parameters. It is declared by
// the caller, never inferred.
type Convention int

const (
	conventionUnset Convention = iota
	// ConventionPositional passes values in dimension declaration order.
	ConventionPositional
	// ConventionNamed passes a name to value mapping.
	ConventionNamed
	// ConventionModel builds a model from the parameters and scores it on
	// held-out data.
	ConventionModel
)

func (c Convention) String() string {
	switch c {
	case ConventionPositional:
		return "positional"
	case ConventionNamed:
		return "named"
	case ConventionModel:
		return "model"
	}
	return "unset"
}

// PositionalFunc receives parameter values in declaration order.
type PositionalFunc func(ctx context.Context, args []interface{}) (float64, error)

// NamedFunc receives parameters by name.
type NamedFunc func(ctx context.Context, params Params) (float64, error)

// Regressor is a supervised model with fit and predict.
type Regressor interface {
	Fit(X mat.Matrix, y mat.Vector) error
	Predict(X mat.Matrix) (mat.Vector, error)
}

// ModelObjective builds a Regressor from each trial's parameters, fits it on
// the training set and scores it on the test set. Without a test set the
// training set is scored.
type ModelObjective struct {
	Build  func(Params) (Regressor, error)
	TrainX mat.Matrix
	TrainY mat.Vector
	TestX  mat.Matrix
	TestY  mat.Vector
	// Metric defaults to scoring.MSE. Lower must be better.
	Metric scoring.Metric
}

// Objective is the function under minimization together with its calling
// convention.
type Objective struct {
	convention Convention
	positional PositionalFunc
	arity      int
	named      NamedFunc
	accepts    []string
	model      *ModelObjective
}

// Positional wraps fn, which takes exactly arity values. A negative arity
// accepts any number.
func Positional(fn PositionalFunc, arity int) Objective {
	return Objective{convention: ConventionPositional, positional: fn, arity: arity}
}

// Named wraps fn, which accepts exactly the given names. With no names it
// accepts any parameters.
func Named(fn NamedFunc, accepts ...string) Objective {
	return Objective{convention: ConventionNamed, named: fn, accepts: append([]string(nil), accepts...)}
}

// Model wraps a model-building objective.
func Model(m ModelObjective) Objective {
	return Objective{convention: ConventionModel, model: &m}
}

// Convention reports how the objective is called.
func (o Objective) Convention() Convention { return o.convention }

func signatureError(format string, args ...interface{}) *errors.Error {
	return errors.Newf(errors.KindObjectiveSignature, format, args...).WithOperation("validate")
}

// validate checks the objective against the space before any trial runs.
func (o Objective) validate(space *Space) error {
	switch o.convention {
	case ConventionPositional:
		if o.positional == nil {
			return signatureError("positional objective is nil")
		}
		if o.arity >= 0 && o.arity != space.Len() {
			return signatureError("objective takes %d positional arguments, space has %d dimensions", o.arity, space.Len())
		}
	case ConventionNamed:
		if o.named == nil {
			return signatureError("named objective is nil")
		}
		if len(o.accepts) == 0 {
			return nil
		}
		accepted := make(map[string]bool, len(o.accepts))
		for _, name := range o.accepts {
			accepted[name] = true
		}
		var unknown []string
		for _, name := range space.Names() {
			if !accepted[name] {
				unknown = append(unknown, name)
			}
			delete(accepted, name)
		}
		if len(unknown) > 0 {
			return signatureError("objective does not accept %s", strings.Join(unknown, ", ")).WithDimension(unknown[0])
		}
		if len(accepted) > 0 {
			left := make([]string, 0, len(accepted))
			for name := range accepted {
				left = append(left, name)
			}
			sort.Strings(left)
			return signatureError("objective requires %s, missing from the space", strings.Join(left, ", ")).WithDimension(left[0])
		}
	case ConventionModel:
		m := o.model
		if m == nil || m.Build == nil {
			return signatureError("model objective has no builder")
		}
		if m.TrainX == nil || m.TrainY == nil {
			return signatureError("model objective has no training data")
		}
		if r, _ := m.TrainX.Dims(); r != m.TrainY.Len() {
			return errors.Newf(errors.KindConfiguration, "training set has %d rows and %d targets", r, m.TrainY.Len()).
				WithOperation("validate")
		}
		if (m.TestX == nil) != (m.TestY == nil) {
			return signatureError("model objective needs both test inputs and targets")
		}
		if m.TestX != nil {
			if r, _ := m.TestX.Dims(); r != m.TestY.Len() {
				return errors.Newf(errors.KindConfiguration, "test set has %d rows and %d targets", r, m.TestY.Len()).
					WithOperation("validate")
			}
		}
	default:
		return signatureError("objective has no calling convention")
	}
	return nil
}

// call evaluates the objective for params.
func (o Objective) call(ctx context.Context, space *Space, params Params) (float64, error) {
	switch o.convention {
	case ConventionPositional:
		args, err := space.Values(params)
		if err != nil {
			return 0, err
		}
		return o.positional(ctx, args)
	case ConventionNamed:
		return o.named(ctx, params.Clone())
	case ConventionModel:
		return o.model.evaluate(params)
	}
	return 0, signatureError("objective has no calling convention")
}

func (m *ModelObjective) evaluate(params Params) (float64, error) {
	model, err := m.Build(params.Clone())
	if err != nil {
		return 0, err
	}
	if err := model.Fit(m.TrainX, m.TrainY); err != nil {
		return 0, err
	}

	X, y := m.TestX, m.TestY
	if X == nil {
		X, y = m.TrainX, m.TrainY
	}
	pred, err := model.Predict(X)
	if err != nil {
		return 0, err
	}

	metric := m.Metric
	if metric == nil {
		metric = scoring.MSE
	}
	return metric(y, pred)
}
