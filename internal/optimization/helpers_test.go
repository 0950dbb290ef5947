package optimization

import (
	"context"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// sphere is a positional quadratic with its minimum at the origin.
func sphere(_ context.Context, args []interface{}) (float64, error) {
	sum := 0.0
	for _, a := range args {
		v, _ := ToFloat(a)
		sum += v * v
	}
	return sum, nil
}

// countingObjective wraps fn and counts its calls.
type countingObjective struct {
	calls atomic.Int64
	fn    PositionalFunc
}

func (c *countingObjective) objective(arity int) Objective {
	return Positional(func(ctx context.Context, args []interface{}) (float64, error) {
		c.calls.Add(1)
		return c.fn(ctx, args)
	}, arity)
}

func mustReal(t *testing.T, name string, opts ...NumericOption) *Real {
	t.Helper()
	d, err := NewReal(name, opts...)
	require.NoError(t, err)
	return d
}

func mustInteger(t *testing.T, name string, opts ...NumericOption) *Integer {
	t.Helper()
	d, err := NewInteger(name, opts...)
	require.NoError(t, err)
	return d
}

func mustCategorical(t *testing.T, name string, categories ...interface{}) *Categorical {
	t.Helper()
	d, err := NewCategorical(name, categories...)
	require.NoError(t, err)
	return d
}

func mustSpace(t *testing.T, dims ...Dimension) *Space {
	t.Helper()
	s, err := NewSpace(dims...)
	require.NoError(t, err)
	return s
}

// assertFloat64SlicesEqual checks that two slices match within tol.
func assertFloat64SlicesEqual(t *testing.T, got, want []float64, tol float64) {
	t.Helper()

	require.Len(t, got, len(want))
	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("at index %d: got %v, want %v (tolerance %v)", i, got[i], want[i], tol)
		}
	}
}
