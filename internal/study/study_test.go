package study

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/seqtune/internal/errors"
	"github.com/copyleftdev/seqtune/internal/optimization"
)

const braninYAML = `
name: branin-grid
algorithm: GRID
objective: branin
dimensions:
  - name: x
    type: real
    low: -5
    high: 10
    num_samples: 16
  - name: y
    type: real
    grid: [0, 2.275, 5, 12.275, 15]
`

func TestParseYAML(t *testing.T) {
	spec, err := Parse([]byte(braninYAML), "yaml")
	require.NoError(t, err)

	assert.Equal(t, "branin-grid", spec.Name)
	assert.Equal(t, optimization.AlgorithmGrid, spec.Algorithm)
	require.Len(t, spec.Dimensions, 2)
	assert.Equal(t, 16, *spec.Dimensions[0].NumSamples)
	assert.Equal(t, []float64{0, 2.275, 5, 12.275, 15}, spec.Dimensions[1].Grid)
}

func TestParseJSONSniffed(t *testing.T) {
	data := []byte(`{
		"algorithm": "random",
		"iterations": 5,
		"objective": "sphere",
		"dimensions": [
			{"type": "integer", "low": -3, "high": 3, "step": 1},
			{"type": "categorical", "categories": [1, 2, 4]}
		]
	}`)

	spec, err := Parse(data, "")
	require.NoError(t, err)
	space, err := spec.Space()
	require.NoError(t, err)
	assert.Equal(t, []string{"integer_1", "categorical_1"}, space.Names())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format string
	}{
		{"bad yaml", "algorithm: [", "yaml"},
		{"unknown format", "{}", "toml"},
		{"no algorithm", "objective: sphere\ndimensions: [{type: real, low: 0, high: 1}]", "yaml"},
		{"no objective", "algorithm: grid\ndimensions: [{type: real, low: 0, high: 1}]", "yaml"},
		{"unknown objective", "algorithm: grid\nobjective: ackley\ndimensions: [{type: real, low: 0, high: 1}]", "yaml"},
		{"no dimensions", "algorithm: grid\nobjective: sphere", "yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrConfiguration), "got %v", err)
		})
	}
}

func TestSpaceErrors(t *testing.T) {
	low := 0.0
	tests := []struct {
		name string
		dim  DimensionSpec
	}{
		{"unknown type", DimensionSpec{Name: "a", Type: "complex"}},
		{"half range", DimensionSpec{Name: "a", Type: "real", Low: &low}},
		{"empty categorical", DimensionSpec{Name: "a", Type: "categorical"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := &Spec{Algorithm: "grid", Objective: "sphere", Dimensions: []DimensionSpec{tt.dim}}
			_, err := spec.Space()
			assert.True(t, errors.Is(err, errors.ErrConfiguration))
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "study.yml")
	require.NoError(t, os.WriteFile(path, []byte(braninYAML), 0o644))

	spec, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "branin", spec.Objective)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
}

func TestBuildAndRunBranin(t *testing.T) {
	spec, err := Parse([]byte(braninYAML), "yaml")
	require.NoError(t, err)

	d, err := spec.Build(optimization.DriverConfig{})
	require.NoError(t, err)
	results, err := d.Fit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 16*5, results.Len())

	best, ok := results.Best()
	require.True(t, ok)
	assert.Less(t, best.Score, 2.0)
}

func TestBuildUnsupportedAlgorithm(t *testing.T) {
	spec, err := Parse([]byte(braninYAML), "yaml")
	require.NoError(t, err)
	spec.Algorithm = "annealing"

	_, err = spec.Build(optimization.DriverConfig{})
	assert.True(t, errors.Is(err, errors.ErrUnsupportedAlgorithm))
}

func TestBuildMissingRequiredDimension(t *testing.T) {
	spec := &Spec{
		Algorithm:  "grid",
		Objective:  "branin",
		Dimensions: []DimensionSpec{{Name: "x", Type: "real", Grid: []float64{0, 1}}},
	}
	_, err := spec.Build(optimization.DriverConfig{})
	assert.True(t, errors.Is(err, errors.ErrObjectiveSignature))
}

func TestDriverConfig(t *testing.T) {
	spec := &Spec{
		Iterations:    30,
		InitialPoints: 7,
		Seed:          99,
		EvalOnBest:    true,
		Acquisition:   "lcb",
		Kernel:        "rbf",
		Kappa:         2.5,
		X0:            []map[string]interface{}{{"x": 1.0}},
	}
	base := optimization.DriverConfig{Workers: 3, Seed: 5}

	cfg := spec.DriverConfig(base)
	assert.Equal(t, 30, cfg.NumIterations)
	assert.Equal(t, 7, cfg.NumInitialPoints)
	assert.Equal(t, int64(99), cfg.Seed)
	assert.Equal(t, 3, cfg.Workers)
	assert.True(t, cfg.EvalOnBest)
	assert.Equal(t, "lcb", cfg.Acquisition)
	assert.Equal(t, "rbf", cfg.Kernel)
	assert.Equal(t, 2.5, cfg.Kappa)
	assert.Equal(t, []optimization.Params{{"x": 1.0}}, cfg.X0)
}

func TestBuiltinObjectives(t *testing.T) {
	ctx := context.Background()

	v, err := Sphere(ctx, []interface{}{3, -4.0})
	require.NoError(t, err)
	assert.Equal(t, 25.0, v)

	v, err = Rosenbrock(ctx, []interface{}{1.0, 1.0, 1.0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)

	v, err = Branin(ctx, optimization.Params{"x": 3.14159265, "y": 2.275})
	require.NoError(t, err)
	assert.InDelta(t, 0.397887, v, 1e-5)

	_, err = Sphere(ctx, []interface{}{"a"})
	assert.Error(t, err)

	assert.Equal(t, []string{"branin", "gp_regression", "rosenbrock", "sphere"}, Objectives())
}

func TestGPRegressionStudy(t *testing.T) {
	data := `
algorithm: random
iterations: 6
seed: 3
objective: gp_regression
dimensions:
  - name: length_scale
    type: real
    grid: [0.3, 1, 3]
  - name: noise
    type: real
    grid: [0.001, 0.01, 0.1]
  - name: kernel
    type: categorical
    categories: [rbf, matern32, matern52]
`
	spec, err := Parse([]byte(data), "yaml")
	require.NoError(t, err)

	d, err := spec.Build(optimization.DriverConfig{})
	require.NoError(t, err)
	results, err := d.Fit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, results.Len())

	best, ok := results.Best()
	require.True(t, ok)
	assert.Less(t, best.Score, 0.5, "a tuned GP should fit a sine well")
}

func TestGPRegressorUnknownKernel(t *testing.T) {
	_, err := NewGPRegressor(optimization.Params{"length_scale": 1.0, "noise": 0.1, "kernel": "periodic"})
	assert.True(t, errors.Is(err, errors.ErrDependencyVersion))
}
