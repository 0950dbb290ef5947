package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/seqtune/internal/report"
)

const sphereStudy = `
name: sphere
algorithm: grid
objective: sphere
dimensions:
  - name: a
    type: integer
    low: -2
    high: 3
    step: 1
  - name: b
    type: categorical
    categories: [-1, 0, 1]
`

func TestRunStudy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sphere.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sphereStudy), 0o644))
	out := filepath.Join(dir, "out")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-study", path, "-out", out, "-plot=false", "-log-level", "error"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var got struct {
		Algorithm string                 `json:"algorithm"`
		Trials    int                    `json:"trials"`
		BestScore float64                `json:"best_score"`
		Best      map[string]interface{} `json:"best"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
	assert.Equal(t, "grid", got.Algorithm)
	assert.Equal(t, 15, got.Trials)
	assert.Equal(t, 0.0, got.BestScore)
	assert.Equal(t, map[string]interface{}{"a": 0.0, "b": 0.0}, got.Best)

	_, err := os.Stat(filepath.Join(out, report.ResultsFile))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(out, report.ConvergenceFile))
	assert.True(t, os.IsNotExist(err))
}

const randomStudy = `
name: random
algorithm: random
iterations: 6
objective: sphere
dimensions:
  - name: a
    type: real
    low: -5
    high: 5
    num_samples: 1001
`

func runRandomStudy(t *testing.T, args ...string) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "random.yaml")
	require.NoError(t, os.WriteFile(path, []byte(randomStudy), 0o644))

	var stdout, stderr bytes.Buffer
	args = append([]string{"-study", path, "-plot=false", "-log-level", "error"}, args...)
	require.Equal(t, 0, run(context.Background(), args, &stdout, &stderr), stderr.String())
	return stdout.Bytes()
}

func TestRunEnvironmentDefaults(t *testing.T) {
	out := t.TempDir()
	t.Setenv("OPT_RESULTS_DIR", out)

	t.Setenv("OPT_SEED", "7")
	fromEnv := runRandomStudy(t)
	fromFlag := runRandomStudy(t, "-seed", "7")
	assert.JSONEq(t, string(fromFlag), string(fromEnv), "OPT_SEED seeds the search")

	t.Setenv("OPT_SEED", "313")
	assert.NotEqual(t, string(fromEnv), string(runRandomStudy(t)))

	_, err := os.Stat(filepath.Join(out, report.ResultsFile))
	assert.NoError(t, err, "results land in OPT_RESULTS_DIR without -out")

	t.Setenv("OPT_SEED", "not-a-number")
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, run(context.Background(), []string{"-objectives"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Failed to load configuration")
}

func TestRunUsageErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(context.Background(), nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "-study is required")

	stderr.Reset()
	assert.Equal(t, 2, run(context.Background(), []string{"-bogus"}, &stdout, &stderr))

	assert.Equal(t, 1, run(context.Background(), []string{"-study", filepath.Join(t.TempDir(), "missing.yaml"), "-log-level", "error"}, &stdout, &stderr))
}

func TestListObjectives(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run(context.Background(), []string{"-objectives"}, &stdout, &stderr))
	assert.Equal(t, "branin\ngp_regression\nrosenbrock\nsphere\n", stdout.String())
}
