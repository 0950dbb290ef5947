package report

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/seqtune/internal/optimization"
)

func sampleResults() *optimization.Results {
	r := optimization.NewResults(optimization.AlgorithmRandom)
	r.Add(optimization.Trial{Index: 0, Params: optimization.Params{"x": 1.0}, Score: 4})
	r.Add(optimization.Trial{Index: 1, Params: optimization.Params{"x": math.NaN()}, Score: math.NaN()})
	r.Add(optimization.Trial{Index: 2, Params: optimization.Params{"x": 0.5}, Score: 0.25})
	return r
}

func TestWriteResults(t *testing.T) {
	r := optimization.NewResults(optimization.AlgorithmGrid)
	r.Add(optimization.Trial{Index: 0, Params: optimization.Params{"x": 1.0, "act": "relu"}, Score: 0.123456789})
	r.Add(optimization.Trial{Index: 1, Params: optimization.Params{"x": 2.0, "act": "tanh"}, Score: 3})

	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, r))

	want := "{\n" +
		"    \"0.12345679_0\": {\n" +
		"        \"act\": \"relu\",\n" +
		"        \"x\": 1\n" +
		"    },\n" +
		"    \"3_1\": {\n" +
		"        \"act\": \"tanh\",\n" +
		"        \"x\": 2\n" +
		"    }\n" +
		"}\n"
	assert.Equal(t, want, buf.String())
}

func TestConvergencePlotRendersPNG(t *testing.T) {
	r := optimization.NewResults(optimization.AlgorithmBayes)
	for i, s := range []float64{math.NaN(), 3, 2, 2.5, 1} {
		r.Add(optimization.Trial{Index: i, Params: optimization.Params{"x": float64(i)}, Score: s})
	}

	var buf bytes.Buffer
	require.NoError(t, WriteConvergencePlot(&buf, r))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 0)
}

func TestConvergencePlotWithoutFiniteScores(t *testing.T) {
	r := optimization.NewResults(optimization.AlgorithmTPE)
	r.Add(optimization.Trial{Index: 0, Score: math.NaN()})

	p, err := ConvergencePlot(r)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestDirectoryPersist(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	d := &Directory{Path: dir, Plot: true}

	// NaN parameter values cannot be encoded; keep the sample finite.
	r := optimization.NewResults(optimization.AlgorithmRandom)
	r.Add(optimization.Trial{Index: 0, Params: optimization.Params{"x": 1.0}, Score: 4})
	r.Add(optimization.Trial{Index: 1, Params: optimization.Params{"x": 0.5}, Score: 0.25})

	require.NoError(t, d.Persist(context.Background(), r))

	data, err := os.ReadFile(filepath.Join(dir, ResultsFile))
	require.NoError(t, err)
	var keyed map[string]map[string]float64
	require.NoError(t, json.Unmarshal(data, &keyed))
	assert.Equal(t, map[string]map[string]float64{
		"4_0":    {"x": 1},
		"0.25_1": {"x": 0.5},
	}, keyed)

	_, err = os.Stat(filepath.Join(dir, ConvergenceFile))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temporary files are left behind")
}

func TestDirectoryPersistFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	d := &Directory{Path: dir, Plot: true}

	// encoding/json rejects the NaN parameter, so rendering fails.
	err := d.Persist(context.Background(), sampleResults())
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDirectoryPersistCancelled(t *testing.T) {
	dir := t.TempDir()
	d := &Directory{Path: dir}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := optimization.NewResults(optimization.AlgorithmGrid)
	r.Add(optimization.Trial{Index: 0, Params: optimization.Params{"x": 1.0}, Score: 1})
	require.ErrorIs(t, d.Persist(ctx, r), context.Canceled)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDirectoryPersistReplacesEarlierRun(t *testing.T) {
	dir := t.TempDir()

	first := optimization.NewResults(optimization.AlgorithmGrid)
	first.Add(optimization.Trial{Index: 0, Params: optimization.Params{"x": 1.0}, Score: 1})
	require.NoError(t, (&Directory{Path: dir, Plot: true}).Persist(context.Background(), first))

	second := optimization.NewResults(optimization.AlgorithmGrid)
	second.Add(optimization.Trial{Index: 0, Params: optimization.Params{"x": 2.0}, Score: 2})
	require.NoError(t, (&Directory{Path: dir}).Persist(context.Background(), second))

	_, err := os.Stat(filepath.Join(dir, ConvergenceFile))
	assert.True(t, os.IsNotExist(err), "the plot of the earlier run is removed")

	data, err := os.ReadFile(filepath.Join(dir, ResultsFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"2_0"`)
	assert.NotContains(t, string(data), `"1_0"`)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDirectoryAsDriverSink(t *testing.T) {
	dir := t.TempDir()
	dim, err := optimization.NewReal("x", optimization.Range(-1, 1), optimization.NumSamples(3))
	require.NoError(t, err)
	space, err := optimization.NewSpace(dim)
	require.NoError(t, err)

	objective := optimization.Named(func(_ context.Context, p optimization.Params) (float64, error) {
		x, err := p.Float("x")
		return x * x, err
	})
	d, err := optimization.NewDriver(optimization.AlgorithmGrid, space, objective, optimization.DriverConfig{
		Sink: &Directory{Path: dir},
	})
	require.NoError(t, err)
	_, err = d.Fit(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, ResultsFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"0_1"`)

	_, err = os.Stat(filepath.Join(dir, ConvergenceFile))
	assert.True(t, os.IsNotExist(err))
}
