// Package report persists search results: the keyed results document and a
// convergence plot.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/copyleftdev/seqtune/internal/errors"
	"github.com/copyleftdev/seqtune/internal/optimization"
)

// Artifact file names.
const (
	ResultsFile     = "eval_results.json"
	ConvergenceFile = "convergence.png"
)

// Directory writes artifacts into Path. It implements
// optimization.ResultsSink.
type Directory struct {
	Path string
	// Plot enables convergence.png.
	Plot   bool
	Logger *zap.Logger
}

var _ optimization.ResultsSink = (*Directory)(nil)

type artifact struct {
	name   string
	render func(io.Writer) error
}

// Persist renders every artifact into a temporary file and renames them into
// place only when all of them rendered. Each rename is atomic, the set is
// not: a reader racing Persist may briefly see the directory without
// artifacts.
func (d *Directory) Persist(ctx context.Context, results *optimization.Results) error {
	const op = "Persist"

	if results == nil {
		return errors.New(errors.KindConfiguration, "no results to persist").WithOperation(op).WithComponent("report")
	}
	if err := os.MkdirAll(d.Path, 0o755); err != nil {
		return errors.Wrapf(err, errors.KindConfiguration, "create results directory %s", d.Path).
			WithOperation(op).WithComponent("report")
	}

	artifacts := []artifact{{ResultsFile, func(w io.Writer) error { return WriteResults(w, results) }}}
	if d.Plot {
		artifacts = append(artifacts, artifact{ConvergenceFile, func(w io.Writer) error {
			return WriteConvergencePlot(w, results)
		}})
	}

	temps := make([]string, 0, len(artifacts))
	cleanup := func() {
		for _, name := range temps {
			os.Remove(name)
		}
	}

	for _, a := range artifacts {
		name, err := renderTemp(d.Path, a)
		if err != nil {
			cleanup()
			return errors.Wrapf(err, errors.KindConfiguration, "render %s", a.name).
				WithOperation(op).WithComponent("report")
		}
		temps = append(temps, name)
	}
	if err := ctx.Err(); err != nil {
		cleanup()
		return err
	}

	// Artifacts of an earlier run go first, so the directory never mixes
	// two runs. A failed rename removes what was already moved.
	for _, name := range []string{ResultsFile, ConvergenceFile} {
		if err := os.Remove(filepath.Join(d.Path, name)); err != nil && !os.IsNotExist(err) {
			cleanup()
			return errors.Wrapf(err, errors.KindConfiguration, "remove stale %s", name).
				WithOperation(op).WithComponent("report")
		}
	}
	for i, a := range artifacts {
		if err := os.Rename(temps[i], filepath.Join(d.Path, a.name)); err != nil {
			cleanup()
			for _, moved := range artifacts[:i] {
				os.Remove(filepath.Join(d.Path, moved.name))
			}
			return errors.Wrapf(err, errors.KindConfiguration, "move %s into place", a.name).
				WithOperation(op).WithComponent("report")
		}
	}

	if d.Logger != nil {
		d.Logger.Info("results persisted",
			zap.String("dir", d.Path),
			zap.Int("trials", results.Len()),
			zap.Bool("plot", d.Plot))
	}
	return nil
}

func renderTemp(dir string, a artifact) (string, error) {
	f, err := os.CreateTemp(dir, "."+a.name+"-*")
	if err != nil {
		return "", err
	}
	if err := a.render(f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// WriteResults writes the key to parameters mapping with sorted keys and
// four space indentation.
func WriteResults(w io.Writer, results *optimization.Results) error {
	data, err := json.MarshalIndent(results.Keyed(), "", "    ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// ConvergencePlot plots the running minimum against the trial number.
// Trials before the first finite score are left out.
func ConvergencePlot(results *optimization.Results) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Convergence plot (%s)", results.Algorithm())
	p.X.Label.Text = "Number of calls n"
	p.Y.Label.Text = "min f(x) after n calls"
	p.Add(plotter.NewGrid())

	curve := results.Convergence()
	pts := make(plotter.XYs, 0, len(curve))
	for i, v := range curve {
		if math.IsNaN(v) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(i + 1), Y: v})
	}
	if len(pts) == 0 {
		return p, nil
	}

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil, err
	}
	line.Color = color.RGBA{B: 200, A: 255}
	line.LineStyle.Width = vg.Points(1.5)
	points.Radius = vg.Points(2)
	p.Add(line, points)
	return p, nil
}

// WriteConvergencePlot renders ConvergencePlot as PNG.
func WriteConvergencePlot(w io.Writer, results *optimization.Results) error {
	p, err := ConvergencePlot(results)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
