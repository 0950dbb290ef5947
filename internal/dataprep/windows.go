// Package dataprep turns raw time-ordered tables into supervised learning
// examples and fills gaps in them.
package dataprep

import (
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/seqtune/internal/errors"
)

const component = "dataprep"

// WindowConfig parameterises MakeWindows. At least one of NumInputs and
// NumOutputs must be set; the other is inferred from the column count.
type WindowConfig struct {
	NumInputs     *int `json:"num_inputs,omitempty" yaml:"num_inputs,omitempty"`
	NumOutputs    *int `json:"num_outputs,omitempty" yaml:"num_outputs,omitempty"`
	LookbackSteps int  `json:"lookback_steps" yaml:"lookback_steps"`
	// InputStepSize is the stride used inside the lookback window. Zero means 1.
	InputStepSize int `json:"input_step_size,omitempty" yaml:"input_step_size,omitempty"`
	// ForecastStepOffset is the gap between the end of the lookback window
	// and the first target row.
	ForecastStepOffset int `json:"forecast_step_offset,omitempty" yaml:"forecast_step_offset,omitempty"`
	// ForecastLength is the number of target rows per example. Zero means 1.
	ForecastLength int `json:"forecast_length,omitempty" yaml:"forecast_length,omitempty"`
	// OutputStepSize is accepted and validated but does not affect slicing.
	OutputStepSize int `json:"output_step_size,omitempty" yaml:"output_step_size,omitempty"`
}

// Count is a helper for setting NumInputs and NumOutputs.
func Count(n int) *int { return &n }

func (c WindowConfig) withDefaults() WindowConfig {
	if c.InputStepSize == 0 {
		c.InputStepSize = 1
	}
	if c.ForecastLength == 0 {
		c.ForecastLength = 1
	}
	if c.OutputStepSize == 0 {
		c.OutputStepSize = 1
	}
	return c
}

// MinRows is the smallest row count that yields at least one example.
func (c WindowConfig) MinRows() int {
	c = c.withDefaults()
	n := c.LookbackSteps*c.InputStepSize + c.ForecastStepOffset + c.ForecastLength - 1
	if n < 2 {
		n = 2
	}
	return n
}

// Batch is a dense rank-3 array laid out example-major.
type Batch struct {
	Examples int
	Rows     int
	Cols     int
	Data     []float64
}

func newBatch(examples, rows, cols int) *Batch {
	return &Batch{
		Examples: examples,
		Rows:     rows,
		Cols:     cols,
		Data:     make([]float64, examples*rows*cols),
	}
}

// Shape returns (examples, rows, cols).
func (b *Batch) Shape() [3]int {
	return [3]int{b.Examples, b.Rows, b.Cols}
}

// At returns the element at example e, row r, column c.
func (b *Batch) At(e, r, c int) float64 {
	return b.Data[(e*b.Rows+r)*b.Cols+c]
}

func (b *Batch) set(e, r, c int, v float64) {
	b.Data[(e*b.Rows+r)*b.Cols+c] = v
}

// Example returns a copy of example e as a matrix, or nil when the example
// has no rows or no columns.
func (b *Batch) Example(e int) *mat.Dense {
	if b.Rows == 0 || b.Cols == 0 {
		return nil
	}
	size := b.Rows * b.Cols
	data := make([]float64, size)
	copy(data, b.Data[e*size:(e+1)*size])
	return mat.NewDense(b.Rows, b.Cols, data)
}

// Nested returns the batch as nested slices.
func (b *Batch) Nested() [][][]float64 {
	out := make([][][]float64, b.Examples)
	for e := range out {
		out[e] = make([][]float64, b.Rows)
		for r := range out[e] {
			out[e][r] = make([]float64, b.Cols)
			for c := range out[e][r] {
				out[e][r][c] = b.At(e, r, c)
			}
		}
	}
	return out
}

// Windows holds the three arrays produced by MakeWindows.
type Windows struct {
	// X has shape (examples, lookback, inputs).
	X *Batch
	// PrevY has shape (examples, lookback-1, outputs).
	PrevY *Batch
	// Y has shape (examples, outputs, forecast length).
	Y *Batch
}

// Len returns the number of examples.
func (w *Windows) Len() int { return w.X.Examples }

// MakeWindows slices data (rows are time steps, columns are features with
// the outputs last) into lookback input windows, previous-output windows and
// forecast targets.
func MakeWindows(data mat.Matrix, cfg WindowConfig) (*Windows, error) {
	const op = "MakeWindows"

	rows, features := data.Dims()
	cfg = cfg.withDefaults()

	if cfg.NumInputs == nil && cfg.NumOutputs == nil {
		return nil, errors.New(errors.KindConfiguration, "either num_inputs or num_outputs must be provided").
			WithOperation(op).WithComponent(component)
	}
	var nIn, nOut int
	switch {
	case cfg.NumInputs == nil:
		nOut = *cfg.NumOutputs
		nIn = features - nOut
	case cfg.NumOutputs == nil:
		nIn = *cfg.NumInputs
		nOut = features - nIn
	default:
		nIn, nOut = *cfg.NumInputs, *cfg.NumOutputs
	}
	if nIn < 0 || nOut < 0 || nIn+nOut != features {
		return nil, errors.Newf(errors.KindConfiguration, "num_inputs %d + num_outputs %d != total features %d", nIn, nOut, features).
			WithOperation(op).WithComponent(component)
	}

	switch {
	case cfg.LookbackSteps < 1:
		return nil, errors.Newf(errors.KindConfiguration, "lookback_steps must be >= 1, got %d", cfg.LookbackSteps).
			WithOperation(op).WithComponent(component)
	case cfg.InputStepSize < 1:
		return nil, errors.Newf(errors.KindConfiguration, "input_step_size must be >= 1, got %d", cfg.InputStepSize).
			WithOperation(op).WithComponent(component)
	case cfg.ForecastStepOffset < 0:
		return nil, errors.Newf(errors.KindConfiguration, "forecast_step_offset must be >= 0, got %d", cfg.ForecastStepOffset).
			WithOperation(op).WithComponent(component)
	case cfg.ForecastLength < 1:
		return nil, errors.Newf(errors.KindConfiguration, "forecast_length must be >= 1, got %d", cfg.ForecastLength).
			WithOperation(op).WithComponent(component)
	case cfg.OutputStepSize < 1:
		return nil, errors.Newf(errors.KindConfiguration, "output_step_size must be >= 1, got %d", cfg.OutputStepSize).
			WithOperation(op).WithComponent(component)
	}

	if rows <= 1 {
		return nil, errors.Newf(errors.KindInsufficientData, "can not create windows from data with %d rows", rows).
			WithOperation(op).WithComponent(component)
	}

	L, S := cfg.LookbackSteps, cfg.InputStepSize
	examples := rows - L*S + 1 - cfg.ForecastStepOffset - cfg.ForecastLength + 1
	if examples <= 0 {
		return nil, errors.Newf(errors.KindInsufficientData, "%d rows yield no examples, at least %d required", rows, cfg.MinRows()).
			WithOperation(op).WithComponent(component)
	}

	prevRows := L - 1
	w := &Windows{
		X:     newBatch(examples, L, nIn),
		PrevY: newBatch(examples, prevRows, nOut),
		Y:     newBatch(examples, nOut, cfg.ForecastLength),
	}

	for i := 0; i < examples; i++ {
		for r := 0; r < L; r++ {
			src := i + r*S
			for c := 0; c < nIn; c++ {
				w.X.set(i, r, c, data.At(src, c))
			}
			if r < prevRows {
				for c := 0; c < nOut; c++ {
					w.PrevY.set(i, r, c, data.At(src, nIn+c))
				}
			}
		}

		start := i + L*S + cfg.ForecastStepOffset - S
		for f := 0; f < cfg.ForecastLength; f++ {
			for c := 0; c < nOut; c++ {
				w.Y.set(i, c, f, data.At(start+f, nIn+c))
			}
		}
	}

	return w, nil
}
