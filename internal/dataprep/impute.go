package dataprep

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/copyleftdev/seqtune/internal/errors"
)

// ImputeMethod selects how missing (NaN) cells are filled.
type ImputeMethod string

const (
	ImputeFFill       ImputeMethod = "ffill"
	ImputeBFill       ImputeMethod = "bfill"
	ImputeMean        ImputeMethod = "mean"
	ImputeMedian      ImputeMethod = "median"
	ImputeConstant    ImputeMethod = "constant"
	ImputeInterpolate ImputeMethod = "interpolate"
	ImputeKNN         ImputeMethod = "knn"
)

// ImputeOptions tunes Impute.
type ImputeOptions struct {
	// Columns restricts imputation; nil means every column.
	Columns []int `json:"columns,omitempty" yaml:"columns,omitempty"`
	// Constant is the fill value for ImputeConstant.
	Constant float64 `json:"constant,omitempty" yaml:"constant,omitempty"`
	// Neighbors is k for ImputeKNN. Zero means 5.
	Neighbors int `json:"neighbors,omitempty" yaml:"neighbors,omitempty"`
}

// MissingMask reports which cells of data are NaN.
func MissingMask(data mat.Matrix) [][]bool {
	r, c := data.Dims()
	mask := make([][]bool, r)
	for i := range mask {
		mask[i] = make([]bool, c)
		for j := range mask[i] {
			mask[i][j] = math.IsNaN(data.At(i, j))
		}
	}
	return mask
}

// Impute returns a copy of data with NaN cells filled by method. Cells that
// have no observed value to derive a fill from stay NaN.
func Impute(data mat.Matrix, method ImputeMethod, opts ImputeOptions) (*mat.Dense, error) {
	const op = "Impute"

	out := mat.DenseCopyOf(data)
	rows, cols := out.Dims()

	columns := opts.Columns
	if columns == nil {
		columns = make([]int, cols)
		for j := range columns {
			columns[j] = j
		}
	}
	for _, j := range columns {
		if j < 0 || j >= cols {
			return nil, errors.Newf(errors.KindConfiguration, "column %d out of range [0, %d)", j, cols).
				WithOperation(op).WithComponent(component)
		}
	}

	var fill func(col []float64, j int)
	switch method {
	case ImputeFFill:
		fill = func(col []float64, _ int) { forwardFill(col) }
	case ImputeBFill:
		fill = func(col []float64, _ int) { backwardFill(col) }
	case ImputeMean:
		fill = func(col []float64, _ int) {
			obs := observed(col)
			if len(obs) > 0 {
				replaceMissing(col, stat.Mean(obs, nil))
			}
		}
	case ImputeMedian:
		fill = func(col []float64, _ int) {
			obs := observed(col)
			if len(obs) > 0 {
				replaceMissing(col, median(obs))
			}
		}
	case ImputeConstant:
		fill = func(col []float64, _ int) { replaceMissing(col, opts.Constant) }
	case ImputeInterpolate:
		fill = func(col []float64, _ int) { interpolate(col) }
	case ImputeKNN:
		k := opts.Neighbors
		if k <= 0 {
			k = 5
		}
		// Distances are measured on the original data so earlier fills do
		// not leak into later columns.
		orig := mat.DenseCopyOf(data)
		fill = func(col []float64, j int) { knnFill(orig, col, j, k) }
	default:
		return nil, errors.Newf(errors.KindConfiguration, "unknown imputation method %q", method).
			WithOperation(op).WithComponent(component)
	}

	col := make([]float64, rows)
	for _, j := range columns {
		mat.Col(col, j, out)
		fill(col, j)
		out.SetCol(j, col)
	}

	return out, nil
}

func observed(col []float64) []float64 {
	obs := make([]float64, 0, len(col))
	for _, v := range col {
		if !math.IsNaN(v) {
			obs = append(obs, v)
		}
	}
	return obs
}

func replaceMissing(col []float64, v float64) {
	for i := range col {
		if math.IsNaN(col[i]) {
			col[i] = v
		}
	}
}

func median(values []float64) float64 {
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func forwardFill(col []float64) {
	last := math.NaN()
	for i, v := range col {
		if math.IsNaN(v) {
			col[i] = last
		} else {
			last = v
		}
	}
}

func backwardFill(col []float64) {
	next := math.NaN()
	for i := len(col) - 1; i >= 0; i-- {
		if math.IsNaN(col[i]) {
			col[i] = next
		} else {
			next = col[i]
		}
	}
}

// interpolate fills interior gaps linearly and edges with the nearest
// observation.
func interpolate(col []float64) {
	prev := -1
	for i, v := range col {
		if math.IsNaN(v) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			step := (v - col[prev]) / float64(i-prev)
			for k := prev + 1; k < i; k++ {
				col[k] = col[prev] + step*float64(k-prev)
			}
		}
		prev = i
	}
	forwardFill(col)
	backwardFill(col)
}

// knnFill replaces each missing cell of column j with the mean of column j
// over the k nearest rows that observe it. Distance is euclidean over the
// other columns both rows observe, scaled up by the share of columns left
// out, so rows that share few columns do not look artificially close.
func knnFill(data *mat.Dense, col []float64, j, k int) {
	rows, cols := data.Dims()

	type neighbor struct {
		dist  float64
		value float64
	}

	for i := 0; i < rows; i++ {
		if !math.IsNaN(col[i]) {
			continue
		}

		var candidates []neighbor
		for r := 0; r < rows; r++ {
			v := data.At(r, j)
			if r == i || math.IsNaN(v) {
				continue
			}
			var sum float64
			shared := 0
			for c := 0; c < cols; c++ {
				if c == j {
					continue
				}
				a, b := data.At(i, c), data.At(r, c)
				if math.IsNaN(a) || math.IsNaN(b) {
					continue
				}
				sum += (a - b) * (a - b)
				shared++
			}
			if shared == 0 {
				continue
			}
			dist := math.Sqrt(sum * float64(cols) / float64(shared))
			candidates = append(candidates, neighbor{dist: dist, value: v})
		}

		if len(candidates) == 0 {
			obs := observed(mat.Col(nil, j, data))
			if len(obs) > 0 {
				col[i] = stat.Mean(obs, nil)
			}
			continue
		}

		sort.SliceStable(candidates, func(a, b int) bool { return candidates[a].dist < candidates[b].dist })
		if len(candidates) > k {
			candidates = candidates[:k]
		}
		var total float64
		for _, c := range candidates {
			total += c.value
		}
		col[i] = total / float64(len(candidates))
	}
}
