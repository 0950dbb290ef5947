// Package scoring implements the regression error metrics used to score
// models built from trial parameters.
package scoring

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/copyleftdev/seqtune/internal/errors"
)

// Metric scores predictions against observations.
type Metric func(yTrue, yPred mat.Vector) (float64, error)

func checkLengths(op string, yTrue, yPred mat.Vector) (int, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.New(errors.KindConfiguration, "empty vector").WithOperation(op).WithComponent("scoring")
	}
	if yPred.Len() != n {
		return 0, errors.Newf(errors.KindConfiguration, "dimension mismatch: %d observations, %d predictions", n, yPred.Len()).
			WithOperation(op).WithComponent("scoring")
	}
	return n, nil
}

// MSE is the mean squared error.
func MSE(yTrue, yPred mat.Vector) (float64, error) {
	n, err := checkLengths("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var sum float64
	for i := 0; i < n; i++ {
		diff := yTrue.AtVec(i) - yPred.AtVec(i)
		sum += diff * diff
	}
	return sum / float64(n), nil
}

// RMSE is the root mean squared error.
func RMSE(yTrue, yPred mat.Vector) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE is the mean absolute error.
func MAE(yTrue, yPred mat.Vector) (float64, error) {
	n, err := checkLengths("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(yTrue.AtVec(i) - yPred.AtVec(i))
	}
	return sum / float64(n), nil
}

// R2 is the squared Pearson correlation between observations and predictions.
func R2(yTrue, yPred mat.Vector) (float64, error) {
	n, err := checkLengths("R2", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	t, p := toSlice(yTrue, n), toSlice(yPred, n)
	r := stat.Correlation(t, p, nil)
	return r * r, nil
}

// NSE is the Nash-Sutcliffe efficiency, 1 - SSE/SST. Constant observations
// yield -Inf unless predictions match exactly.
func NSE(yTrue, yPred mat.Vector) (float64, error) {
	n, err := checkLengths("NSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	t := toSlice(yTrue, n)
	mean := stat.Mean(t, nil)

	var sse, sst float64
	for i := 0; i < n; i++ {
		d := t[i] - yPred.AtVec(i)
		sse += d * d
		m := t[i] - mean
		sst += m * m
	}
	if sst == 0 {
		if sse == 0 {
			return 1, nil
		}
		return math.Inf(-1), nil
	}
	return 1 - sse/sst, nil
}

// Negate turns a higher-is-better metric into a loss.
func Negate(m Metric) Metric {
	return func(yTrue, yPred mat.Vector) (float64, error) {
		v, err := m(yTrue, yPred)
		return -v, err
	}
}

// Loss returns the metric registered under name as a loss: error metrics
// are returned unchanged, efficiency metrics are negated.
func Loss(name string) (Metric, error) {
	switch strings.ToLower(name) {
	case "", "mse":
		return MSE, nil
	case "rmse":
		return RMSE, nil
	case "mae":
		return MAE, nil
	case "r2":
		return Negate(R2), nil
	case "nse":
		return Negate(NSE), nil
	}
	return nil, errors.Newf(errors.KindConfiguration, "unknown metric %q", name).WithComponent("scoring")
}

func toSlice(v mat.Vector, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
