package bayesian

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/seqtune/internal/errors"
	"github.com/copyleftdev/seqtune/internal/optimization/acquisition"
	"github.com/copyleftdev/seqtune/internal/optimization/kernels"
)

const (
	defaultInitialPoints = 10
	defaultNoiseVar      = 1e-6
	candidatePoints      = 256
)

// Func is the function being minimized.
type Func func(ctx context.Context, x []float64) (float64, error)

// Config configures a Minimizer.
type Config struct {
	// Bounds holds [low, high] for every coordinate.
	Bounds [][2]float64
	// NumCalls is the total number of evaluations, including X0 and the
	// initial design.
	NumCalls int
	// NumInitialPoints is the size of the Latin hypercube design evaluated
	// before the surrogate is used. Zero means 10.
	NumInitialPoints int
	// X0 are evaluated first and count towards NumCalls.
	X0 [][]float64
	// Rand drives the initial design and acquisition restarts.
	Rand *rand.Rand
	// Acquisition defaults to expected improvement with xi = 0.01.
	Acquisition acquisition.Function
	// Kernel defaults to Matern 5/2 with unit hyperparameters.
	Kernel   kernels.Kernel
	NoiseVar float64
	// Transform maps a continuous proposal onto the feasible set, e.g.
	// rounding integer coordinates. It must return a point within Bounds.
	Transform func([]float64) []float64
	Logger    *zap.Logger
}

// Result holds every evaluated point in call order.
type Result struct {
	X        [][]float64
	FuncVals []float64
	// BestX and BestF are the minimum over finite FuncVals, first wins.
	BestX []float64
	BestF float64
}

// Minimizer runs Gaussian process based minimization: a space filling
// initial design, then one acquisition maximization per call.
type Minimizer struct {
	cfg    Config
	gp     *GP
	rng    *rand.Rand
	logger *zap.Logger

	mu      sync.RWMutex
	xs      [][]float64
	ys      []float64
	bestIdx int
}

// NewMinimizer validates cfg and fills defaults.
func NewMinimizer(cfg Config) (*Minimizer, error) {
	const op = "NewMinimizer"

	if len(cfg.Bounds) == 0 {
		return nil, errors.New(errors.KindConfiguration, "at least one bounded coordinate is required").
			WithOperation(op).WithComponent("bayesian")
	}
	for i, b := range cfg.Bounds {
		if !(b[0] <= b[1]) {
			return nil, errors.Newf(errors.KindConfiguration, "coordinate %d has invalid bounds [%v, %v]", i, b[0], b[1]).
				WithOperation(op).WithComponent("bayesian")
		}
	}
	if cfg.NumCalls < 1 {
		return nil, errors.Newf(errors.KindConfiguration, "number of calls must be positive, got %d", cfg.NumCalls).
			WithOperation(op).WithComponent("bayesian")
	}
	for _, x := range cfg.X0 {
		if len(x) != len(cfg.Bounds) {
			return nil, errors.Newf(errors.KindConfiguration, "initial point has %d coordinates, expected %d", len(x), len(cfg.Bounds)).
				WithOperation(op).WithComponent("bayesian")
		}
	}

	if cfg.NumInitialPoints < 1 {
		cfg.NumInitialPoints = defaultInitialPoints
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(313))
	}
	if cfg.Acquisition == nil {
		cfg.Acquisition = acquisition.NewExpectedImprovement(math.Inf(1), 0.01)
	}
	if cfg.Kernel == nil {
		cfg.Kernel = kernels.NewMatern52Kernel(1.0, 1.0)
	}
	if cfg.NoiseVar <= 0 {
		cfg.NoiseVar = defaultNoiseVar
	}
	if cfg.Transform == nil {
		cfg.Transform = func(x []float64) []float64 { return x }
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	logger := cfg.Logger.Named("bayesian")
	return &Minimizer{
		cfg:     cfg,
		gp:      NewGP(cfg.Kernel, cfg.NoiseVar, WithGPLogger(logger)),
		rng:     cfg.Rand,
		logger:  logger,
		bestIdx: -1,
	}, nil
}

// Best returns the running minimum. It is safe to call while Minimize runs.
func (m *Minimizer) Best() ([]float64, float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.bestIdx < 0 {
		return nil, math.NaN(), false
	}
	return append([]float64(nil), m.xs[m.bestIdx]...), m.ys[m.bestIdx], true
}

// Minimize evaluates f NumCalls times. If f fails or ctx is cancelled the
// points evaluated so far are returned along with the error.
func (m *Minimizer) Minimize(ctx context.Context, f Func) (*Result, error) {
	plan := m.initialPlan()

	for call := 0; call < m.cfg.NumCalls; call++ {
		if err := ctx.Err(); err != nil {
			return m.result(), err
		}

		var x []float64
		if call < len(plan) {
			x = plan[call]
		} else {
			var err error
			if x, err = m.propose(); err != nil {
				return m.result(), err
			}
		}

		y, err := f(ctx, x)
		if err != nil {
			return m.result(), err
		}
		m.record(x, y)
	}

	return m.result(), nil
}

// initialPlan is X0 followed by a Latin hypercube design, capped at NumCalls.
func (m *Minimizer) initialPlan() [][]float64 {
	plan := make([][]float64, 0, len(m.cfg.X0)+m.cfg.NumInitialPoints)
	for _, x := range m.cfg.X0 {
		plan = append(plan, m.cfg.Transform(append([]float64(nil), x...)))
	}
	for _, x := range latinHypercube(m.rng, m.cfg.Bounds, m.cfg.NumInitialPoints) {
		plan = append(plan, m.cfg.Transform(x))
	}
	if len(plan) > m.cfg.NumCalls {
		plan = plan[:m.cfg.NumCalls]
	}
	return plan
}

func (m *Minimizer) record(x []float64, y float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.xs = append(m.xs, append([]float64(nil), x...))
	m.ys = append(m.ys, y)
	if isFinite(y) && (m.bestIdx < 0 || y < m.ys[m.bestIdx]) {
		m.bestIdx = len(m.ys) - 1
	}
}

func (m *Minimizer) result() *Result {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := &Result{
		X:        make([][]float64, len(m.xs)),
		FuncVals: append([]float64(nil), m.ys...),
		BestF:    math.NaN(),
	}
	for i, x := range m.xs {
		res.X[i] = append([]float64(nil), x...)
	}
	if m.bestIdx >= 0 {
		res.BestX = append([]float64(nil), m.xs[m.bestIdx]...)
		res.BestF = m.ys[m.bestIdx]
	}
	return res
}

// trainingData substitutes the worst finite value for non-finite ones so
// failed evaluations repel the search instead of breaking the surrogate.
func (m *Minimizer) trainingData() (*mat.Dense, *mat.VecDense, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	worst := math.Inf(-1)
	for _, y := range m.ys {
		if isFinite(y) && y > worst {
			worst = y
		}
	}
	if math.IsInf(worst, -1) {
		return nil, nil, false
	}

	n, d := len(m.xs), len(m.cfg.Bounds)
	X := mat.NewDense(n, d, nil)
	y := mat.NewVecDense(n, nil)
	for i := range m.xs {
		X.SetRow(i, m.xs[i])
		v := m.ys[i]
		if !isFinite(v) {
			v = worst
		}
		y.SetVec(i, v)
	}
	return X, y, true
}

// propose fits the surrogate and maximizes the acquisition function.
func (m *Minimizer) propose() ([]float64, error) {
	X, y, ok := m.trainingData()
	if !ok {
		m.logger.Debug("no finite observations, sampling uniformly")
		return m.cfg.Transform(m.uniform()), nil
	}
	if err := m.gp.Fit(X, y); err != nil {
		return nil, err
	}

	_, best, _ := m.Best()
	m.cfg.Acquisition.UpdateBest(best)

	x := m.maximizeAcquisition()
	return m.cfg.Transform(x), nil
}

func (m *Minimizer) acquisitionAt(points *mat.Dense) []float64 {
	n, _ := points.Dims()
	out := make([]float64, n)
	mu, variance, err := m.gp.Predict(points)
	if err != nil {
		for i := range out {
			out[i] = math.Inf(-1)
		}
		return out
	}
	for i := range out {
		out[i] = m.cfg.Acquisition.Compute(mu.AtVec(i), math.Sqrt(variance.AtVec(i)))
	}
	return out
}

// maximizeAcquisition scores random candidates, then polishes the best of
// them and the incumbent with Nelder-Mead.
func (m *Minimizer) maximizeAcquisition() []float64 {
	d := len(m.cfg.Bounds)

	candidates := mat.NewDense(candidatePoints, d, nil)
	for i := 0; i < candidatePoints; i++ {
		candidates.SetRow(i, m.uniform())
	}
	scores := m.acquisitionAt(candidates)
	order := make([]int, candidatePoints)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	nStarts := 5 + int(5*math.Sqrt(float64(d)))
	starts := make([][]float64, 0, nStarts)
	if bestX, _, ok := m.Best(); ok {
		starts = append(starts, bestX)
	}
	for i := 0; len(starts) < nStarts && i < candidatePoints; i++ {
		starts = append(starts, candidates.RawRowView(order[i]))
	}

	bestX := append([]float64(nil), candidates.RawRowView(order[0])...)
	bestVal := -scores[order[0]]

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			p := mat.NewDense(1, d, m.clamp(x))
			return -m.acquisitionAt(p)[0]
		},
	}
	settings := &optimize.Settings{
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-6,
			Relative:   1e-6,
			Iterations: 100,
		},
		MajorIterations: 200,
	}

	for _, start := range starts {
		method := &optimize.NelderMead{SimplexSize: 0.2}
		result, err := optimize.Minimize(problem, append([]float64(nil), start...), settings, method)
		if err != nil || result == nil {
			continue
		}
		if result.F < bestVal {
			bestVal = result.F
			bestX = m.clamp(result.X)
		}
	}

	return bestX
}

func (m *Minimizer) clamp(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Max(m.cfg.Bounds[i][0], math.Min(v, m.cfg.Bounds[i][1]))
	}
	return out
}

func (m *Minimizer) uniform() []float64 {
	x := make([]float64, len(m.cfg.Bounds))
	for i, b := range m.cfg.Bounds {
		x[i] = b[0] + m.rng.Float64()*(b[1]-b[0])
	}
	return x
}

// latinHypercube draws n points with exactly one point per stratum in every
// coordinate.
func latinHypercube(rng *rand.Rand, bounds [][2]float64, n int) [][]float64 {
	samples := make([][]float64, n)
	for j := range samples {
		samples[j] = make([]float64, len(bounds))
	}

	strata := make([]float64, n)
	for i, b := range bounds {
		for j := range strata {
			strata[j] = (float64(j) + rng.Float64()) / float64(n)
		}
		rng.Shuffle(n, func(k, l int) { strata[k], strata[l] = strata[l], strata[k] })
		for j := range samples {
			samples[j][i] = b[0] + strata[j]*(b[1]-b[0])
		}
	}
	return samples
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
