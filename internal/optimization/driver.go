// Package optimization searches a parameter space for the minimum of an
// objective with grid, random, Bayesian or TPE search.
package optimization

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/seqtune/internal/errors"
)

// DefaultSeed seeds the random source when neither Seed nor Rand is set.
const DefaultSeed = 313

// State is the lifecycle stage of a Driver.
type State string

const (
	StateConfigured State = "configured"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Observer is notified about trials and runs. Calls for grid and random
// search with several workers may arrive concurrently.
type Observer interface {
	TrialStarted(algorithm string, index int)
	TrialFinished(algorithm string, index int, score float64, duration time.Duration, err error)
	RunFinished(algorithm string, state State)
}

// ResultsSink persists the results of a completed run.
type ResultsSink interface {
	Persist(ctx context.Context, results *Results) error
}

// DriverConfig holds the run options.
type DriverConfig struct {
	// NumIterations is the number of trials for random, bayes and tpe.
	// Grid search evaluates its whole product and ignores it.
	NumIterations int
	// NumInitialPoints is the size of the space filling design for bayes and
	// the number of random startup trials for tpe.
	NumInitialPoints int
	// Seed seeds the random source; zero means DefaultSeed.
	Seed int64
	// Rand overrides Seed for grid, random and bayes.
	Rand *rand.Rand
	// Workers evaluates grid and random trials concurrently when above 1.
	Workers int
	// EvalOnBest re-evaluates the objective at the best parameters after
	// the search completes.
	EvalOnBest bool

	// Acquisition, Kernel, Xi, Kappa, LengthScale and Noise configure bayes.
	Acquisition string
	Kernel      string
	Xi          float64
	Kappa       float64
	LengthScale float64
	Noise       float64
	// X0 are evaluated first by bayes.
	X0 []Params

	Sink     ResultsSink
	Observer Observer
	Logger   *zap.Logger
}

// Driver runs one search. It is configured once and fitted once.
type Driver struct {
	algorithm string
	space     *Space
	objective Objective
	cfg       DriverConfig
	strategy  Strategy
	logger    *zap.Logger

	mu        sync.RWMutex
	state     State
	results   *Results
	bestScore float64
}

// NewDriver validates the configuration and prepares the strategy. Every
// configuration error surfaces here, before any trial runs.
func NewDriver(algorithm string, space *Space, objective Objective, cfg DriverConfig) (*Driver, error) {
	const op = "NewDriver"

	algorithm = strings.ToLower(strings.TrimSpace(algorithm))
	if !supported(algorithm) {
		return nil, errors.Newf(errors.KindUnsupportedAlgorithm, "algorithm %q is not one of %s", algorithm, strings.Join(Algorithms, ", ")).
			WithOperation(op).
			WithAlgorithm(algorithm)
	}
	if space == nil {
		return nil, errors.New(errors.KindConfiguration, "parameter space is required").
			WithOperation(op).WithAlgorithm(algorithm)
	}
	if err := objective.validate(space); err != nil {
		return nil, annotate(err, algorithm, -1)
	}
	if algorithm != AlgorithmGrid && cfg.NumIterations < 1 {
		return nil, errors.Newf(errors.KindConfiguration, "number of iterations is required for %s search", algorithm).
			WithOperation(op).WithAlgorithm(algorithm)
	}

	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	logger := cfg.Logger.Named("driver").With(zap.String("algorithm", algorithm))

	seed := cfg.Seed
	if seed == 0 {
		seed = DefaultSeed
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(seed))
	}
	if cfg.Workers > 1 && (algorithm == AlgorithmBayes || algorithm == AlgorithmTPE) {
		logger.Warn("sequential algorithm ignores workers", zap.Int("workers", cfg.Workers))
	}
	if len(cfg.X0) > 0 && algorithm != AlgorithmBayes {
		logger.Warn("initial points are only used by bayes", zap.Int("x0", len(cfg.X0)))
	}

	var (
		strategy Strategy
		err      error
	)
	switch algorithm {
	case AlgorithmGrid:
		strategy, err = newGridSearch(space, cfg.Workers)
	case AlgorithmRandom:
		strategy, err = newRandomSearch(space, cfg.NumIterations, rng, cfg.Workers)
	case AlgorithmBayes:
		strategy, err = newBayesSearch(space, bayesOptions{
			calls:         cfg.NumIterations,
			initialPoints: cfg.NumInitialPoints,
			acquisition:   cfg.Acquisition,
			xi:            cfg.Xi,
			kappa:         cfg.Kappa,
			kernel:        cfg.Kernel,
			lengthScale:   cfg.LengthScale,
			noise:         cfg.Noise,
			x0:            cfg.X0,
		}, rng, cfg.Logger)
	case AlgorithmTPE:
		strategy, err = newTPESearch(space, cfg.NumIterations, cfg.NumInitialPoints, seed, cfg.Logger)
	}
	if err != nil {
		return nil, annotate(err, algorithm, -1)
	}

	return &Driver{
		algorithm: algorithm,
		space:     space,
		objective: objective,
		cfg:       cfg,
		strategy:  strategy,
		logger:    logger,
		state:     StateConfigured,
		bestScore: math.NaN(),
	}, nil
}

func supported(algorithm string) bool {
	for _, a := range Algorithms {
		if a == algorithm {
			return true
		}
	}
	return false
}

// annotate fills in the algorithm and trial of err if it is one of ours.
func annotate(err error, algorithm string, trial int) error {
	var e *errors.Error
	if errors.As(err, &e) {
		if e.Algorithm == "" {
			e.Algorithm = algorithm
		}
		if e.Trial < 0 && trial >= 0 {
			e.Trial = trial
		}
	}
	return err
}

// Algorithm returns the algorithm name.
func (d *Driver) Algorithm() string { return d.algorithm }

// Space returns the searched space.
func (d *Driver) Space() *Space { return d.space }

// State returns the lifecycle state.
func (d *Driver) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
	if d.cfg.Observer != nil && (s == StateCompleted || s == StateFailed) {
		d.cfg.Observer.RunFinished(d.algorithm, s)
	}
}

// Fit runs the search. On failure the trials recorded so far are returned
// with the error and stay available through Results. The sink is written
// only when the run completes.
func (d *Driver) Fit(ctx context.Context) (*Results, error) {
	d.mu.Lock()
	if d.state != StateConfigured {
		state := d.state
		d.mu.Unlock()
		return nil, errors.Newf(errors.KindConfiguration, "driver is %s, a driver runs once", state).
			WithOperation("Fit").WithAlgorithm(d.algorithm)
	}
	d.state = StateRunning
	d.results = NewResults(d.algorithm)
	results := d.results
	d.mu.Unlock()

	start := time.Now()
	d.logger.Info("search started", zap.Strings("dimensions", d.space.Names()))

	if err := d.strategy.Search(ctx, d.runTrial(results)); err != nil {
		d.setState(StateFailed)
		d.logger.Error("search failed", zap.Error(err), zap.Int("trials", results.Len()))
		if ctx.Err() != nil && errors.KindOf(err) == "" {
			return results, err
		}
		return results, annotate(err, d.algorithm, -1)
	}

	if d.cfg.EvalOnBest {
		score, err := d.EvaluateAtBest(ctx)
		if err != nil {
			d.setState(StateFailed)
			return results, err
		}
		d.logger.Info("evaluated at best parameters", zap.Float64("score", score))
	}

	if d.cfg.Sink != nil {
		if err := d.cfg.Sink.Persist(ctx, results); err != nil {
			d.setState(StateFailed)
			d.logger.Error("persisting results failed", zap.Error(err))
			return results, err
		}
	}

	d.setState(StateCompleted)
	fields := []zap.Field{zap.Int("trials", results.Len()), zap.Duration("elapsed", time.Since(start))}
	if best, ok := results.Best(); ok {
		fields = append(fields, zap.Float64("best_score", best.Score), zap.Int("best_trial", best.Index))
	}
	d.logger.Info("search completed", fields...)
	return results, nil
}

// runTrial returns the RunFunc handed to the strategy: it evaluates the
// objective, records the trial and notifies the observer.
func (d *Driver) runTrial(results *Results) RunFunc {
	return func(ctx context.Context, index int, params Params) (float64, error) {
		if d.cfg.Observer != nil {
			d.cfg.Observer.TrialStarted(d.algorithm, index)
		}
		start := time.Now()
		score, err := d.objective.call(ctx, d.space, params)
		elapsed := time.Since(start)

		if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			} else if errors.KindOf(err) != errors.KindObjectiveSignature {
				err = errors.Wrap(err, errors.KindObjective, "objective failed").
					WithOperation("Fit").
					WithAlgorithm(d.algorithm).
					WithTrial(index)
			}
			if d.cfg.Observer != nil {
				d.cfg.Observer.TrialFinished(d.algorithm, index, math.NaN(), elapsed, err)
			}
			return 0, annotate(err, d.algorithm, index)
		}

		results.Add(Trial{Index: index, Params: params, Score: score, Duration: elapsed})
		if d.cfg.Observer != nil {
			d.cfg.Observer.TrialFinished(d.algorithm, index, score, elapsed, nil)
		}
		if !isFinite(score) {
			d.logger.Warn("non-finite score recorded", zap.Int("trial", index), zap.Float64("score", score))
		} else {
			d.logger.Debug("trial finished", zap.Int("trial", index), zap.Float64("score", score), zap.Duration("elapsed", elapsed))
		}
		return score, nil
	}
}

// Results returns the trials of the current or last run, nil before Fit.
func (d *Driver) Results() *Results {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.results
}

// BestParameters returns the parameters of the best trial. For bayes these
// come from the minimizer's incumbent.
func (d *Driver) BestParameters() (Params, error) {
	results := d.Results()
	if results == nil {
		return nil, errors.New(errors.KindConfiguration, "driver has not been fitted").
			WithOperation("BestParameters").WithAlgorithm(d.algorithm)
	}
	p, ok := d.strategy.BestParameters(results)
	if !ok {
		return nil, errors.New(errors.KindConfiguration, "no trial produced a finite score").
			WithOperation("BestParameters").WithAlgorithm(d.algorithm)
	}
	return p, nil
}

// RunningBest returns the best trial so far. It may be called while Fit runs.
func (d *Driver) RunningBest() (Trial, bool) {
	results := d.Results()
	if results == nil {
		return Trial{}, false
	}
	return results.Best()
}

// Convergence returns the running minimum per trial.
func (d *Driver) Convergence() []float64 {
	results := d.Results()
	if results == nil {
		return nil
	}
	return results.Convergence()
}

// EvaluateAtBest calls the objective once more at the best parameters. The
// call is not recorded as a trial.
func (d *Driver) EvaluateAtBest(ctx context.Context) (float64, error) {
	p, err := d.BestParameters()
	if err != nil {
		return math.NaN(), err
	}
	score, err := d.objective.call(ctx, d.space, p)
	if err != nil {
		return math.NaN(), errors.Wrap(err, errors.KindObjective, "evaluation at best parameters failed").
			WithOperation("EvaluateAtBest").
			WithAlgorithm(d.algorithm)
	}
	d.mu.Lock()
	d.bestScore = score
	d.mu.Unlock()
	return score, nil
}

// BestScore returns the score of the last EvaluateAtBest, NaN if none.
func (d *Driver) BestScore() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.bestScore
}
