package optimization

import (
	"context"
	"fmt"
	"math"

	"github.com/c-bata/goptuna"
	"github.com/c-bata/goptuna/tpe"
	"go.uber.org/zap"

	"github.com/copyleftdev/seqtune/internal/errors"
	"github.com/copyleftdev/seqtune/internal/logging"
)

const defaultStartupTrials = 10

// tpeSearch runs a goptuna study with the TPE sampler. Non-finite scores are
// recorded as they are but reported to the sampler as the worst finite score
// seen so far.
type tpeSearch struct {
	space   *Space
	trials  int
	startup int
	seed    int64
	logger  *zap.Logger
	// choices holds the string form goptuna suggests for each categorical
	// dimension, mapped back to the category.
	choices map[string]map[string]interface{}
	labels  map[string][]string
	// fixed holds dimensions with a single possible value. goptuna cannot
	// sample an empty range, so they bypass the sampler.
	fixed map[string]interface{}
}

func newTPESearch(space *Space, trials, startup int, seed int64, logger *zap.Logger) (*tpeSearch, error) {
	if startup < 1 {
		startup = defaultStartupTrials
	}
	t := &tpeSearch{
		space:   space,
		trials:  trials,
		startup: startup,
		seed:    seed,
		logger:  logger,
		choices: make(map[string]map[string]interface{}),
		labels:  make(map[string][]string),
		fixed:   make(map[string]interface{}),
	}
	for _, d := range space.Dimensions() {
		if b := d.Bounds(); b[0] == b[1] {
			t.fixed[d.Name()] = d.Decode(b[0])
			continue
		}
		c, ok := d.(*Categorical)
		if !ok {
			continue
		}
		byLabel := make(map[string]interface{})
		for _, v := range c.Categories() {
			label := fmt.Sprint(v)
			if _, dup := byLabel[label]; dup {
				return nil, errors.Newf(errors.KindConfiguration, "categories print identically as %q", label).
					WithOperation("newTPESearch").
					WithDimension(d.Name())
			}
			byLabel[label] = v
			t.labels[d.Name()] = append(t.labels[d.Name()], label)
		}
		t.choices[d.Name()] = byLabel
	}
	return t, nil
}

func (t *tpeSearch) Algorithm() string { return AlgorithmTPE }

func (t *tpeSearch) suggest(trial goptuna.Trial) (Params, error) {
	p := make(Params, t.space.Len())
	for _, d := range t.space.Dimensions() {
		name := d.Name()
		if v, ok := t.fixed[name]; ok {
			p[name] = v
			continue
		}
		switch dim := d.(type) {
		case *Categorical:
			label, err := trial.SuggestCategorical(name, t.labels[name])
			if err != nil {
				return nil, err
			}
			p[name] = t.choices[name][label]
		case *Integer:
			v, err := trial.SuggestInt(name, dim.Low(), dim.High())
			if err != nil {
				return nil, err
			}
			p[name] = v
		default:
			b := d.Bounds()
			v, err := trial.SuggestFloat(name, b[0], b[1])
			if err != nil {
				return nil, err
			}
			p[name] = v
		}
	}
	return p, nil
}

func (t *tpeSearch) Search(ctx context.Context, run RunFunc) error {
	sampler := tpe.NewSampler(
		tpe.SamplerOptionSeed(t.seed),
		tpe.SamplerOptionNumberOfStartupTrials(t.startup),
	)
	study, err := goptuna.CreateStudy(
		"seqtune",
		goptuna.StudyOptionSampler(sampler),
		goptuna.StudyOptionDirection(goptuna.StudyDirectionMinimize),
		goptuna.StudyOptionLogger(logging.NewKVAdapter(t.logger.Named("tpe"))),
	)
	if err != nil {
		return errors.Wrap(err, errors.KindDependencyVersion, "create study").WithAlgorithm(AlgorithmTPE)
	}

	var (
		index  int
		worst  = math.Inf(-1)
		runErr error
	)
	objective := func(trial goptuna.Trial) (float64, error) {
		if runErr != nil {
			return 0, runErr
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			return 0, err
		}
		p, err := t.suggest(trial)
		if err != nil {
			runErr = errors.Wrap(err, errors.KindDependencyVersion, "suggest parameters").WithAlgorithm(AlgorithmTPE)
			return 0, runErr
		}

		score, err := run(ctx, index, p)
		index++
		if err != nil {
			runErr = err
			return 0, err
		}
		if !isFinite(score) {
			if math.IsInf(worst, -1) {
				return math.MaxFloat64 / 2, nil
			}
			return worst, nil
		}
		if score > worst {
			worst = score
		}
		return score, nil
	}

	err = study.Optimize(objective, t.trials)
	if runErr != nil {
		return runErr
	}
	if err != nil {
		return errors.Wrap(err, errors.KindDependencyVersion, "optimize study").WithAlgorithm(AlgorithmTPE)
	}
	return nil
}

func (t *tpeSearch) BestParameters(results *Results) (Params, bool) {
	return bestFromResults(results)
}
