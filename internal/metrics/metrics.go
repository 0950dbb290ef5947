// Package metrics exports search progress to Prometheus.
package metrics

import (
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/copyleftdev/seqtune/internal/optimization"
)

const namespace = "seqtune"

// Trial outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeNaN   = "nan"
	OutcomeError = "error"
)

// Recorder implements optimization.Observer.
type Recorder struct {
	trials   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	active   prometheus.Gauge
}

var _ optimization.Observer = (*Recorder)(nil)

// NewRecorder creates the collectors and registers them with reg. A nil reg
// skips registration.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		trials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trials_total",
			Help:      "Objective evaluations by algorithm and outcome.",
		}, []string{"algorithm", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trial_duration_seconds",
			Help:      "Wall time of one objective evaluation.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"algorithm"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished searches by algorithm and final state.",
		}, []string{"algorithm", "state"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_trials",
			Help:      "Objective evaluations in progress.",
		}),
	}
	if reg == nil {
		return r, nil
	}
	for _, c := range []prometheus.Collector{r.trials, r.duration, r.runs, r.active} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) TrialStarted(string, int) {
	r.active.Inc()
}

func (r *Recorder) TrialFinished(algorithm string, _ int, score float64, d time.Duration, err error) {
	r.active.Dec()
	r.duration.WithLabelValues(algorithm).Observe(d.Seconds())

	outcome := OutcomeOK
	switch {
	case err != nil:
		outcome = OutcomeError
	case math.IsNaN(score) || math.IsInf(score, 0):
		outcome = OutcomeNaN
	}
	r.trials.WithLabelValues(algorithm, outcome).Inc()
}

func (r *Recorder) RunFinished(algorithm string, state optimization.State) {
	r.runs.WithLabelValues(algorithm, string(state)).Inc()
}
