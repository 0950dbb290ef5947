package optimization

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Trial is one evaluation of the objective.
type Trial struct {
	Index    int           `json:"index"`
	Params   Params        `json:"params"`
	Score    float64       `json:"score"`
	Duration time.Duration `json:"duration"`
}

// MarshalJSON writes non-finite scores as strings, which encoding/json
// cannot represent as numbers.
func (t Trial) MarshalJSON() ([]byte, error) {
	type plain Trial
	if isFinite(t.Score) {
		return json.Marshal(plain(t))
	}
	return json.Marshal(struct {
		plain
		Score string `json:"score"`
	}{plain(t), strconv.FormatFloat(t.Score, 'f', -1, 64)})
}

// RoundScore rounds a score to 8 decimal digits, the precision of result keys.
// Magnitudes above 1e300 are returned as is since scaling them overflows.
func RoundScore(v float64) float64 {
	if !isFinite(v) || math.Abs(v) > 1e300 {
		return v
	}
	return math.Round(v*1e8) / 1e8
}

// Results collects trials. Trials are kept in index order regardless of the
// order concurrent workers finish them.
type Results struct {
	mu        sync.RWMutex
	algorithm string
	trials    []Trial
}

// NewResults returns an empty collection for algorithm.
func NewResults(algorithm string) *Results {
	return &Results{algorithm: algorithm}
}

// Algorithm returns the algorithm that produced the trials.
func (r *Results) Algorithm() string { return r.algorithm }

// Add records t. Trials may arrive out of index order.
func (r *Results) Add(t Trial) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := sort.Search(len(r.trials), func(i int) bool { return r.trials[i].Index > t.Index })
	r.trials = append(r.trials, Trial{})
	copy(r.trials[i+1:], r.trials[i:])
	r.trials[i] = t
}

// Len returns the number of recorded trials.
func (r *Results) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.trials)
}

// Trials returns the trials in index order.
func (r *Results) Trials() []Trial {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Trial(nil), r.trials...)
}

// Ranked returns the trials by ascending score, ties by index, non-finite
// scores last.
func (r *Results) Ranked() []Trial {
	out := r.Trials()
	sort.SliceStable(out, func(a, b int) bool {
		fa, fb := isFinite(out[a].Score), isFinite(out[b].Score)
		if fa != fb {
			return fa
		}
		if !fa {
			return false
		}
		return out[a].Score < out[b].Score
	})
	return out
}

// Best returns the minimum-score trial, the earliest one on ties. Trials
// with NaN or infinite scores never win.
func (r *Results) Best() (Trial, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	best := -1
	for i, t := range r.trials {
		if !isFinite(t.Score) {
			continue
		}
		if best < 0 || t.Score < r.trials[best].Score {
			best = i
		}
	}
	if best < 0 {
		return Trial{}, false
	}
	return r.trials[best], true
}

// Convergence returns the running minimum after each trial. Entries before
// the first finite score are NaN.
func (r *Results) Convergence() []float64 {
	trials := r.Trials()
	out := make([]float64, len(trials))
	best := math.NaN()
	for i, t := range trials {
		if isFinite(t.Score) && (math.IsNaN(best) || t.Score < best) {
			best = t.Score
		}
		out[i] = best
	}
	return out
}

// Key returns the artifact key of t: the rounded score, suffixed with the
// trial index except for bayes.
func (r *Results) Key(t Trial) string {
	key := strconv.FormatFloat(RoundScore(t.Score), 'f', -1, 64)
	if r.algorithm == AlgorithmBayes {
		return key
	}
	return key + "_" + strconv.Itoa(t.Index)
}

// Keyed returns the key to parameters mapping persisted as the results
// artifact. When keys collide the earliest trial wins, not the last one
// written, so the mapping does not depend on worker completion order.
func (r *Results) Keyed() map[string]Params {
	trials := r.Trials()
	out := make(map[string]Params, len(trials))
	for _, t := range trials {
		k := r.Key(t)
		if _, ok := out[k]; ok {
			continue
		}
		out[k] = t.Params
	}
	return out
}

// MarshalJSON encodes the keyed mapping.
func (r *Results) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Keyed())
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
