package server

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/copyleftdev/seqtune/internal/config"
	"github.com/copyleftdev/seqtune/internal/errors"
	"github.com/copyleftdev/seqtune/internal/logging"
	"github.com/copyleftdev/seqtune/internal/optimization"
	"github.com/copyleftdev/seqtune/internal/report"
	"github.com/copyleftdev/seqtune/internal/study"
)

// Logger defines the logging interface used by the server.
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
	Zap() *zap.Logger
}

// Job statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Job is one study run. Mutable fields are guarded by Server.jobsMu.
type Job struct {
	ID          string
	Status      string
	StartTime   time.Time
	EndTime     *time.Time
	LastUpdated time.Time
	Spec        *study.Spec
	ResultsDir  string
	Err         error
	CancelFunc  context.CancelFunc

	driver   *optimization.Driver
	planned  int
	finished int
}

// Server implements the HTTP and JSON-RPC API. Studies run asynchronously,
// at most MaxJobs at a time.
type Server struct {
	cfg      *config.Config
	logger   Logger
	observer optimization.Observer

	jobs   map[string]*Job
	jobsMu sync.RWMutex
	slots  chan struct{}
	wg     sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithObserver forwards trial events of every job to o, e.g. a metrics
// recorder.
func WithObserver(o optimization.Observer) Option {
	return func(s *Server) { s.observer = o }
}

// NewServer creates a new server instance with the given config and logger.
func NewServer(cfg *config.Config, logger Logger, opts ...Option) *Server {
	maxJobs := cfg.Optimization.MaxJobs
	if maxJobs < 1 {
		maxJobs = 1
	}
	s := &Server{
		cfg:    cfg,
		logger: logger,
		jobs:   make(map[string]*Job),
		slots:  make(chan struct{}, maxJobs),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/optimize", s.handleOptimize)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/optimization/{id}", s.handleCancel)
		r.Post("/windows", s.handleWindows)
		r.Post("/impute", s.handleImpute)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// jobObserver tracks progress of one job and forwards to the server observer.
type jobObserver struct {
	s   *Server
	job *Job
}

func (o *jobObserver) TrialStarted(algorithm string, index int) {
	if o.s.observer != nil {
		o.s.observer.TrialStarted(algorithm, index)
	}
}

func (o *jobObserver) TrialFinished(algorithm string, index int, score float64, d time.Duration, err error) {
	o.s.jobsMu.Lock()
	o.job.finished++
	o.job.LastUpdated = time.Now()
	o.s.jobsMu.Unlock()
	if o.s.observer != nil {
		o.s.observer.TrialFinished(algorithm, index, score, d, err)
	}
}

func (o *jobObserver) RunFinished(algorithm string, state optimization.State) {
	if o.s.observer != nil {
		o.s.observer.RunFinished(algorithm, state)
	}
}

// startJob validates and builds the study, then runs it in the background.
// Configuration errors are returned before the job is registered.
func (s *Server) startJob(spec *study.Spec) (*Job, error) {
	const op = "startJob"

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if limit := s.cfg.Optimization.MaxIterations; limit > 0 && spec.Iterations > limit {
		return nil, errors.Newf(errors.KindConfiguration, "iterations %d exceed the server limit of %d", spec.Iterations, limit).
			WithOperation(op).WithAlgorithm(spec.Algorithm)
	}

	id := uuid.NewString()
	now := time.Now()
	job := &Job{
		ID:          id,
		Status:      StatusPending,
		StartTime:   now,
		LastUpdated: now,
		Spec:        spec,
		ResultsDir:  filepath.Join(s.cfg.Optimization.ResultsDir, id),
	}

	zl := s.logger.Zap().With(zap.String("optimization_id", id))
	driver, err := spec.Build(optimization.DriverConfig{
		Seed:     s.cfg.Optimization.Seed,
		Workers:  s.cfg.Optimization.WorkerCount,
		Observer: &jobObserver{s: s, job: job},
		Sink: &report.Directory{
			Path:   job.ResultsDir,
			Plot:   s.cfg.Optimization.PlotConvergence,
			Logger: zl,
		},
		Logger: zl,
	})
	if err != nil {
		return nil, err
	}
	job.driver = driver
	job.planned = plannedTrials(driver, spec)

	ctx, cancel := context.WithCancel(context.Background())
	job.CancelFunc = cancel

	s.jobsMu.Lock()
	s.jobs[id] = job
	s.jobsMu.Unlock()

	s.wg.Add(1)
	go s.runJob(ctx, job)

	s.logger.Info("Optimization started", map[string]interface{}{
		"optimization_id": id,
		"algorithm":       spec.Algorithm,
		"objective":       spec.Objective,
	})
	return job, nil
}

func plannedTrials(d *optimization.Driver, spec *study.Spec) int {
	if d.Algorithm() != optimization.AlgorithmGrid {
		return spec.Iterations
	}
	grids, err := d.Space().Grids()
	if err != nil {
		return 0
	}
	n := 1
	for _, g := range grids {
		n *= len(g)
	}
	return n
}

// runJob waits for a free slot and fits the driver.
func (s *Server) runJob(ctx context.Context, job *Job) {
	defer s.wg.Done()
	defer job.CancelFunc()

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-ctx.Done():
		s.jobsMu.Lock()
		if job.Status == StatusPending {
			now := time.Now()
			job.Status = StatusCancelled
			job.EndTime = &now
			job.LastUpdated = now
		}
		s.jobsMu.Unlock()
		return
	}

	s.jobsMu.Lock()
	if job.Status != StatusPending {
		s.jobsMu.Unlock()
		return
	}
	job.Status = StatusRunning
	job.LastUpdated = time.Now()
	s.jobsMu.Unlock()

	_, err := job.driver.Fit(ctx)

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	now := time.Now()
	job.LastUpdated = now
	if job.Status == StatusCancelled {
		return
	}
	job.EndTime = &now
	if err != nil && ctx.Err() != nil {
		// Stopped by Close.
		job.Status = StatusCancelled
		return
	}
	if err != nil {
		job.Status = StatusFailed
		job.Err = err
		s.logger.Error("Optimization failed", map[string]interface{}{
			"optimization_id": job.ID,
			"error":           err,
		})
		return
	}
	job.Status = StatusCompleted
	s.logger.Info("Optimization completed", map[string]interface{}{
		"optimization_id": job.ID,
		"results_dir":     job.ResultsDir,
	})
}

var errNotFound = errors.New(errors.KindConfiguration, "optimization not found")

// jobStatus renders the status document of a job.
func (s *Server) jobStatus(id string) (map[string]interface{}, error) {
	s.jobsMu.RLock()
	job, ok := s.jobs[id]
	if !ok {
		s.jobsMu.RUnlock()
		return nil, errNotFound
	}
	response := map[string]interface{}{
		"optimization_id": job.ID,
		"status":          job.Status,
		"algorithm":       job.Spec.Algorithm,
		"objective":       job.Spec.Objective,
		"trials":          job.finished,
		"start_time":      job.StartTime.Format(time.RFC3339),
		"last_update":     job.LastUpdated.Format(time.RFC3339),
	}
	if job.planned > 0 {
		response["progress"] = float64(job.finished) / float64(job.planned)
	}
	if job.EndTime != nil {
		response["end_time"] = job.EndTime.Format(time.RFC3339)
	}
	if job.Err != nil {
		response["error"] = job.Err.Error()
		if kind := errors.KindOf(job.Err); kind != "" {
			response["error_kind"] = kind
		}
	}
	status, driver := job.Status, job.driver
	if status == StatusCompleted {
		response["results_dir"] = job.ResultsDir
	}
	s.jobsMu.RUnlock()

	if best, ok := driver.RunningBest(); ok {
		response["current_best"] = map[string]interface{}{
			"trial":      best.Index,
			"parameters": best.Params,
			"value":      best.Score,
		}
	}
	if status == StatusCompleted {
		if params, err := driver.BestParameters(); err == nil {
			response["best_parameters"] = params
		}
	}
	return response, nil
}

// cancelJob cancels a pending or running job.
func (s *Server) cancelJob(id string) error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return errNotFound
	}
	switch job.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return errors.Newf(errors.KindConfiguration, "cannot cancel optimization with status: %s", job.Status).
			WithOperation("cancelJob")
	}

	job.CancelFunc()
	job.Status = StatusCancelled
	now := time.Now()
	job.EndTime = &now
	job.LastUpdated = now

	s.logger.Info("Optimization cancelled", map[string]interface{}{
		"optimization_id": id,
	})
	return nil
}

// Close cancels every job and waits for them to stop.
func (s *Server) Close() error {
	s.jobsMu.Lock()
	for _, job := range s.jobs {
		if job.CancelFunc != nil {
			job.CancelFunc()
		}
	}
	s.jobsMu.Unlock()
	s.wg.Wait()
	return nil
}

// handleOptimize handles POST /api/v1/optimize with a study document.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var spec study.Spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		errors.WriteJSON(w, errors.Wrap(err, errors.KindConfiguration, "invalid request body"))
		return
	}

	job, err := s.startJob(&spec)
	if err != nil {
		s.logger.Warn("Optimization rejected", map[string]interface{}{"error": err})
		errors.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"optimization_id": job.ID,
		"status":          StatusPending,
	})
}

// handleStatus handles GET /api/v1/status/{id}.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.jobStatus(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleCancel handles DELETE /api/v1/optimization/{id}.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.cancelJob(id); err != nil {
		code := http.StatusBadRequest
		if err == errNotFound {
			code = http.StatusNotFound
		}
		writeJSON(w, code, map[string]interface{}{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancellation requested"})
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
